package conversation

import (
	"bytes"
	"context"
	"errors"
	"log"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/quickvocab/internal/config"
	"github.com/zulandar/quickvocab/internal/models"
	"github.com/zulandar/quickvocab/internal/store"
	"github.com/zulandar/quickvocab/internal/typewriter"
)

// --- fakes ---

type fakeModel struct {
	mu      sync.Mutex
	calls   []string
	answer  string
	err     error
	started chan struct{} // closed per call when non-nil
	release chan struct{} // blocks the call until closed when non-nil
}

func (m *fakeModel) Ask(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	started, release := m.started, m.release
	m.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	return m.answer, m.err
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type fakeStore struct {
	mu        sync.Mutex
	creates   []createCall
	lists     int
	createErr error
	listErr   error
	records   []models.HistoryRecord
}

type createCall struct {
	id     string
	fields store.Fields
}

func (s *fakeStore) List(ctx context.Context, opts store.ListOpts) ([]models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.records, nil
}

func (s *fakeStore) Create(ctx context.Context, id string, f store.Fields) (models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, createCall{id: id, fields: f})
	if s.createErr != nil {
		return models.HistoryRecord{}, s.createErr
	}
	rec := models.HistoryRecord{ID: id, Messages: f.Messages, Timestamp: f.Timestamp}
	s.records = append([]models.HistoryRecord{rec}, s.records...)
	return rec, nil
}

func (s *fakeStore) calls() (creates, lists int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creates), s.lists
}

// stillTicker never fires, so reveals stay at their first frame.
type stillTicker struct{}

func (stillTicker) C() <-chan time.Time { return nil }
func (stillTicker) Stop()               {}

func newTestController(t *testing.T, model LanguageModel, st DocumentStore, mutate func(*Options)) (*Controller, *bytes.Buffer) {
	t.Helper()
	var logBuf bytes.Buffer
	ids := 0
	opts := Options{
		Model:     model,
		Store:     st,
		Logger:    log.New(&logBuf, "", 0),
		NewTicker: func(time.Duration) typewriter.Ticker { return stillTicker{} },
		NewSessionID: func() string {
			ids++
			return "unique_" + string(rune('a'+ids-1))
		},
		Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c, &logBuf
}

func logLines(buf *bytes.Buffer) []string {
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// --- New ---

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no model", Options{Store: &fakeStore{}}},
		{"no store", Options{Model: &fakeModel{}}},
		{"bad failure mode", Options{Model: &fakeModel{}, Store: &fakeStore{}, FailureMode: "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// --- Send ---

func TestSend_BlankInputIsNoop(t *testing.T) {
	model := &fakeModel{answer: "x"}
	st := &fakeStore{}
	c, _ := newTestController(t, model, st, nil)

	for _, in := range []string{"", "   ", "\n\t "} {
		if err := c.Send(context.Background(), in); err != nil {
			t.Errorf("Send(%q) = %v, want nil", in, err)
		}
	}
	if len(c.Transcript()) != 0 {
		t.Errorf("transcript = %v, want empty", c.Transcript())
	}
	if model.callCount() != 0 {
		t.Errorf("model calls = %d, want 0", model.callCount())
	}
	if creates, lists := st.calls(); creates != 0 || lists != 0 {
		t.Errorf("store calls = %d creates, %d lists, want none", creates, lists)
	}
}

func TestSend_Success(t *testing.T) {
	model := &fakeModel{answer: "A **river** flows.\nVOCABULARIES: river, flow ,stream"}
	st := &fakeStore{}
	c, logBuf := newTestController(t, model, st, nil)

	if err := c.Send(context.Background(), "  river  "); err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := []models.Message{
		{Role: models.RoleUser, Content: "river"},
		{Role: models.RoleAssistant, Content: "A **river** flows.", Vocabularies: []string{"river", "flow", "stream"}},
	}
	got := c.Transcript()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("transcript = %+v, want %+v", got, want)
	}
	if model.calls[0] != "river" {
		t.Errorf("model got %q, want trimmed input", model.calls[0])
	}

	if c.Session().ID != "unique_a" {
		t.Errorf("session = %q, want unique_a", c.Session().ID)
	}
	if len(st.creates) != 1 {
		t.Fatalf("creates = %d, want 1", len(st.creates))
	}
	created := st.creates[0]
	if created.id != "unique_a" {
		t.Errorf("persisted id = %q", created.id)
	}
	if !reflect.DeepEqual(created.fields.Messages, got) {
		t.Errorf("persisted messages differ from transcript:\n%+v\n%+v", created.fields.Messages, got)
	}
	if created.fields.Timestamp != "2026-03-01T12:00:00.000Z" {
		t.Errorf("timestamp = %q", created.fields.Timestamp)
	}

	if st.lists != 1 {
		t.Errorf("history lists = %d, want 1", st.lists)
	}
	if len(c.History()) != 1 || c.History()[0].ID != "unique_a" {
		t.Errorf("history = %+v", c.History())
	}
	if c.State() != StateIdle {
		t.Errorf("state = %q, want idle", c.State())
	}
	if c.ThinkingFrame() != "" {
		t.Errorf("thinking frame = %q, want cleared", c.ThinkingFrame())
	}
	if lines := logLines(logBuf); len(lines) != 0 {
		t.Errorf("unexpected log output: %q", lines)
	}
}

func TestSend_SecondSendReusesSession(t *testing.T) {
	model := &fakeModel{answer: "ok\nVOCABULARIES: ok"}
	st := &fakeStore{}
	c, _ := newTestController(t, model, st, nil)
	ctx := context.Background()

	if err := c.Send(ctx, "one"); err != nil {
		t.Fatalf("Send one: %v", err)
	}
	if err := c.Send(ctx, "two"); err != nil {
		t.Fatalf("Send two: %v", err)
	}
	if len(c.Transcript()) != 4 {
		t.Fatalf("transcript len = %d, want 4", len(c.Transcript()))
	}
	if st.creates[0].id != st.creates[1].id {
		t.Errorf("session ids differ: %q vs %q", st.creates[0].id, st.creates[1].id)
	}
	if len(st.creates[1].fields.Messages) != 4 {
		t.Errorf("second snapshot has %d messages, want 4", len(st.creates[1].fields.Messages))
	}
}

func TestSend_ModelFailureSilent(t *testing.T) {
	model := &fakeModel{err: errors.New("quota exceeded")}
	st := &fakeStore{}
	c, logBuf := newTestController(t, model, st, nil)

	err := c.Send(context.Background(), "hello")
	var mErr *ModelCallError
	if !errors.As(err, &mErr) {
		t.Fatalf("err = %v, want *ModelCallError", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error = %q, want cause", err)
	}

	want := []models.Message{{Role: models.RoleUser, Content: "hello"}}
	if got := c.Transcript(); !reflect.DeepEqual(got, want) {
		t.Errorf("transcript = %+v, want only the user message", got)
	}
	lines := logLines(logBuf)
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want exactly 1: %q", len(lines), lines)
	}
	if lines[0] != "conversation: model call: quota exceeded" {
		t.Errorf("log line = %q", lines[0])
	}
	if creates, lists := st.calls(); creates != 0 || lists != 0 {
		t.Errorf("store calls = %d creates, %d lists, want none", creates, lists)
	}
	if c.Session().Started() {
		t.Error("session should not start on failure")
	}
	if c.State() != StateIdle {
		t.Errorf("state = %q, want idle", c.State())
	}
}

func TestSend_ModelFailureNotice(t *testing.T) {
	model := &fakeModel{err: errors.New("boom")}
	c, _ := newTestController(t, model, &fakeStore{}, func(o *Options) {
		o.FailureMode = config.FailureNotice
		o.ErrorMessage = "Try again later."
	})

	if err := c.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
	got := c.Transcript()
	if len(got) != 2 {
		t.Fatalf("transcript len = %d, want 2", len(got))
	}
	if got[1].Role != models.RoleAssistant || got[1].Content != "Try again later." {
		t.Errorf("notice message = %+v", got[1])
	}
}

func TestSend_PersistFailure(t *testing.T) {
	tests := []struct {
		name     string
		rollback bool
		wantLen  int
	}{
		{"keep assistant message", false, 2},
		{"rollback assistant message", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{answer: "fine\nVOCABULARIES: fine"}
			st := &fakeStore{createErr: errors.New("disk full")}
			c, logBuf := newTestController(t, model, st, func(o *Options) {
				o.RollbackOnPersistFailure = tt.rollback
			})

			err := c.Send(context.Background(), "hello")
			var sErr *StoreCallError
			if !errors.As(err, &sErr) {
				t.Fatalf("err = %v, want *StoreCallError", err)
			}
			if sErr.Op != "create" {
				t.Errorf("op = %q, want create", sErr.Op)
			}
			if len(c.Transcript()) != tt.wantLen {
				t.Errorf("transcript len = %d, want %d", len(c.Transcript()), tt.wantLen)
			}
			if _, lists := st.calls(); lists != 0 {
				t.Errorf("history refreshed after failed persist")
			}
			lines := logLines(logBuf)
			if len(lines) != 1 {
				t.Fatalf("log lines = %d, want 1: %q", len(lines), lines)
			}
			if want := "conversation: store create: disk full (session unique_a)"; lines[0] != want {
				t.Errorf("log line = %q, want %q", lines[0], want)
			}
			if c.State() != StateIdle {
				t.Errorf("state = %q, want idle", c.State())
			}
		})
	}
}

func TestSend_HistoryRefreshFailureIsLoggedOnly(t *testing.T) {
	model := &fakeModel{answer: "fine"}
	st := &fakeStore{listErr: errors.New("list down")}
	c, logBuf := newTestController(t, model, st, nil)

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send = %v, want nil", err)
	}
	lines := logLines(logBuf)
	if len(lines) != 1 || lines[0] != "conversation: store list: list down (session unique_a)" {
		t.Errorf("log = %q", lines)
	}
	if len(c.Transcript()) != 2 {
		t.Errorf("transcript len = %d, want 2", len(c.Transcript()))
	}
}

func TestSend_Busy(t *testing.T) {
	model := &fakeModel{answer: "slow", started: make(chan struct{}), release: make(chan struct{})}
	c, _ := newTestController(t, model, &fakeStore{}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Send(context.Background(), "first") }()
	<-model.started

	if c.State() != StateSending {
		t.Errorf("state = %q, want sending", c.State())
	}
	if c.ThinkingFrame() != "" {
		t.Errorf("thinking frame = %q, want the empty first frame", c.ThinkingFrame())
	}
	if err := c.Send(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("second Send = %v, want ErrBusy", err)
	}

	close(model.release)
	if err := <-errCh; err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if model.callCount() != 1 {
		t.Errorf("model calls = %d, want 1", model.callCount())
	}
	if len(c.Transcript()) != 2 {
		t.Errorf("transcript len = %d, want 2", len(c.Transcript()))
	}
}

// --- StartNewSession ---

func TestStartNewSession(t *testing.T) {
	model := &fakeModel{answer: "ok"}
	st := &fakeStore{}
	c, _ := newTestController(t, model, st, nil)
	ctx := context.Background()

	if err := c.Send(ctx, "one"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	first := c.Session().ID

	c.StartNewSession()
	if len(c.Transcript()) != 0 {
		t.Errorf("transcript = %v, want empty", c.Transcript())
	}
	if c.Session().Started() {
		t.Error("session should be cleared")
	}
	if c.RevealFrame() != "" {
		t.Errorf("reveal frame = %q, want cleared", c.RevealFrame())
	}

	if err := c.Send(ctx, "two"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	second := c.Session().ID
	if second == "" || second == first {
		t.Errorf("new session id = %q, first = %q", second, first)
	}
	if len(st.creates[1].fields.Messages) != 2 {
		t.Errorf("new session snapshot has %d messages, want 2", len(st.creates[1].fields.Messages))
	}
}

func TestStartNewSession_DiscardsInFlightReply(t *testing.T) {
	model := &fakeModel{answer: "late", started: make(chan struct{}), release: make(chan struct{})}
	st := &fakeStore{}
	c, _ := newTestController(t, model, st, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Send(context.Background(), "hello") }()
	<-model.started

	c.StartNewSession()
	close(model.release)
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(c.Transcript()) != 0 {
		t.Errorf("transcript = %+v, want empty", c.Transcript())
	}
	if creates, _ := st.calls(); creates != 0 {
		t.Errorf("creates = %d, want 0", creates)
	}
	if c.Session().Started() {
		t.Error("session should stay unset")
	}
	if c.State() != StateIdle {
		t.Errorf("state = %q, want idle", c.State())
	}
}

// --- history & events ---

func TestRefreshHistory(t *testing.T) {
	st := &fakeStore{records: []models.HistoryRecord{{ID: "unique_x", Timestamp: "2026-01-01T00:00:00.000Z"}}}
	c, _ := newTestController(t, &fakeModel{}, st, nil)

	recs, err := c.RefreshHistory(context.Background())
	if err != nil {
		t.Fatalf("RefreshHistory: %v", err)
	}
	if len(recs) != 1 || len(c.History()) != 1 {
		t.Errorf("history = %+v", c.History())
	}

	st.listErr = errors.New("offline")
	_, err = c.RefreshHistory(context.Background())
	var sErr *StoreCallError
	if !errors.As(err, &sErr) || sErr.Op != "list" {
		t.Errorf("err = %v, want list StoreCallError", err)
	}
}

func TestSubscribe_ReceivesEvents(t *testing.T) {
	model := &fakeModel{answer: "hi there\nVOCABULARIES: hi"}
	c, _ := newTestController(t, model, &fakeStore{}, nil)

	events, cancel := c.Subscribe(128)
	defer cancel()

	if err := c.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	seen := map[EventKind]int{}
	var reveals []string
	for {
		select {
		case ev := <-events:
			seen[ev.Kind]++
			if ev.Kind == EventReveal {
				reveals = append(reveals, ev.Text)
			}
			continue
		default:
		}
		break
	}

	for _, kind := range []EventKind{EventTranscript, EventThinking, EventReveal, EventHistory, EventState, EventSession} {
		if seen[kind] == 0 {
			t.Errorf("no %s event", kind)
		}
	}
	if seen[EventTranscript] != 2 {
		t.Errorf("transcript events = %d, want 2", seen[EventTranscript])
	}
	if len(reveals) != 1 || reveals[0] != "" {
		t.Errorf("reveal frames = %q, want the initial empty frame", reveals)
	}
}

func TestSubscribe_CancelAndClose(t *testing.T) {
	c, _ := newTestController(t, &fakeModel{}, &fakeStore{}, nil)

	events, cancel := c.Subscribe(1)
	cancel()
	if _, ok := <-events; ok {
		t.Error("channel should be closed after cancel")
	}
	cancel()

	other, _ := c.Subscribe(1)
	c.Close()
	if _, ok := <-other; ok {
		t.Error("channel should be closed after Close")
	}

	late, _ := c.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscribing after Close should return a closed channel")
	}
}

func TestSnapshot(t *testing.T) {
	c, _ := newTestController(t, &fakeModel{answer: "ok"}, &fakeStore{}, nil)
	snap := c.Snapshot()
	if snap.State != StateIdle || snap.Session != "" || snap.Messages == nil || len(snap.Messages) != 0 {
		t.Errorf("empty snapshot = %+v", snap)
	}
	if err := c.Send(context.Background(), "x"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	snap = c.Snapshot()
	if snap.Session != "unique_a" || len(snap.Messages) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if !strings.HasPrefix(a, SessionPrefix) {
		t.Errorf("id %q missing prefix", a)
	}
	if a == b {
		t.Error("ids should be unique")
	}
}

func TestErrorTypes(t *testing.T) {
	cause := errors.New("root")
	if !errors.Is(&ModelCallError{Err: cause}, cause) {
		t.Error("ModelCallError should unwrap")
	}
	if !errors.Is(&StoreCallError{Op: "create", Err: cause}, cause) {
		t.Error("StoreCallError should unwrap")
	}
}
