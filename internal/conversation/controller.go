// Package conversation owns one chat session: the transcript, the send
// lifecycle, the thinking placeholder and message reveals, and persistence of
// each exchange to the history store.
package conversation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/quickvocab/internal/config"
	"github.com/zulandar/quickvocab/internal/models"
	"github.com/zulandar/quickvocab/internal/store"
	"github.com/zulandar/quickvocab/internal/typewriter"
	"github.com/zulandar/quickvocab/internal/vocab"
)

// LanguageModel answers one prompt.
type LanguageModel interface {
	Ask(ctx context.Context, text string) (string, error)
}

// DocumentStore lists and writes history records.
type DocumentStore interface {
	List(ctx context.Context, opts store.ListOpts) ([]models.HistoryRecord, error)
	Create(ctx context.Context, id string, f store.Fields) (models.HistoryRecord, error)
}

// Options holds parameters for creating a Controller.
type Options struct {
	Model  LanguageModel
	Store  DocumentStore
	Logger *log.Logger // defaults to log.Default()

	FailureMode              string // silent (default) or notice
	ErrorMessage             string // assistant text appended in notice mode
	RollbackOnPersistFailure bool
	HistoryLimit             int // defaults to store.DefaultListLimit

	RevealInterval time.Duration // defaults to typewriter.DefaultInterval
	ThinkingText   string        // defaults to config.DefaultThinkingText
	NewTicker      typewriter.TickerFunc

	NewSessionID func() string    // defaults to NewSessionID
	Now          func() time.Time // defaults to time.Now
}

// Snapshot is a consistent view of the controller's visible state.
type Snapshot struct {
	State    State            `json:"state"`
	Session  string           `json:"session"`
	Messages []models.Message `json:"messages"`
}

// Controller runs the send lifecycle for one chat client.
type Controller struct {
	model        LanguageModel
	store        DocumentStore
	logger       *log.Logger
	notice       bool
	errorMessage string
	rollback     bool
	historyLimit int
	thinkingText string
	newSessionID func() string
	now          func() time.Time

	thinking *typewriter.Revealer
	reveal   *typewriter.Revealer

	mu         sync.Mutex
	transcript []models.Message
	session    Session
	state      State
	generation uint64
	history    []models.HistoryRecord

	frameMu       sync.Mutex
	thinkingFrame string
	revealFrame   string

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// New creates an idle Controller with an empty transcript.
func New(opts Options) (*Controller, error) {
	if opts.Model == nil {
		return nil, fmt.Errorf("conversation: model is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("conversation: store is required")
	}
	switch opts.FailureMode {
	case "", config.FailureSilent, config.FailureNotice:
	default:
		return nil, fmt.Errorf("conversation: unknown failure mode %q", opts.FailureMode)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.ErrorMessage == "" {
		opts.ErrorMessage = config.DefaultErrorMessage
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = store.DefaultListLimit
	}
	if opts.ThinkingText == "" {
		opts.ThinkingText = config.DefaultThinkingText
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = NewSessionID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Controller{
		model:        opts.Model,
		store:        opts.Store,
		logger:       opts.Logger,
		notice:       opts.FailureMode == config.FailureNotice,
		errorMessage: opts.ErrorMessage,
		rollback:     opts.RollbackOnPersistFailure,
		historyLimit: opts.HistoryLimit,
		thinkingText: opts.ThinkingText,
		newSessionID: opts.NewSessionID,
		now:          opts.Now,
		state:        StateIdle,
		subs:         make(map[int]chan Event),
	}
	c.thinking = typewriter.NewRevealer(typewriter.RevealerOpts{
		Interval:  opts.RevealInterval,
		NewTicker: opts.NewTicker,
		Emit: func(frame string) {
			c.frameMu.Lock()
			c.thinkingFrame = frame
			c.frameMu.Unlock()
			c.publish(Event{Kind: EventThinking, Text: frame})
		},
	})
	c.reveal = typewriter.NewRevealer(typewriter.RevealerOpts{
		Interval:  opts.RevealInterval,
		NewTicker: opts.NewTicker,
		Emit: func(frame string) {
			c.frameMu.Lock()
			c.revealFrame = frame
			c.frameMu.Unlock()
			c.publish(Event{Kind: EventReveal, Text: frame})
		},
	})
	return c, nil
}

// Send submits text to the model. Blank input is ignored. On success the
// parsed reply is appended, the transcript is persisted under the session id
// and the history list is refreshed. A failed model call or persist is logged
// once and returned as *ModelCallError or *StoreCallError; the controller is
// idle again either way.
func (c *Controller) Send(ctx context.Context, text string) error {
	input := strings.TrimSpace(text)
	if input == "" {
		return nil
	}

	c.mu.Lock()
	if c.state == StateSending {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateSending
	c.transcript = append(c.transcript, models.Message{Role: models.RoleUser, Content: input})
	gen := c.generation
	msgs := models.CloneMessages(c.transcript)
	c.mu.Unlock()

	c.publish(Event{Kind: EventTranscript, Messages: msgs})
	c.publish(Event{Kind: EventState, State: StateSending})
	c.reveal.Cancel()
	c.thinking.Restart(c.thinkingText)

	answer, err := c.model.Ask(ctx, input)
	c.clearThinking()
	if err != nil {
		return c.failModel(gen, err)
	}

	reply := vocab.Parse(answer)

	c.mu.Lock()
	if c.generation != gen {
		// The session was reset while the model was answering.
		c.state = StateIdle
		c.mu.Unlock()
		c.publish(Event{Kind: EventState, State: StateIdle})
		return nil
	}
	c.transcript = append(c.transcript, models.Message{
		Role:         models.RoleAssistant,
		Content:      reply.Content,
		Vocabularies: reply.Vocabularies,
	})
	started := false
	if !c.session.Started() {
		c.session = Session{ID: c.newSessionID()}
		started = true
	}
	session := c.session
	msgs = models.CloneMessages(c.transcript)
	c.mu.Unlock()

	c.publish(Event{Kind: EventTranscript, Messages: msgs})
	if started {
		c.publish(Event{Kind: EventSession, Session: session.ID})
	}
	c.reveal.Restart(reply.Content)

	_, err = c.store.Create(ctx, session.ID, store.Fields{
		Messages:  msgs,
		Timestamp: models.FormatTimestamp(c.now()),
	})
	if err != nil {
		return c.failPersist(gen, len(msgs), err)
	}

	if _, err := c.loadHistory(ctx); err != nil {
		c.logFailure(err)
	}
	c.setIdle()
	return nil
}

func (c *Controller) failModel(gen uint64, cause error) error {
	err := &ModelCallError{Err: cause}
	c.logFailure(err)

	c.mu.Lock()
	appended := false
	if c.notice && c.generation == gen {
		c.transcript = append(c.transcript, models.Message{Role: models.RoleAssistant, Content: c.errorMessage})
		appended = true
	}
	msgs := models.CloneMessages(c.transcript)
	c.mu.Unlock()

	if appended {
		c.publish(Event{Kind: EventTranscript, Messages: msgs})
	}
	c.setIdle()
	return err
}

func (c *Controller) failPersist(gen uint64, n int, cause error) error {
	err := &StoreCallError{Op: "create", Err: cause}
	c.logFailure(err)

	c.mu.Lock()
	removed := false
	if c.rollback && c.generation == gen && len(c.transcript) == n {
		c.transcript = c.transcript[:n-1]
		removed = true
	}
	msgs := models.CloneMessages(c.transcript)
	c.mu.Unlock()

	if removed {
		c.reveal.Cancel()
		c.publish(Event{Kind: EventTranscript, Messages: msgs})
	}
	c.setIdle()
	return err
}

// logFailure logs err, naming the session once one has started.
func (c *Controller) logFailure(err error) {
	if s := c.Session(); s.Started() {
		c.logger.Printf("%v (session %s)", err, s.ID)
		return
	}
	c.logger.Print(err)
}

func (c *Controller) clearThinking() {
	c.thinking.Cancel()
	c.frameMu.Lock()
	c.thinkingFrame = ""
	c.frameMu.Unlock()
	c.publish(Event{Kind: EventThinking, Text: ""})
}

func (c *Controller) setIdle() {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.publish(Event{Kind: EventState, State: StateIdle})
}

// StartNewSession clears the transcript and session id and stops any
// reveal. A reply still in flight is discarded when it arrives.
func (c *Controller) StartNewSession() {
	c.mu.Lock()
	c.generation++
	c.transcript = nil
	c.session = Session{}
	c.mu.Unlock()

	c.reveal.Cancel()
	c.thinking.Cancel()
	c.frameMu.Lock()
	c.revealFrame = ""
	c.thinkingFrame = ""
	c.frameMu.Unlock()

	c.publish(Event{Kind: EventTranscript, Messages: []models.Message{}})
	c.publish(Event{Kind: EventSession, Session: ""})
}

// RefreshHistory reloads the history list from the store.
func (c *Controller) RefreshHistory(ctx context.Context) ([]models.HistoryRecord, error) {
	recs, err := c.loadHistory(ctx)
	if err != nil {
		c.logFailure(err)
		return nil, err
	}
	return recs, nil
}

func (c *Controller) loadHistory(ctx context.Context) ([]models.HistoryRecord, error) {
	recs, err := c.store.List(ctx, store.ListOpts{Limit: c.historyLimit})
	if err != nil {
		return nil, &StoreCallError{Op: "list", Err: err}
	}
	c.mu.Lock()
	c.history = recs
	c.mu.Unlock()
	c.publish(Event{Kind: EventHistory, History: recs})
	return recs, nil
}

// Transcript returns a copy of the current transcript.
func (c *Controller) Transcript() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CloneMessages(c.transcript)
}

// Session returns the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// State returns the current send state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns the last loaded history list.
func (c *Controller) History() []models.HistoryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history
}

// Snapshot returns state, session id and transcript together.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := models.CloneMessages(c.transcript)
	if msgs == nil {
		msgs = []models.Message{}
	}
	return Snapshot{State: c.state, Session: c.session.ID, Messages: msgs}
}

// RevealFrame returns the revealed prefix of the latest assistant message.
func (c *Controller) RevealFrame() string {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	return c.revealFrame
}

// ThinkingFrame returns the revealed prefix of the thinking placeholder, or
// "" when no send is in flight.
func (c *Controller) ThinkingFrame() string {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	return c.thinkingFrame
}

// Close stops reveals and closes all subscriber channels.
func (c *Controller) Close() {
	c.reveal.Cancel()
	c.thinking.Cancel()
	c.closeSubscribers()
}
