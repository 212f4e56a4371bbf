package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zulandar/quickvocab/internal/conversation"
	"github.com/zulandar/quickvocab/internal/models"
	"github.com/zulandar/quickvocab/internal/vocab"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	vocabStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statusStyle = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type (
	eventMsg     conversation.Event
	eventsClosed struct{}
	sendDoneMsg  struct{ err error }
	historyMsg   struct {
		recs []models.HistoryRecord
		err  error
	}
)

// chatModel renders one controller and forwards input to it. All state it
// shows arrives as controller events.
type chatModel struct {
	ctx    context.Context
	ctrl   *conversation.Controller
	events <-chan conversation.Event

	input textinput.Model
	spin  spinner.Model

	messages []models.Message
	state    conversation.State
	thinking string
	reveal   string
	status   string
	failed   bool
	width    int
}

func newChatModel(ctx context.Context, ctrl *conversation.Controller, events <-chan conversation.Event) chatModel {
	in := textinput.New()
	in.Placeholder = "Ask about a word or phrase"
	in.Prompt = "> "
	in.Focus()
	in.Width = 60

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = vocabStyle

	return chatModel{
		ctx:      ctx,
		ctrl:     ctrl,
		events:   events,
		input:    in,
		spin:     s,
		messages: ctrl.Transcript(),
		state:    ctrl.State(),
		status:   "ctrl+n new conversation · esc quit",
	}
}

func runChatTUI(ctx context.Context, ctrl *conversation.Controller, in io.Reader, out io.Writer) error {
	events, unsubscribe := ctrl.Subscribe(256)
	defer unsubscribe()

	p := tea.NewProgram(newChatModel(ctx, ctrl, events),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}

func waitForEvent(events <-chan conversation.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosed{}
		}
		return eventMsg(ev)
	}
}

func sendCmd(ctx context.Context, ctrl *conversation.Controller, text string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: ctrl.Send(ctx, text)}
	}
}

func historyCmd(ctx context.Context, ctrl *conversation.Controller) tea.Cmd {
	return func() tea.Msg {
		recs, err := ctrl.RefreshHistory(ctx)
		return historyMsg{recs: recs, err: err}
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick, waitForEvent(m.events))
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+n":
			m.newSession()
			return m, nil
		case "enter":
			return m.submit()
		}

	case eventMsg:
		m.apply(conversation.Event(msg))
		return m, waitForEvent(m.events)

	case eventsClosed:
		return m, tea.Quit

	case sendDoneMsg:
		// Events can be dropped under load; the transcript is authoritative.
		m.messages = m.ctrl.Transcript()
		m.failed = msg.err != nil
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
		} else {
			m.status = ""
		}
		return m, nil

	case historyMsg:
		m.failed = msg.err != nil
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
		} else {
			m.status = historySummary(msg.recs)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *chatModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	switch text {
	case "":
		return *m, nil
	case "/quit", "/exit":
		return *m, tea.Quit
	case "/new":
		m.input.Reset()
		m.newSession()
		return *m, nil
	case "/history":
		m.input.Reset()
		m.status = "loading saved conversations..."
		m.failed = false
		return *m, historyCmd(m.ctx, m.ctrl)
	}
	if m.state == conversation.StateSending {
		m.status = "still waiting for the last answer"
		return *m, nil
	}
	m.input.Reset()
	m.status = ""
	m.failed = false
	return *m, sendCmd(m.ctx, m.ctrl, text)
}

func (m *chatModel) newSession() {
	m.ctrl.StartNewSession()
	m.messages = nil
	m.reveal = ""
	m.thinking = ""
	m.status = "started a new conversation"
	m.failed = false
}

func historySummary(recs []models.HistoryRecord) string {
	if len(recs) == 0 {
		return "no saved conversations"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d saved conversations:", len(recs))
	for i, rec := range recs {
		if i == 5 {
			b.WriteString(" ...")
			break
		}
		fmt.Fprintf(&b, " %q", truncate(firstQuestion(rec), 24))
	}
	return b.String()
}

func (m *chatModel) apply(ev conversation.Event) {
	switch ev.Kind {
	case conversation.EventTranscript:
		m.messages = ev.Messages
	case conversation.EventThinking:
		m.thinking = ev.Text
	case conversation.EventReveal:
		m.reveal = ev.Text
	case conversation.EventState:
		m.state = ev.State
	case conversation.EventSession:
		if ev.Session == "" {
			m.reveal = ""
		}
	}
}

func (m chatModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Quick Vocab"))
	b.WriteString("\n\n")

	wrap := lipgloss.NewStyle()
	if m.width > 0 {
		wrap = wrap.Width(m.width)
	}

	last := len(m.messages) - 1
	for i, msg := range m.messages {
		if msg.Role == models.RoleUser {
			b.WriteString(wrap.Render(userStyle.Render("You: ") + msg.Content))
			b.WriteString("\n\n")
			continue
		}
		content := msg.Content
		revealing := i == last && len(m.reveal) < len(content) && strings.HasPrefix(content, m.reveal)
		if revealing {
			content = m.reveal
		}
		b.WriteString(wrap.Render(vocab.Plain(content)))
		b.WriteString("\n")
		if !revealing && len(msg.Vocabularies) > 0 {
			b.WriteString(wrap.Render(vocabStyle.Render("Vocabulary: " + strings.Join(msg.Vocabularies, ", "))))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.state == conversation.StateSending {
		b.WriteString(m.spin.View() + " " + m.thinking + "\n\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.status != "" {
		style := statusStyle
		if m.failed {
			style = errorStyle
		}
		b.WriteString(style.Render(m.status))
		b.WriteString("\n")
	}
	return b.String()
}
