package conversation

import "github.com/zulandar/quickvocab/internal/models"

// EventKind names what changed in a Controller.
type EventKind string

const (
	EventTranscript EventKind = "transcript"
	EventThinking   EventKind = "thinking"
	EventReveal     EventKind = "reveal"
	EventHistory    EventKind = "history"
	EventState      EventKind = "state"
	EventSession    EventKind = "session"
)

// Event is delivered to subscribers after a change. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind     EventKind              `json:"kind"`
	Text     string                 `json:"text,omitempty"`
	State    State                  `json:"state,omitempty"`
	Session  string                 `json:"session,omitempty"`
	Messages []models.Message       `json:"messages,omitempty"`
	History  []models.HistoryRecord `json:"history,omitempty"`
}

// Subscribe registers an observer. Events are dropped for a subscriber whose
// buffer is full. The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	c.subMu.Lock()
	if c.closed {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

func (c *Controller) publish(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (c *Controller) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
