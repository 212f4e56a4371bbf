package conversation

import (
	"errors"

	"github.com/google/uuid"
)

// SessionPrefix starts every generated session id.
const SessionPrefix = "unique_"

// Session identifies the history document a transcript is persisted to. The
// zero value is a session that has not been started yet.
type Session struct {
	ID string
}

// Started reports whether the session has been assigned an id.
func (s Session) Started() bool {
	return s.ID != ""
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return SessionPrefix + uuid.NewString()
}

// State is the send lifecycle state of a Controller.
type State string

const (
	StateIdle    State = "idle"
	StateSending State = "sending"
)

// ErrBusy is returned by Send while a previous send is still in flight.
var ErrBusy = errors.New("conversation: a message is already being sent")

// ModelCallError reports a failed language model call.
type ModelCallError struct {
	Err error
}

func (e *ModelCallError) Error() string {
	return "conversation: model call: " + e.Err.Error()
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// StoreCallError reports a failed history store call. Op is "create" or
// "list".
type StoreCallError struct {
	Op  string
	Err error
}

func (e *StoreCallError) Error() string {
	return "conversation: store " + e.Op + ": " + e.Err.Error()
}

func (e *StoreCallError) Unwrap() error { return e.Err }
