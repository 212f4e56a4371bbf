package models

import (
	"slices"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TimestampLayout is the ISO-8601 layout used for history timestamps. It
// always renders UTC with millisecond precision so that timestamps sort
// lexicographically.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Message is one entry of a chat transcript.
type Message struct {
	Role         string   `json:"role"`
	Content      string   `json:"content"`
	Vocabularies []string `json:"vocabularies,omitempty"`
}

// HistoryRecord is the persisted snapshot of one session's transcript.
type HistoryRecord struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	Timestamp string    `json:"timestamp"`
}

// HistoryDocument stores a HistoryRecord in SQL. Documents are scoped by
// database and collection identifiers so that the primary and history
// targets can share one table.
type HistoryDocument struct {
	DatabaseID   string `gorm:"primaryKey;size:64"`
	CollectionID string `gorm:"primaryKey;size:64"`
	DocID        string `gorm:"primaryKey;size:128"`
	Messages     string `gorm:"type:text;not null"` // JSON array of Message
	Timestamp    string `gorm:"size:32;not null;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CloneMessages returns a deep copy of msgs.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].Vocabularies = slices.Clone(m.Vocabularies)
	}
	return out
}
