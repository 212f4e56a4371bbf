// Package store persists conversation history as documents keyed by session
// id. A Store binds one Backend to the primary and history collections and
// applies the configured write-target and duplicate-id policies.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/quickvocab/internal/config"
	"github.com/zulandar/quickvocab/internal/models"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

var (
	// ErrDuplicate is returned by Create when the document exists and the
	// duplicate policy is "error".
	ErrDuplicate = errors.New("store: document already exists")
	// ErrNotFound is returned by Get for an unknown document id.
	ErrNotFound = errors.New("store: document not found")
)

// Collection addresses a set of documents.
type Collection struct {
	DatabaseID   string
	CollectionID string
}

func (c Collection) String() string {
	return c.DatabaseID + "/" + c.CollectionID
}

// Fields is the document body written by Create.
type Fields struct {
	Messages  []models.Message
	Timestamp string
}

// ListOpts controls List. Results are always ordered by timestamp, newest
// first.
type ListOpts struct {
	Limit int
}

// Backend is a document database addressed by collection.
type Backend interface {
	ListDocuments(ctx context.Context, coll Collection, limit int) ([]models.HistoryRecord, error)
	CreateDocument(ctx context.Context, coll Collection, id string, f Fields, upsert bool) (models.HistoryRecord, error)
	GetDocument(ctx context.Context, coll Collection, id string) (models.HistoryRecord, error)
	Close() error
}

// Store is the history client used by the conversation controller.
type Store struct {
	backend Backend
	primary Collection
	history Collection
	mode    string
	upsert  bool
	limit   int
}

// Opts holds parameters for creating a Store.
type Opts struct {
	Backend     Backend
	Primary     Collection
	History     Collection // defaults to Primary
	Mode        string     // primary (default), history or dual
	OnDuplicate string     // upsert (default) or error
	ListLimit   int        // defaults to DefaultListLimit
}

// New creates a Store.
func New(opts Opts) (*Store, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("store: backend is required")
	}
	if opts.Primary.DatabaseID == "" || opts.Primary.CollectionID == "" {
		return nil, fmt.Errorf("store: primary collection is required")
	}
	if opts.History.DatabaseID == "" || opts.History.CollectionID == "" {
		opts.History = opts.Primary
	}
	mode := opts.Mode
	switch mode {
	case "":
		mode = config.ModePrimary
	case config.ModePrimary, config.ModeHistory, config.ModeDual:
	default:
		return nil, fmt.Errorf("store: unknown mode %q", mode)
	}
	upsert := true
	switch opts.OnDuplicate {
	case "", config.OnDuplicateUpsert:
	case config.OnDuplicateError:
		upsert = false
	default:
		return nil, fmt.Errorf("store: unknown duplicate policy %q", opts.OnDuplicate)
	}
	limit := opts.ListLimit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return &Store{
		backend: opts.Backend,
		primary: opts.Primary,
		history: opts.History,
		mode:    mode,
		upsert:  upsert,
		limit:   limit,
	}, nil
}

// List returns history records, newest first, capped at opts.Limit (or the
// store's list limit when zero).
func (s *Store) List(ctx context.Context, opts ListOpts) ([]models.HistoryRecord, error) {
	limit := opts.Limit
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	return s.backend.ListDocuments(ctx, s.readTarget(), limit)
}

// Create writes the document id with f. In dual mode both collections are
// written, primary first, and a failure of either fails the call.
func (s *Store) Create(ctx context.Context, id string, f Fields) (models.HistoryRecord, error) {
	if id == "" {
		return models.HistoryRecord{}, fmt.Errorf("store: document id is required")
	}
	var rec models.HistoryRecord
	for _, coll := range s.writeTargets() {
		r, err := s.backend.CreateDocument(ctx, coll, id, f, s.upsert)
		if err != nil {
			return models.HistoryRecord{}, err
		}
		rec = r
	}
	return rec, nil
}

// Get returns one history record by session id.
func (s *Store) Get(ctx context.Context, id string) (models.HistoryRecord, error) {
	return s.backend.GetDocument(ctx, s.readTarget(), id)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) readTarget() Collection {
	if s.mode == config.ModePrimary {
		return s.primary
	}
	return s.history
}

func (s *Store) writeTargets() []Collection {
	switch s.mode {
	case config.ModeHistory:
		return []Collection{s.history}
	case config.ModeDual:
		if s.history == s.primary {
			return []Collection{s.primary}
		}
		return []Collection{s.primary, s.history}
	default:
		return []Collection{s.primary}
	}
}
