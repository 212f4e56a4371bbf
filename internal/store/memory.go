package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/zulandar/quickvocab/internal/models"
)

// MemoryBackend keeps documents in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[Collection]map[string]models.HistoryRecord
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[Collection]map[string]models.HistoryRecord)}
}

func (m *MemoryBackend) ListDocuments(ctx context.Context, coll Collection, limit int) ([]models.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.HistoryRecord, 0, len(m.docs[coll]))
	for _, rec := range m.docs[coll] {
		out = append(out, cloneRecord(rec))
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryBackend) CreateDocument(ctx context.Context, coll Collection, id string, f Fields, upsert bool) (models.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.docs[coll]
	if !ok {
		docs = make(map[string]models.HistoryRecord)
		m.docs[coll] = docs
	}
	if _, exists := docs[id]; exists && !upsert {
		return models.HistoryRecord{}, ErrDuplicate
	}
	rec := models.HistoryRecord{
		ID:        id,
		Messages:  models.CloneMessages(f.Messages),
		Timestamp: f.Timestamp,
	}
	docs[id] = rec
	return cloneRecord(rec), nil
}

func (m *MemoryBackend) GetDocument(ctx context.Context, coll Collection, id string) (models.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.docs[coll][id]
	if !ok {
		return models.HistoryRecord{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryBackend) Close() error { return nil }

func cloneRecord(rec models.HistoryRecord) models.HistoryRecord {
	rec.Messages = models.CloneMessages(rec.Messages)
	return rec
}

// sortNewestFirst orders records by timestamp descending, then by id.
func sortNewestFirst(recs []models.HistoryRecord) {
	slices.SortFunc(recs, func(a, b models.HistoryRecord) int {
		if c := strings.Compare(b.Timestamp, a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
