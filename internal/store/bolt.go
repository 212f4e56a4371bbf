package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zulandar/quickvocab/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltBackend stores documents in a BoltDB file: one bucket per database,
// one nested bucket per collection, JSON values keyed by document id.
type BoltBackend struct {
	db *bolt.DB
}

// boltDocument is the JSON value stored per document.
type boltDocument struct {
	Messages  []models.Message `json:"messages"`
	Timestamp string           `json:"timestamp"`
}

// OpenBolt opens (creating if needed) the BoltDB file at path.
func OpenBolt(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: bolt: create dir: %w", err)
	}
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: bolt: open %s: %w", path, err)
	}
	return &BoltBackend{db: bdb}, nil
}

func (b *BoltBackend) ListDocuments(ctx context.Context, coll Collection, limit int) ([]models.HistoryRecord, error) {
	var out []models.HistoryRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := collectionBucket(tx, coll)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			rec, err := decodeBolt(k, v)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: bolt: list %s: %w", coll, err)
	}
	if out == nil {
		out = []models.HistoryRecord{}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *BoltBackend) CreateDocument(ctx context.Context, coll Collection, id string, f Fields, upsert bool) (models.HistoryRecord, error) {
	value, err := json.Marshal(boltDocument{Messages: messagesOrEmpty(f.Messages), Timestamp: f.Timestamp})
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("store: bolt: marshal: %w", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		dbBucket, err := tx.CreateBucketIfNotExists([]byte(coll.DatabaseID))
		if err != nil {
			return err
		}
		bucket, err := dbBucket.CreateBucketIfNotExists([]byte(coll.CollectionID))
		if err != nil {
			return err
		}
		if !upsert && bucket.Get([]byte(id)) != nil {
			return ErrDuplicate
		}
		return bucket.Put([]byte(id), value)
	})
	if errors.Is(err, ErrDuplicate) {
		return models.HistoryRecord{}, ErrDuplicate
	}
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("store: bolt: create %s/%s: %w", coll, id, err)
	}
	return models.HistoryRecord{
		ID:        id,
		Messages:  models.CloneMessages(f.Messages),
		Timestamp: f.Timestamp,
	}, nil
}

func (b *BoltBackend) GetDocument(ctx context.Context, coll Collection, id string) (models.HistoryRecord, error) {
	var rec models.HistoryRecord
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := collectionBucket(tx, coll)
		if bucket == nil {
			return nil
		}
		v := bucket.Get([]byte(id))
		if v == nil {
			return nil
		}
		var err error
		rec, err = decodeBolt([]byte(id), v)
		found = err == nil
		return err
	})
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("store: bolt: get %s/%s: %w", coll, id, err)
	}
	if !found {
		return models.HistoryRecord{}, ErrNotFound
	}
	return rec, nil
}

// Close closes the BoltDB file.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

func collectionBucket(tx *bolt.Tx, coll Collection) *bolt.Bucket {
	dbBucket := tx.Bucket([]byte(coll.DatabaseID))
	if dbBucket == nil {
		return nil
	}
	return dbBucket.Bucket([]byte(coll.CollectionID))
}

func decodeBolt(k, v []byte) (models.HistoryRecord, error) {
	var doc boltDocument
	if err := json.Unmarshal(v, &doc); err != nil {
		return models.HistoryRecord{}, fmt.Errorf("decode %s: %w", k, err)
	}
	return models.HistoryRecord{ID: string(k), Messages: doc.Messages, Timestamp: doc.Timestamp}, nil
}
