package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zulandar/quickvocab/internal/db"
	"github.com/zulandar/quickvocab/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLBackend stores documents in the history_documents table via GORM.
type SQLBackend struct {
	db *gorm.DB
}

// NewSQLBackend wraps an open GORM connection and migrates the schema.
func NewSQLBackend(gormDB *gorm.DB) (*SQLBackend, error) {
	if gormDB == nil {
		return nil, fmt.Errorf("store: sql: db is required")
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, fmt.Errorf("store: sql: %w", err)
	}
	return &SQLBackend{db: gormDB}, nil
}

func (s *SQLBackend) ListDocuments(ctx context.Context, coll Collection, limit int) ([]models.HistoryRecord, error) {
	var docs []models.HistoryDocument
	q := s.db.WithContext(ctx).
		Where("database_id = ? AND collection_id = ?", coll.DatabaseID, coll.CollectionID).
		Order("timestamp DESC, doc_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("store: sql: list %s: %w", coll, err)
	}

	out := make([]models.HistoryRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := recordFromDocument(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLBackend) CreateDocument(ctx context.Context, coll Collection, id string, f Fields, upsert bool) (models.HistoryRecord, error) {
	msgs, err := json.Marshal(messagesOrEmpty(f.Messages))
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("store: sql: marshal messages: %w", err)
	}
	doc := models.HistoryDocument{
		DatabaseID:   coll.DatabaseID,
		CollectionID: coll.CollectionID,
		DocID:        id,
		Messages:     string(msgs),
		Timestamp:    f.Timestamp,
	}

	if upsert {
		err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "database_id"}, {Name: "collection_id"}, {Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"messages", "timestamp", "updated_at"}),
		}).Create(&doc).Error
	} else {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&models.HistoryDocument{}).
				Where("database_id = ? AND collection_id = ? AND doc_id = ?", coll.DatabaseID, coll.CollectionID, id).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrDuplicate
			}
			return tx.Create(&doc).Error
		})
	}
	if errors.Is(err, ErrDuplicate) {
		return models.HistoryRecord{}, ErrDuplicate
	}
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("store: sql: create %s/%s: %w", coll, id, err)
	}

	return models.HistoryRecord{
		ID:        id,
		Messages:  models.CloneMessages(f.Messages),
		Timestamp: f.Timestamp,
	}, nil
}

func (s *SQLBackend) GetDocument(ctx context.Context, coll Collection, id string) (models.HistoryRecord, error) {
	var doc models.HistoryDocument
	err := s.db.WithContext(ctx).
		Where("database_id = ? AND collection_id = ? AND doc_id = ?", coll.DatabaseID, coll.CollectionID, id).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.HistoryRecord{}, ErrNotFound
	}
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("store: sql: get %s/%s: %w", coll, id, err)
	}
	return recordFromDocument(doc)
}

// Close closes the underlying connection pool.
func (s *SQLBackend) Close() error {
	return db.Close(s.db)
}

func recordFromDocument(d models.HistoryDocument) (models.HistoryRecord, error) {
	var msgs []models.Message
	if d.Messages != "" {
		if err := json.Unmarshal([]byte(d.Messages), &msgs); err != nil {
			return models.HistoryRecord{}, fmt.Errorf("store: decode messages of %s: %w", d.DocID, err)
		}
	}
	return models.HistoryRecord{ID: d.DocID, Messages: msgs, Timestamp: d.Timestamp}, nil
}

func messagesOrEmpty(msgs []models.Message) []models.Message {
	if msgs == nil {
		return []models.Message{}
	}
	return msgs
}
