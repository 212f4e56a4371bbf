package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/appwrite/sdk-for-go/appwrite"
	"github.com/appwrite/sdk-for-go/client"
	"github.com/appwrite/sdk-for-go/databases"
	"github.com/appwrite/sdk-for-go/query"
	"github.com/zulandar/quickvocab/internal/models"
)

// AppwriteBackend stores history in an Appwrite database through the
// Appwrite Go SDK. Messages are stored as a JSON-encoded string attribute.
type AppwriteBackend struct {
	db *databases.Databases
}

// AppwriteOpts holds parameters for creating an AppwriteBackend.
type AppwriteOpts struct {
	Endpoint  string // e.g. https://cloud.appwrite.io/v1
	ProjectID string
	APIKey    string // optional for public collections
}

// NewAppwrite creates an AppwriteBackend.
func NewAppwrite(opts AppwriteOpts) (*AppwriteBackend, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("store: appwrite: endpoint is required")
	}
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("store: appwrite: project id is required")
	}
	var clt client.Client
	if opts.APIKey != "" {
		clt = appwrite.NewClient(
			appwrite.WithEndpoint(opts.Endpoint),
			appwrite.WithProject(opts.ProjectID),
			appwrite.WithKey(opts.APIKey),
		)
	} else {
		clt = appwrite.NewClient(
			appwrite.WithEndpoint(opts.Endpoint),
			appwrite.WithProject(opts.ProjectID),
		)
	}
	return &AppwriteBackend{db: appwrite.NewDatabases(clt)}, nil
}

// appwriteDocument is the subset of a document's attributes the store uses.
type appwriteDocument struct {
	ID        string          `json:"$id"`
	Messages  json.RawMessage `json:"messages"`
	Timestamp string          `json:"timestamp"`
}

type appwriteList struct {
	Total     int                `json:"total"`
	Documents []appwriteDocument `json:"documents"`
}

func (a *AppwriteBackend) ListDocuments(ctx context.Context, coll Collection, limit int) ([]models.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("store: appwrite: list %s: %w", coll, err)
	}
	queries := []string{query.OrderDesc("timestamp")}
	if limit > 0 {
		queries = append(queries, query.Limit(limit))
	}

	list, err := a.db.ListDocuments(coll.DatabaseID, coll.CollectionID, a.db.WithListDocumentsQueries(queries))
	if err != nil {
		return nil, fmt.Errorf("store: appwrite: list %s: status=%d: %w", coll, statusOf(err), err)
	}
	var parsed appwriteList
	if err := list.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("store: appwrite: list %s: decode: %w", coll, err)
	}

	out := make([]models.HistoryRecord, 0, len(parsed.Documents))
	for _, d := range parsed.Documents {
		rec, err := d.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (a *AppwriteBackend) CreateDocument(ctx context.Context, coll Collection, id string, f Fields, upsert bool) (models.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.HistoryRecord{}, fmt.Errorf("store: appwrite: create %s/%s: %w", coll, id, err)
	}
	msgs, err := json.Marshal(messagesOrEmpty(f.Messages))
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("store: appwrite: marshal messages: %w", err)
	}
	data := map[string]any{
		"messages":  string(msgs),
		"timestamp": f.Timestamp,
	}

	_, err = a.db.CreateDocument(coll.DatabaseID, coll.CollectionID, id, data)
	if statusOf(err) == http.StatusConflict {
		if !upsert {
			return models.HistoryRecord{}, ErrDuplicate
		}
		_, err = a.db.UpdateDocument(coll.DatabaseID, coll.CollectionID, id, a.db.WithUpdateDocumentData(data))
	}
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("store: appwrite: write %s/%s: status=%d: %w", coll, id, statusOf(err), err)
	}

	return models.HistoryRecord{
		ID:        id,
		Messages:  models.CloneMessages(f.Messages),
		Timestamp: f.Timestamp,
	}, nil
}

func (a *AppwriteBackend) GetDocument(ctx context.Context, coll Collection, id string) (models.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.HistoryRecord{}, fmt.Errorf("store: appwrite: get %s/%s: %w", coll, id, err)
	}
	doc, err := a.db.GetDocument(coll.DatabaseID, coll.CollectionID, id)
	if statusOf(err) == http.StatusNotFound {
		return models.HistoryRecord{}, ErrNotFound
	}
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("store: appwrite: get %s/%s: status=%d: %w", coll, id, statusOf(err), err)
	}
	var d appwriteDocument
	if err := doc.Decode(&d); err != nil {
		return models.HistoryRecord{}, fmt.Errorf("store: appwrite: get %s/%s: decode: %w", coll, id, err)
	}
	return d.record()
}

func (a *AppwriteBackend) Close() error { return nil }

// statusOf returns the HTTP status carried by an SDK error, or 0.
func statusOf(err error) int {
	var se interface{ GetStatusCode() int }
	if errors.As(err, &se) {
		return se.GetStatusCode()
	}
	return 0
}

// record decodes a document whose messages attribute is either a JSON string
// holding the array or the array itself.
func (d appwriteDocument) record() (models.HistoryRecord, error) {
	rec := models.HistoryRecord{ID: d.ID, Timestamp: d.Timestamp}
	raw := bytes.TrimSpace(d.Messages)
	if len(raw) == 0 || string(raw) == "null" {
		return rec, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return rec, fmt.Errorf("store: appwrite: decode messages of %s: %w", d.ID, err)
		}
		raw = []byte(s)
	}
	if err := json.Unmarshal(raw, &rec.Messages); err != nil {
		return rec, fmt.Errorf("store: appwrite: decode messages of %s: %w", d.ID, err)
	}
	return rec, nil
}
