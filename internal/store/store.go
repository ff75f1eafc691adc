// Package store is the PostgreSQL document backend. Every collection shares a
// single documents table with the payload kept in a JSONB column.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"memorabilia-service/internal/docstore"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// timestamps are written fixed-width so JSONB text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var fieldName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	version    BIGINT      NOT NULL DEFAULT 1,
	data       JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (collection, (data->>'status'));`

type Store struct {
	db *sqlx.DB
}

type row struct {
	ID      string `db:"id"`
	Version int64  `db:"version"`
	Data    []byte `db:"data"`
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Migrate creates the documents table
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get retrieves a document by id
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var r row
	err := s.db.GetContext(ctx, &r,
		"SELECT id, version, data FROM documents WHERE collection = $1 AND id = $2", collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, err
	}
	return r.document()
}

// Query retrieves documents matching every equality filter
func (s *Store) Query(ctx context.Context, collection string, filters []docstore.Filter, order *docstore.Order) ([]docstore.Document, error) {
	query, args, err := buildQuery(collection, filters, order)
	if err != nil {
		return nil, err
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	docs := make([]docstore.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Create inserts a new document
func (s *Store) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	payload, err := encode(data)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, version, data) VALUES ($1, $2, 1, $3)",
		collection, id, payload)
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}
	return id, nil
}

// CreateWithID inserts a document under id, or reports ErrConflict if it exists
func (s *Store) CreateWithID(ctx context.Context, collection, id string, data map[string]any) error {
	payload, err := encode(data)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, version, data) VALUES ($1, $2, 1, $3)
		 ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, payload)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return affected(res, fmt.Sprintf("create %s/%s", collection, id), docstore.ErrConflict)
}

// Update merges partial into the stored JSONB
func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	payload, err := encode(partial)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET data = data || $1::jsonb, version = version + 1, updated_at = NOW()
		 WHERE collection = $2 AND id = $3`,
		payload, collection, id)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return affected(res, fmt.Sprintf("update %s/%s", collection, id), docstore.ErrNotFound)
}

// Delete removes a document
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = $1 AND id = $2", collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return affected(res, fmt.Sprintf("delete %s/%s", collection, id), docstore.ErrNotFound)
}

// ConditionalUpdate replaces the data if the stored version still matches
func (s *Store) ConditionalUpdate(ctx context.Context, collection, id string, expectedVersion int64, data map[string]any) error {
	payload, err := encode(data)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET data = $1::jsonb, version = version + 1, updated_at = NOW()
		 WHERE collection = $2 AND id = $3 AND version = $4`,
		payload, collection, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = s.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)", collection, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("conditional update %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return fmt.Errorf("conditional update %s/%s at version %d: %w", collection, id, expectedVersion, docstore.ErrConflict)
}

func buildQuery(collection string, filters []docstore.Filter, order *docstore.Order) (string, []any, error) {
	query := "SELECT id, version, data FROM documents WHERE collection = $1"
	args := []any{collection}

	for _, f := range filters {
		if !fieldName.MatchString(f.Field) {
			return "", nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
		args = append(args, filterValue(f.Value))
		query += fmt.Sprintf(" AND data->>'%s' = $%d", f.Field, len(args))
	}

	if order != nil {
		if !fieldName.MatchString(order.Field) {
			return "", nil, fmt.Errorf("invalid order field %q", order.Field)
		}
		dir := "ASC"
		if order.Descending {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY data->'%s' %s, id", order.Field, dir)
	} else {
		query += " ORDER BY id"
	}
	return query, args, nil
}

func filterValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(timeLayout)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func encode(data map[string]any) ([]byte, error) {
	payload, err := json.Marshal(normalize(data))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return payload, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(timeLayout)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(timeLayout)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}

func (r row) document() (docstore.Document, error) {
	var data map[string]any
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return docstore.Document{}, fmt.Errorf("failed to decode document %s: %w", r.ID, err)
	}
	return docstore.Document{ID: r.ID, Version: r.Version, Data: data}, nil
}

func affected(res sql.Result, op string, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, notFound)
	}
	return nil
}
