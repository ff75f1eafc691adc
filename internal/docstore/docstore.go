// Package docstore defines the document persistence contract shared by the
// in-memory, PostgreSQL and MongoDB backends.
package docstore

//go:generate mockgen -source=docstore.go -destination=mock_store.go -package=docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document version conflict")
)

// Document is a schemaless record with a store-managed version
type Document struct {
	ID      string
	Version int64
	Data    map[string]any
}

// Filter matches documents whose field equals Value
type Filter struct {
	Field string
	Value any
}

// Order sorts query results by a single field
type Order struct {
	Field      string
	Descending bool
}

// Store is the persistence contract used by the services
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, filters []Filter, order *Order) ([]Document, error)
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	// CreateWithID stores a document under a caller-chosen id and returns
	// ErrConflict when that id is already taken.
	CreateWithID(ctx context.Context, collection, id string, data map[string]any) error
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// ConditionalUpdate replaces the document data only if its version still
	// equals expectedVersion, and returns ErrConflict otherwise.
	ConditionalUpdate(ctx context.Context, collection, id string, expectedVersion int64, data map[string]any) error
}
