package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a concurrency-safe in-memory Store
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
	}
}

// Get returns a copy of the document
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	return cloneDocument(doc), nil
}

// Query returns the documents matching every filter
func (s *MemoryStore) Query(ctx context.Context, collection string, filters []Filter, order *Order) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Document, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		if matches(doc, filters) {
			out = append(out, cloneDocument(doc))
		}
	}
	s.mu.RUnlock()

	if order != nil {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i].Data[order.Field], out[j].Data[order.Field])
			if order.Descending {
				return c > 0
			}
			return c < 0
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return out, nil
}

// Create stores a new document and returns its generated id
func (s *MemoryStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]Document)
	}
	s.collections[collection][id] = Document{ID: id, Version: 1, Data: cloneMap(data)}
	return id, nil
}

// CreateWithID stores a new document under id unless it already exists
func (s *MemoryStore) CreateWithID(ctx context.Context, collection, id string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]Document)
	}
	if _, ok := s.collections[collection][id]; ok {
		return fmt.Errorf("create %s/%s: %w", collection, id, ErrConflict)
	}
	s.collections[collection][id] = Document{ID: id, Version: 1, Data: cloneMap(data)}
	return nil
}

// Update merges partial into the document data
func (s *MemoryStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range partial {
		doc.Data[k] = cloneValue(v)
	}
	doc.Version++
	s.collections[collection][id] = doc
	return nil
}

// Delete removes the document
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	delete(s.collections[collection], id)
	return nil
}

// ConditionalUpdate replaces the data when the version matches
func (s *MemoryStore) ConditionalUpdate(ctx context.Context, collection, id string, expectedVersion int64, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("conditional update %s/%s: %w", collection, id, ErrNotFound)
	}
	if doc.Version != expectedVersion {
		return fmt.Errorf("conditional update %s/%s: expected version %d, have %d: %w",
			collection, id, expectedVersion, doc.Version, ErrConflict)
	}
	s.collections[collection][id] = Document{ID: id, Version: doc.Version + 1, Data: cloneMap(data)}
	return nil
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if compareValues(doc.Data[f.Field], f.Value) != 0 {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case int64:
		if bv, ok := b.(int64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	}
	if reflect.DeepEqual(a, b) {
		return 0
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func cloneDocument(doc Document) Document {
	return Document{ID: doc.ID, Version: doc.Version, Data: cloneMap(doc.Data)}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = cloneMap(m)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
