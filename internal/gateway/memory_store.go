package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"payment-reconciliation/internal/domain"
)

// Timestamps stamped by every store.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// MemoryStore implements usecase.DocumentStore in process memory. Documents
// are copied on the way in and out, so callers never share state with it.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]domain.Document
	now         func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]domain.Document),
		now:         time.Now,
	}
}

// FindOne returns the first matching document in _id order.
func (s *MemoryStore) FindOne(ctx context.Context, collection string, filter domain.Filter) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.sorted(collection) {
		if filter.Matches(doc) {
			return doc.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", collection, domain.ErrNotFound)
}

// Find returns every matching document in _id order.
func (s *MemoryStore) Find(ctx context.Context, collection string, filter domain.Filter) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Document
	for _, doc := range s.sorted(collection) {
		if filter.Matches(doc) {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

// UpdateOne applies update to the first matching document.
func (s *MemoryStore) UpdateOne(ctx context.Context, collection string, filter domain.Filter, update domain.Update) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.sorted(collection) {
		if !filter.Matches(doc) {
			continue
		}
		update.Clone().Apply(doc)
		doc[FieldUpdatedAt] = s.now().UTC()
		return 1, nil
	}
	return 0, nil
}

// InsertOne stores a copy of doc, assigning an _id when it has none.
func (s *MemoryStore) InsertOne(ctx context.Context, collection string, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(collection, doc)
}

// InsertMany stores every document or none of them.
func (s *MemoryStore) InsertMany(ctx context.Context, collection string, docs []domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		id := doc.ID()
		if id == "" {
			continue
		}
		if _, ok := s.collections[collection][id]; ok || seen[id] {
			return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrDuplicateKey)
		}
		seen[id] = true
	}
	for _, doc := range docs {
		if err := s.insert(collection, doc); err != nil {
			return err
		}
	}
	return nil
}

// DeleteOne removes the first matching document.
func (s *MemoryStore) DeleteOne(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.sorted(collection) {
		if filter.Matches(doc) {
			delete(s.collections[collection], doc.ID())
			return 1, nil
		}
	}
	return 0, nil
}

// DeleteMany removes every matching document.
func (s *MemoryStore) DeleteMany(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, doc := range s.sorted(collection) {
		if filter.Matches(doc) {
			delete(s.collections[collection], doc.ID())
			n++
		}
	}
	return n, nil
}

// CountDocuments counts matching documents.
func (s *MemoryStore) CountDocuments(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, doc := range s.collections[collection] {
		if filter.Matches(doc) {
			n++
		}
	}
	return n, nil
}

// LoadSnapshot reads a JSON object of collection name to document array
// and inserts everything it holds.
func (s *MemoryStore) LoadSnapshot(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	var snapshot map[string][]domain.Document
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for collection, docs := range snapshot {
		for _, doc := range docs {
			if err := s.insert(collection, doc); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveSnapshot writes every collection back in the LoadSnapshot format.
func (s *MemoryStore) SaveSnapshot(path string) error {
	s.mu.RLock()
	snapshot := make(map[string][]domain.Document, len(s.collections))
	for name := range s.collections {
		snapshot[name] = s.sorted(name)
	}
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}

func (s *MemoryStore) insert(collection string, doc domain.Document) error {
	stored := doc.Clone()
	if stored == nil {
		stored = domain.Document{}
	}
	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
	}
	stored[domain.IDField] = id
	if _, ok := stored[FieldCreatedAt]; !ok {
		stored[FieldCreatedAt] = s.now().UTC()
	}
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]domain.Document)
		s.collections[collection] = docs
	}
	if _, exists := docs[id]; exists {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrDuplicateKey)
	}
	docs[id] = stored
	return nil
}

// sorted returns the live documents of a collection in _id order. Callers
// hold the lock.
func (s *MemoryStore) sorted(collection string) []domain.Document {
	docs := s.collections[collection]
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
