// Package memory provides in-memory implementations for testing.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu          sync.Mutex
	collections map[string]*Collection
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{collections: make(map[string]*Collection)}
}

// Collection returns the named collection, creating it on first use.
func (s *Store) Collection(name string) storage.Collection {
	return s.Get(name)
}

// Get returns the concrete collection, for inspection in tests.
func (s *Store) Get(name string) *Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		c = &Collection{
			recs:   make(map[string]document.Values),
			claims: make(map[string]string),
		}
		s.collections[name] = c
	}
	return c
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Collection holds the records of one collection. Records are copied on the
// way in and out so callers never share state with the store.
type Collection struct {
	mu     sync.RWMutex
	recs   map[string]document.Values
	claims map[string]string // claim -> owner id
	order  []string          // insertion order of ids
	writes int
}

func (c *Collection) Get(ctx context.Context, id string) (document.Values, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.recs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

func (c *Collection) Find(ctx context.Context, q storage.Query) (storage.Cursor, error) {
	recs, err := storage.Apply(c.snapshot(), q)
	if err != nil {
		return nil, err
	}
	return storage.NewSliceCursor(recs), nil
}

func (c *Collection) Delete(ctx context.Context, q storage.Query) (int64, error) {
	m, err := storage.Compile(q)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	for id, rec := range c.recs {
		if !m.Match(rec) {
			continue
		}
		delete(c.recs, id)
		c.release(id)
		n++
	}
	if n > 0 {
		c.writes++
		c.compact()
	}
	return n, nil
}

func (c *Collection) Upsert(ctx context.Context, rec document.Values, claims []string) error {
	id, _ := rec["id"].(string)
	if id == "" {
		return fmt.Errorf("upsert: record has no id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, claim := range claims {
		if owner, ok := c.claims[claim]; ok && owner != id {
			return fmt.Errorf("claim %q: %w", claim, storage.ErrConflict)
		}
	}

	if _, exists := c.recs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.recs[id] = rec.Clone()
	c.release(id)
	for _, claim := range claims {
		c.claims[claim] = id
	}
	c.writes++
	return nil
}

// Len returns the number of records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.recs)
}

// Writes returns how many upserts and deletes changed the collection.
func (c *Collection) Writes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writes
}

func (c *Collection) snapshot() []document.Values {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]document.Values, 0, len(c.order))
	for _, id := range c.order {
		if rec, ok := c.recs[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out
}

func (c *Collection) release(id string) {
	for claim, owner := range c.claims {
		if owner == id {
			delete(c.claims, claim)
		}
	}
}

func (c *Collection) compact() {
	kept := c.order[:0]
	for _, id := range c.order {
		if _, ok := c.recs[id]; ok {
			kept = append(kept, id)
		}
	}
	c.order = kept
}

// Ensure interface compliance.
var (
	_ storage.Store      = (*Store)(nil)
	_ storage.Collection = (*Collection)(nil)
)
