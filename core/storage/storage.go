// Package storage defines the document store the pipeline commits to.
// Records are JSON documents grouped in named collections.
package storage

import (
	"context"
	"errors"

	"github.com/smartyellow/services/core/document"
)

var (
	// ErrNotFound is returned by Get when no record has the id.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned by Upsert when a unique claim is held by
	// another record.
	ErrConflict = errors.New("unique claim held by another record")
)

// Store hands out collections.
type Store interface {
	// Collection returns the collection with the given name.
	Collection(name string) Collection

	// Close releases the underlying connection.
	Close() error
}

// Collection provides record access within one collection.
type Collection interface {
	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (document.Values, error)

	// Find returns a lazy cursor over the records matching q.
	Find(ctx context.Context, q Query) (Cursor, error)

	// Delete removes every record matching q and returns how many were removed.
	Delete(ctx context.Context, q Query) (int64, error)

	// Upsert atomically creates or replaces the record identified by its
	// "id" value. Claims are unique per collection: a claim held by another
	// record fails the whole upsert with ErrConflict.
	Upsert(ctx context.Context, rec document.Values, claims []string) error
}

// Cursor iterates over query results.
type Cursor interface {
	Next(ctx context.Context) bool
	Record() document.Values
	Err() error
	Close() error
}

// ToArray drains the cursor into a slice.
func ToArray(ctx context.Context, c Cursor) ([]document.Values, error) {
	defer c.Close()

	out := []document.Values{}
	for c.Next(ctx) {
		out = append(out, c.Record())
	}
	return out, c.Err()
}

// ToObject drains the cursor into a map keyed by record id.
func ToObject(ctx context.Context, c Cursor) (map[string]document.Values, error) {
	defer c.Close()

	out := make(map[string]document.Values)
	for c.Next(ctx) {
		rec := c.Record()
		id, _ := rec["id"].(string)
		out[id] = rec
	}
	return out, c.Err()
}

// Exists reports whether a record with id is present.
func Exists(ctx context.Context, c Collection, id string) (bool, error) {
	_, err := c.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SliceCursor iterates over records already in memory.
type SliceCursor struct {
	recs []document.Values
	pos  int
}

// NewSliceCursor returns a cursor over recs.
func NewSliceCursor(recs []document.Values) *SliceCursor {
	return &SliceCursor{recs: recs, pos: -1}
}

func (c *SliceCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	c.pos++
	return c.pos < len(c.recs)
}

func (c *SliceCursor) Record() document.Values {
	if c.pos < 0 || c.pos >= len(c.recs) {
		return nil
	}
	return c.recs[c.pos]
}

func (c *SliceCursor) Err() error   { return nil }
func (c *SliceCursor) Close() error { return nil }
