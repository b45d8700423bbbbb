package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/smartyellow/services/ports"
)

// Bucket is an in-memory implementation of ports.Bucket that deduplicates
// by SHA-256 of the content.
type Bucket struct {
	mu         sync.RWMutex
	byChecksum map[string]ports.StoredFile
	data       map[string][]byte // by id
	inserts    int
	err        error
}

// NewBucket creates an empty bucket.
func NewBucket() *Bucket {
	return &Bucket{
		byChecksum: make(map[string]ports.StoredFile),
		data:       make(map[string][]byte),
	}
}

// FailWith makes every following Insert return err.
func (b *Bucket) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// Insert stores data unless identical content is already present.
func (b *Bucket) Insert(ctx context.Context, desc ports.FileDescriptor, data []byte) (ports.StoredFile, error) {
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return ports.StoredFile{}, b.err
	}
	if existing, ok := b.byChecksum[checksum]; ok {
		return ports.StoredFile{}, &ports.DuplicateFileError{Existing: existing}
	}
	if _, ok := b.data[desc.ID]; ok {
		return ports.StoredFile{}, fmt.Errorf("object %s already exists", desc.ID)
	}

	f := ports.StoredFile{
		ID:          desc.ID,
		Filename:    desc.Filename,
		ContentType: desc.ContentType,
		Checksum:    checksum,
		Size:        int64(len(data)),
	}
	b.byChecksum[checksum] = f
	b.data[desc.ID] = append([]byte(nil), data...)
	b.inserts++
	return f, nil
}

// FindByChecksum looks up content by digest.
func (b *Bucket) FindByChecksum(ctx context.Context, checksum string) (ports.StoredFile, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, ok := b.byChecksum[checksum]
	return f, ok, nil
}

// Len returns the number of stored objects.
func (b *Bucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Data returns the content stored under id.
func (b *Bucket) Data(id string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.data[id]
	return d, ok
}

// Ensure interface compliance.
var _ ports.Bucket = (*Bucket)(nil)
