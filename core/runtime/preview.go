package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/smartyellow/services/ports"
)

// previewBucket stands in for the bucket during one validate-only run. Known
// content resolves to the stored object exactly as a real insert would; new
// content is reported as stored under the requested id without being written,
// and later inserts of the same content in the run resolve to that id.
type previewBucket struct {
	ports.Bucket

	mu   sync.Mutex
	seen map[string]ports.StoredFile
}

func newPreviewBucket(b ports.Bucket) *previewBucket {
	return &previewBucket{Bucket: b, seen: make(map[string]ports.StoredFile)}
}

func (b *previewBucket) Insert(ctx context.Context, desc ports.FileDescriptor, data []byte) (ports.StoredFile, error) {
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	existing, found, err := b.FindByChecksum(ctx, checksum)
	if err != nil {
		return ports.StoredFile{}, fmt.Errorf("look up checksum: %w", err)
	}
	if found {
		return ports.StoredFile{}, &ports.DuplicateFileError{Existing: existing}
	}

	stored := ports.StoredFile{
		ID:          desc.ID,
		Filename:    desc.Filename,
		ContentType: desc.ContentType,
		Checksum:    checksum,
		Size:        int64(len(data)),
	}
	b.mu.Lock()
	b.seen[checksum] = stored
	b.mu.Unlock()
	return stored, nil
}

// FindByChecksum reports content previewed earlier in the run before asking
// the wrapped bucket.
func (b *previewBucket) FindByChecksum(ctx context.Context, checksum string) (ports.StoredFile, bool, error) {
	b.mu.Lock()
	stored, ok := b.seen[checksum]
	b.mu.Unlock()
	if ok {
		return stored, true, nil
	}
	return b.Bucket.FindByChecksum(ctx, checksum)
}
