// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"fmt"
	"time"

	"github.com/smartyellow/services/core/storage"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Random abstracts randomness for testability.
type Random interface {
	// Bytes generates n random bytes.
	Bytes(n int) ([]byte, error)
	// String generates a random lowercase alphanumeric string of n characters.
	String(n int) (string, error)
}

// IDGenerator generates identifiers. An empty result means the source failed.
type IDGenerator interface {
	New() string
}

// Publisher broadcasts messages to other processes.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// -----------------------------------------------------------------------------
// Attachment Ports
// -----------------------------------------------------------------------------

// FileDescriptor describes an upload.
type FileDescriptor struct {
	ID          string
	Filename    string
	ContentType string
}

// StoredFile is an object held by a bucket.
type StoredFile struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Checksum    string `json:"checksum"`
	Size        int64  `json:"size"`
}

// DuplicateFileError is returned by Bucket.Insert when identical content is
// already stored. Existing identifies that object.
type DuplicateFileError struct {
	Existing StoredFile
}

func (e *DuplicateFileError) Error() string {
	return fmt.Sprintf("duplicate file: content already stored as %s", e.Existing.ID)
}

// Bucket stores binary attachments with content-level deduplication.
type Bucket interface {
	// Insert stores data under desc.ID. Content already present yields a
	// *DuplicateFileError carrying the existing object.
	Insert(ctx context.Context, desc FileDescriptor, data []byte) (StoredFile, error)

	// FindByChecksum looks up stored content by its SHA-256 hex digest.
	FindByChecksum(ctx context.Context, checksum string) (StoredFile, bool, error)
}

// -----------------------------------------------------------------------------
// Request Context
// -----------------------------------------------------------------------------

// User is the authenticated caller of a request.
type User struct {
	ID        string
	Coworkers []string
	Features  []string
}

// StorageState tells whether store and bucket handles can be used.
type StorageState int

const (
	StorageUnavailable StorageState = iota
	StorageAvailable
)

func (s StorageState) String() string {
	if s == StorageAvailable {
		return "available"
	}
	return "unavailable"
}

// Storage bundles the handles validators and hooks may use.
// Handles are only set when State is StorageAvailable.
type Storage struct {
	State  StorageState
	Store  storage.Store
	Bucket Bucket
}

// Available reports whether the handles can be used.
func (s Storage) Available() bool {
	return s.State == StorageAvailable && s.Store != nil
}

// NoStorage is the unavailable storage handle.
var NoStorage = Storage{State: StorageUnavailable}
