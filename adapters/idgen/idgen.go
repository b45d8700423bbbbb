// Package idgen provides ID generation implementations.
package idgen

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/smartyellow/services/ports"
)

// DefaultLength is the length of short record ids.
const DefaultLength = 6

// Short generates short lowercase alphanumeric ids from a random source.
// A failing source yields "".
type Short struct {
	rand   ports.Random
	length int
}

// NewShort creates a short id generator. length <= 0 means DefaultLength.
func NewShort(rand ports.Random, length int) *Short {
	if length <= 0 {
		length = DefaultLength
	}
	return &Short{rand: rand, length: length}
}

// New generates a new short id.
func (s *Short) New() string {
	id, err := s.rand.String(s.length)
	if err != nil {
		return ""
	}
	return id
}

// UUID generates UUIDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

// Sequential generates sequential IDs (for testing).
type Sequential struct {
	prefix  string
	counter uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return s.prefix + strconv.FormatUint(n, 10)
}

// Reset resets the counter (for testing).
func (s *Sequential) Reset() {
	atomic.StoreUint64(&s.counter, 0)
}

// Queue hands out preset ids in order, then "" (for testing).
type Queue struct {
	mu  sync.Mutex
	ids []string
}

// NewQueue creates a generator returning ids in order.
func NewQueue(ids ...string) *Queue {
	return &Queue{ids: ids}
}

// New returns the next preset id.
func (q *Queue) New() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return ""
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id
}

// Ensure interface compliance.
var (
	_ ports.IDGenerator = (*Short)(nil)
	_ ports.IDGenerator = UUID{}
	_ ports.IDGenerator = (*Sequential)(nil)
	_ ports.IDGenerator = (*Queue)(nil)
)
