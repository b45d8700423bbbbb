// Package random provides Random implementations.
package random

import (
	"crypto/rand"
	"sync"

	"github.com/smartyellow/services/ports"
)

// Alphabet holds the characters random strings are made of.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Real uses crypto/rand for secure randomness.
type Real struct{}

// Bytes generates n cryptographically secure random bytes.
func (Real) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// String generates a random lowercase alphanumeric string of n characters.
func (r Real) String(n int) (string, error) {
	return alnum(r, n)
}

// Fake provides deterministic randomness for testing.
type Fake struct {
	mu      sync.Mutex
	counter int
	values  [][]byte // Preset values to return
	index   int
}

// NewFake creates a fake random source.
func NewFake() *Fake {
	return &Fake{}
}

// WithValues sets preset byte values to return.
func (f *Fake) WithValues(values ...[]byte) *Fake {
	f.values = values
	f.index = 0
	return f
}

// Bytes returns preset bytes or deterministic bytes based on counter.
func (f *Fake) Bytes(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index < len(f.values) {
		v := f.values[f.index]
		f.index++
		if len(v) >= n {
			return v[:n], nil
		}
		result := make([]byte, n)
		copy(result, v)
		return result, nil
	}

	f.counter++
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = byte((f.counter + i) % 256)
	}
	return b, nil
}

// String returns a deterministic alphanumeric string.
func (f *Fake) String(n int) (string, error) {
	return alnum(f, n)
}

// Reset resets the fake to initial state.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter = 0
	f.index = 0
}

// alnum maps random bytes onto Alphabet. Bytes past the largest multiple of
// the alphabet size are discarded to keep the distribution uniform.
func alnum(src ports.Random, n int) (string, error) {
	const limit = 256 - 256%len(Alphabet)
	out := make([]byte, 0, n)
	for len(out) < n {
		b, err := src.Bytes(n - len(out) + 4)
		if err != nil {
			return "", err
		}
		for _, c := range b {
			if int(c) >= limit {
				continue
			}
			out = append(out, Alphabet[int(c)%len(Alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

var (
	_ ports.Random = Real{}
	_ ports.Random = (*Fake)(nil)
)
