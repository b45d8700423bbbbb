package random_test

import (
	"strings"
	"testing"

	"github.com/smartyellow/services/adapters/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReal_Bytes(t *testing.T) {
	r := random.Real{}

	b, err := r.Bytes(32)
	require.NoError(t, err)
	assert.Len(t, b, 32)
}

func TestReal_String(t *testing.T) {
	r := random.Real{}

	for _, n := range []int{1, 6, 17, 64} {
		s, err := r.String(n)
		require.NoError(t, err)
		assert.Len(t, s, n)
		for _, c := range s {
			assert.True(t, strings.ContainsRune(random.Alphabet, c), "String(%d) = %q holds %q", n, s, c)
		}
	}
}

func TestReal_String_Unique(t *testing.T) {
	r := random.Real{}

	s1, _ := r.String(32)
	s2, _ := r.String(32)
	assert.NotEqual(t, s1, s2)
}

func TestFake_Deterministic(t *testing.T) {
	a, _ := random.NewFake().String(6)
	b, _ := random.NewFake().String(6)
	assert.Equal(t, a, b, "fresh fakes differ")

	f := random.NewFake()
	first, _ := f.String(6)
	second, _ := f.String(6)
	assert.NotEqual(t, first, second, "successive strings")
}

func TestFake_WithValues(t *testing.T) {
	f := random.NewFake().WithValues([]byte{0, 1, 2, 3, 4, 5}, []byte{36})

	s, err := f.String(6)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", s)

	b, _ := f.Bytes(3)
	require.Len(t, b, 3)
	assert.Equal(t, byte(36), b[0])
	assert.Equal(t, byte(0), b[1])
}

func TestFake_Reset(t *testing.T) {
	f := random.NewFake()
	first, _ := f.String(8)
	f.String(8)

	f.Reset()
	again, _ := f.String(8)
	assert.Equal(t, first, again, "after Reset")
}
