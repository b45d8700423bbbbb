package idgen_test

import (
	"errors"
	"regexp"
	"testing"

	"github.com/smartyellow/services/adapters/idgen"
	"github.com/smartyellow/services/adapters/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShort_New(t *testing.T) {
	g := idgen.NewShort(random.Real{}, 0)
	short := regexp.MustCompile(`^[a-z0-9]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := g.New()
		require.Regexp(t, short, id)
		seen[id] = true
	}
	assert.GreaterOrEqual(t, len(seen), 190, "distinct ids out of 200")
}

type failingRandom struct{}

func (failingRandom) Bytes(int) ([]byte, error)   { return nil, errors.New("no entropy") }
func (failingRandom) String(int) (string, error) { return "", errors.New("no entropy") }

func TestShort_FailingSource(t *testing.T) {
	g := idgen.NewShort(failingRandom{}, 6)
	assert.Empty(t, g.New())
}

func TestUUID_New(t *testing.T) {
	id := idgen.UUID{}.New()

	uuidRegex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	assert.Regexp(t, uuidRegex, id)
}

func TestSequential_New(t *testing.T) {
	g := idgen.NewSequential("test_")

	assert.Equal(t, "test_1", g.New())
	assert.Equal(t, "test_2", g.New())

	g.Reset()
	assert.Equal(t, "test_1", g.New(), "after Reset")
}

func TestQueue_New(t *testing.T) {
	g := idgen.NewQueue("aaaaaa", "bbbbbb")

	for _, want := range []string{"aaaaaa", "bbbbbb", "", ""} {
		assert.Equal(t, want, g.New())
	}
}
