package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/smartyellow/services/adapters/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReal_Now(t *testing.T) {
	c := clock.Real{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	assert.False(t, got.Before(before) || got.After(after), "Now() = %v, expected between %v and %v", got, before, after)
}

func TestFake(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	require.True(t, c.Now().Equal(start), "Now() = %v, want %v", c.Now(), start)

	c.Advance(90 * time.Minute)
	assert.True(t, c.Now().Equal(start.Add(90*time.Minute)), "after Advance Now() = %v", c.Now())

	later := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(later)
	assert.True(t, c.Now().Equal(later), "after Set Now() = %v, want %v", c.Now(), later)
}

func TestFake_ConcurrentAccess(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
		go func() {
			defer wg.Done()
			_ = c.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), c.Now().Unix())
}
