package slug

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Web design", "web-design"},
		{"  Web   Design!! ", "web-design"},
		{"Café & Bar", "cafe-and-bar"},
		{"Nguyễn Nhật Ánh", "nguyen-nhat-anh"},
		{"Straße", "strasse"},
		{"already-a-slug", "already-a-slug"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Make(tt.in), "Make(%q)", tt.in)
	}
}

func TestAllocate(t *testing.T) {
	used := map[string]bool{"web": true, "web-2": true}
	taken := func(_ context.Context, c string) (bool, error) { return used[c], nil }

	got, err := Allocate(context.Background(), "web", 10, taken)
	require.NoError(t, err)
	assert.Equal(t, "web-3", got)

	got, err = Allocate(context.Background(), "hosting", 10, taken)
	require.NoError(t, err)
	assert.Equal(t, "hosting", got)
}

func TestAllocate_Exhausted(t *testing.T) {
	always := func(context.Context, string) (bool, error) { return true, nil }
	_, err := Allocate(context.Background(), "web", 3, always)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestAllocate_LookupError(t *testing.T) {
	boom := errors.New("store down")
	failing := func(context.Context, string) (bool, error) { return false, boom }
	_, err := Allocate(context.Background(), "web", 3, failing)
	assert.ErrorIs(t, err, boom)
}
