package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"github.com/smartyellow/services/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Checksum([]byte("hello")))
}

func TestKey(t *testing.T) {
	b := &Bucket{prefix: "services/attachments"}
	assert.Equal(t, "services/attachments/abc", b.key("abc"))

	b = &Bucket{}
	assert.Equal(t, "abc", b.key("abc"))
}

func TestFromObject(t *testing.T) {
	info := minio.ObjectInfo{
		ContentType:  "image/png",
		Size:         42,
		UserMetadata: minio.StringMap{"Id": "img001", "Filename": "logo.png"},
	}
	assert.Equal(t, ports.StoredFile{
		ID:          "img001",
		Filename:    "logo.png",
		ContentType: "image/png",
		Checksum:    "sum",
		Size:        42,
	}, fromObject(info, "sum"))
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, true},
		{"head 404", minio.ErrorResponse{StatusCode: http.StatusNotFound}, true},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, false},
		{"network", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}

// TestBucket runs against a live server when SERVICES_TEST_MINIO is set to
// an endpoint accepting minioadmin/minioadmin.
func TestBucket(t *testing.T) {
	endpoint := os.Getenv("SERVICES_TEST_MINIO")
	if endpoint == "" {
		t.Skip("SERVICES_TEST_MINIO not set")
	}
	ctx := context.Background()
	b, err := New(ctx, Config{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "services-test",
		Prefix:    fmt.Sprintf("run-%d", os.Getpid()),
	}, zerolog.Nop())
	require.NoError(t, err)

	data := []byte("attachment content")
	stored, err := b.Insert(ctx, ports.FileDescriptor{ID: "file01", Filename: "a.txt", ContentType: "text/plain"}, data)
	require.NoError(t, err)
	assert.Equal(t, Checksum(data), stored.Checksum)

	_, err = b.Insert(ctx, ports.FileDescriptor{ID: "file02", Filename: "b.txt"}, data)
	var dup *ports.DuplicateFileError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "file01", dup.Existing.ID)

	_, found, err := b.FindByChecksum(ctx, Checksum([]byte("other")))
	require.NoError(t, err)
	assert.False(t, found)
}
