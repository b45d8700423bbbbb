// Package minio stores attachments in an S3-compatible bucket. Objects are
// keyed by the SHA-256 of their content, which makes identical uploads
// resolve to the object already stored.
package minio

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"github.com/smartyellow/services/ports"
)

// Object metadata keys. S3 returns user metadata canonicalized.
const (
	metaID       = "Id"
	metaFilename = "Filename"
)

// Config configures the bucket connection.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Bucket implements ports.Bucket on MinIO or any S3-compatible store.
type Bucket struct {
	client *minio.Client
	bucket string
	prefix string
	logger zerolog.Logger
}

// New connects and creates the bucket if it does not exist.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Bucket, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info().Str("bucket", cfg.Bucket).Msg("bucket created")
	}

	return &Bucket{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// Insert stores data unless identical content is already present.
func (b *Bucket) Insert(ctx context.Context, desc ports.FileDescriptor, data []byte) (ports.StoredFile, error) {
	sum := Checksum(data)

	existing, found, err := b.FindByChecksum(ctx, sum)
	if err != nil {
		return ports.StoredFile{}, err
	}
	if found {
		return ports.StoredFile{}, &ports.DuplicateFileError{Existing: existing}
	}

	_, err = b.client.PutObject(ctx, b.bucket, b.key(sum), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType: desc.ContentType,
			UserMetadata: map[string]string{
				metaID:       desc.ID,
				metaFilename: desc.Filename,
			},
		})
	if err != nil {
		return ports.StoredFile{}, fmt.Errorf("upload %s: %w", desc.Filename, err)
	}

	b.logger.Debug().
		Str("id", desc.ID).
		Str("checksum", sum).
		Int("size", len(data)).
		Msg("object stored")
	return ports.StoredFile{
		ID:          desc.ID,
		Filename:    desc.Filename,
		ContentType: desc.ContentType,
		Checksum:    sum,
		Size:        int64(len(data)),
	}, nil
}

// Ping checks that the bucket is reachable.
func (b *Bucket) Ping(ctx context.Context) error {
	ok, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", b.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", b.bucket)
	}
	return nil
}

// FindByChecksum looks up content by its SHA-256 hex digest.
func (b *Bucket) FindByChecksum(ctx context.Context, checksum string) (ports.StoredFile, bool, error) {
	info, err := b.client.StatObject(ctx, b.bucket, b.key(checksum), minio.StatObjectOptions{})
	if isNotFound(err) {
		return ports.StoredFile{}, false, nil
	}
	if err != nil {
		return ports.StoredFile{}, false, fmt.Errorf("stat %s: %w", checksum, err)
	}
	return fromObject(info, checksum), true, nil
}

func (b *Bucket) key(checksum string) string {
	return path.Join(b.prefix, checksum)
}

func fromObject(info minio.ObjectInfo, checksum string) ports.StoredFile {
	return ports.StoredFile{
		ID:          info.UserMetadata[metaID],
		Filename:    info.UserMetadata[metaFilename],
		ContentType: info.ContentType,
		Checksum:    checksum,
		Size:        info.Size,
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var _ ports.Bucket = (*Bucket)(nil)
