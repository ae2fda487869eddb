// pattern: Imperative Shell

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"floorcast/internal/config"
)

// MinIO stores files in an S3-compatible bucket.
type MinIO struct {
	mc     *minio.Client
	bucket string
}

// NewMinIO connects to the endpoint and creates the bucket if it does not
// exist yet.
func NewMinIO(ctx context.Context, cfg config.MinIOConfig) (*MinIO, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := mc.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinIO{mc: mc, bucket: cfg.Bucket}, nil
}

func (m *MinIO) Put(ctx context.Context, name string, data []byte, contentType string) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid object name %q", name)
	}
	if contentType == "" {
		contentType = ContentTypeFor(name)
	}
	_, err := m.mc.PutObject(ctx, m.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", m.bucket, name, err)
	}
	return nil
}

func (m *MinIO) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if !ValidName(name) {
		return nil, "", ErrNotFound
	}
	obj, err := m.mc.GetObject(ctx, m.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get %s/%s: %w", m.bucket, name, err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("stat %s/%s: %w", m.bucket, name, err)
	}
	return obj, info.ContentType, nil
}
