// pattern: Imperative Shell

// Package storage keeps uploaded floor plans.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"floorcast/internal/config"
)

// ErrNotFound is returned by Open when no object has the given name.
var ErrNotFound = errors.New("object not found")

// Store persists uploaded files by flat name.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
}

// New builds the Store selected by cfg.
func New(ctx context.Context, cfg config.StorageConfig, uploadDir string) (Store, error) {
	switch cfg.Backend {
	case config.BackendLocal, "":
		return NewLocal(uploadDir)
	case config.BackendMinIO:
		return NewMinIO(ctx, cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// ValidName reports whether name is a plain file name that cannot escape
// the store.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

// ContentTypeFor guesses a content type from the file extension.
func ContentTypeFor(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
