// pattern: Imperative Shell

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores files in a directory on disk.
type Local struct {
	dir string
}

// NewLocal creates the directory if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Dir returns the backing directory.
func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) Put(_ context.Context, name string, data []byte, _ string) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid object name %q", name)
	}
	// Write then rename so readers never see a partial file.
	tmp := filepath.Join(l.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(l.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store %s: %w", name, err)
	}
	return nil
}

func (l *Local) Open(_ context.Context, name string) (io.ReadCloser, string, error) {
	if !ValidName(name) {
		return nil, "", ErrNotFound
	}
	f, err := os.Open(filepath.Join(l.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("open %s: %w", name, err)
	}
	return f, ContentTypeFor(name), nil
}
