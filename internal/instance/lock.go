// pattern: Imperative Shell
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

const (
	lockFileName = "floorcast.lock"
	portFileName = "floorcast.port"
)

// ErrNoPort means the port file is missing or empty.
var ErrNoPort = errors.New("floorcast port file missing")

// Lock takes the data dir's single-backend lock, creating the dir if
// needed. The caller releases it with Cleanup. When another backend holds
// the lock the error names its address if the port file has one.
func Lock(dataDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	fl := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		if addr, err := ReadPort(dataDir); err == nil {
			return nil, fmt.Errorf("another floorcast backend is already running on %s", addr)
		}
		return nil, fmt.Errorf("another floorcast backend is already running")
	}
	return fl, nil
}

// WritePort records the backend's listener address. The file is replaced
// atomically so Discover never sees a partial write.
func WritePort(dataDir, addr string) error {
	tmp, err := os.CreateTemp(dataDir, portFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to write port file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(addr); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write port file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write port file: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dataDir, portFileName))
}

// ReadPort returns the address in the port file, or ErrNoPort.
func ReadPort(dataDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, portFileName))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoPort
	}
	if err != nil {
		return "", err
	}
	addr := strings.TrimSpace(string(data))
	if addr == "" {
		return "", ErrNoPort
	}
	return addr, nil
}

// Cleanup removes the port file and releases the lock.
func Cleanup(dataDir string, fl *flock.Flock) {
	_ = os.Remove(filepath.Join(dataDir, portFileName))
	if fl != nil {
		_ = fl.Unlock()
	}
}
