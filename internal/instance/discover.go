// pattern: Imperative Shell
package instance

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const healthTimeout = 2 * time.Second

// Discover checks whether a running floorcast backend exists and returns
// its base URL (e.g. "http://127.0.0.1:12345"). Returns an error if no
// instance is running, the port file is missing, or the health check fails.
func Discover(dataDir string) (string, error) {
	// Try to acquire the lock; if we succeed no instance is running.
	lockPath := filepath.Join(dataDir, lockFileName)
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		return "", fmt.Errorf("no running floorcast backend found (start it with 'floorcast serve')")
	}
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return "", fmt.Errorf("failed to check lock: %w", err)
	}
	if locked {
		// No instance running, release the lock we just acquired.
		_ = fl.Unlock()
		return "", fmt.Errorf("no running floorcast backend found (start it with 'floorcast serve')")
	}

	// Lock is held, read the port file.
	addr, err := ReadPort(dataDir)
	if err != nil {
		return "", fmt.Errorf("floorcast backend detected but its address is unknown (try 'floorcast cleanup'): %w", err)
	}

	baseURL := fmt.Sprintf("http://%s", addr)

	// Health check to verify the instance is responsive.
	client := &http.Client{Timeout: healthTimeout}
	resp, err := client.Get(baseURL + "/api/health")
	if err != nil {
		return "", fmt.Errorf("floorcast backend not responding (try 'floorcast cleanup'): %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("floorcast health check failed (status %d)", resp.StatusCode)
	}

	return baseURL, nil
}

// Resolve returns baseURL when set, otherwise the address of the local
// backend found through Discover.
func Resolve(baseURL, dataDir string) (string, error) {
	if baseURL != "" {
		return strings.TrimRight(baseURL, "/"), nil
	}
	return Discover(dataDir)
}
