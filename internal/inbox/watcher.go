// pattern: Imperative Shell

// Package inbox submits floor plans dropped into a directory, so batch
// jobs can run without going through the upload endpoint.
package inbox

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"floorcast/internal/logging"
)

// ProcessedDir is the subdirectory submitted files are moved into.
const ProcessedDir = "processed"

// DefaultSettle is how long a file must go without writes before it is
// picked up.
const DefaultSettle = 500 * time.Millisecond

// Submitter stores and queues a plan. web.Submitter implements it.
type Submitter interface {
	Submit(ctx context.Context, data []byte, ext, style string) (string, error)
}

// Watcher watches a directory for new images and submits each one once
// it has settled.
type Watcher struct {
	dir     string
	sub     Submitter
	style   string
	settle  time.Duration
	logger  *logging.ScopedLogger
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	pending  map[string]*time.Timer
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher for dir. An empty style lets the submitter
// apply its default.
func NewWatcher(dir string, sub Submitter, style string, logger *logging.ScopedLogger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		dir:     dir,
		sub:     sub,
		style:   style,
		settle:  DefaultSettle,
		logger:  logger,
		watcher: watcher,
		pending:  make(map[string]*time.Timer),
		inFlight: make(map[string]bool),
	}, nil
}

// SetSettle overrides the settle delay. Call before Start.
func (w *Watcher) SetSettle(d time.Duration) {
	w.settle = d
}

// Start watches until ctx is cancelled. Files already in the directory
// are submitted first.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(w.dir, ProcessedDir), 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	w.logger.Info("watching inbox", "dir", w.dir)

	w.scan(ctx)

	// Polling safeguard for filesystems that drop events.
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				w.stop()
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(ctx, event.Name)
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.cancel(event.Name)
			}

		case <-ticker.C:
			w.scan(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.stop()
				return nil
			}
			w.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// scan schedules every candidate file currently in the directory.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("failed to read inbox", "dir", w.dir, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		w.mu.Lock()
		_, queued := w.pending[path]
		queued = queued || w.inFlight[path]
		w.mu.Unlock()
		if !queued {
			w.schedule(ctx, path)
		}
	}
}

// schedule (re)arms the settle timer for path. A path being submitted is
// left alone until submit has archived it or given up.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(w.dir) || hidden(path) {
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight[path] {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.wg.Add(1)
	w.pending[path] = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.pending, path)
		w.inFlight[path] = true
		w.mu.Unlock()
		defer func() {
			w.mu.Lock()
			delete(w.inFlight, path)
			w.mu.Unlock()
		}()
		if ctx.Err() != nil {
			return
		}
		w.submit(ctx, path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		delete(w.pending, path)
		w.wg.Done()
	}
}

// submit reads path, submits it if it is an image and moves it into the
// processed directory either way, so a bad file is not retried forever.
func (w *Watcher) submit(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("failed to read inbox file", "file", path, "error", err)
		}
		return
	}

	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		w.logger.Warn("skipping non-image inbox file", "file", path, "content_type", ct)
		w.archive(path)
		return
	}

	name, err := w.sub.Submit(ctx, data, filepath.Ext(path), w.style)
	if err != nil {
		// Left in place; the polling scan retries it.
		w.logger.Error("failed to submit inbox file", "file", path, "error", err)
		return
	}
	w.logger.Info("inbox file submitted", "file", path, "stored_as", name)
	w.archive(path)
}

func (w *Watcher) archive(path string) {
	dest := filepath.Join(w.dir, ProcessedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.logger.Warn("failed to move inbox file", "file", path, "error", err)
	}
}

// stop cancels pending timers, waits for running submissions and closes
// the fsnotify watcher.
func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
	_ = w.watcher.Close()
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
