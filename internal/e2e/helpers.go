//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"floorcast/internal/logging"
	"floorcast/internal/pipeline"
	"floorcast/internal/storage"
	"floorcast/internal/tui"
	"floorcast/internal/web"
)

// StartBackend runs the HTTP API, hub and job runner in-process with the
// instant scripted generator and the given store. It returns the base URL.
func StartBackend(t *testing.T, store storage.Store) string {
	t.Helper()
	lm := logging.NewTestLogManager(1000)
	t.Cleanup(func() { _ = lm.Close() })

	hub := web.NewHub(512, lm.For("web.hub"))
	runner := web.NewRunner(pipeline.New(pipeline.NewScripted(0), lm.For("pipeline")), hub, 4, lm.For("web.jobs"))

	ctx, cancel := context.WithCancel(context.Background())
	if err := runner.Start(ctx); err != nil {
		t.Fatalf("runner.Start() error = %v", err)
	}

	s := web.New(web.Config{Bind: "127.0.0.1", Port: 0, DefaultStyle: "modern"}, hub, store, runner, lm)
	ln, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		_ = s.Shutdown(shutdownCtx)
		<-done
		<-runner.Done()
	})

	return "http://" + s.Addr()
}

// WritePlan writes a small PNG floor plan and returns its path.
func WritePlan(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 120))
	for x := range 200 {
		img.Set(x, 60, color.Black)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "plan.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TUITestRunner drives the viewer through Update() calls. Commands run in
// their own goroutines, as under a tea.Program, and their messages are
// applied on the test goroutine by Pump.
type TUITestRunner struct {
	t     *testing.T
	model tui.Model
	msgs  chan tea.Msg
}

// NewTUITestRunner creates a new test runner with the given model.
func NewTUITestRunner(t *testing.T, model tui.Model) *TUITestRunner {
	return &TUITestRunner{
		t:     t,
		model: model,
		msgs:  make(chan tea.Msg, 256),
	}
}

// Model returns the current model state.
func (r *TUITestRunner) Model() tui.Model {
	return r.model
}

// Init runs the Init command.
func (r *TUITestRunner) Init() {
	r.t.Helper()
	r.runCmd(r.model.Init())
}

// PressKey simulates pressing a regular key.
func (r *TUITestRunner) PressKey(key rune) {
	r.t.Helper()
	r.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{key}})
}

// PressSpecialKey simulates pressing a special key like Enter or Tab.
func (r *TUITestRunner) PressSpecialKey(keyType tea.KeyType) {
	r.t.Helper()
	r.update(tea.KeyMsg{Type: keyType})
}

// TypeText types a string character by character.
func (r *TUITestRunner) TypeText(text string) {
	r.t.Helper()
	for _, ch := range text {
		r.PressKey(ch)
	}
}

// SendWindowSize sends a window size message.
func (r *TUITestRunner) SendWindowSize(width, height int) {
	r.t.Helper()
	r.update(tea.WindowSizeMsg{Width: width, Height: height})
}

// Pump applies command results until cond holds, failing the test after
// timeout.
func (r *TUITestRunner) Pump(cond func(tui.Model) bool, timeout time.Duration) {
	r.t.Helper()
	deadline := time.After(timeout)
	for !cond(r.model) {
		select {
		case msg := <-r.msgs:
			r.update(msg)
		case <-deadline:
			s := r.model.Session()
			r.t.Fatalf("timed out: status %v %q, %d images, activity %v", s.Status, s.StatusText, len(s.Images), s.Activity)
		}
	}
}

func (r *TUITestRunner) update(msg tea.Msg) {
	model, cmd := r.model.Update(msg)
	r.model = model.(tui.Model)
	r.runCmd(cmd)
}

// runCmd executes cmd in the background, expanding batches.
func (r *TUITestRunner) runCmd(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		msg := cmd()
		switch msg := msg.(type) {
		case nil, tea.QuitMsg:
			return
		case tea.BatchMsg:
			for _, c := range msg {
				r.runCmd(c)
			}
		default:
			r.msgs <- msg
		}
	}()
}
