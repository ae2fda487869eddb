// pattern: Imperative Shell
package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"floorcast/internal/config"
	"floorcast/internal/feed"
	"floorcast/internal/instance"
	"floorcast/internal/logging"
	"floorcast/internal/pipeline"
	"floorcast/internal/sse"
	"floorcast/internal/storage"
	"floorcast/internal/web"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	defer func() { os.Stdout = oldStdout }()

	r, w, _ := os.Pipe()
	os.Stdout = w
	fn()
	w.Close()

	buf := &bytes.Buffer{}
	buf.ReadFrom(r)
	return buf.String()
}

// syncBuffer is a bytes.Buffer safe for one writer and one polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 80))
	for x := range 120 {
		img.Set(x, 40, color.Black)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writePlan(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.png")
	if err := os.WriteFile(path, pngBytes(t), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildApp_VersionCommand_PrintsVersion(t *testing.T) {
	app := BuildApp("1.2.3", "")

	versionCmd, ok := app.commands["version"]
	if !ok {
		t.Fatal("version command not registered")
	}

	var err error
	output := captureStdout(t, func() { err = versionCmd.Run(nil) })
	if err != nil {
		t.Errorf("version command returned error: %v", err)
	}
	if output != "1.2.3\n" {
		t.Errorf("version command output = %q, want \"1.2.3\\n\"", output)
	}
}

func TestBuildApp_RegistersCommands(t *testing.T) {
	app := BuildApp("1.0.0", t.TempDir())

	for _, name := range []string{"serve", "watch", "upload", "status", "cleanup", "version"} {
		cmd, ok := app.commands[name]
		if !ok {
			t.Errorf("%s command not registered", name)
			continue
		}
		if cmd.Summary == "" || !strings.HasPrefix(cmd.Usage, "Usage: floorcast "+name) {
			t.Errorf("%s: summary %q, usage %q", name, cmd.Summary, cmd.Usage)
		}
	}

	for name, want := range map[string]bool{"serve": false, "watch": true, "upload": true, "status": true, "cleanup": false} {
		if got := app.commands[name].RequiresBackend; got != want {
			t.Errorf("%s RequiresBackend = %v, want %v", name, got, want)
		}
	}

	images, ok := app.groups["images"]
	if !ok {
		t.Fatal("images group not registered")
	}
	for _, name := range []string{"list", "save"} {
		if _, ok := images.Commands[name]; !ok {
			t.Errorf("images %s not registered", name)
		}
	}
}

func TestBuildApp_CleanupCommand(t *testing.T) {
	tmpDir := t.TempDir()
	app := BuildApp("1.0.0", tmpDir)

	var err error
	output := captureStdout(t, func() { err = app.commands["cleanup"].Run(nil) })
	if err != nil {
		t.Errorf("cleanup command returned error: %v", err)
	}
	if !strings.Contains(output, "Cleaned up") {
		t.Errorf("expected cleanup message in output, got: %s", output)
	}
}

func TestCleanupCommand_RefusesWhileBackendRuns(t *testing.T) {
	tmpDir := t.TempDir()
	fl, err := instance.Lock(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer instance.Cleanup(tmpDir, fl)

	if err := runCleanupCommand(tmpDir); err == nil {
		t.Error("cleanup should fail while the lock is held")
	}
}

func TestUploadCommand_ValidatesArguments(t *testing.T) {
	tmpDir := t.TempDir()

	if err := runUploadCommand(tmpDir, nil); err == nil || !strings.Contains(err.Error(), "FILE") {
		t.Errorf("no args: err = %v", err)
	}
	if err := runUploadCommand(tmpDir, []string{filepath.Join(tmpDir, "missing.png")}); err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Errorf("missing file: err = %v", err)
	}
	if err := runUploadCommand(tmpDir, []string{tmpDir}); err == nil || !strings.Contains(err.Error(), "directory") {
		t.Errorf("directory: err = %v", err)
	}
}

func TestServe_AdvertisesAndStops(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.Port = 0
	cfg.Server.UploadDir = filepath.Join(dataDir, "uploads")
	cfg.Pipeline.Generator = config.GeneratorScripted

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ServeOptions{
			Config:  cfg,
			DataDir: dataDir,
			Ready:   func(addr string) { ready <- addr },
		})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("Serve() exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() never became ready")
	}

	url, err := instance.Discover(dataDir)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if url != "http://"+addr {
		t.Errorf("Discover() = %q, want http://%s", url, addr)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve() did not stop")
	}

	if _, err := os.Stat(filepath.Join(dataDir, "floorcast.port")); !os.IsNotExist(err) {
		t.Error("port file should be removed on shutdown")
	}
}

// startBackend runs the web stack in-process with the instant scripted
// generator.
func startBackend(t *testing.T) string {
	t.Helper()
	lm := logging.NewTestLogManager(1000)
	t.Cleanup(func() { _ = lm.Close() })

	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	hub := web.NewHub(512, lm.For("web.hub"))
	runner := web.NewRunner(pipeline.New(pipeline.NewScripted(0), lm.For("pipeline")), hub, 4, lm.For("web.jobs"))

	ctx, cancel := context.WithCancel(context.Background())
	if err := runner.Start(ctx); err != nil {
		t.Fatal(err)
	}

	s := web.New(web.Config{Bind: "127.0.0.1", Port: 0, DefaultStyle: "modern"}, hub, store, runner, lm)
	ln, err := s.Listen()
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		_ = s.Shutdown(shutdownCtx)
		<-done
	})
	return "http://" + s.Addr()
}

func TestWatchPlain_UploadsAndFollowsUntilComplete(t *testing.T) {
	baseURL := startBackend(t)
	client := instance.NewClient(baseURL)
	outDir := filepath.Join(t.TempDir(), "renders")
	plan := writePlan(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	session, err := WatchPlain(ctx, PlainConfig{
		Dialer: client.StreamDialer(),
		Delay:  50 * time.Millisecond,
		Client: client,
		OutDir: outDir,
		Writer: &out,
		OnConnected: func(ctx context.Context) error {
			_, err := client.Upload(ctx, plan, "rustic")
			return err
		},
		UntilComplete: true,
	})
	if err != nil {
		t.Fatalf("WatchPlain() error = %v\n%s", err, out.String())
	}

	if session.StatusText != pipeline.CompleteMessage {
		t.Errorf("StatusText = %q", session.StatusText)
	}
	if len(session.Images) != 13 {
		t.Errorf("images = %d, want 13", len(session.Images))
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(session.Images) {
		t.Errorf("saved %d files, want %d", len(entries), len(session.Images))
	}
	if len(entries) > 0 && !strings.HasPrefix(entries[0].Name(), "01-") {
		t.Errorf("first file = %q, want 01- prefix", entries[0].Name())
	}

	output := out.String()
	for _, want := range []string{"connected: Stream connected", "room: Living Room", "status: " + pipeline.CompleteMessage, "saved: "} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestWatchPlain_StopsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := sse.Prepare(w)
		_ = sse.Write(w, "", "", []byte(`{"type":"connected","message":"hi"}`))
		_ = sse.Write(w, "1", "", []byte(`{"type":"error","data":{"message":"quota exceeded"}}`))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := instance.NewClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	_, err := WatchPlain(ctx, PlainConfig{
		Dialer:        client.StreamDialer(),
		Client:        client,
		Writer:        &out,
		UntilComplete: true,
	})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("WatchPlain() error = %v", err)
	}
	if !strings.Contains(out.String(), "error: quota exceeded") {
		t.Errorf("output = %q", out.String())
	}
}

func TestWatchPlain_HookErrorStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := sse.Prepare(w)
		_ = sse.Write(w, "", "", []byte(`{"type":"connected"}`))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := instance.NewClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	boom := errors.New("upload rejected")
	_, err := WatchPlain(ctx, PlainConfig{
		Dialer:        client.StreamDialer(),
		Client:        client,
		OnConnected:   func(context.Context) error { return boom },
		UntilComplete: true,
	})
	if !errors.Is(err, boom) {
		t.Errorf("WatchPlain() error = %v, want %v", err, boom)
	}
}

func TestWatchPlain_CancelReturnsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/images" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"images":[{"id":"a","url":"/x.png","title":"Kitchen","roomId":"r1","kind":"furnished_view"}]}`))
			return
		}
		flusher, _ := sse.Prepare(w)
		_ = sse.Write(w, "", "", []byte(`{"type":"connected"}`))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := instance.NewClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())

	var out syncBuffer
	done := make(chan struct{})
	var session feed.Session
	var err error
	go func() {
		defer close(done)
		session, err = WatchPlain(ctx, PlainConfig{
			Dialer:  client.StreamDialer(),
			Client:  client,
			Hydrate: true,
			Writer:  &out,
		})
	}()

	deadline := time.After(5 * time.Second)
	for !strings.Contains(out.String(), "connected") {
		select {
		case <-deadline:
			t.Fatalf("never connected: %q", out.String())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(session.Images) != 1 || session.Status != feed.StatusConnected {
		t.Errorf("session = %d images, status %v", len(session.Images), session.Status)
	}
	if !strings.Contains(out.String(), "loaded 1 existing images") {
		t.Errorf("output = %q", out.String())
	}
}

func TestDescribe(t *testing.T) {
	s := feed.New()
	s.Rooms["r1"] = feed.Room{ID: "r1", Name: "Kitchen"}
	s.StatusText = "Analyzing floor plan..."
	s.Err = "boom"
	s.Images = []feed.Image{{Title: "Kitchen - Furnished", Kind: feed.KindFurnished}}

	tests := []struct {
		ev   feed.Event
		want string
	}{
		{feed.Connected{}, "connected"},
		{feed.StatusUpdate{Message: "Analyzing floor plan..."}, "status: Analyzing floor plan..."},
		{feed.StyleDescription{Description: "Warm oak"}, "style: Warm oak"},
		{feed.RoomDetected{Room: feed.Room{ID: "r1", Name: "Kitchen", Dimensions: json.RawMessage(`"12ft x 10ft"`)}}, "room: Kitchen (12ft x 10ft)"},
		{feed.View{Kind: feed.KindFurnished, RoomID: "r1"}, "image: Kitchen - Furnished [Furnished View]"},
		{feed.ServerError{Message: "boom"}, "error: boom"},
		{feed.Unknown{Type: "heartbeat"}, "unknown event: heartbeat"},
		{feed.LinkConnecting{}, "connecting..."},
		{feed.LinkOpened{}, "stream open"},
		{feed.LinkErrored{Err: errors.New("EOF"), RetryIn: 1500 * time.Millisecond}, "connection lost: EOF, retrying in 1.5s"},
		{feed.LinkClosed{}, "stream closed"},
	}
	for _, tt := range tests {
		if got := describe(tt.ev, s); got != tt.want {
			t.Errorf("describe(%T) = %q, want %q", tt.ev, got, tt.want)
		}
	}
}

func galleryServer(t *testing.T) *httptest.Server {
	t.Helper()
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t))
	imgs := []feed.Image{
		{ID: "1", URL: uri, Title: "Kitchen - Furnished", RoomID: "r1", RoomName: "Kitchen", Kind: feed.KindFurnished},
		{ID: "2", URL: uri, Title: "Bedroom - Interior", RoomID: "r2", RoomName: "Bedroom", Kind: feed.KindInterior},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"images": imgs})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestImagesList(t *testing.T) {
	srv := galleryServer(t)

	var out bytes.Buffer
	if err := runImagesList(t.TempDir(), []string{"--url", srv.URL}, &out); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "Kitchen - Furnished") || !strings.Contains(lines[1], "Interior Shot") {
		t.Errorf("output:\n%s", out.String())
	}

	out.Reset()
	if err := runImagesList(t.TempDir(), []string{"--url", srv.URL, "--json"}, &out); err != nil {
		t.Fatal(err)
	}
	var decoded []feed.Image
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("--json output is not JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[1].RoomID != "r2" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestImagesSave_FiltersByRoom(t *testing.T) {
	srv := galleryServer(t)
	outDir := filepath.Join(t.TempDir(), "out")

	var out bytes.Buffer
	if err := runImagesSave(t.TempDir(), []string{"--url", srv.URL, "--out", outDir, "--room", "kitchen"}, &out); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "01-kitchen-furnished.png" {
		t.Errorf("saved %v", entries)
	}
	if !strings.Contains(out.String(), "Saved 1 images to "+outDir) {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	if err := runImagesSave(t.TempDir(), []string{"--url", srv.URL, "--room", "garage"}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No images to save.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestStatusCommand(t *testing.T) {
	baseURL := startBackend(t)

	var out bytes.Buffer
	if err := runStatusCommand(t.TempDir(), []string{"--url", baseURL}, &out); err != nil {
		t.Fatalf("status error = %v", err)
	}
	for _, want := range []string{"Backend:", baseURL + " (ok)", "Uploads:", "enabled", "Images:", "Queued jobs:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), "Dropped events") {
		t.Errorf("dropped line should be omitted when zero:\n%s", out.String())
	}

	out.Reset()
	if err := runStatusCommand(t.TempDir(), []string{"--url", baseURL, "--json"}, &out); err != nil {
		t.Fatal(err)
	}
	var h instance.Health
	if err := json.Unmarshal(out.Bytes(), &h); err != nil {
		t.Fatalf("--json output is not JSON: %v", err)
	}
	if h.Status != "ok" || !h.Uploads {
		t.Errorf("health = %+v", h)
	}
}
