package web_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"floorcast/internal/logging"
	"floorcast/internal/web"
)

// serveBare runs a server with no store or runner on an ephemeral port.
// It returns the server, its base URL and a stop function that reports
// Serve's result.
func serveBare(t *testing.T, hub *web.Hub) (*web.Server, string, func() error) {
	t.Helper()
	lm := logging.NewTestLogManager(100)
	t.Cleanup(func() { _ = lm.Close() })

	s := web.New(web.Config{Bind: "127.0.0.1", Port: 0, KeepAlive: time.Hour}, hub, nil, nil, lm)
	ln, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	stopped := false
	stop := func() error {
		if stopped {
			return nil
		}
		stopped = true
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			return err
		}
		select {
		case err := <-done:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-time.After(3 * time.Second):
			return errors.New("server did not stop after Shutdown()")
		}
	}
	t.Cleanup(func() { _ = stop() })
	return s, "http://" + s.Addr(), stop
}

func getHealth(t *testing.T, baseURL string) web.Health {
	t.Helper()
	resp, err := http.Get(baseURL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var h web.Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return h
}

func TestHealth_BareServer(t *testing.T) {
	_, baseURL, _ := serveBare(t, nil)

	h := getHealth(t, baseURL)
	want := web.Health{Status: "ok"}
	if h != want {
		t.Errorf("health = %+v, want %+v", h, want)
	}
}

func TestHealth_ReportsGalleryAndViewers(t *testing.T) {
	hub := web.NewHub(16, nil)
	_, baseURL, _ := serveBare(t, hub)

	hub.Publish("room_detected", map[string]string{"id": "r1", "name": "Kitchen"})
	hub.Publish("furnished_view", map[string]string{"roomId": "r1", "image": "AAAA", "title": "Kitchen - Furnished View"})

	req, _ := http.NewRequest(http.MethodGet, baseURL+"/stream", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		t.Fatalf("GET /stream error = %v", err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		h := getHealth(t, baseURL)
		if h.Subscribers == 1 {
			if h.Images != 1 || h.Uploads {
				t.Errorf("health = %+v, want 1 image and uploads disabled", h)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("stream subscriber never counted: %+v", h)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRoot_Banner(t *testing.T) {
	_, baseURL, _ := serveBare(t, nil)

	resp, err := http.Get(baseURL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "running" || body["message"] == "" {
		t.Errorf("body = %v", body)
	}

	resp, err = http.Get(baseURL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", resp.StatusCode)
	}
}

func TestCORS_Preflight(t *testing.T) {
	_, baseURL, _ := serveBare(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, baseURL+"/upload", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("OPTIONS /upload = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Last-Event-ID") {
		t.Errorf("Allow-Headers = %q, should include Last-Event-ID", got)
	}
}

func TestUpload_DisabledWithoutStore(t *testing.T) {
	_, baseURL, _ := serveBare(t, nil)

	resp, err := http.Post(baseURL+"/upload", "multipart/form-data; boundary=x", strings.NewReader("--x--\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("POST /upload = %d, want 503", resp.StatusCode)
	}
}

func TestServer_AddrBeforeListen(t *testing.T) {
	s := web.New(web.Config{Bind: "127.0.0.1", Port: 8765}, nil, nil, nil, logging.NewTestLogManager(1))
	if got := s.Addr(); got != "127.0.0.1:8765" {
		t.Errorf("Addr() before Listen() = %q, want 127.0.0.1:8765", got)
	}
}

// Shutdown must end open streams, otherwise it would wait on them until
// its context expires.
func TestServer_ShutdownClosesStreams(t *testing.T) {
	_, baseURL, stop := serveBare(t, nil)

	resp, err := http.Get(baseURL + "/stream")
	if err != nil {
		t.Fatalf("GET /stream error = %v", err)
	}
	defer resp.Body.Close()
	br := bufio.NewReader(resp.Body)
	if _, err := br.ReadString('\n'); err != nil {
		t.Fatalf("reading handshake: %v", err)
	}

	start := time.Now()
	if err := stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Shutdown took %v with an open stream", elapsed)
	}

	client := &http.Client{Timeout: 2 * time.Second}
	if _, err := client.Get(baseURL + "/api/health"); err == nil {
		t.Error("expected connection refused after Shutdown()")
	}
}

func TestServer_BindFailure(t *testing.T) {
	occupier, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not open occupier listener: %v", err)
	}
	defer occupier.Close()
	_, portStr, _ := net.SplitHostPort(occupier.Addr().String())
	port, _ := strconv.Atoi(portStr)

	s := web.New(web.Config{Bind: "127.0.0.1", Port: port}, nil, nil, nil, logging.NewTestLogManager(1))
	err = s.Start()
	if err == nil {
		t.Fatal("Start() on an occupied port should fail")
	}
	if !strings.Contains(err.Error(), "web server listen") {
		t.Errorf("Start() error = %q, want listen error", err)
	}
}
