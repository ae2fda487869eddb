// pattern: Imperative Shell

package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"floorcast/internal/logging"
	"floorcast/internal/storage"
)

// Server is the backend: uploads, the event stream and generated images.
type Server struct {
	httpServer   *http.Server
	hub          *Hub
	store        storage.Store
	runner       *Runner
	logger       *logging.ScopedLogger
	addr         string
	listener     net.Listener
	defaultStyle string
	keepAlive    time.Duration
}

// Config holds web server configuration.
type Config struct {
	Bind         string
	Port         int
	DefaultStyle string
	// KeepAlive is the interval between stream keepalive comments.
	KeepAlive time.Duration
}

// New creates a web server.
// logProvider must implement logging.LoggerProvider (both *logging.Manager and
// *logging.TestLogManager satisfy this interface).
// store and runner may be nil; uploads then answer 503.
func New(cfg Config, hub *Hub, store storage.Store, runner *Runner, logProvider logging.LoggerProvider) *Server {
	logger := logProvider.For("web")
	addr := fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port)
	if hub == nil {
		hub = NewHub(0, logProvider.For("web.hub"))
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           withCORS(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
		hub:          hub,
		store:        store,
		runner:       runner,
		logger:       logger,
		addr:         addr,
		defaultStyle: cfg.DefaultStyle,
		keepAlive:    cfg.KeepAlive,
	}

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /ws", s.handleSocket)
	mux.HandleFunc("GET /images", s.handleImages)
	mux.HandleFunc("GET /uploads/{name}", s.handleGetUpload)

	return s
}

// withCORS allows any origin, so a browser frontend served elsewhere can
// use the API.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Listen binds the server to its configured address and returns the listener.
// Call Serve() after Listen() to start accepting connections.
// This two-step approach allows callers to obtain the actual bound address
// (useful for ephemeral port 0 in tests) before the server blocks on Serve().
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("web server listen: %w", err)
	}
	s.listener = ln
	return ln, nil
}

// Serve accepts connections on the listener. Blocks until the server stops.
// Must call Listen() first.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("web server started", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Start is a convenience that calls Listen() then Serve(). Blocks until the server stops.
func (s *Server) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Addr returns the address the server is listening on.
// Only valid after Listen() or Start() has been called.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Hub returns the event hub the server streams from.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Shutdown closes open streams, then gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("web server shutting down")
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Floorplan Generation API",
		"status":  "running",
	})
}

// Health is the /api/health payload.
type Health struct {
	Status      string `json:"status"`
	Uploads     bool   `json:"uploads"`
	Subscribers int    `json:"subscribers"`
	Images      int    `json:"images"`
	PendingJobs int    `json:"pending_jobs"`
	Dropped     int    `json:"dropped"`
}

// Health reports the backend's current load.
func (s *Server) Health() Health {
	h := Health{
		Status:      "ok",
		Uploads:     s.store != nil && s.runner != nil,
		Subscribers: s.hub.Subscribers(),
		Images:      len(s.hub.Gallery()),
		Dropped:     s.hub.Dropped(),
	}
	if s.runner != nil {
		h.PendingJobs = s.runner.Pending()
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Health())
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
