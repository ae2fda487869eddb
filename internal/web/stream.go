// pattern: Imperative Shell

package web

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"floorcast/internal/sse"
)

// connectedFrame is the handshake sent when a stream opens.
var connectedFrame = []byte(`{"type":"connected","message":"Stream connected"}`)

// handleStream is the SSE endpoint. It sends the handshake, replays
// history after Last-Event-ID, then forwards every published envelope.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := sse.Prepare(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID := r.Header.Get("Last-Event-ID")
	ch, replay, cancel := s.hub.Subscribe(lastID)
	defer cancel()

	s.logger.Debug("stream subscriber connected", "remote", r.RemoteAddr, "last_event_id", lastID, "replay", len(replay))

	if err := sse.Write(w, "", "", connectedFrame); err != nil {
		return
	}
	for _, env := range replay {
		if err := sse.Write(w, env.ID, "", env.Raw); err != nil {
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sse.Comment(w, "keepalive"); err != nil {
				return
			}
			flusher.Flush()
		case env, ok := <-ch:
			if !ok {
				return
			}
			if err := sse.Write(w, env.ID, "", env.Raw); err != nil {
				s.logger.Debug("stream write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// handleSocket mirrors the event stream over a websocket as text messages.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	// Browsers are restricted to local origins; non-browser clients send
	// no Origin header and are always accepted.
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"127.0.0.1:*", "localhost:*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer func() { _ = c.CloseNow() }()

	// The request context is not used after the upgrade. Clients never
	// send; CloseRead handles control frames and reports when the peer
	// goes away.
	ctx := c.CloseRead(context.Background())

	ch, _, cancel := s.hub.Subscribe("")
	defer cancel()

	if err := writeMessage(ctx, c, connectedFrame); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeMessage(ctx, c, env.Raw); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, c *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, data)
}
