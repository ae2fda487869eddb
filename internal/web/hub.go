// pattern: Imperative Shell

package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"floorcast/internal/feed"
	"floorcast/internal/logging"
)

// subscriberBuffer is how many envelopes a slow subscriber may fall
// behind before it starts missing events.
const subscriberBuffer = 64

// Envelope is one published event. Raw is the wire JSON
// {type, data, timestamp}. IDs are ULIDs, so they sort by publish order.
type Envelope struct {
	ID   string
	Type string
	Raw  []byte
}

// Hub fans pipeline events out to stream subscribers. It keeps a bounded
// history for Last-Event-ID replay and a gallery of every generated image.
type Hub struct {
	logger *logging.ScopedLogger

	mu          sync.Mutex
	history     []Envelope
	historySize int
	subscribers map[chan Envelope]struct{}
	closed      bool
	dropped     int

	// gallery folds published events through the same reducer clients use.
	gallery   feed.Session
	reducer   feed.Reducer
	currentID string
}

// NewHub creates a Hub retaining up to historySize envelopes.
func NewHub(historySize int, logger *logging.ScopedLogger) *Hub {
	if logger == nil {
		logger = logging.NopLogger()
	}
	h := &Hub{
		logger:      logger,
		historySize: historySize,
		subscribers: make(map[chan Envelope]struct{}),
		gallery:     feed.New(),
	}
	h.reducer = feed.Reducer{
		NewID: func() string { return h.currentID },
		Now:   time.Now,
	}
	return h
}

type wireEnvelope struct {
	Type      string  `json:"type"`
	Data      any     `json:"data"`
	Timestamp float64 `json:"timestamp"`
}

// Publish sends an event to every subscriber. Subscribers whose buffer is
// full miss the event; delivery is best effort.
func (h *Hub) Publish(eventType string, data any) {
	now := time.Now()
	raw, err := json.Marshal(wireEnvelope{
		Type:      eventType,
		Data:      data,
		Timestamp: float64(now.UnixNano()) / 1e9,
	})
	if err != nil {
		h.logger.Error("failed to encode event", "type", eventType, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	// IDs are minted under the lock so history order matches ID order.
	env := Envelope{ID: ulid.Make().String(), Type: eventType, Raw: raw}

	if h.historySize > 0 {
		h.history = append(h.history, env)
		if over := len(h.history) - h.historySize; over > 0 {
			h.history = h.history[over:]
		}
	}

	h.currentID = env.ID
	h.gallery = h.reducer.Reduce(h.gallery, feed.Parse(raw))

	for ch := range h.subscribers {
		select {
		case ch <- env:
		default:
			h.dropped++
			h.logger.Warn("subscriber too slow, event dropped", "type", eventType, "id", env.ID)
		}
	}
}

// Subscribe registers a subscriber. If lastEventID is still in history,
// the envelopes published after it are returned for replay. An id that has
// left history, or was never issued, gets no replay: the subscriber is live
// only and /images covers what it missed.
// The returned channel is closed when the hub closes; call the cancel
// function when done.
func (h *Hub) Subscribe(lastEventID string) (<-chan Envelope, []Envelope, func()) {
	ch := make(chan Envelope, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	var replay []Envelope
	if lastEventID != "" {
		for i, env := range h.history {
			if env.ID == lastEventID {
				replay = append(replay, h.history[i+1:]...)
				break
			}
		}
	}

	if h.closed {
		close(ch)
		return ch, replay, func() {}
	}
	h.subscribers[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, replay, cancel
}

// Gallery returns every image generated so far, oldest first.
func (h *Hub) Gallery() []feed.Image {
	h.mu.Lock()
	defer h.mu.Unlock()
	images := make([]feed.Image, len(h.gallery.Images))
	copy(images, h.gallery.Images)
	return images
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close ends every subscription. Later publishes are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}
