// pattern: Imperative Shell

package conn

import (
	"context"
	"sync"
	"time"

	"floorcast/internal/events"
	"floorcast/internal/feed"
	"floorcast/internal/logging"
)

// DefaultRetryDelay is the fixed backoff between a transport failure and
// the next connection attempt.
const DefaultRetryDelay = 1500 * time.Millisecond

// State is the lifecycle state of the managed connection.
type State int

const (
	Idle State = iota
	Connecting
	Open
	Errored
	Closed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Errored:
		return "errored"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Source is one live connection to the event feed.
type Source interface {
	// Next blocks until the next payload arrives or the connection fails.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens Sources.
type Dialer interface {
	Dial(ctx context.Context) (Source, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Source, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context) (Source, error) { return f(ctx) }

// Manager owns the single connection handle for one logical session.
// Initial connects and reconnects share one code path; at most one
// connection is pending or open at any time.
type Manager struct {
	dialer Dialer
	notify func(any)
	delay  time.Duration
	logger *logging.ScopedLogger

	mu     sync.Mutex
	state  State
	gen    uint64
	source Source
	cancel context.CancelFunc
	timer  *time.Timer
}

// NewManager creates a Manager. notify receives an events.FeedMsg for every
// lifecycle transition and every payload, in order per connection. It is
// never called with the Manager's lock held.
func NewManager(dialer Dialer, delay time.Duration, notify func(any), logger *logging.ScopedLogger) *Manager {
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Manager{
		dialer: dialer,
		notify: notify,
		delay:  delay,
		logger: logger,
	}
}

// Connect starts a connection attempt and returns its generation. It does
// nothing and reports false while a connection is already pending or open.
func (m *Manager) Connect() (uint64, bool) {
	m.mu.Lock()
	if m.state == Connecting || m.state == Open {
		m.mu.Unlock()
		return 0, false
	}
	gen, ctx := m.startLocked()
	m.mu.Unlock()

	m.launch(ctx, gen)
	return gen, true
}

// Close tears down the connection and cancels any scheduled retry.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == Closed {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	m.releaseLocked()
	m.gen++
	gen := m.gen
	m.state = Closed
	m.mu.Unlock()

	m.logger.Info("connection closed")
	m.emit(gen, feed.LinkClosed{})
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation returns the generation of the current connection attempt.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// startLocked moves to Connecting under a fresh generation. Any previous
// handle is closed and cleared first. Caller must hold m.mu.
func (m *Manager) startLocked() (uint64, context.Context) {
	m.stopTimerLocked()
	m.releaseLocked()

	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.state = Connecting
	return m.gen, ctx
}

func (m *Manager) launch(ctx context.Context, gen uint64) {
	m.logger.Debug("connecting", "generation", gen)
	m.emit(gen, feed.LinkConnecting{})
	go m.run(ctx, gen)
}

func (m *Manager) run(ctx context.Context, gen uint64) {
	src, err := m.dialer.Dial(ctx)
	if err != nil {
		m.fail(gen, err)
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.state != Connecting {
		m.mu.Unlock()
		_ = src.Close()
		return
	}
	m.source = src
	m.state = Open
	m.mu.Unlock()

	m.logger.Info("connection open", "generation", gen)
	m.emit(gen, feed.LinkOpened{})

	for {
		data, err := src.Next(ctx)
		if err != nil {
			m.fail(gen, err)
			return
		}
		if !m.current(gen) {
			return
		}
		m.emit(gen, feed.Parse(data))
	}
}

// fail handles a transport failure of generation gen and schedules exactly
// one retry. Failures of superseded generations are ignored. LinkErrored is
// delivered before the retry timer is armed, so the retry's events always
// follow it however slow notify is.
func (m *Manager) fail(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.state == Closed {
		m.mu.Unlock()
		return
	}
	m.releaseLocked()
	m.state = Errored
	m.mu.Unlock()

	m.logger.Warn("connection failed", "error", err, "generation", gen, "retry_in", m.delay)
	m.emit(gen, feed.LinkErrored{Err: err, RetryIn: m.delay})

	m.mu.Lock()
	defer m.mu.Unlock()
	// Connect or Close may have moved on while notify ran.
	if gen == m.gen && m.state == Errored {
		m.timer = time.AfterFunc(m.delay, func() { m.retry(gen) })
	}
}

func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != Errored {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	next, ctx := m.startLocked()
	m.mu.Unlock()

	m.launch(ctx, next)
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && m.state == Open
}

// releaseLocked closes and clears the connection handle.
func (m *Manager) releaseLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.source != nil {
		_ = m.source.Close()
		m.source = nil
	}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) emit(gen uint64, ev feed.Event) {
	if m.notify != nil {
		m.notify(events.FeedMsg{Event: ev, Generation: gen})
	}
}
