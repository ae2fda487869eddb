// pattern: Imperative Shell

package logging

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// errSinkClosed is returned by writes after Close.
var errSinkClosed = errors.New("write to closed panel sink")

// zapRecord holds the keys jsonEncoderConfig writes for every entry.
type zapRecord struct {
	Level  string  `json:"level"`
	TS     float64 `json:"ts"`
	Logger string  `json:"logger"`
	Msg    string  `json:"msg"`
	Job    any     `json:"job"`
}

// reserved keys are lifted into LogEntry fields or dropped.
var reserved = []string{"level", "ts", "logger", "msg", "job", "caller", "stacktrace"}

// PanelSink is a zapcore.WriteSyncer feeding the viewer's log panel. It
// never blocks the logger: when the reader falls behind the oldest
// buffered entry is discarded and counted.
type PanelSink struct {
	mu      sync.Mutex
	entries chan LogEntry
	closed  bool
	dropped int
}

// NewPanelSink creates a sink buffering up to size entries.
func NewPanelSink(size int) *PanelSink {
	return &PanelSink{entries: make(chan LogEntry, size)}
}

// Write decodes one JSON-encoded zap record. Undecodable input is
// swallowed so a bad record never fails the tee.
func (s *PanelSink) Write(p []byte) (int, error) {
	entry, err := decodeRecord(p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errSinkClosed
	}
	if err != nil {
		return len(p), nil
	}
	for {
		select {
		case s.entries <- entry:
			return len(p), nil
		default:
		}
		select {
		case <-s.entries:
			s.dropped++
		default:
		}
	}
}

// Sync is a no-op.
func (s *PanelSink) Sync() error { return nil }

// Close closes the entries channel. Safe to call more than once.
func (s *PanelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.entries)
	}
	return nil
}

// Entries returns the channel read by the log panel.
func (s *PanelSink) Entries() <-chan LogEntry {
	return s.entries
}

// Dropped returns how many entries were discarded because the reader fell behind.
func (s *PanelSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func decodeRecord(p []byte) (LogEntry, error) {
	var rec zapRecord
	if err := json.Unmarshal(p, &rec); err != nil {
		return LogEntry{}, err
	}
	var rest map[string]any
	if err := json.Unmarshal(p, &rest); err != nil {
		return LogEntry{}, err
	}
	for _, k := range reserved {
		delete(rest, k)
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     ParseLevel(rec.Level),
		Scope:     rec.Logger,
		Message:   rec.Msg,
		Fields:    rest,
	}
	if entry.Scope == "" {
		entry.Scope = "floorcast"
	}
	if rec.TS > 0 {
		sec := int64(rec.TS)
		entry.Timestamp = time.Unix(sec, int64((rec.TS-float64(sec))*1e9))
	}
	switch job := rec.Job.(type) {
	case string:
		entry.Job = job
	case nil:
	default:
		entry.Fields["job"] = job
	}
	return entry, nil
}
