// pattern: Imperative Shell

package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NopLogger returns a logger that discards everything.
func NopLogger() *ScopedLogger {
	return &ScopedLogger{}
}

// TestLogManager is a LoggerProvider for tests. Records go to a panel
// sink only, at debug level, so tests can assert on what was logged.
type TestLogManager struct {
	sink   *PanelSink
	scopes *scopeCache
}

// NewTestLogManager buffers up to size entries.
func NewTestLogManager(size int) *TestLogManager {
	sink := NewPanelSink(size)
	core := zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), zapcore.AddSync(sink), zapcore.DebugLevel)
	return &TestLogManager{
		sink:   sink,
		scopes: newScopeCache(zap.New(core), zapcore.DebugLevel),
	}
}

// For returns the logger for scope.
func (m *TestLogManager) For(scope string) *ScopedLogger {
	return m.scopes.get(scope)
}

// Entries returns the channel of logged entries.
func (m *TestLogManager) Entries() <-chan LogEntry {
	return m.sink.Entries()
}

// Drain returns the entries buffered so far without waiting.
func (m *TestLogManager) Drain() []LogEntry {
	var out []LogEntry
	for {
		select {
		case e, ok := <-m.sink.Entries():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

// Close closes the entries channel.
func (m *TestLogManager) Close() error {
	return m.sink.Close()
}
