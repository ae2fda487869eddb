// pattern: Imperative Shell

package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds configuration for the Manager.
type Config struct {
	FilePath    string    // rotating JSON log file, required
	MaxSizeMB   int       // rotate after this size (default 10)
	MaxBackups  int       // rotated files kept (default 5)
	MaxAgeDays  int       // days rotated files are kept (default 7)
	Level       string    // debug, info, warn or error (default info)
	PanelBuffer int       // entries buffered for the viewer log panel (default 1000)
	Console     io.Writer // optional human-readable copy, used by the headless backend
}

func (c Config) withDefaults() Config {
	if c.PanelBuffer <= 0 {
		c.PanelBuffer = 1000
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 7
	}
	return c
}

// LoggerProvider hands out scoped loggers. *Manager and *TestLogManager
// implement it.
type LoggerProvider interface {
	For(scope string) *ScopedLogger
}

// ScopedLogger is a slog-style logger bound to one scope, e.g. "conn",
// "web.hub" or "pipeline". The zero value discards everything.
type ScopedLogger struct {
	slog  *slog.Logger
	scope string
}

// Debug logs at DEBUG level.
func (l *ScopedLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }

// Info logs at INFO level.
func (l *ScopedLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args) }

// Warn logs at WARN level.
func (l *ScopedLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args) }

// Error logs at ERROR level.
func (l *ScopedLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *ScopedLogger) log(level slog.Level, msg string, args []any) {
	if l.slog != nil {
		l.slog.Log(context.Background(), level, msg, args...)
	}
}

// With returns a logger that adds args to every record, e.g.
// With("job", id) for everything logged about one pipeline run.
func (l *ScopedLogger) With(args ...any) *ScopedLogger {
	if l.slog == nil {
		return l
	}
	return &ScopedLogger{slog: l.slog.With(args...), scope: l.scope}
}

// Scope returns the logger's scope.
func (l *ScopedLogger) Scope() string {
	return l.scope
}

// scopeCache creates and caches one ScopedLogger per scope.
type scopeCache struct {
	base  *zap.Logger
	level zapcore.Level

	mu      sync.Mutex
	loggers map[string]*ScopedLogger
}

func newScopeCache(base *zap.Logger, level zapcore.Level) *scopeCache {
	return &scopeCache{base: base, level: level, loggers: make(map[string]*ScopedLogger)}
}

func (c *scopeCache) get(scope string) *ScopedLogger {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.loggers[scope]; ok {
		return l
	}
	l := &ScopedLogger{
		slog:  slog.New(&zapHandler{zap: c.base.Named(scope), level: c.level}),
		scope: scope,
	}
	c.loggers[scope] = l
	return l
}

// Manager tees log output to a rotating JSON file, the viewer's log panel
// and, when configured, a console writer.
type Manager struct {
	base   *zap.Logger
	panel  *PanelSink
	file   *lumberjack.Logger
	scopes *scopeCache
}

// NewManager creates the log directory and opens the sinks.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.FilePath == "" {
		return nil, errors.New("FilePath is required")
	}
	cfg = cfg.withDefaults()

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if l, err := zapcore.ParseLevel(cfg.Level); err == nil {
			level = l
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, err
	}

	file := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	panel := NewPanelSink(cfg.PanelBuffer)

	enc := zapcore.NewJSONEncoder(jsonEncoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.AddSync(file), level),
		zapcore.NewCore(enc.Clone(), zapcore.AddSync(panel), level),
	}
	if cfg.Console != nil {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(cfg.Console), level))
	}

	base := zap.New(zapcore.NewTee(cores...))
	return &Manager{
		base:   base,
		panel:  panel,
		file:   file,
		scopes: newScopeCache(base, level),
	}, nil
}

// For returns the logger for scope. Loggers are cached per scope.
func (m *Manager) For(scope string) *ScopedLogger {
	return m.scopes.get(scope)
}

// Entries returns the channel read by the viewer's log panel.
func (m *Manager) Entries() <-chan LogEntry {
	return m.panel.Entries()
}

// Sync flushes buffered output.
func (m *Manager) Sync() error {
	return m.base.Sync()
}

// Close flushes and closes every sink.
func (m *Manager) Close() error {
	_ = m.Sync()
	_ = m.panel.Close()
	return m.file.Close()
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.EpochTimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}

// zapHandler is a slog.Handler writing to a zap.Logger. Groups prefix
// attribute keys ("upload.size") and never change the logger name, which
// is the scope shown in the panel.
type zapHandler struct {
	zap    *zap.Logger
	level  zapcore.Level
	fields []zap.Field
	prefix string
}

func (h *zapHandler) Enabled(_ context.Context, level slog.Level) bool {
	return zapLevel(level) >= h.level
}

func (h *zapHandler) Handle(_ context.Context, r slog.Record) error {
	ce := h.zap.Check(zapLevel(r.Level), r.Message)
	if ce == nil {
		return nil
	}
	fields := make([]zap.Field, 0, len(h.fields)+r.NumAttrs())
	fields = append(fields, h.fields...)
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, h.field(a))
		return true
	})
	ce.Write(fields...)
	return nil
}

func (h *zapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = make([]zap.Field, 0, len(h.fields)+len(attrs))
	next.fields = append(next.fields, h.fields...)
	for _, a := range attrs {
		next.fields = append(next.fields, h.field(a))
	}
	return &next
}

func (h *zapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// field converts an slog attribute. Errors and durations keep their zap
// encodings so they render as text rather than opaque structs.
func (h *zapHandler) field(a slog.Attr) zap.Field {
	key := h.prefix + a.Key
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return zap.Duration(key, v.Duration())
	case slog.KindGroup:
		parts := make([]string, 0, len(v.Group()))
		for _, g := range v.Group() {
			parts = append(parts, g.String())
		}
		return zap.String(key, strings.Join(parts, " "))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return zap.NamedError(key, err)
		}
	}
	return zap.Any(key, v.Any())
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
