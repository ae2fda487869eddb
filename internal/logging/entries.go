// pattern: Functional Core

package logging

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Levels in ascending severity. The viewer's log panel cycles through them
// as its minimum level.
var Levels = []string{"DEBUG", "INFO", "WARN", "ERROR"}

// LogEntry is a structured log entry as shown in the viewer's log panel.
// Records tagged with a "job" attribute (pipeline runs, job queue) carry
// the job id separately so the panel can label them.
type LogEntry struct {
	Timestamp time.Time
	Level     string // one of Levels
	Scope     string // logger scope, e.g. "web.hub" or "pipeline"
	Job       string
	Message   string
	Fields    map[string]any
}

// String renders the entry on one line. Fields are sorted by key.
func (e LogEntry) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s [%s]", e.Timestamp.Format("15:04:05"), e.Level, e.Scope)
	if e.Job != "" {
		fmt.Fprintf(&sb, " job=%s", ShortJob(e.Job))
	}
	sb.WriteString(" ")
	sb.WriteString(e.Message)
	if f := e.FieldString(); f != "" {
		sb.WriteString(" ")
		sb.WriteString(f)
	}
	return sb.String()
}

// FieldString renders the extra fields as sorted key=value pairs.
func (e LogEntry) FieldString() string {
	if len(e.Fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, e.Fields[k])
	}
	return strings.Join(parts, " ")
}

// AtLeast reports whether the entry is at or above the min level.
func (e LogEntry) AtLeast(min string) bool {
	return Severity(e.Level) >= Severity(min)
}

// Severity ranks a normalized level; unknown levels rank as INFO.
func Severity(level string) int {
	if i := slices.Index(Levels, level); i >= 0 {
		return i
	}
	return 1
}

// NextLevel returns the level after current in Levels, wrapping around.
func NextLevel(current string) string {
	return Levels[(Severity(current)+1)%len(Levels)]
}

// ShortJob trims a job id to its first eight characters for display.
func ShortJob(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ParseLevel normalizes a level string. Unknown levels become INFO.
func ParseLevel(level string) string {
	switch strings.ToLower(level) {
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error", "dpanic", "panic", "fatal":
		return "ERROR"
	default:
		return "INFO"
	}
}
