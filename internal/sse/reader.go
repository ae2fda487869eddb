// pattern: Functional Core

package sse

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// maxLineSize bounds a single SSE line. Inline base64 images are large.
const maxLineSize = 32 << 20

// Frame is one dispatched server-sent event.
type Frame struct {
	ID    string
	Event string
	Data  []byte
	Retry time.Duration
}

// Reader parses server-sent events from a stream.
type Reader struct {
	scanner     *bufio.Scanner
	lastEventID string
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: s}
}

// LastEventID returns the most recent id field seen on the stream.
func (r *Reader) LastEventID() string {
	return r.lastEventID
}

// Next returns the next frame that carries data. Multiple data lines are
// joined with newlines. Returns io.EOF when the stream ends cleanly.
func (r *Reader) Next() (Frame, error) {
	var (
		frame   Frame
		data    []string
		hasData bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if hasData {
				frame.Data = []byte(strings.Join(data, "\n"))
				frame.ID = r.lastEventID
				return frame, nil
			}
			frame = Frame{}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			if !strings.Contains(value, "\x00") {
				r.lastEventID = value
			}
		case "event":
			frame.Event = value
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				frame.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if hasData {
		frame.Data = []byte(strings.Join(data, "\n"))
		frame.ID = r.lastEventID
		return frame, nil
	}
	return Frame{}, io.EOF
}
