// pattern: Imperative Shell

package sse

import (
	"io"
	"net/http"

	"github.com/gin-contrib/sse"
)

// ContentType is the media type of an event stream.
const ContentType = "text/event-stream"

// Write encodes one frame. data is written verbatim, so callers pass
// already-marshaled JSON.
func Write(w io.Writer, id, event string, data []byte) error {
	return sse.Encode(w, sse.Event{
		Id:    id,
		Event: event,
		Data:  string(data),
	})
}

// Prepare sets the response headers for an event stream and returns the
// flusher, or false if the writer cannot stream.
func Prepare(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

// Comment writes a comment line. Readers ignore it; it keeps idle
// connections from timing out.
func Comment(w io.Writer, text string) error {
	_, err := io.WriteString(w, ": "+text+"\n\n")
	return err
}
