package sse

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestReader_Frames(t *testing.T) {
	stream := strings.Join([]string{
		": keepalive",
		"",
		"id: 01A",
		"event: message",
		`data: {"type":"connected"}`,
		"",
		"data: line one",
		"data: line two",
		"retry: 2500",
		"",
		"id: 01B",
		"data:no-space",
		"",
	}, "\n")

	r := NewReader(strings.NewReader(stream))

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(f.Data) != `{"type":"connected"}` || f.ID != "01A" || f.Event != "message" {
		t.Errorf("frame 1 = %+v", f)
	}

	f, err = r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(f.Data) != "line one\nline two" {
		t.Errorf("frame 2 data = %q", f.Data)
	}
	if f.Retry != 2500*time.Millisecond {
		t.Errorf("frame 2 retry = %v", f.Retry)
	}
	if f.ID != "01A" {
		t.Errorf("frame 2 should inherit last id, got %q", f.ID)
	}

	f, err = r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(f.Data) != "no-space" || r.LastEventID() != "01B" {
		t.Errorf("frame 3 = %+v last id %q", f, r.LastEventID())
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}
}

func TestReader_TrailingFrameWithoutBlankLine(t *testing.T) {
	r := NewReader(strings.NewReader("data: tail"))
	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(f.Data) != "tail" {
		t.Errorf("data = %q", f.Data)
	}
}

func TestReader_LargeLine(t *testing.T) {
	big := strings.Repeat("A", 1<<20)
	r := NewReader(strings.NewReader("data: " + big + "\n\n"))
	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(f.Data) != len(big) {
		t.Errorf("len(data) = %d, want %d", len(f.Data), len(big))
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"type":"status","data":{"message":"Step 1"}}`)
	if err := Write(&buf, "01H", "", payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := NewReader(&buf).Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !bytes.Equal(f.Data, payload) {
		t.Errorf("data = %s, want %s", f.Data, payload)
	}
	if f.ID != "01H" {
		t.Errorf("id = %q", f.ID)
	}
}

func TestPrepare_SetsHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	if _, ok := Prepare(rec); !ok {
		t.Fatal("recorder should support flushing")
	}
	if got := rec.Header().Get("Content-Type"); got != ContentType {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestComment_IgnoredByReader(t *testing.T) {
	var buf bytes.Buffer
	if err := Comment(&buf, "keepalive"); err != nil {
		t.Fatalf("Comment() error = %v", err)
	}
	if err := Write(&buf, "", "", []byte("after")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := NewReader(&buf).Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(f.Data) != "after" {
		t.Errorf("data = %q, want the frame after the comment", f.Data)
	}
}
