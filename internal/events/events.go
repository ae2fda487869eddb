// package events contains message types shared between the conn, tui and
// cli packages.
package events

import "floorcast/internal/feed"

// FeedMsg wraps one event for delivery to the single consumer that owns
// the session state. Generation identifies the connection that produced it.
type FeedMsg struct {
	Event      feed.Event
	Generation uint64
}

// UploadDoneMsg is sent when an upload started from the TUI completes.
type UploadDoneMsg struct {
	FileURL string
	Err     error
}

// HydratedMsg carries images fetched from GET /images. Epoch is the
// viewer's reset count when the fetch started.
type HydratedMsg struct {
	Images []feed.Image
	Err    error
	Epoch  uint64
}
