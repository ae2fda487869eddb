// pattern: Functional Core

package feed

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// WholeProperty is the room id carried by composite renders of the whole
	// floor plan. It never appears in the room registry.
	WholeProperty = "__full_property__"

	// FilterAll selects every image regardless of room.
	FilterAll = "all"

	// MaxActivity bounds the activity log.
	MaxActivity = 100

	placeholderRoomName = "Room"
	wholePropertyName   = "Full Property"
)

// Status is the stream status shown to the user.
type Status int

const (
	StatusReady Status = iota
	StatusConnecting
	StatusConnected
	StatusLiveActive
	StatusError
	StatusDisconnected
)

// String returns the human-readable status label.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusLiveActive:
		return "Live"
	case StatusError:
		return "Error"
	case StatusDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Kind classifies a rendered image.
type Kind string

const (
	KindUnfurnished   Kind = "unfurnished_view"
	KindFurnished     Kind = "furnished_view"
	KindInterior      Kind = "interior_shot"
	KindFinalAssembly Kind = "final_assembly"
)

// Valid reports whether k is one of the known image kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindUnfurnished, KindFurnished, KindInterior, KindFinalAssembly:
		return true
	}
	return false
}

var titleCaser = cases.Title(language.English)

// Label returns a display label such as "Furnished View".
func (k Kind) Label() string {
	return titleCaser.String(strings.ReplaceAll(string(k), "_", " "))
}

// Room is a room detected on the floor plan.
type Room struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Dimensions json.RawMessage `json:"dimensions,omitempty"`
}

// DimensionsText renders the opaque dimensions payload for display.
func (r Room) DimensionsText() string {
	if len(r.Dimensions) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Dimensions, &s); err == nil {
		return s
	}
	return string(r.Dimensions)
}

// Image is one rendered image received from the feed.
type Image struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	RoomID    string `json:"roomId"`
	RoomName  string `json:"roomName"`
	Kind      Kind   `json:"kind"`
	Timestamp string `json:"timestamp"`
}

// Session is the client-side state derived from the event feed.
// A Session value is never mutated in place by the reducer; every
// transition returns a new value.
type Session struct {
	Status           Status
	StatusText       string
	Err              string
	Retrying         bool
	Activity         []string // most recent first
	StyleDescription string
	Rooms            map[string]Room
	Images           []Image // receipt order
	Filter           string
}

// New returns an empty session.
func New() Session {
	return Session{
		Status: StatusReady,
		Rooms:  make(map[string]Room),
		Filter: FilterAll,
	}
}

// RoomName resolves a room id to its display name.
func (s Session) RoomName(id string) string {
	if id == WholeProperty {
		return wholePropertyName
	}
	if r, ok := s.Rooms[id]; ok && r.Name != "" {
		return r.Name
	}
	return placeholderRoomName
}

// WithFilter returns a copy of s with the active filter set. An empty filter
// selects all images.
func WithFilter(s Session, filter string) Session {
	if filter == "" {
		filter = FilterAll
	}
	s.Filter = filter
	return s
}
