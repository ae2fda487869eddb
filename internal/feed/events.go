// pattern: Functional Core

package feed

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is one decoded message from the feed or from the connection
// lifecycle. The concrete types below form a closed set.
type Event interface {
	eventType() string
}

// Connected is the handshake sent when the feed opens.
type Connected struct {
	Message string
}

// StatusUpdate carries a progress message.
type StatusUpdate struct {
	Message string
}

// StyleDescription carries the generated interior style text.
type StyleDescription struct {
	Description string
}

// RoomDetected announces (or re-announces) a room.
type RoomDetected struct {
	Room Room
}

// View is a per-room rendered image: unfurnished, furnished or interior.
type View struct {
	Kind   Kind
	RoomID string
	Image  string
	Title  string
}

// FinalAssembly is the whole-property composite render.
type FinalAssembly struct {
	Image string
	Title string
}

// ServerError is an application-level error reported by the backend.
type ServerError struct {
	Message string
}

// Unknown is a well-formed payload whose type is not recognized.
type Unknown struct {
	Type string
}

// Malformed is a payload that could not be decoded.
type Malformed struct {
	Err error
}

// LinkConnecting is raised when a connection attempt starts.
type LinkConnecting struct{}

// LinkOpened is raised when the transport is established.
type LinkOpened struct{}

// LinkErrored is raised when the transport fails and a retry is scheduled.
type LinkErrored struct {
	Err     error
	RetryIn time.Duration
}

// LinkClosed is raised when the connection is closed on purpose.
type LinkClosed struct{}

// Wire names of the non-image event types.
const (
	TypeConnected        = "connected"
	TypeStatus           = "status"
	TypeStyleDescription = "style_description"
	TypeRoomDetected     = "room_detected"
	TypeError            = "error"
)

func (Connected) eventType() string { return TypeConnected }
func (StatusUpdate) eventType() string { return TypeStatus }
func (StyleDescription) eventType() string { return TypeStyleDescription }
func (RoomDetected) eventType() string { return TypeRoomDetected }
func (v View) eventType() string { return string(v.Kind) }
func (FinalAssembly) eventType() string { return string(KindFinalAssembly) }
func (ServerError) eventType() string { return TypeError }
func (u Unknown) eventType() string { return u.Type }
func (Malformed) eventType() string { return "" }
func (LinkConnecting) eventType() string { return "" }
func (LinkOpened) eventType() string { return "" }
func (LinkErrored) eventType() string { return "" }
func (LinkClosed) eventType() string { return "" }

// envelope is the canonical wire form: {type, data, timestamp}. The
// handshake carries message at the top level instead of inside data.
type envelope struct {
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp float64         `json:"timestamp"`
}

type payload struct {
	Message     string          `json:"message"`
	Description string          `json:"description"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Dimensions  json.RawMessage `json:"dimensions"`
	RoomID      string          `json:"roomId"`
	Image       string          `json:"image"`
	Title       string          `json:"title"`
}

// Decode classifies a raw feed payload. A missing or null data object is
// treated as empty. Only undecodable JSON returns an error.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	var p payload
	if len(env.Data) > 0 && string(env.Data) != "null" {
		// A data value that is not an object leaves every field empty.
		_ = json.Unmarshal(env.Data, &p)
	}

	switch env.Type {
	case TypeConnected:
		msg := env.Message
		if msg == "" {
			msg = p.Message
		}
		return Connected{Message: msg}, nil
	case TypeStatus:
		return StatusUpdate{Message: p.Message}, nil
	case TypeStyleDescription:
		return StyleDescription{Description: p.Description}, nil
	case TypeRoomDetected:
		return RoomDetected{Room: Room{ID: p.ID, Name: p.Name, Dimensions: p.Dimensions}}, nil
	case string(KindUnfurnished), string(KindFurnished), string(KindInterior):
		return View{Kind: Kind(env.Type), RoomID: p.RoomID, Image: p.Image, Title: p.Title}, nil
	case string(KindFinalAssembly):
		return FinalAssembly{Image: p.Image, Title: p.Title}, nil
	case TypeError:
		return ServerError{Message: p.Message}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

// Parse is Decode for callers that fold every payload into state: decode
// failures become a Malformed event instead of an error.
func Parse(raw []byte) Event {
	ev, err := Decode(raw)
	if err != nil {
		return Malformed{Err: err}
	}
	return ev
}
