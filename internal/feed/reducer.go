// pattern: Functional Core

package feed

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultStatusText   = "Working…"
	defaultErrorMessage = "An error occurred"
	parseErrorEntry     = "[parse error]"
	finalAssemblyTitle  = "Full Property – Assembled View"
)

// Reducer folds events into a Session. NewID and Now are injectable so that
// tests can produce deterministic image ids and timestamps.
type Reducer struct {
	NewID func() string
	Now   func() time.Time
}

// NewReducer returns a Reducer backed by random UUIDs and the wall clock.
func NewReducer() Reducer {
	return Reducer{
		NewID: func() string { return uuid.NewString() },
		Now:   time.Now,
	}
}

// Reduce returns the session that results from applying ev to prev.
// prev is left untouched.
func (r Reducer) Reduce(prev Session, ev Event) Session {
	next := prev
	if next.Rooms == nil {
		next.Rooms = make(map[string]Room)
	}

	switch ev := ev.(type) {
	case Connected:
		next.Status = StatusConnected

	case StatusUpdate:
		msg := ev.Message
		if msg == "" {
			msg = defaultStatusText
		}
		next.StatusText = msg
		next.Activity = pushActivity(prev.Activity, msg)

	case StyleDescription:
		next.StyleDescription = ev.Description

	case RoomDetected:
		next.Rooms = maps.Clone(next.Rooms)
		next.Rooms[ev.Room.ID] = ev.Room

	case View:
		roomName := prev.RoomName(ev.RoomID)
		title := ev.Title
		if title == "" || ev.Kind == KindUnfurnished {
			title = defaultViewTitle(ev.Kind, roomName)
		}
		next.Images = r.appendImage(prev.Images, Image{
			URL:      InlineImageURL(ev.Image),
			Title:    title,
			RoomID:   ev.RoomID,
			RoomName: roomName,
			Kind:     ev.Kind,
		})

	case FinalAssembly:
		title := ev.Title
		if title == "" {
			title = finalAssemblyTitle
		}
		next.Images = r.appendImage(prev.Images, Image{
			URL:      InlineImageURL(ev.Image),
			Title:    title,
			RoomID:   WholeProperty,
			RoomName: wholePropertyName,
			Kind:     KindFinalAssembly,
		})

	case ServerError:
		msg := ev.Message
		if msg == "" {
			msg = defaultErrorMessage
		}
		next.Status = StatusError
		next.Err = msg

	case Unknown:
		if ev.Type != "" {
			next.Activity = pushActivity(prev.Activity, "["+ev.Type+"]")
		}

	case Malformed:
		next.Activity = pushActivity(prev.Activity, parseErrorEntry)

	case LinkConnecting:
		next.Status = StatusConnecting

	case LinkOpened:
		next.Retrying = false
		if prev.Status != StatusConnected {
			next.Status = StatusLiveActive
		}

	case LinkErrored:
		next.Status = StatusError
		next.Retrying = true
		entry := "Connection lost"
		if ev.RetryIn > 0 {
			entry = fmt.Sprintf("Connection lost, retrying in %s", ev.RetryIn)
		}
		next.Activity = pushActivity(prev.Activity, entry)

	case LinkClosed:
		next.Status = StatusDisconnected
		next.Retrying = false
	}

	return next
}

// Hydrate appends previously generated images, typically fetched from
// GET /images before the live feed catches up. Images whose id is already
// present are skipped, and so are images the live feed already delivered
// under a client-side id: same kind, room, title and image body.
func Hydrate(prev Session, images []Image) Session {
	seen := make(map[string]bool, len(prev.Images))
	same := make(map[imageKey]bool, len(prev.Images))
	for _, img := range prev.Images {
		seen[img.ID] = true
		if img.URL != "" {
			same[keyOf(img)] = true
		}
	}

	next := prev
	next.Images = slices.Clip(prev.Images)
	for _, img := range images {
		if img.ID == "" || seen[img.ID] {
			continue
		}
		if img.URL != "" {
			if same[keyOf(img)] {
				continue
			}
			same[keyOf(img)] = true
		}
		seen[img.ID] = true
		next.Images = append(next.Images, img)
	}
	return next
}

type imageKey struct {
	kind        Kind
	room, title string
	url         string
}

func keyOf(img Image) imageKey {
	return imageKey{kind: img.Kind, room: img.RoomID, title: img.Title, url: img.URL}
}

// InlineImageURL turns a base64 image body into a data URI. Values that are
// already URLs are returned unchanged.
func InlineImageURL(image string) string {
	if image == "" {
		return ""
	}
	if strings.HasPrefix(image, "data:") || strings.HasPrefix(image, "http://") ||
		strings.HasPrefix(image, "https://") || strings.HasPrefix(image, "/") {
		return image
	}
	return "data:image/png;base64," + image
}

func (r Reducer) appendImage(images []Image, img Image) []Image {
	img.ID = r.NewID()
	img.Timestamp = r.Now().Format(time.RFC3339Nano)
	// Clip so the append never writes into a backing array shared with prev.
	return append(slices.Clip(images), img)
}

func defaultViewTitle(kind Kind, roomName string) string {
	switch kind {
	case KindUnfurnished:
		return roomName + " – Unfurnished Isometric"
	case KindFurnished:
		return roomName + " – Furnished View"
	case KindInterior:
		return roomName + " – Interior"
	default:
		return roomName
	}
}

func pushActivity(log []string, entry string) []string {
	n := min(len(log), MaxActivity-1)
	out := make([]string, 0, n+1)
	out = append(out, entry)
	return append(out, log[:n]...)
}
