// pattern: Functional Core

package feed

import (
	"cmp"
	"slices"
)

// Section summarizes the images of one room.
type Section struct {
	RoomID string
	Name   string
	Count  int
}

// GroupByRoom buckets images by room id, preserving receipt order within
// each bucket.
func GroupByRoom(images []Image) map[string][]Image {
	groups := make(map[string][]Image)
	for _, img := range images {
		groups[img.RoomID] = append(groups[img.RoomID], img)
	}
	return groups
}

// Sections lists one entry per room that has images. The whole-property
// section comes first when present; the rest are ordered by name, then id.
func Sections(s Session) []Section {
	groups := GroupByRoom(s.Images)

	var whole *Section
	rooms := make([]Section, 0, len(groups))
	for id, imgs := range groups {
		sec := Section{RoomID: id, Name: sectionName(s, id, imgs), Count: len(imgs)}
		if id == WholeProperty {
			whole = &sec
			continue
		}
		rooms = append(rooms, sec)
	}

	slices.SortFunc(rooms, func(a, b Section) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.RoomID, b.RoomID)
	})

	if whole == nil {
		return rooms
	}
	return append([]Section{*whole}, rooms...)
}

// Filtered returns the images selected by the active filter.
func Filtered(s Session) []Image {
	if s.Filter == "" || s.Filter == FilterAll {
		return s.Images
	}
	var out []Image
	for _, img := range s.Images {
		if img.RoomID == s.Filter {
			out = append(out, img)
		}
	}
	return out
}

// FilterLabel names the active filter for display.
func FilterLabel(s Session) string {
	switch s.Filter {
	case "", FilterAll:
		return "All Images"
	case WholeProperty:
		return wholePropertyName
	}
	if r, ok := s.Rooms[s.Filter]; ok && r.Name != "" {
		return r.Name
	}
	for _, img := range s.Images {
		if img.RoomID == s.Filter && img.RoomName != "" {
			return img.RoomName
		}
	}
	return placeholderRoomName
}

// FilterCycle lists the selectable filters in display order: all images
// followed by each section.
func FilterCycle(s Session) []string {
	secs := Sections(s)
	out := make([]string, 0, len(secs)+1)
	out = append(out, FilterAll)
	for _, sec := range secs {
		out = append(out, sec.RoomID)
	}
	return out
}

// NextFilter steps through FilterCycle by delta, wrapping around. An active
// filter that is no longer in the cycle restarts from all images.
func NextFilter(s Session, delta int) string {
	cycle := FilterCycle(s)
	idx := slices.Index(cycle, s.Filter)
	if idx < 0 {
		return FilterAll
	}
	n := len(cycle)
	return cycle[((idx+delta)%n+n)%n]
}

func sectionName(s Session, id string, imgs []Image) string {
	if id == WholeProperty {
		return wholePropertyName
	}
	if r, ok := s.Rooms[id]; ok && r.Name != "" {
		return r.Name
	}
	for _, img := range imgs {
		if img.RoomName != "" && img.RoomName != placeholderRoomName {
			return img.RoomName
		}
	}
	return placeholderRoomName
}
