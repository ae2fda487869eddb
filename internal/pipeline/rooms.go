// pattern: Functional Core

package pipeline

import (
	"encoding/json"
	"image"
	"strings"
)

// defaultExpandPercent grows each detected box so walls, doors and
// windows at the edge stay in the crop.
const defaultExpandPercent = 5

// gridSize is the coordinate range the model reports boxes in.
const gridSize = 1000

// detection is one room box in plan pixel coordinates.
type detection struct {
	Box        image.Rectangle
	Label      string
	Dimensions string
}

type roomSegment struct {
	Label      string          `json:"label"`
	Box2D      []float64       `json:"box_2d"`
	Dimensions json.RawMessage `json:"dimensions"`
}

// parseJSONOutput strips a ```json fence if the model added one.
func parseJSONOutput(s string) []roomSegment {
	if _, after, ok := strings.Cut(s, "```json"); ok {
		s, _, _ = strings.Cut(after, "```")
	}
	var items []roomSegment
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &items); err != nil {
		return nil
	}
	return items
}

// parseRoomData converts boxes given as [y0, x0, y1, x1] on a 0-1000 grid
// into pixel rectangles on a width x height plan, expanded by
// expandPercent and clamped to the plan. Empty or malformed boxes are skipped.
func parseRoomData(raw string, width, height, expandPercent int) []detection {
	var out []detection
	for _, item := range parseJSONOutput(raw) {
		if len(item.Box2D) != 4 {
			continue
		}
		y0 := scale(item.Box2D[0], height)
		x0 := scale(item.Box2D[1], width)
		y1 := scale(item.Box2D[2], height)
		x1 := scale(item.Box2D[3], width)
		if y0 >= y1 || x0 >= x1 {
			continue
		}

		if expandPercent > 0 {
			dx := float64(x1-x0) * float64(expandPercent) / 100 / 2
			dy := float64(y1-y0) * float64(expandPercent) / 100 / 2
			x0 = max(0, int(float64(x0)-dx))
			y0 = max(0, int(float64(y0)-dy))
			x1 = min(width, int(float64(x1)+dx))
			y1 = min(height, int(float64(y1)+dy))
		}

		label := item.Label
		if label == "" {
			label = "Unknown"
		}
		out = append(out, detection{
			Box:        image.Rect(x0, y0, x1, y1),
			Label:      label,
			Dimensions: dimensionsText(item.Dimensions),
		})
	}
	return out
}

func scale(v float64, size int) int {
	return int(float64(int(v)) / gridSize * float64(size))
}

func dimensionsText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "N/A"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "N/A"
		}
		return s
	}
	return string(raw)
}
