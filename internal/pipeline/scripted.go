// pattern: Imperative Shell

package pipeline

import (
	"context"
	"encoding/json"
	"image/color"
	"time"
)

// ScriptedRoom is a canned room box on the 0-1000 grid, [y0, x0, y1, x1].
type ScriptedRoom struct {
	Label      string `json:"label"`
	Box        [4]int `json:"box_2d"`
	Dimensions string `json:"dimensions"`
}

// DefaultScriptedRooms split a plan into three rooms.
var DefaultScriptedRooms = []ScriptedRoom{
	{Label: "Living Room", Box: [4]int{0, 0, 600, 550}, Dimensions: "18ft 0in x 14ft 6in"},
	{Label: "Kitchen/Dining Area", Box: [4]int{0, 550, 600, 1000}, Dimensions: "15ft 2in x 12ft 0in"},
	{Label: "Bedroom 1", Box: [4]int{600, 0, 1000, 1000}, Dimensions: "12ft 0in x 11ft 4in"},
}

var purposeColors = map[Purpose]color.RGBA{
	PurposeUnfurnished: {R: 205, G: 214, B: 244, A: 255},
	PurposeFurnished:   {R: 166, G: 227, B: 161, A: 255},
	PurposeInterior:    {R: 249, G: 226, B: 175, A: 255},
	PurposeAssembly:    {R: 137, G: 180, B: 250, A: 255},
}

const scriptedStyle = "Warm neutral palette with off-white walls and sand accents. " +
	"Light oak furniture with rounded edges, linen upholstery and matte black hardware. " +
	"Soft diffuse lighting from paper pendants, a few ceramics and trailing plants."

// Scripted is an offline Generator that answers with canned rooms and
// flat placeholder images. Delay is waited before every answer.
type Scripted struct {
	Rooms []ScriptedRoom
	Delay time.Duration
}

// NewScripted creates a Scripted generator with the default rooms.
func NewScripted(delay time.Duration) *Scripted {
	return &Scripted{Rooms: DefaultScriptedRooms, Delay: delay}
}

func (s *Scripted) DetectRooms(ctx context.Context, _ string, _ Image) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	data, err := json.Marshal(s.Rooms)
	if err != nil {
		return "", err
	}
	return "```json\n" + string(data) + "\n```", nil
}

func (s *Scripted) DescribeStyle(ctx context.Context, _ string) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return scriptedStyle, nil
}

func (s *Scripted) GenerateImages(ctx context.Context, req ImageRequest) ([]Image, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	fill, ok := purposeColors[req.Purpose]
	if !ok {
		fill = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	}
	n := max(1, req.Want)
	images := make([]Image, 0, n)
	for range n {
		img, err := encodePNG(placeholder(96, 72, fill))
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func (s *Scripted) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
