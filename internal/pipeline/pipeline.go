// pattern: Imperative Shell

// Package pipeline turns an uploaded floor plan into a stream of room,
// style and render events.
package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	"floorcast/internal/feed"
	"floorcast/internal/logging"
)

// Job is one uploaded plan to process.
type Job struct {
	ID    string // stored file name
	Plan  Image
	Style string
}

// Image is an encoded image with its MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// Emitter receives pipeline events. data is marshalled as the envelope's
// data object.
type Emitter interface {
	Publish(eventType string, data any)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(eventType string, data any)

// Publish calls f.
func (f EmitterFunc) Publish(eventType string, data any) { f(eventType, data) }

// CompleteMessage is the last status a successful run publishes.
const CompleteMessage = "Pipeline complete!"

// Purpose says which step an image request serves.
type Purpose string

const (
	PurposeUnfurnished Purpose = "unfurnished"
	PurposeFurnished   Purpose = "furnished"
	PurposeInterior    Purpose = "interior"
	PurposeAssembly    Purpose = "assembly"
)

// ImageRequest asks a Generator for one or more images.
type ImageRequest struct {
	Purpose Purpose
	Prompt  string
	Inputs  []Image
	// Want is how many images the prompt asks for.
	Want int
}

// Generator is the model backend.
type Generator interface {
	// DetectRooms returns the raw JSON list of room boxes for the plan.
	DetectRooms(ctx context.Context, prompt string, plan Image) (string, error)
	DescribeStyle(ctx context.Context, prompt string) (string, error)
	GenerateImages(ctx context.Context, req ImageRequest) ([]Image, error)
}

type statusData struct {
	Message string `json:"message"`
}

type styleData struct {
	Description string `json:"description"`
}

type roomData struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Dimensions string `json:"dimensions"`
}

type viewData struct {
	RoomID string `json:"roomId"`
	Image  string `json:"image"`
	Title  string `json:"title,omitempty"`
}

type assemblyData struct {
	Image string `json:"image"`
	Title string `json:"title"`
}

type errorData struct {
	Message string `json:"message"`
}

// Pipeline runs jobs against a Generator.
type Pipeline struct {
	gen    Generator
	logger *logging.ScopedLogger
	// InteriorShots is the number of eye-level shots asked for per room.
	InteriorShots int
	newRoomID     func() string
}

// New creates a Pipeline.
func New(gen Generator, logger *logging.ScopedLogger) *Pipeline {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Pipeline{
		gen:           gen,
		logger:        logger,
		InteriorShots: 2,
		newRoomID:     func() string { return uuid.NewString()[:8] },
	}
}

type room struct {
	id         string
	name       string
	dimensions string
	plan       Image
	furnished  *Image
}

// Run processes job, publishing progress to out. Any failure is published
// as an error event and returned.
func (p *Pipeline) Run(ctx context.Context, job Job, out Emitter) error {
	log := p.logger.With("job", job.ID)
	log.Info("pipeline started", "style", job.Style)

	if err := p.run(ctx, job, out, log); err != nil {
		log.Error("pipeline failed", "error", err)
		out.Publish(feed.TypeError, errorData{Message: err.Error()})
		return err
	}

	log.Info("pipeline complete")
	return nil
}

func (p *Pipeline) run(ctx context.Context, job Job, out Emitter, log *logging.ScopedLogger) error {
	plan, err := decodeImage(job.Plan.Data)
	if err != nil {
		return fmt.Errorf("decode plan: %w", err)
	}
	bounds := plan.Bounds()

	status(out, "Step 1: Detecting rooms...")
	raw, err := p.gen.DetectRooms(ctx, segmentationPrompt, job.Plan)
	if err != nil {
		return fmt.Errorf("detect rooms: %w", err)
	}
	detections := parseRoomData(raw, bounds.Dx(), bounds.Dy(), defaultExpandPercent)
	log.Info("rooms detected", "count", len(detections))

	rooms := make([]*room, 0, len(detections))
	for _, d := range detections {
		cropped, err := encodePNG(crop(plan, d.Box.Add(bounds.Min)))
		if err != nil {
			return fmt.Errorf("crop %s: %w", d.Label, err)
		}
		r := &room{
			id:         p.newRoomID(),
			name:       d.Label,
			dimensions: d.Dimensions,
			plan:       cropped,
		}
		rooms = append(rooms, r)
		out.Publish(feed.TypeRoomDetected, roomData{ID: r.id, Name: r.name, Dimensions: r.dimensions})
	}

	status(out, "Step 2: Generating style description...")
	style, err := p.gen.DescribeStyle(ctx, stylePrompt(job.Style))
	if err != nil {
		return fmt.Errorf("describe style: %w", err)
	}
	out.Publish(feed.TypeStyleDescription, styleData{Description: style})

	for _, r := range rooms {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.renderRoom(ctx, r, style, out); err != nil {
			return fmt.Errorf("render %s: %w", r.name, err)
		}
	}

	status(out, "Step 5: Assembling final property view...")
	inputs := []Image{job.Plan}
	for _, r := range rooms {
		if r.furnished != nil {
			inputs = append(inputs, *r.furnished)
		}
	}
	final, err := p.first(ctx, ImageRequest{Purpose: PurposeAssembly, Prompt: assemblyPrompt, Inputs: inputs, Want: 1})
	if err != nil {
		return fmt.Errorf("assemble property: %w", err)
	}
	out.Publish(string(feed.KindFinalAssembly), assemblyData{Image: encodeBase64(final), Title: "Full Property - Assembled View"})

	status(out, CompleteMessage)
	return nil
}

func (p *Pipeline) renderRoom(ctx context.Context, r *room, style string, out Emitter) error {
	status(out, fmt.Sprintf("Processing room: %s...", r.name))

	unfurnished, err := p.first(ctx, ImageRequest{
		Purpose: PurposeUnfurnished,
		Prompt:  unfurnishedPrompt(r.name, r.dimensions),
		Inputs:  []Image{r.plan},
		Want:    1,
	})
	if err != nil {
		return err
	}
	out.Publish(string(feed.KindUnfurnished), viewData{RoomID: r.id, Image: encodeBase64(unfurnished)})

	furnished, err := p.first(ctx, ImageRequest{
		Purpose: PurposeFurnished,
		Prompt:  furnishPrompt(r.name, style),
		Inputs:  []Image{unfurnished},
		Want:    1,
	})
	if err != nil {
		return err
	}
	r.furnished = &furnished
	out.Publish(string(feed.KindFurnished), viewData{
		RoomID: r.id,
		Image:  encodeBase64(furnished),
		Title:  r.name + " - Furnished View",
	})

	shots, err := p.gen.GenerateImages(ctx, ImageRequest{
		Purpose: PurposeInterior,
		Prompt:  interiorPrompt(r.name, p.InteriorShots),
		Inputs:  []Image{furnished},
		Want:    p.InteriorShots,
	})
	if err != nil {
		return err
	}
	for i, shot := range shots {
		out.Publish(string(feed.KindInterior), viewData{
			RoomID: r.id,
			Image:  encodeBase64(shot),
			Title:  fmt.Sprintf("%s - Interior Shot %d", r.name, i+1),
		})
	}
	return nil
}

// first returns the first image the generator produced for req.
func (p *Pipeline) first(ctx context.Context, req ImageRequest) (Image, error) {
	images, err := p.gen.GenerateImages(ctx, req)
	if err != nil {
		return Image{}, err
	}
	if len(images) == 0 {
		return Image{}, fmt.Errorf("model returned no %s image", req.Purpose)
	}
	return images[0], nil
}

func status(out Emitter, msg string) {
	out.Publish(feed.TypeStatus, statusData{Message: msg})
}

// encodeBase64 returns the image as base64 PNG, the format clients assume
// for bare payloads.
func encodeBase64(img Image) string {
	data := img.Data
	if img.MIMEType != "image/png" {
		if decoded, err := decodeImage(img.Data); err == nil {
			if png, err := encodePNG(decoded); err == nil {
				data = png.Data
			}
		}
	}
	return base64.StdEncoding.EncodeToString(data)
}

