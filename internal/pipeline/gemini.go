// pattern: Imperative Shell

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// roomSchema constrains room detection output to a list of
// {label, box_2d, dimensions} objects.
var roomSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"label": {
				Type:        genai.TypeString,
				Description: "A descriptive room name, e.g. 'Living Room' or 'Bedroom 1'.",
			},
			"box_2d": {
				Type:        genai.TypeArray,
				Description: "Bounding box [y0, x0, y1, x1] on a 0-1000 grid.",
				Items:       &genai.Schema{Type: genai.TypeInteger},
			},
			"dimensions": {
				Type:        genai.TypeString,
				Description: "Inferred room dimensions, e.g. '13ft 4in x 9ft 0in'.",
			},
		},
		Required: []string{"label", "box_2d", "dimensions"},
	},
}

// Gemini generates with the Gemini API.
type Gemini struct {
	client     *genai.Client
	textModel  string
	imageModel string
}

// NewGemini creates a Gemini generator.
func NewGemini(ctx context.Context, apiKey, textModel, imageModel string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, textModel: textModel, imageModel: imageModel}, nil
}

func (g *Gemini) DetectRooms(ctx context.Context, prompt string, plan Image) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.textModel, userContent(prompt, plan), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   roomSchema,
		Temperature:      genai.Ptr[float32](0.4),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", g.textModel, err)
	}
	return resp.Text(), nil
}

func (g *Gemini) DescribeStyle(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.textModel, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", g.textModel, err)
	}
	return resp.Text(), nil
}

func (g *Gemini) GenerateImages(ctx context.Context, req ImageRequest) ([]Image, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.imageModel, userContent(req.Prompt, req.Inputs...), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.imageModel, err)
	}

	var images []Image
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				images = append(images, Image{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType})
			}
		}
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%s returned no image for %s request", g.imageModel, req.Purpose)
	}
	return images, nil
}

func userContent(prompt string, images ...Image) []*genai.Content {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}
