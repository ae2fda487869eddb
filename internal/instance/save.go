// pattern: Imperative Shell
package instance

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"floorcast/internal/feed"
)

// ImageBytes returns the body of img. Inline data URIs are decoded locally;
// anything else is fetched, relative paths against the backend.
func (c *Client) ImageBytes(ctx context.Context, img feed.Image) ([]byte, error) {
	if payload, ok := strings.CutPrefix(img.URL, "data:"); ok {
		_, encoded, found := strings.Cut(payload, ";base64,")
		if !found {
			return nil, fmt.Errorf("image %s: unsupported data URI", img.ID)
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("image %s: failed to decode: %w", img.ID, err)
		}
		return data, nil
	}

	url := img.URL
	if strings.HasPrefix(url, "/") {
		url = c.baseURL + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

// SaveImages writes imgs into dir and returns the written paths. Files are
// numbered in feed order and named after the image title.
func (c *Client) SaveImages(ctx context.Context, imgs []feed.Image, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(imgs))
	for i, img := range imgs {
		data, err := c.ImageBytes(ctx, img)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, ImageFileName(i+1, img, data))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ImageFileName names the n-th saved image after its title, with an
// extension matching data.
func ImageFileName(n int, img feed.Image, data []byte) string {
	return fmt.Sprintf("%02d-%s%s", n, slug(img.Title, string(img.Kind)), extFor(data))
}

// slug lowercases s and keeps letters and digits, joining runs of anything
// else with a single dash.
func slug(s, fallback string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		if fallback == "" {
			return "image"
		}
		return slug(fallback, "image")
	}
	return b.String()
}

func extFor(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
