// pattern: Functional Core

package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
)

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unsupported image: %w", err)
	}
	return img, nil
}

func encodePNG(img image.Image) (Image, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Image{}, err
	}
	return Image{Data: buf.Bytes(), MIMEType: "image/png"}, nil
}

// crop returns the part of img inside r.
func crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// placeholder draws a flat image with a darker frame, used by the
// scripted generator.
func placeholder(width, height int, fill color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	frame := color.RGBA{R: fill.R / 2, G: fill.G / 2, B: fill.B / 2, A: 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: frame}, image.Point{}, draw.Src)
	inner := img.Bounds().Inset(max(1, width/16))
	draw.Draw(img, inner, &image.Uniform{C: fill}, image.Point{}, draw.Src)
	return img
}
