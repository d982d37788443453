package parse

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	stddraw "image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// transformImage decodes data, optionally resizes it so its longer
// side is at most maxSide (aspect-ratio preserved), converts it to the
// requested output format, and returns the encoded bytes with their
// mimetype. JPEG output is composited onto a white background first
// since JPEG has no alpha channel.
func transformImage(data []byte, maxSide int, format string) ([]byte, string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}

	if format == "" {
		format = "png"
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if maxSide > 0 {
		width, height = scaledDimensions(width, height, maxSide)
	}

	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, bounds, draw.Over, nil)

	var out image.Image = scaled
	if format == "jpeg" {
		white := image.NewRGBA(scaled.Bounds())
		stddraw.Draw(white, white.Bounds(), &image.Uniform{C: color.White}, image.Point{}, stddraw.Src)
		stddraw.Draw(white, white.Bounds(), scaled, image.Point{}, stddraw.Over)
		out = white
	}

	var buf bytes.Buffer
	switch format {
	case "png":
		if err := png.Encode(&buf, out); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil
	case "jpeg":
		if err := jpeg.Encode(&buf, out, nil); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/jpeg", nil
	default:
		return nil, "", errors.New("parse: unsupported logo format " + format)
	}
}

// scaledDimensions returns width/height resized so the longer side
// equals maxSide, preserving aspect ratio; dimensions already within
// maxSide are left untouched.
func scaledDimensions(width, height, maxSide int) (int, int) {
	if width <= 0 || height <= 0 || (width <= maxSide && height <= maxSide) {
		return width, height
	}
	if width >= height {
		ratio := float64(maxSide) / float64(width)
		return maxSide, int(float64(height) * ratio)
	}
	ratio := float64(maxSide) / float64(height)
	return int(float64(width) * ratio), maxSide
}
