// Package imaging reads image dimensions and renders JPEG thumbnails.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

// Thumbnail defaults.
const (
	ThumbnailSize    = 256
	ThumbnailQuality = 80
)

// ErrUnsupportedFormat is returned for data no registered decoder recognises.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Dimensions returns the width, height and format name of an encoded image
// without decoding its pixels.
func Dimensions(data []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return 0, 0, "", ErrUnsupportedFormat
		}
		return 0, 0, "", fmt.Errorf("failed to read image config: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// Thumbnail scales the image in data to fit within maxSize x maxSize, keeping its
// aspect ratio, and encodes it as JPEG. Images already small enough are
// re-encoded at their original size.
func Thumbnail(data []byte, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = ThumbnailSize
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := fitWithin(bounds.Dx(), bounds.Dy(), maxSize)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// fitWithin returns the largest size no bigger than maxSize on either side with
// the same aspect ratio as w x h. Each side is at least one pixel.
func fitWithin(w, h, maxSize int) (int, int) {
	if w <= maxSize && h <= maxSize {
		return max(w, 1), max(h, 1)
	}
	if w >= h {
		return maxSize, max(h*maxSize/w, 1)
	}
	return max(w*maxSize/h, 1), maxSize
}
