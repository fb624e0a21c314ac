// Package encode re-encodes generated pixel data back to JPEG, for the
// packer's auto-generated pyramid levels (container.GenerateLevelFromFiner).
// Adapted from the teacher's internal/encode/jpeg.go; the PMTiles-specific
// encoder interface (Format/PMTileType/FileExtension, and the
// webp/png/terrarium siblings it dispatched to) is dropped since this
// domain has exactly one wire format: JPEG.
package encode

import (
	"bytes"
	"image"
	"image/jpeg"
)

// JPEGEncoder encodes an image to JPEG bytes at a fixed quality.
type JPEGEncoder struct {
	Quality int // 1-100, default 85
}

// Encode compresses img to JPEG.
func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	quality := e.Quality
	if quality <= 0 {
		quality = 85
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
