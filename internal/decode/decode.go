// Package decode wraps the JPEG codec (spec §4.8, C8): header-only
// dimension probing and full decode to interleaved RGB. Grayscale inputs are
// expanded to RGB by channel replication. Kept on stdlib image/jpeg — no
// third-party JPEG codec appears anywhere in the reference corpus, matching
// the teacher's own internal/encode/jpeg.go and decode.go, which also use
// image/jpeg directly.
package decode

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// DecodeError wraps a header/pixel parse failure from the codec, matching
// spec §7's Decode(message) error kind.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode: %s", e.Msg) }

// TileData is immutable interleaved RGB pixel data: len(RGB) == Width*Height*3.
type TileData struct {
	RGB    []byte
	Width  uint32
	Height uint32
}

// SizeBytes reports the memory cost of this value for cache accounting.
func (t *TileData) SizeBytes() int64 {
	if t == nil {
		return 0
	}
	return int64(len(t.RGB)) + 16 // + struct/header overhead estimate
}

// CompressedTileData is the immutable compressed-JPEG form cached in L2.
// Width/Height may be zero when the tile has not been probed.
type CompressedTileData struct {
	JPEG   []byte
	Width  uint32
	Height uint32
}

// SizeBytes reports the memory cost of this value for cache accounting.
func (t *CompressedTileData) SizeBytes() int64 {
	if t == nil {
		return 0
	}
	return int64(len(t.JPEG)) + 16
}

// Probe parses JPEG headers only, without decoding pixels, returning the
// image dimensions.
func Probe(jpegBytes []byte) (width, height uint32, err error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(jpegBytes))
	if err != nil {
		return 0, 0, &DecodeError{Msg: err.Error()}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, &DecodeError{Msg: "zero-sized image"}
	}
	return uint32(cfg.Width), uint32(cfg.Height), nil
}

// Decode decodes compressed JPEG bytes to interleaved RGB. Grayscale images
// are expanded to RGB by replicating the single channel across R, G, B.
func Decode(jpegBytes []byte) (*TileData, error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegBytes))
	if err != nil {
		return nil, &DecodeError{Msg: err.Error()}
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, &DecodeError{Msg: "zero-sized image"}
	}

	rgb := make([]byte, w*h*3)

	if gray, ok := img.(*image.Gray); ok {
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			rowOff := (y - bounds.Min.Y) * gray.Stride
			for x := 0; x < w; x++ {
				v := gray.Pix[rowOff+x]
				rgb[i] = v
				rgb[i+1] = v
				rgb[i+2] = v
				i += 3
			}
		}
		return &TileData{RGB: rgb, Width: uint32(w), Height: uint32(h)}, nil
	}

	if ycbcr, ok := img.(*image.YCbCr); ok {
		decodeYCbCr(ycbcr, rgb)
		return &TileData{RGB: rgb, Width: uint32(w), Height: uint32(h)}, nil
	}

	// General fallback: any other image.Image (e.g. *image.RGBA from a
	// non-standard decoder path).
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			rgb[i] = byte(r >> 8)
			rgb[i+1] = byte(g >> 8)
			rgb[i+2] = byte(b >> 8)
			i += 3
		}
	}
	return &TileData{RGB: rgb, Width: uint32(w), Height: uint32(h)}, nil
}

// decodeYCbCr fast-paths the common JPEG color decode, avoiding the
// per-pixel interface dispatch of img.At().
func decodeYCbCr(img *image.YCbCr, rgb []byte) {
	bounds := img.Bounds()
	w := bounds.Dx()
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := 0; x < w; x++ {
			xi := bounds.Min.X + x
			yi := img.YOffset(xi, y)
			ci := img.COffset(xi, y)
			r, g, b := color.YCbCrToRGB(img.Y[yi], img.Cb[ci], img.Cr[ci])
			rgb[i] = r
			rgb[i+1] = g
			rgb[i+2] = b
			i += 3
		}
	}
}
