package container

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/fastpathlabs/wsitiles/internal/decode"
	"github.com/fastpathlabs/wsitiles/internal/encode"
)

// GenerateLevelFromFiner builds a coarser pyramid level's pack/idx pair by
// 2x box-downsampling the already-packed finer level: coarse tile (col,
// row) is assembled from finer tiles (2col,2row), (2col+1,2row),
// (2col,2row+1), (2col+1,2row+1), each missing child contributing a white
// quadrant rather than aborting the tile. outputDir must already contain
// the finer level's tiles/level_N.{idx,pack}.
//
// Adapted from the teacher's internal/tile/downsample.go quadrant-combine
// structure (four children assembled into one parent tile); re-encoding
// uses the teacher's internal/encode/jpeg.go JPEG encoder.
func GenerateLevelFromFiner(outputDir string, coarse, finer LevelSpec, tileSize int, quality int) error {
	fineCont, err := openLevel(filepath.Join(outputDir, "tiles"), finer.Level)
	if err != nil {
		return fmt.Errorf("opening finer level %d: %w", finer.Level, err)
	}
	defer fineCont.pack.Close()

	enc := &encode.JPEGEncoder{Quality: quality}
	half := tileSize / 2

	tilesOut := filepath.Join(outputDir, "tiles")
	n := int(coarse.Cols) * int(coarse.Rows)
	entries := make([]IndexEntry, n)

	packPath := filepath.Join(tilesOut, fmt.Sprintf("level_%d.pack", coarse.Level))
	pack, err := createPack(packPath)
	if err != nil {
		return err
	}
	defer pack.Close()

	var offset uint64
	for row := uint32(0); row < coarse.Rows; row++ {
		for col := uint32(0); col < coarse.Cols; col++ {
			dst := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
			fillWhite(dst)

			quadrants := [4]struct {
				col, row   uint32
				dstX, dstY int
			}{
				{2 * col, 2 * row, 0, 0},
				{2*col + 1, 2 * row, half, 0},
				{2 * col, 2*row + 1, 0, half},
				{2*col + 1, 2*row + 1, half, half},
			}
			for _, q := range quadrants {
				blitDownsampledQuadrant(dst, fineCont, q.col, q.row, q.dstX, q.dstY, half)
			}

			data, err := enc.Encode(dst)
			if err != nil {
				return fmt.Errorf("encoding generated tile %d/%d_%d: %w", coarse.Level, col, row, err)
			}

			idx := row*coarse.Cols + col
			if _, err := pack.Write(data); err != nil {
				return fmt.Errorf("writing generated tile %d/%d_%d: %w", coarse.Level, col, row, err)
			}
			entries[idx] = IndexEntry{Offset: offset, Length: uint32(len(data))}
			offset += uint64(len(data))
		}
	}

	if err := pack.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", packPath, err)
	}
	idxPath := filepath.Join(tilesOut, fmt.Sprintf("level_%d.idx", coarse.Level))
	return writeIndex(idxPath, coarse.Cols, coarse.Rows, entries)
}

// blitDownsampledQuadrant reads one finer-level tile, 2x-box-downsamples it
// to a half x half square, and draws it into dst at (dstX, dstY). A
// missing or unreadable finer tile leaves its quadrant white.
func blitDownsampledQuadrant(dst *image.RGBA, fine *level, col, row uint32, dstX, dstY, half int) {
	if col >= fine.cols || row >= fine.rows {
		return
	}
	e := fine.entries[row*fine.cols+col]
	if e.Length == 0 {
		return
	}
	buf := make([]byte, e.Length)
	if _, err := fine.pack.ReadAt(buf, int64(e.Offset)); err != nil {
		return
	}
	td, err := decode.Decode(buf)
	if err != nil {
		return
	}

	sx := float64(td.Width) / float64(half)
	sy := float64(td.Height) / float64(half)
	for y := 0; y < half; y++ {
		srcY := int(float64(y) * sy)
		for x := 0; x < half; x++ {
			srcX := int(float64(x) * sx)
			r, g, b := box2x2(td, srcX, srcY)
			dst.Set(dstX+x, dstY+y, color.RGBA{R: r, G: g, B: b, A: 0xFF})
		}
	}
}

// box2x2 averages up to a 2x2 pixel block starting at (x, y) in td's RGB
// buffer, clamping at the edges.
func box2x2(td *decode.TileData, x, y int) (r, g, b byte) {
	var rs, gs, bs, n int
	w, h := int(td.Width), int(td.Height)
	for dy := 0; dy < 2; dy++ {
		yy := y + dy
		if yy >= h {
			continue
		}
		for dx := 0; dx < 2; dx++ {
			xx := x + dx
			if xx >= w {
				continue
			}
			off := (yy*w + xx) * 3
			rs += int(td.RGB[off])
			gs += int(td.RGB[off+1])
			bs += int(td.RGB[off+2])
			n++
		}
	}
	if n == 0 {
		return 0xFF, 0xFF, 0xFF
	}
	return byte(rs / n), byte(gs / n), byte(bs / n)
}

func fillWhite(img *image.RGBA) {
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
}

func createPack(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, nil
}
