// Package tilereader implements the tile-reader facade (spec §4.9, C9): an
// auxiliary read API atop the container and decode wrapper for clients that
// need a single tile or an arbitrary pixel-space rectangle without going
// through the scheduler's caches.
package tilereader

import (
	"fmt"

	"github.com/fastpathlabs/wsitiles/internal/container"
	"github.com/fastpathlabs/wsitiles/internal/decode"
	"github.com/fastpathlabs/wsitiles/internal/tilekey"
)

// Reader reads tiles directly from a container, bypassing any cache.
type Reader struct {
	cont *container.Container
	meta *tilekey.SlideMetadata
}

// New wraps a container and its metadata for direct reads.
func New(cont *container.Container, meta *tilekey.SlideMetadata) *Reader {
	return &Reader{cont: cont, meta: meta}
}

// DecodeTile reads and decodes a single tile, with no cache involvement. A
// missing tile (absent from the index, or out of grid bounds) reports ok=false
// rather than an error.
func (r *Reader) DecodeTile(level, col, row uint32) (td *decode.TileData, w, h uint32, ok bool, err error) {
	if _, found := r.cont.Lookup(level, col, row); !found {
		return nil, 0, 0, false, nil
	}
	raw, err := r.cont.Read(level, col, row)
	if err != nil {
		return nil, 0, 0, false, fmt.Errorf("reading tile %d/%d_%d: %w", level, col, row, err)
	}
	td, err = decode.Decode(raw)
	if err != nil {
		return nil, 0, 0, false, err
	}
	return td, td.Width, td.Height, true, nil
}

// DecodeRegion assembles a w x h rectangle in level-pixel coordinates
// starting at (x, y), which may be negative. The output buffer is row-major
// interleaved RGB, pre-filled with 0xFF so any area not covered by a tile
// (out-of-grid, or simply missing/unreadable) appears white. w and h must be
// > 0.
func (r *Reader) DecodeRegion(level uint32, x, y int64, w, h uint32) ([]byte, error) {
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("decode region: w and h must be > 0")
	}

	levelInfo, ok := r.meta.LevelByNumber(level)
	if !ok {
		return nil, fmt.Errorf("decode region: no such level %d", level)
	}
	tileSize := r.meta.TileSize
	if tileSize == 0 {
		return nil, fmt.Errorf("decode region: metadata has zero tile size")
	}

	out := make([]byte, int64(w)*int64(h)*3)
	for i := range out {
		out[i] = 0xFF
	}

	ts := int64(tileSize)
	colStart := floorDiv(x, ts)
	colEnd := floorDiv(x+int64(w)-1, ts)
	rowStart := floorDiv(y, ts)
	rowEnd := floorDiv(y+int64(h)-1, ts)

	for row := rowStart; row <= rowEnd; row++ {
		if row < 0 || row >= int64(levelInfo.Rows) {
			continue
		}
		for col := colStart; col <= colEnd; col++ {
			if col < 0 || col >= int64(levelInfo.Cols) {
				continue
			}
			r.blitTile(out, w, h, x, y, level, uint32(col), uint32(row), ts)
		}
	}

	return out, nil
}

// blitTile decodes one tile and copies its overlap with the requested
// region into out. Decode or read failures leave the 0xFF fill in place,
// matching the documented failure behavior: missing/unreadable tiles are
// never synthesized, only left white.
func (r *Reader) blitTile(out []byte, w, h uint32, regionX, regionY int64, level, col, row uint32, tileSize int64) {
	if _, found := r.cont.Lookup(level, col, row); !found {
		return
	}
	raw, err := r.cont.Read(level, col, row)
	if err != nil {
		return
	}
	td, err := decode.Decode(raw)
	if err != nil {
		return
	}

	tileX := int64(col) * tileSize
	tileY := int64(row) * tileSize

	srcXStart := int64(0)
	dstXStart := tileX - regionX
	if dstXStart < 0 {
		srcXStart = -dstXStart
		dstXStart = 0
	}
	srcYStart := int64(0)
	dstYStart := tileY - regionY
	if dstYStart < 0 {
		srcYStart = -dstYStart
		dstYStart = 0
	}

	copyW := int64(td.Width) - srcXStart
	if remain := int64(w) - dstXStart; remain < copyW {
		copyW = remain
	}
	copyH := int64(td.Height) - srcYStart
	if remain := int64(h) - dstYStart; remain < copyH {
		copyH = remain
	}
	if copyW <= 0 || copyH <= 0 {
		return
	}

	for row := int64(0); row < copyH; row++ {
		srcRowOff := (srcYStart + row) * int64(td.Width) * 3
		dstRowOff := (dstYStart + row) * int64(w) * 3
		srcOff := srcRowOff + srcXStart*3
		dstOff := dstRowOff + dstXStart*3
		copy(out[dstOff:dstOff+copyW*3], td.RGB[srcOff:srcOff+copyW*3])
	}
}

// floorDiv is integer division rounding toward negative infinity, needed
// because Go's / truncates toward zero and x, y may be negative.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
