// Package prefetch implements the viewport prefetch planner (spec §4.5, C5):
// enumeration of visible, extended, and adjacent-level tile candidates for a
// given viewport and velocity.
package prefetch

import (
	"math"

	"github.com/fastpathlabs/wsitiles/internal/tilekey"
)

// Viewport describes the UI's current view in slide pixel coordinates at
// the base (level-0) resolution, plus instantaneous velocity in px/s.
type Viewport struct {
	X, Y   float64
	W, H   float64
	Scale  float64
	VX, VY float64
}

// Config holds planner tuning knobs (spec §4.5 defaults).
type Config struct {
	TilesAhead     int
	TilesAround    int
	PrefetchLevels bool
	MinVelocity    float64
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		TilesAhead:     2,
		TilesAround:    1,
		PrefetchLevels: true,
		MinVelocity:    50,
	}
}

// centerBoxFraction sizes the level-below adjacent box to w/4 x h/4 around
// the viewport center (spec §4.5; heuristic, see SPEC_FULL.md Open
// Questions).
const centerBoxFraction = 4

// LevelForScale picks the level with the highest level number whose
// downsample is <= 1/scale, or level 0 if none qualify.
func LevelForScale(meta *tilekey.SlideMetadata, scale float64) uint32 {
	if scale <= 0 {
		return 0
	}
	target := 1 / scale

	var best *tilekey.LevelInfo
	for i := range meta.Levels {
		l := &meta.Levels[i]
		if float64(l.Downsample) <= target {
			if best == nil || l.Level > best.Level {
				best = l
			}
		}
	}
	if best == nil {
		return 0
	}
	return best.Level
}

// Planner enumerates prefetch candidates for a viewport.
type Planner struct {
	cfg Config
}

// New creates a planner with the given config.
func New(cfg Config) *Planner {
	return &Planner{cfg: cfg}
}

// Plan is a prefetch plan split by priority tier, matching spec §4.6's
// admission rule (visible tiles capped separately from extended/adjacent
// tiles).
type Plan struct {
	Visible  []tilekey.TileCoord
	Extended []tilekey.TileCoord // base ring + velocity bias + adjacent levels
}

// All concatenates Visible then Extended, the full priority ordering spec
// §4.5 describes.
func (pl Plan) All() []tilekey.TileCoord {
	out := make([]tilekey.TileCoord, 0, len(pl.Visible)+len(pl.Extended))
	out = append(out, pl.Visible...)
	out = append(out, pl.Extended...)
	return out
}

// Plan returns a deduplicated prefetch plan for a viewport: visible tiles
// first, then the extended ring/velocity-biased tiles, then (if enabled)
// adjacent-level tiles. Tiles for which cached returns true are filtered
// out.
func (p *Planner) Plan(meta *tilekey.SlideMetadata, vp Viewport, cached func(tilekey.TileCoord) bool) Plan {
	level := LevelForScale(meta, vp.Scale)
	levelInfo, ok := meta.LevelByNumber(level)
	if !ok {
		return Plan{}
	}

	seen := make(map[tilekey.TileCoord]bool)
	filter := func(coords []tilekey.TileCoord) []tilekey.TileCoord {
		var out []tilekey.TileCoord
		for _, c := range coords {
			if seen[c] {
				continue
			}
			seen[c] = true
			if cached != nil && cached(c) {
				continue
			}
			out = append(out, c)
		}
		return out
	}

	visible := filter(visibleTiles(levelInfo, meta.TileSize, vp.X, vp.Y, vp.W, vp.H))

	var extended []tilekey.TileCoord
	extended = append(extended, filter(p.extendedTiles(levelInfo, meta.TileSize, vp))...)

	if p.cfg.PrefetchLevels {
		cx := vp.X + vp.W/2
		cy := vp.Y + vp.H/2

		if above, ok := meta.LevelByNumber(level + 1); ok {
			extended = append(extended, filter(visibleTiles(above, meta.TileSize, vp.X, vp.Y, vp.W, vp.H))...)
		}
		if level > 0 {
			if below, ok := meta.LevelByNumber(level - 1); ok {
				bw := vp.W / centerBoxFraction
				bh := vp.H / centerBoxFraction
				extended = append(extended, filter(visibleTiles(below, meta.TileSize, cx-bw/2, cy-bh/2, bw, bh))...)
			}
		}
	}

	return Plan{Visible: visible, Extended: extended}
}

// LowResLevelTiles enumerates every tile coordinate in levels small enough
// that a full pass over them is cheap (cols*rows <= 64), per spec §4.6's
// prefetch_low_res_levels operation.
func LowResLevelTiles(meta *tilekey.SlideMetadata) []tilekey.TileCoord {
	var out []tilekey.TileCoord
	for _, l := range meta.Levels {
		if uint64(l.Cols)*uint64(l.Rows) > 64 {
			continue
		}
		for row := uint32(0); row < l.Rows; row++ {
			for col := uint32(0); col < l.Cols; col++ {
				out = append(out, tilekey.TileCoord{Level: l.Level, Col: col, Row: row})
			}
		}
	}
	return out
}

// tileSpan returns a level tile's footprint in slide (level-0-equivalent)
// coordinates.
func tileSpan(tileSize uint32, l tilekey.LevelInfo) float64 {
	return float64(tileSize) * float64(l.Downsample)
}

// visibleTiles returns the tiles of level l intersecting the rectangle
// [x, x+w) x [y, y+h), clamped to the level's grid.
func visibleTiles(l tilekey.LevelInfo, tileSize uint32, x, y, w, h float64) []tilekey.TileCoord {
	if w <= 0 || h <= 0 {
		return nil
	}
	span := tileSpan(tileSize, l)
	if span <= 0 {
		return nil
	}

	colFirst, colLast := math.Floor(x/span), math.Ceil((x+w)/span)-1
	rowFirst, rowLast := math.Floor(y/span), math.Ceil((y+h)/span)-1
	if colLast < 0 || rowLast < 0 || colFirst >= float64(l.Cols) || rowFirst >= float64(l.Rows) {
		return nil
	}

	colStart := clampCoord(colFirst, l.Cols)
	colEnd := clampCoord(colLast, l.Cols)
	rowStart := clampCoord(rowFirst, l.Rows)
	rowEnd := clampCoord(rowLast, l.Rows)

	if colEnd < colStart || rowEnd < rowStart {
		return nil
	}

	var out []tilekey.TileCoord
	for row := rowStart; row <= rowEnd; row++ {
		for col := colStart; col <= colEnd; col++ {
			out = append(out, tilekey.TileCoord{Level: l.Level, Col: uint32(col), Row: uint32(row)})
		}
	}
	return out
}

// clampCoord clamps a floating-point grid index into [0, limit).
func clampCoord(v float64, limit uint32) int64 {
	if v < 0 {
		return 0
	}
	max := int64(limit) - 1
	iv := int64(v)
	if iv > max {
		return max
	}
	return iv
}

// extendedTiles computes the base ring plus velocity-biased directional
// extension, per spec §4.5: non-moving axes contribute no directional
// extension.
func (p *Planner) extendedTiles(l tilekey.LevelInfo, tileSize uint32, vp Viewport) []tilekey.TileCoord {
	span := tileSpan(tileSize, l)
	ring := float64(p.cfg.TilesAround) * span

	left := vp.X - ring
	top := vp.Y - ring
	right := vp.X + vp.W + ring
	bottom := vp.Y + vp.H + ring

	ahead := float64(p.cfg.TilesAhead) * span
	if math.Abs(vp.VX) >= p.cfg.MinVelocity {
		if vp.VX > 0 {
			right += ahead
		} else {
			left -= ahead
		}
	}
	if math.Abs(vp.VY) >= p.cfg.MinVelocity {
		if vp.VY > 0 {
			bottom += ahead
		} else {
			top -= ahead
		}
	}

	return visibleTiles(l, tileSize, left, top, right-left, bottom-top)
}
