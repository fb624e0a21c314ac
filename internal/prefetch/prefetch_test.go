package prefetch

import (
	"testing"

	"github.com/fastpathlabs/wsitiles/internal/tilekey"
)

func testMeta() *tilekey.SlideMetadata {
	return &tilekey.SlideMetadata{
		Width: 4096, Height: 4096, TileSize: 256,
		Levels: []tilekey.LevelInfo{
			{Level: 0, Downsample: 1, Cols: 16, Rows: 16},
			{Level: 1, Downsample: 2, Cols: 8, Rows: 8},
			{Level: 2, Downsample: 4, Cols: 4, Rows: 4},
		},
	}
}

func TestLevelForScale(t *testing.T) {
	meta := testMeta()
	tests := []struct {
		name  string
		scale float64
		want  uint32
	}{
		{"full res", 1.0, 0},
		{"half res picks downsample-2 level", 0.5, 1},
		{"quarter res picks downsample-4 level", 0.25, 2},
		{"very zoomed out caps at coarsest level", 0.01, 2},
		{"zero scale defensive default", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LevelForScale(meta, tt.scale); got != tt.want {
				t.Errorf("LevelForScale(scale=%v) = %d, want %d", tt.scale, got, tt.want)
			}
		})
	}
}

func TestPlanVisibleTilesCoverViewport(t *testing.T) {
	meta := testMeta()
	p := New(DefaultConfig())

	vp := Viewport{X: 0, Y: 0, W: 512, H: 512, Scale: 1.0}
	plan := p.Plan(meta, vp, func(tilekey.TileCoord) bool { return false })

	if len(plan.Visible) == 0 {
		t.Fatal("Visible is empty, want tiles covering [0,512)x[0,512) at level 0")
	}
	for _, c := range plan.Visible {
		if c.Level != 0 {
			t.Errorf("visible tile at unexpected level %d", c.Level)
		}
		if c.Col > 1 || c.Row > 1 {
			t.Errorf("visible tile %v outside expected 2x2 span for a 512x512 viewport at 256px tiles", c)
		}
	}
}

func TestPlanFiltersCachedTiles(t *testing.T) {
	meta := testMeta()
	p := New(DefaultConfig())

	cachedCoord := tilekey.TileCoord{Level: 0, Col: 0, Row: 0}
	vp := Viewport{X: 0, Y: 0, W: 256, H: 256, Scale: 1.0}
	plan := p.Plan(meta, vp, func(c tilekey.TileCoord) bool { return c == cachedCoord })

	for _, c := range plan.All() {
		if c == cachedCoord {
			t.Errorf("plan includes already-cached tile %v", c)
		}
	}
}

func TestPlanDeduplicatesAcrossTiers(t *testing.T) {
	meta := testMeta()
	cfg := DefaultConfig()
	cfg.TilesAround = 0 // ring degenerates to the visible rect itself
	p := New(cfg)

	vp := Viewport{X: 0, Y: 0, W: 256, H: 256, Scale: 1.0}
	plan := p.Plan(meta, vp, func(tilekey.TileCoord) bool { return false })

	seen := make(map[tilekey.TileCoord]int)
	for _, c := range plan.All() {
		seen[c]++
	}
	for c, n := range seen {
		if n > 1 {
			t.Errorf("tile %v appears %d times across tiers, want at most once", c, n)
		}
	}
}

func TestPlanVelocityBiasExtendsDownstream(t *testing.T) {
	meta := testMeta()
	p := New(DefaultConfig())

	still := Viewport{X: 2048, Y: 2048, W: 256, H: 256, Scale: 1.0}
	moving := Viewport{X: 2048, Y: 2048, W: 256, H: 256, Scale: 1.0, VX: 500}

	planStill := p.Plan(meta, still, func(tilekey.TileCoord) bool { return false })
	planMoving := p.Plan(meta, moving, func(tilekey.TileCoord) bool { return false })

	if len(planMoving.Extended) <= len(planStill.Extended) {
		t.Errorf("moving extended tiles (%d) not greater than still (%d)",
			len(planMoving.Extended), len(planStill.Extended))
	}
}

func TestLowResLevelTiles(t *testing.T) {
	meta := &tilekey.SlideMetadata{
		TileSize: 256,
		Levels: []tilekey.LevelInfo{
			{Level: 0, Downsample: 1, Cols: 16, Rows: 16}, // 256 cells, excluded
			{Level: 1, Downsample: 16, Cols: 4, Rows: 4},  // 16 cells, included
		},
	}
	tiles := LowResLevelTiles(meta)
	if len(tiles) != 16 {
		t.Fatalf("len(tiles) = %d, want 16", len(tiles))
	}
	for _, c := range tiles {
		if c.Level != 1 {
			t.Errorf("unexpected tile from excluded level: %v", c)
		}
	}
}
