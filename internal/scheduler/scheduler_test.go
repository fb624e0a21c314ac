package scheduler

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fastpathlabs/wsitiles/internal/container"
	"github.com/fastpathlabs/wsitiles/internal/prefetch"
	"github.com/fastpathlabs/wsitiles/internal/tilekey"
)

func solidJPEG(t *testing.T, size int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func buildTestSlide(t *testing.T, cols, rows uint32, tileSize int) string {
	t.Helper()
	slideDir := t.TempDir()
	srcDir := t.TempDir()

	level0 := filepath.Join(srcDir, "0")
	if err := os.MkdirAll(level0, 0o755); err != nil {
		t.Fatal(err)
	}
	for row := uint32(0); row < rows; row++ {
		for col := uint32(0); col < cols; col++ {
			data := solidJPEG(t, tileSize, color.RGBA{R: 10, G: 20, B: 30, A: 255})
			p := filepath.Join(level0, itoa(int(col))+"_"+itoa(int(row))+".jpg")
			if err := os.WriteFile(p, data, 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}

	meta := `{"dimensions":[` + itoa(int(cols)*tileSize) + `,` + itoa(int(rows)*tileSize) +
		`],"tile_size":` + itoa(tileSize) + `,"levels":[{"level":0,"downsample":1,"cols":` +
		itoa(int(cols)) + `,"rows":` + itoa(int(rows)) + `}]}`
	if err := os.WriteFile(filepath.Join(slideDir, "metadata.json"), []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := container.Pack(slideDir, srcDir, []container.LevelSpec{{Level: 0, Cols: cols, Rows: rows}}); err != nil {
		t.Fatal(err)
	}
	return slideDir
}

func TestGetTilePopulatesBothCaches(t *testing.T) {
	slideDir := buildTestSlide(t, 2, 2, 8)
	s, err := New(16, 16, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()

	if err := s.Load(slideDir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer s.Close()

	td, ok := s.GetTile(tilekey.TileCoord{Level: 0, Col: 0, Row: 0})
	if !ok {
		t.Fatal("GetTile = false, want true")
	}
	if td.Width != 8 || td.Height != 8 {
		t.Errorf("dims = %dx%d, want 8x8", td.Width, td.Height)
	}

	stats := s.CacheStats()
	if stats.L1.NumTiles == 0 && stats.L1.Misses == 0 {
		t.Error("expected L1 to register the miss-then-insert")
	}

	// Second call should hit L1.
	if _, ok := s.GetTile(tilekey.TileCoord{Level: 0, Col: 0, Row: 0}); !ok {
		t.Fatal("second GetTile = false, want true")
	}
}

func TestGetTileMissingCoordinate(t *testing.T) {
	slideDir := buildTestSlide(t, 1, 1, 8)
	s, err := New(16, 16, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()
	if err := s.Load(slideDir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer s.Close()

	if _, ok := s.GetTile(tilekey.TileCoord{Level: 0, Col: 5, Row: 5}); ok {
		t.Error("GetTile for out-of-grid coordinate = true, want false")
	}
}

func TestLoadBumpsGenerationAndClearsL1(t *testing.T) {
	slideA := buildTestSlide(t, 1, 1, 8)
	slideB := buildTestSlide(t, 1, 1, 8)

	s, err := New(16, 16, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()

	if err := s.Load(slideA); err != nil {
		t.Fatalf("Load(A): %v", err)
	}
	if _, ok := s.GetTile(tilekey.TileCoord{Level: 0, Col: 0, Row: 0}); !ok {
		t.Fatal("GetTile on slide A failed")
	}
	genAfterA := s.generation.Load()

	if err := s.Load(slideB); err != nil {
		t.Fatalf("Load(B): %v", err)
	}
	genAfterB := s.generation.Load()
	if genAfterB == genAfterA {
		t.Error("generation did not change across Load")
	}

	stats := s.CacheStats()
	if stats.L1.NumTiles != 0 {
		t.Errorf("L1 not cleared across Load: NumTiles=%d", stats.L1.NumTiles)
	}
}

func TestFilterCachedTiles(t *testing.T) {
	slideDir := buildTestSlide(t, 2, 2, 8)
	s, err := New(16, 16, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()
	if err := s.Load(slideDir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer s.Close()

	cached := tilekey.TileCoord{Level: 0, Col: 0, Row: 0}
	uncached := tilekey.TileCoord{Level: 0, Col: 1, Row: 1}
	if _, ok := s.GetTile(cached); !ok {
		t.Fatal("GetTile(cached) failed")
	}

	out := s.FilterCachedTiles([]tilekey.TileCoord{cached, uncached})
	if len(out) != 1 || out[0] != cached {
		t.Errorf("FilterCachedTiles = %v, want only %v", out, cached)
	}
}

func TestUpdateViewportLoadsTilesInBackground(t *testing.T) {
	slideDir := buildTestSlide(t, 4, 4, 8)
	s, err := New(16, 16, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()
	if err := s.Load(slideDir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer s.Close()

	s.UpdateViewport(prefetch.Viewport{X: 0, Y: 0, W: 16, H: 16, Scale: 1.0})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.isCached(tilekey.TileCoord{Level: 0, Col: 0, Row: 0}) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("prefetched tile never became cached")
}

func TestPrefetchLowResLevels(t *testing.T) {
	slideDir := buildTestSlide(t, 2, 2, 8)
	s, err := New(16, 16, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()
	if err := s.Load(slideDir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer s.Close()

	s.PrefetchLowResLevels()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.isCached(tilekey.TileCoord{Level: 0, Col: 0, Row: 0}) &&
			s.isCached(tilekey.TileCoord{Level: 0, Col: 1, Row: 1}) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("low-res levels never fully cached")
}

func TestBulkPreloadLifecycle(t *testing.T) {
	slideDir := buildTestSlide(t, 2, 2, 8)
	s, err := New(16, 16, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()

	if s.IsBulkPreloading() {
		t.Fatal("IsBulkPreloading before Start = true")
	}
	s.StartBulkPreload([]string{slideDir})

	deadline := time.Now().Add(2 * time.Second)
	for s.IsBulkPreloading() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.IsBulkPreloading() {
		t.Fatal("bulk preload still running after deadline")
	}
}
