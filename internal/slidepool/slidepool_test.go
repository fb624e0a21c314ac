package slidepool

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashIDStableAndCaseInsensitive(t *testing.T) {
	dir := t.TempDir()

	id1, canon1, err := HashID(dir)
	if err != nil {
		t.Fatalf("HashID: %v", err)
	}
	id2, canon2, err := HashID(strings.ToUpper(dir))
	if err != nil {
		t.Fatalf("HashID: %v", err)
	}

	if id1 != id2 {
		t.Errorf("HashID differs by case: %d vs %d", id1, id2)
	}
	if canon1 != canon2 {
		t.Errorf("canonical differs by case: %q vs %q", canon1, canon2)
	}
}

func TestHashIDDifferentPaths(t *testing.T) {
	d1, d2 := t.TempDir(), t.TempDir()
	id1, _, _ := HashID(d1)
	id2, _, _ := HashID(d2)
	if id1 == id2 {
		t.Error("different paths hashed to the same slide id")
	}
}

func writeTestSlide(t *testing.T, dir string) {
	t.Helper()
	meta := `{"dimensions":[256,256],"tile_size":256,"levels":[{"level":0,"downsample":1,"cols":1,"rows":1}]}`
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}
	tilesDir := filepath.Join(dir, "tiles")
	if err := os.MkdirAll(tilesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	idx := make([]byte, 16+12)
	copy(idx[0:8], "FPLIDX1\x00")
	idx[8] = 1 // version, little endian, low byte only (fits in 1 byte)
	idx[12] = 1
	idx[14] = 1
	if err := os.WriteFile(filepath.Join(tilesDir, "level_0.idx"), idx, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tilesDir, "level_0.pack"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadOrGetInternsOnce(t *testing.T) {
	dir := t.TempDir()
	writeTestSlide(t, dir)

	p := New()
	slideID, _, err := HashID(dir)
	if err != nil {
		t.Fatalf("HashID: %v", err)
	}

	e1, err := p.LoadOrGet(slideID, dir)
	if err != nil {
		t.Fatalf("LoadOrGet: %v", err)
	}
	e2, err := p.LoadOrGet(slideID, dir)
	if err != nil {
		t.Fatalf("LoadOrGet (second): %v", err)
	}
	if e1 != e2 {
		t.Error("LoadOrGet returned distinct entries for the same slide id")
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}

	if _, ok := p.Get(slideID); !ok {
		t.Error("Get after LoadOrGet = false, want true")
	}
}

func TestLoadOrGetMissingMetadata(t *testing.T) {
	dir := t.TempDir()
	p := New()
	slideID, _, _ := HashID(dir)
	if _, err := p.LoadOrGet(slideID, dir); err == nil {
		t.Error("LoadOrGet on a directory with no metadata.json succeeded, want error")
	}
}
