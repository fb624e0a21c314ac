package container

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LevelSpec describes one level's grid size to pack.
type LevelSpec struct {
	Level      uint32
	Cols, Rows uint32
}

// Pack reads JPEG tiles from sourceDir (the tiles_files directory itself,
// laid out as {level}/{col}_{row}.jpg or .jpeg) and writes the pack+idx pair
// for each level under outputDir/tiles/. Levels are packed in parallel.
//
// Pack creation atomicity is not guaranteed across levels or within a level
// if the process is interrupted; callers that need atomic publication should
// pack into a scratch directory and rename it into place once Pack returns
// successfully (the scratch-dir convention spec.md documents as the caller's
// responsibility).
func Pack(outputDir, sourceDir string, levels []LevelSpec) error {
	tilesOut := filepath.Join(outputDir, "tiles")
	if err := os.MkdirAll(tilesOut, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", tilesOut, err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(levels))
	for _, spec := range levels {
		wg.Add(1)
		go func(spec LevelSpec) {
			defer wg.Done()
			if err := packLevel(tilesOut, sourceDir, spec); err != nil {
				errCh <- fmt.Errorf("level %d: %w", spec.Level, err)
			}
		}(spec)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// packLevel writes the pack file sequentially in row-major grid order, then
// writes the index only after every tile payload (or zero-length gap) has
// been appended. This ordering means a crash mid-level leaves, at worst, a
// pack file with no matching idx — Open() will simply not see that level
// rather than reading a half-written index against a truncated pack.
func packLevel(tilesOut, sourceDir string, spec LevelSpec) error {
	packPath := filepath.Join(tilesOut, fmt.Sprintf("level_%d.pack", spec.Level))
	idxPath := filepath.Join(tilesOut, fmt.Sprintf("level_%d.idx", spec.Level))

	pack, err := os.Create(packPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", packPath, err)
	}
	defer pack.Close()

	n := int(spec.Cols) * int(spec.Rows)
	entries := make([]IndexEntry, n)
	var offset uint64

	for row := uint32(0); row < spec.Rows; row++ {
		for col := uint32(0); col < spec.Cols; col++ {
			idx := row*spec.Cols + col
			data, found := readSourceTile(sourceDir, spec.Level, col, row)
			if !found {
				entries[idx] = IndexEntry{Offset: offset, Length: 0}
				continue
			}
			if _, err := pack.Write(data); err != nil {
				return fmt.Errorf("writing tile %d/%d_%d: %w", spec.Level, col, row, err)
			}
			entries[idx] = IndexEntry{Offset: offset, Length: uint32(len(data))}
			offset += uint64(len(data))
		}
	}

	if err := pack.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", packPath, err)
	}

	return writeIndex(idxPath, spec.Cols, spec.Rows, entries)
}

func readSourceTile(sourceDir string, level, col, row uint32) ([]byte, bool) {
	for _, ext := range [...]string{".jpg", ".jpeg"} {
		p := filepath.Join(sourceDir, fmt.Sprintf("%d", level), fmt.Sprintf("%d_%d%s", col, row, ext))
		if data, err := os.ReadFile(p); err == nil {
			return data, true
		}
	}
	return nil, false
}

func writeIndex(path string, cols, rows uint32, entries []IndexEntry) error {
	buf := make([]byte, idxHeaderSize+len(entries)*idxEntrySize)
	copy(buf[0:8], idxMagic)
	binary.LittleEndian.PutUint32(buf[8:12], idxVersion)
	binary.LittleEndian.PutUint16(buf[12:14], uint16(cols))
	binary.LittleEndian.PutUint16(buf[14:16], uint16(rows))

	off := idxHeaderSize
	for _, e := range entries {
		binary.LittleEndian.PutUint64(buf[off:off+8], e.Offset)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], e.Length)
		off += idxEntrySize
	}

	return os.WriteFile(path, buf, 0o644)
}
