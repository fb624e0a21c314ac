// Package metadata loads and validates a slide's metadata.json.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fastpathlabs/wsitiles/internal/tilekey"
)

// ValidationError names the failing field, matching spec §7's
// Validation(message) error kind.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("metadata: %s: %s", e.Field, e.Msg)
}

// rawLevel mirrors the JSON shape of one entry in "levels".
type rawLevel struct {
	Level      uint32 `json:"level"`
	Downsample uint32 `json:"downsample"`
	Cols       uint32 `json:"cols"`
	Rows       uint32 `json:"rows"`
}

// raw mirrors metadata.json's schema. TileFormat and SourceFile are accepted
// but ignored by the core (spec §6).
type raw struct {
	Dimensions          [2]uint32  `json:"dimensions"`
	TileSize            uint32     `json:"tile_size"`
	Levels              []rawLevel `json:"levels"`
	TargetMPP           float64    `json:"target_mpp"`
	TargetMagnification float64    `json:"target_magnification"`
	TileFormat          string     `json:"tile_format,omitempty"`
	SourceFile          string     `json:"source_file,omitempty"`
}

// Load reads and validates metadata.json at the given path.
func Load(path string) (*tilekey.SlideMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw JSON bytes per spec §3's constraints and returns a
// normalized SlideMetadata with levels sorted ascending by Level.
func Parse(data []byte) (*tilekey.SlideMetadata, error) {
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &ValidationError{Field: "json", Msg: err.Error()}
	}

	if r.Dimensions[0] == 0 || r.Dimensions[1] == 0 {
		return nil, &ValidationError{Field: "dimensions", Msg: "both dimensions must be >= 1"}
	}
	if r.TileSize == 0 {
		return nil, &ValidationError{Field: "tile_size", Msg: "must be >= 1"}
	}
	if len(r.Levels) == 0 {
		return nil, &ValidationError{Field: "levels", Msg: "must contain at least one level"}
	}

	seen := make(map[uint32]bool, len(r.Levels))
	levels := make([]tilekey.LevelInfo, 0, len(r.Levels))
	for _, rl := range r.Levels {
		if rl.Downsample == 0 {
			return nil, &ValidationError{Field: "levels.downsample", Msg: fmt.Sprintf("level %d: downsample must be >= 1", rl.Level)}
		}
		if rl.Cols == 0 || rl.Rows == 0 {
			return nil, &ValidationError{Field: "levels.cols/rows", Msg: fmt.Sprintf("level %d: cols and rows must be >= 1", rl.Level)}
		}
		if seen[rl.Level] {
			return nil, &ValidationError{Field: "levels.level", Msg: fmt.Sprintf("duplicate level number %d", rl.Level)}
		}
		seen[rl.Level] = true
		levels = append(levels, tilekey.LevelInfo{
			Level:      rl.Level,
			Downsample: rl.Downsample,
			Cols:       rl.Cols,
			Rows:       rl.Rows,
		})
	}

	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

	return &tilekey.SlideMetadata{
		Width:               r.Dimensions[0],
		Height:              r.Dimensions[1],
		TileSize:            r.TileSize,
		Levels:              levels,
		TargetMPP:           r.TargetMPP,
		TargetMagnification: r.TargetMagnification,
	}, nil
}
