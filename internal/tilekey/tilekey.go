// Package tilekey holds the core value types shared across the scheduler,
// cache, and container packages: tile coordinates and slide pyramid metadata.
package tilekey

import "fmt"

// TileCoord identifies a tile within a single slide's pyramid. It is a value
// type used as a hash key; total order is not required.
type TileCoord struct {
	Level uint32
	Col   uint32
	Row   uint32
}

func (c TileCoord) String() string {
	return fmt.Sprintf("%d/%d_%d", c.Level, c.Col, c.Row)
}

// SlideTileCoord disambiguates tiles from different slides sharing the L2
// cache. SlideID 0 means "no slide loaded" and must never appear as an L2
// key component (the scheduler skips L2 while no slide is loaded).
type SlideTileCoord struct {
	SlideID uint64
	Level   uint32
	Col     uint32
	Row     uint32
}

func (c SlideTileCoord) String() string {
	return fmt.Sprintf("%d:%d/%d_%d", c.SlideID, c.Level, c.Col, c.Row)
}

// LevelInfo describes one resolution level of a slide pyramid.
type LevelInfo struct {
	Level      uint32
	Downsample uint32 // >= 1
	Cols       uint32 // >= 1
	Rows       uint32 // >= 1
}

// SlideMetadata is the validated description of a slide pyramid, loaded by
// the metadata package from metadata.json.
type SlideMetadata struct {
	Width, Height       uint32
	TileSize            uint32
	Levels              []LevelInfo // sorted by Level ascending, unique Level values
	TargetMPP           float64
	TargetMagnification float64
}

// LevelByNumber returns the LevelInfo for a given level number, or false if
// the slide has no such level.
func (m *SlideMetadata) LevelByNumber(level uint32) (LevelInfo, bool) {
	for _, l := range m.Levels {
		if l.Level == level {
			return l, true
		}
	}
	return LevelInfo{}, false
}
