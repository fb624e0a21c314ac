package scheduler

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fastpathlabs/wsitiles/internal/decode"
	"github.com/fastpathlabs/wsitiles/internal/prefetch"
	"github.com/fastpathlabs/wsitiles/internal/tilekey"
)

// GetTile is the foreground, blocking tile fetch (spec §4.6 get_tile): L1,
// then L2 (decoding and promoting to L1), then the container (decoding,
// populating L2, then L1). It never consults the in-flight set; a
// foreground caller always does its own work rather than waiting on a
// prefetch worker.
func (s *Scheduler) GetTile(coord tilekey.TileCoord) (*decode.TileData, bool) {
	t := startTiming()

	if td, ok := s.l1.Get(coord); ok {
		t.log(coord, "l1")
		return td, true
	}

	slideID := s.activeSlideID.Load()
	l2key := tilekey.SlideTileCoord{SlideID: slideID, Level: coord.Level, Col: coord.Col, Row: coord.Row}

	if slideID != 0 {
		l2Start := time.Now()
		cd, ok := s.l2.Get(l2key)
		t.l2Op += time.Since(l2Start)
		if ok {
			decStart := time.Now()
			td, err := decode.Decode(cd.JPEG)
			t.decodeOp += time.Since(decStart)
			if err == nil {
				s.l1.Insert(coord, td)
				t.log(coord, "l2")
				return td, true
			}
			s.logTileError(coord, err)
		}
	}

	entry, ok := s.currentEntry()
	if !ok {
		t.log(coord, "miss")
		return nil, false
	}
	if _, ok := entry.Container.Lookup(coord.Level, coord.Col, coord.Row); !ok {
		t.log(coord, "miss")
		return nil, false
	}

	packStart := time.Now()
	raw, err := entry.Container.Read(coord.Level, coord.Col, coord.Row)
	t.packRead += time.Since(packStart)
	if err != nil {
		s.logTileError(coord, err)
		t.log(coord, "error")
		return nil, false
	}

	if slideID != 0 {
		w, h, _ := decode.Probe(raw)
		s.l2.Insert(l2key, &decode.CompressedTileData{JPEG: raw, Width: w, Height: h})
	}

	decStart := time.Now()
	td, err := decode.Decode(raw)
	t.decodeOp += time.Since(decStart)
	if err != nil {
		s.logTileError(coord, err)
		t.log(coord, "error")
		return nil, false
	}
	s.l1.Insert(coord, td)
	t.log(coord, "pack")
	return td, true
}

// GetTileJPEG returns the still-compressed tile, for callers (e.g. an HTTP
// tile server) that forward bytes to the client without decoding. It
// populates L2 on a container read but never touches L1.
func (s *Scheduler) GetTileJPEG(coord tilekey.TileCoord) ([]byte, bool) {
	slideID := s.activeSlideID.Load()
	if slideID != 0 {
		l2key := tilekey.SlideTileCoord{SlideID: slideID, Level: coord.Level, Col: coord.Col, Row: coord.Row}
		if cd, ok := s.l2.Get(l2key); ok {
			return cd.JPEG, true
		}
	}

	entry, ok := s.currentEntry()
	if !ok {
		return nil, false
	}
	if _, ok := entry.Container.Lookup(coord.Level, coord.Col, coord.Row); !ok {
		return nil, false
	}
	raw, err := entry.Container.Read(coord.Level, coord.Col, coord.Row)
	if err != nil {
		s.logTileError(coord, err)
		return nil, false
	}
	if slideID != 0 {
		w, h, _ := decode.Probe(raw)
		s.l2.Insert(tilekey.SlideTileCoord{SlideID: slideID, Level: coord.Level, Col: coord.Col, Row: coord.Row},
			&decode.CompressedTileData{JPEG: raw, Width: w, Height: h})
	}
	return raw, true
}

// UpdateViewport plans a prefetch batch for the given viewport and dispatches
// it in the background. It never blocks the caller: the plan itself is
// computed synchronously (cheap, pure arithmetic), but all tile loading
// happens on a detached goroutine.
func (s *Scheduler) UpdateViewport(vp prefetch.Viewport) {
	gen := s.generation.Load()
	entry, ok := s.currentEntry()
	if !ok {
		return
	}

	plan := s.planner.Plan(entry.Metadata, vp, s.isCached)

	visible := plan.Visible
	if len(visible) > MaxVisibleTiles {
		visible = visible[:MaxVisibleTiles]
	}
	extended := plan.Extended
	if len(extended) > ExtendedTileBudget {
		extended = extended[:ExtendedTileBudget]
	}

	coords := make([]tilekey.TileCoord, 0, len(visible)+len(extended))
	coords = append(coords, visible...)
	coords = append(coords, extended...)
	if len(coords) == 0 {
		return
	}

	go s.dispatchPrefetch(coords, gen)
}

// PrefetchLowResLevels dispatches a background load of every tile in levels
// small enough to load wholesale (spec §4.6 prefetch_low_res_levels),
// typically called once right after Load so the overview thumbnail levels
// are warm before the viewer's first paint.
func (s *Scheduler) PrefetchLowResLevels() {
	gen := s.generation.Load()
	entry, ok := s.currentEntry()
	if !ok {
		return
	}
	coords := prefetch.LowResLevelTiles(entry.Metadata)
	if len(coords) == 0 {
		return
	}
	go s.dispatchPrefetch(coords, gen)
}

// dispatchPrefetch loads coords concurrently, bounded by prefetchConcurrency,
// and logs a one-line summary when the batch completes. Runs off the
// caller's goroutine; never returns a value for anyone to wait on.
func (s *Scheduler) dispatchPrefetch(coords []tilekey.TileCoord, gen uint64) {
	var g errgroup.Group
	g.SetLimit(prefetchConcurrency)

	var loaded, failed atomic.Int64
	for _, c := range coords {
		c := c
		g.Go(func() error {
			if s.loadTileForPrefetch(c, gen) {
				loaded.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	log.Printf("[PREFETCH] %d loaded, %d failed", loaded.Load(), failed.Load())
}

// loadTileForPrefetch is the background counterpart to GetTile used by
// dispatchPrefetch. Duplicate concurrent requests for the same (coord,
// generation) pair are coalesced through the scheduler's singleflight
// group, so only one decode ever happens per generation per coordinate; the
// generation itself scopes membership, so a slide switch (which bumps
// generation) makes stale in-flight keys simply unreachable rather than
// requiring an explicit clear.
func (s *Scheduler) loadTileForPrefetch(coord tilekey.TileCoord, batchGeneration uint64) bool {
	if s.generation.Load() != batchGeneration {
		return false
	}

	key := fmt.Sprintf("%d|%d|%d|%d", batchGeneration, coord.Level, coord.Col, coord.Row)
	v, _, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.loadTileForPrefetchOnce(coord, batchGeneration), nil
	})
	ok, _ := v.(bool)
	return ok
}

func (s *Scheduler) loadTileForPrefetchOnce(coord tilekey.TileCoord, batchGeneration uint64) bool {
	slideID := s.activeSlideID.Load()
	if slideID == 0 {
		return false
	}
	l2key := tilekey.SlideTileCoord{SlideID: slideID, Level: coord.Level, Col: coord.Col, Row: coord.Row}

	if cd, ok := s.l2.Get(l2key); ok {
		if s.generation.Load() != batchGeneration {
			return false
		}
		td, err := decode.Decode(cd.JPEG)
		if err != nil {
			s.logTileError(coord, err)
			return false
		}
		if s.generation.Load() != batchGeneration {
			return false
		}
		s.l1.Insert(coord, td)
		return true
	}

	if s.generation.Load() != batchGeneration {
		return false
	}

	entry, ok := s.currentEntry()
	if !ok {
		return false
	}
	if _, ok := entry.Container.Lookup(coord.Level, coord.Col, coord.Row); !ok {
		return false
	}
	raw, err := entry.Container.Read(coord.Level, coord.Col, coord.Row)
	if err != nil {
		s.logTileError(coord, err)
		return false
	}

	if s.activeSlideID.Load() == slideID {
		w, h, _ := decode.Probe(raw)
		s.l2.Insert(l2key, &decode.CompressedTileData{JPEG: raw, Width: w, Height: h})
	}

	td, err := decode.Decode(raw)
	if err != nil {
		s.logTileError(coord, err)
		return false
	}

	if s.generation.Load() != batchGeneration {
		return false
	}
	s.l1.Insert(coord, td)
	return true
}
