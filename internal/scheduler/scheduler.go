// Package scheduler implements the tile scheduler (spec §4.6, C6): the
// single point of contact between a viewer and the cache/slidepool/prefetch
// layers. It owns the current-slide slot, the generation counter that
// invalidates in-flight background work across a slide switch, and the
// fire-and-forget dispatch of prefetch batches.
package scheduler

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fastpathlabs/wsitiles/internal/bulkpreload"
	"github.com/fastpathlabs/wsitiles/internal/cache"
	"github.com/fastpathlabs/wsitiles/internal/decode"
	"github.com/fastpathlabs/wsitiles/internal/prefetch"
	"github.com/fastpathlabs/wsitiles/internal/slidepool"
	"github.com/fastpathlabs/wsitiles/internal/tilekey"
)

// Admission caps for a single prefetch dispatch (spec §4.6): the visible
// tier and the extended/adjacent-level tier are capped independently so a
// fast pan never starves visible tiles behind a long extended tail.
const (
	MaxVisibleTiles    = 256
	ExtendedTileBudget = 32

	// prefetchConcurrency bounds how many tile loads a single dispatch runs
	// at once, since prefetch competes with interactive get_tile calls for
	// I/O and CPU.
	prefetchConcurrency = 8
)

var timingEnabled = func() bool {
	v, _ := strconv.ParseBool(os.Getenv("WSI_TILE_TIMING"))
	return v
}()

type l1Cache = cache.Cache[tilekey.TileCoord, *decode.TileData]
type l2Cache = cache.Cache[tilekey.SlideTileCoord, *decode.CompressedTileData]

// CacheStats bundles both cache levels' snapshots for reporting.
type CacheStats struct {
	L1 cache.Stats
	L2 cache.Stats
}

// Scheduler is the viewer-facing coordinator over the two-level cache, the
// slide pool, the prefetch planner, and the bulk preloader.
type Scheduler struct {
	l1 *l1Cache
	l2 *l2Cache

	pool    *slidepool.Pool
	planner *prefetch.Planner
	bulk    *bulkpreload.Preloader

	// slotMu guards the current-slide slot. Reads (currentEntry) take the
	// read lock; Load/Close take the write lock and bump generation under
	// it so no reader can observe a stale entry paired with a new
	// generation.
	slotMu        sync.RWMutex
	current       *slidepool.Entry
	activeSlideID atomic.Uint64
	generation    atomic.Uint64

	sf singleflight.Group
}

// New creates a scheduler with L1/L2 capacities in megabytes. prefetchDistance
// overrides the planner's tiles-ahead default when > 0.
func New(l1MB, l2MB, prefetchDistance int) (*Scheduler, error) {
	l1, err := cache.New[tilekey.TileCoord, *decode.TileData](int64(l1MB) * 1024 * 1024)
	if err != nil {
		return nil, fmt.Errorf("creating L1 cache: %w", err)
	}
	l2, err := cache.New[tilekey.SlideTileCoord, *decode.CompressedTileData](int64(l2MB) * 1024 * 1024)
	if err != nil {
		return nil, fmt.Errorf("creating L2 cache: %w", err)
	}

	cfg := prefetch.DefaultConfig()
	if prefetchDistance > 0 {
		cfg.TilesAhead = prefetchDistance
	}

	pool := slidepool.New()
	s := &Scheduler{
		l1:      l1,
		l2:      l2,
		pool:    pool,
		planner: prefetch.New(cfg),
		bulk:    bulkpreload.New(pool, l2, bulkpreload.DefaultWorkers),
	}
	return s, nil
}

// Load interns slidePath (or reuses it if already interned), bumps the
// generation counter, clears L1 (decoded tiles are slide-specific and
// useless after a switch; L2 is keyed by slide id and can stay warm), and
// installs it as the current slide.
func (s *Scheduler) Load(slidePath string) error {
	slideID, _, err := slidepool.HashID(slidePath)
	if err != nil {
		return err
	}
	entry, err := s.pool.LoadOrGet(slideID, slidePath)
	if err != nil {
		return err
	}

	s.slotMu.Lock()
	defer s.slotMu.Unlock()

	s.generation.Add(1)
	s.l1.Clear()
	s.current = entry
	s.activeSlideID.Store(slideID)
	return nil
}

// Close clears the current-slide slot. L2 entries for the slide remain
// cached under the pool's retained entry in case the same slide is loaded
// again.
func (s *Scheduler) Close() {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()

	s.generation.Add(1)
	s.l1.Clear()
	s.current = nil
	s.activeSlideID.Store(0)
}

// Shutdown releases background goroutines held by the caches and joins any
// in-flight bulk preload. Call once, when the scheduler itself is being torn
// down.
func (s *Scheduler) Shutdown() {
	s.bulk.Close()
	s.l1.Close()
	s.l2.Close()
}

func (s *Scheduler) currentEntry() (*slidepool.Entry, bool) {
	s.slotMu.RLock()
	defer s.slotMu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	return s.current, true
}

// CacheStats returns a snapshot of both cache levels.
func (s *Scheduler) CacheStats() CacheStats {
	return CacheStats{L1: s.l1.Stats(), L2: s.l2.Stats()}
}

// ResetCacheStats zeroes both levels' hit/miss counters.
func (s *Scheduler) ResetCacheStats() {
	s.l1.ResetStats()
	s.l2.ResetStats()
}

// IsBulkPreloading reports whether a bulk preload batch is currently running.
func (s *Scheduler) IsBulkPreloading() bool {
	return s.bulk.IsRunning()
}

// StartBulkPreload begins (or restarts) a background fill of L2 across
// slidePaths in priority order.
func (s *Scheduler) StartBulkPreload(slidePaths []string) {
	s.bulk.Start(slidePaths)
}

// CancelBulkPreload cancels and joins any running bulk preload.
func (s *Scheduler) CancelBulkPreload() {
	s.bulk.Cancel()
}

func (s *Scheduler) logTileError(coord tilekey.TileCoord, err error) {
	log.Printf("[TILE ERROR] %d/%d_%d: %v", coord.Level, coord.Col, coord.Row, err)
}

// isCached reports whether coord is resident in L1 or, for the active
// slide, L2. Used both by filter_cached_tiles and by the planner's own
// cached-tile filtering during Plan.
func (s *Scheduler) isCached(coord tilekey.TileCoord) bool {
	if s.l1.Contains(coord) {
		return true
	}
	slideID := s.activeSlideID.Load()
	if slideID == 0 {
		return false
	}
	return s.l2.Contains(tilekey.SlideTileCoord{SlideID: slideID, Level: coord.Level, Col: coord.Col, Row: coord.Row})
}

// FilterCachedTiles returns the subset of coords already resident in either
// cache level, letting a caller skip scheduling redundant loads.
func (s *Scheduler) FilterCachedTiles(coords []tilekey.TileCoord) []tilekey.TileCoord {
	var out []tilekey.TileCoord
	for _, c := range coords {
		if s.isCached(c) {
			out = append(out, c)
		}
	}
	return out
}

// tileTiming accumulates per-stage durations for one GetTile call, logged
// only when WSI_TILE_TIMING is set.
type tileTiming struct {
	start                     time.Time
	packRead, l2Op, decodeOp time.Duration
}

func startTiming() tileTiming {
	if !timingEnabled {
		return tileTiming{}
	}
	return tileTiming{start: time.Now()}
}

func (t *tileTiming) log(coord tilekey.TileCoord, hit string) {
	if !timingEnabled {
		return
	}
	log.Printf("[TIMING] %d/%d_%d hit=%s pack=%s l2=%s decode=%s total=%s",
		coord.Level, coord.Col, coord.Row, hit,
		t.packRead, t.l2Op, t.decodeOp, time.Since(t.start))
}
