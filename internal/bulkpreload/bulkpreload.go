// Package bulkpreload implements the cross-slide background bulk preloader
// (spec §4.7, C7): fills L2 with tiles from a priority-ordered slide list
// without interfering with interactive prefetch, using its own dedicated
// worker pool.
//
// The coordinator/worker split and cooperative cancellation via a polled
// context mirror the teacher's internal/tile/generator.go worker-pool
// pattern (job fan-out, per-item error counters, a WaitGroup-joined pass per
// unit of work) generalized with golang.org/x/sync/errgroup.
package bulkpreload

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/fastpathlabs/wsitiles/internal/cache"
	"github.com/fastpathlabs/wsitiles/internal/decode"
	"github.com/fastpathlabs/wsitiles/internal/slidepool"
	"github.com/fastpathlabs/wsitiles/internal/tilekey"
)

// DefaultWorkers is the bulk preloader's dedicated pool size (spec §4.7).
const DefaultWorkers = 3

// L2Cache is the compressed-tile cache the preloader fills.
type L2Cache = cache.Cache[tilekey.SlideTileCoord, *decode.CompressedTileData]

// Preloader runs a cancellable background fill of l2 across a list of
// slides, one at a time, in priority order.
type Preloader struct {
	pool    *slidepool.Pool
	l2      *L2Cache
	workers int

	mu      sync.Mutex
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a preloader with the given worker-pool width (0 = DefaultWorkers).
func New(pool *slidepool.Pool, l2 *L2Cache, workers int) *Preloader {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Preloader{pool: pool, l2: l2, workers: workers}
}

// Start cancels and joins any run in progress, then spawns a coordinator
// that iterates paths in order, interning each slide, enumerating its
// tiles across all levels, and filling any not already in L2.
func (p *Preloader) Start(paths []string) {
	p.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.running.Store(true)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		p.run(ctx, paths)
	}()
}

func (p *Preloader) run(ctx context.Context, paths []string) {
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		p.preloadSlide(ctx, path)
	}
}

// preloadSlide fills L2 for one slide. A failure to intern the slide itself
// is logged and skipped; it never aborts the batch. Per-tile failures are
// counted and logged individually.
func (p *Preloader) preloadSlide(ctx context.Context, path string) {
	slideID, _, err := slidepool.HashID(path)
	if err != nil {
		log.Printf("[PRELOAD] slide=%q error=%v", path, err)
		return
	}
	entry, err := p.pool.LoadOrGet(slideID, path)
	if err != nil {
		log.Printf("[PRELOAD] slide=%d error=%v", slideID, err)
		return
	}

	var loaded, skipped, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.workers)

	for _, levelNum := range entry.Container.Levels() {
		if ctx.Err() != nil {
			break
		}
		cols, rows, ok := entry.Container.Dims(levelNum)
		if !ok {
			continue
		}
		for row := uint32(0); row < rows; row++ {
			if ctx.Err() != nil {
				break
			}
			for col := uint32(0); col < cols; col++ {
				levelNum, col, row := levelNum, col, row
				g.Go(func() error {
					if ctx.Err() != nil {
						return nil
					}
					key := tilekey.SlideTileCoord{SlideID: slideID, Level: levelNum, Col: col, Row: row}
					if p.l2.Contains(key) {
						skipped.Add(1)
						return nil
					}
					if _, ok := entry.Container.Lookup(levelNum, col, row); !ok {
						return nil
					}
					raw, err := entry.Container.Read(levelNum, col, row)
					if err != nil {
						log.Printf("[TILE ERROR] %d/%d_%d: %v", levelNum, col, row, err)
						failed.Add(1)
						return nil
					}
					w, h, _ := decode.Probe(raw)
					p.l2.Insert(key, &decode.CompressedTileData{JPEG: raw, Width: w, Height: h})
					loaded.Add(1)
					return nil
				})
			}
		}
	}
	g.Wait()

	log.Printf("[PRELOAD] slide=%d loaded=%d skipped=%d failed=%d", slideID, loaded.Load(), skipped.Load(), failed.Load())
}

// Cancel sets the cancellation flag and joins the coordinator. Safe to call
// when no run is active.
func (p *Preloader) Cancel() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// IsRunning reflects the coordinator's liveness.
func (p *Preloader) IsRunning() bool {
	return p.running.Load()
}

// Close cancels and joins cleanly, matching the teacher's Drop-equivalent
// cleanup convention.
func (p *Preloader) Close() {
	p.Cancel()
}
