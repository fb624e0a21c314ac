// Package cache implements the two-level cache of spec §4.3: size-weighted
// admission/eviction with scan-resistance via ristretto's TinyLFU frequency
// sketch. Concurrent readers never block each other.
//
// Grounded on the corpus's own use of ristretto as an L1 in a tiered cache
// (other_examples grid_cache_tiered_advanced.go: "L1 (Ristretto,
// memory-capped)") and present in several pack manifests (iwpnd-pmtilr,
// arx-os-arxos, protomaps-go-pmtiles, beam-cloud-clip, Voskan-arena-cache).
package cache

import (
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
)

// Sizer is implemented by cache values so the cache can track byte capacity.
type Sizer interface {
	SizeBytes() int64
}

// Stats is a snapshot of a cache's hit/miss counters and current footprint.
type Stats struct {
	Hits      uint64
	Misses    uint64
	HitRatio  float64
	SizeBytes int64
	NumTiles  int64
}

// Cache is a generic, concurrency-safe, size-weighted cache. Two
// instantiations appear in the scheduler: L1 keyed by TileCoord holding
// decoded TileData, and L2 keyed by SlideTileCoord holding
// CompressedTileData.
type Cache[K comparable, V Sizer] struct {
	rc            *ristretto.Cache[K, V]
	capacityBytes int64
	hits, misses  atomic.Int64
}

// New creates a cache bounded to capacityBytes of value cost (as reported by
// V.SizeBytes()).
func New[K comparable, V Sizer](capacityBytes int64) (*Cache[K, V], error) {
	if capacityBytes <= 0 {
		capacityBytes = 64 * 1024 * 1024
	}
	// NumCounters ~10x the expected number of items gives TinyLFU's
	// frequency sketch enough resolution; we don't know the average item
	// size up front, so size against a conservative 16 KiB/item estimate.
	numCounters := capacityBytes / (16 * 1024) * 10
	if numCounters < 1000 {
		numCounters = 1000
	}

	rc, err := ristretto.NewCache(&ristretto.Config[K, V]{
		NumCounters: numCounters,
		MaxCost:     capacityBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache[K, V]{rc: rc, capacityBytes: capacityBytes}, nil
}

// Get retrieves a value, updating hit/miss stats.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	v, ok := c.rc.Get(k)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Insert admits a value under k, sized by v.SizeBytes(). Admission is
// decided by ristretto's TinyLFU policy; Insert does not guarantee the
// value is retained.
func (c *Cache[K, V]) Insert(k K, v V) {
	c.rc.Set(k, v, v.SizeBytes())
}

// Contains reports whether k is present, without affecting hit/miss stats.
func (c *Cache[K, V]) Contains(k K) bool {
	_, ok := c.rc.Get(k)
	return ok
}

// Clear drains pending maintenance synchronously, empties the cache, and
// resets stats.
func (c *Cache[K, V]) Clear() {
	c.rc.Clear()
	c.ResetStats()
}

// ResetStats zeroes the hit/miss counters without touching cached entries.
func (c *Cache[K, V]) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats drains pending maintenance so counts and sizes are current, then
// returns a snapshot.
func (c *Cache[K, V]) Stats() Stats {
	c.rc.Wait()

	hits := uint64(c.hits.Load())
	misses := uint64(c.misses.Load())
	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}

	m := c.rc.Metrics
	sizeBytes := int64(0)
	numTiles := int64(0)
	if m != nil {
		sizeBytes = int64(m.CostAdded()) - int64(m.CostEvicted())
		if sizeBytes < 0 {
			sizeBytes = 0
		}
		numTiles = int64(m.KeysAdded()) - int64(m.KeysEvicted())
		if numTiles < 0 {
			numTiles = 0
		}
	}

	return Stats{
		Hits:      hits,
		Misses:    misses,
		HitRatio:  ratio,
		SizeBytes: sizeBytes,
		NumTiles:  numTiles,
	}
}

// Close releases background goroutines. Call when the cache is no longer
// needed.
func (c *Cache[K, V]) Close() {
	c.rc.Close()
}
