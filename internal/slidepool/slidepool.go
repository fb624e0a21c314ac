// Package slidepool implements the slide pool (spec §4.4, C4): interns
// per-slide metadata and container handles by slide id, for the scheduler's
// lifetime. Entries are never removed.
package slidepool

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fastpathlabs/wsitiles/internal/container"
	"github.com/fastpathlabs/wsitiles/internal/metadata"
	"github.com/fastpathlabs/wsitiles/internal/tilekey"
)

// Entry is a slide's validated metadata plus its open container handle.
// Shared by the pool and the scheduler's current-slide slot; lifetime is the
// pool's lifetime (spec §9: "never exclusively owned by the scheduler").
type Entry struct {
	SlideID   uint64
	Path      string
	Metadata  *tilekey.SlideMetadata
	Container *container.Container
}

// Pool is a read-mostly map of slide id to Entry.
type Pool struct {
	mu      sync.RWMutex
	entries map[uint64]*Entry
}

// New creates an empty slide pool.
func New() *Pool {
	return &Pool{entries: make(map[uint64]*Entry)}
}

// HashID computes the 64-bit slide id from a lowercased, canonicalized path.
// Any stable non-cryptographic hash suffices (spec §4.3); the value is
// in-memory only and need not be stable across runs. Uses hash/fnv, matching
// the teacher's own tile-dedup hashing in internal/pmtiles/writer.go.
func HashID(path string) (slideID uint64, canonical string, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, "", fmt.Errorf("resolving %s: %w", path, err)
	}
	canonical = strings.ToLower(filepath.Clean(abs))

	h := fnv.New64a()
	h.Write([]byte(canonical))
	return h.Sum64(), canonical, nil
}

// LoadOrGet returns the cached entry for slideID, or parses metadata, opens
// the container, and interns a new entry. path is only consulted on first
// load for a given slideID.
func (p *Pool) LoadOrGet(slideID uint64, path string) (*Entry, error) {
	p.mu.RLock()
	e, ok := p.entries[slideID]
	p.mu.RUnlock()
	if ok {
		return e, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check: another goroutine may have interned it while we waited for
	// the write lock.
	if e, ok := p.entries[slideID]; ok {
		return e, nil
	}

	meta, err := metadata.Load(filepath.Join(path, "metadata.json"))
	if err != nil {
		return nil, err
	}
	cont, err := container.Open(path)
	if err != nil {
		return nil, err
	}

	e = &Entry{SlideID: slideID, Path: path, Metadata: meta, Container: cont}
	p.entries[slideID] = e
	return e, nil
}

// Get returns the entry for slideID if already interned.
func (p *Pool) Get(slideID uint64) (*Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[slideID]
	return e, ok
}

// Len returns the number of interned slides.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
