// Package sysmem probes total system RAM to pick default L1/L2 cache byte
// budgets when a caller doesn't supply explicit sizes. Adapted from the
// teacher's internal/tile/memlimit.go and sysinfo_*.go, which used the same
// probe to decide when the tile store should start spilling to disk; here
// the same number sizes cache capacity instead of a spill threshold.
package sysmem

import (
	"log"
	"runtime"
)

// DefaultCacheFraction is the portion of total RAM the two cache levels may
// occupy together, absent an explicit override.
const DefaultCacheFraction = 0.25

// DefaultL1Share is L1's portion of the combined cache budget; the
// remainder goes to L2. Decoded RGB tiles are larger per-pixel than their
// compressed JPEG form, so L1 is deliberately the smaller share.
const DefaultL1Share = 0.35

// Budget is a computed L1/L2 byte-capacity split.
type Budget struct {
	L1Bytes int64
	L2Bytes int64
}

// ComputeBudget takes fraction of total system RAM and splits it between L1
// and L2 per DefaultL1Share. Returns a zero Budget if RAM detection fails;
// callers should fall back to a fixed default in that case.
func ComputeBudget(fraction float64, verbose bool) Budget {
	totalRAM, err := totalSystemRAM()
	if err != nil {
		if verbose {
			log.Printf("sysmem: cannot detect system RAM: %v; using fixed cache defaults", err)
		}
		return Budget{}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	overhead := m.Sys + 512*1024*1024

	available := int64(float64(totalRAM)*fraction) - int64(overhead)
	if available < 64*1024*1024 {
		if verbose {
			log.Printf("sysmem: computed cache budget too small (%.0f MB); using fixed cache defaults",
				float64(available)/(1024*1024))
		}
		return Budget{}
	}

	l1 := int64(float64(available) * DefaultL1Share)
	l2 := available - l1

	if verbose {
		log.Printf("sysmem: system RAM %.1f GB, cache budget L1=%.0f MB L2=%.0f MB",
			float64(totalRAM)/(1024*1024*1024), float64(l1)/(1024*1024), float64(l2)/(1024*1024))
	}

	return Budget{L1Bytes: l1, L2Bytes: l2}
}
