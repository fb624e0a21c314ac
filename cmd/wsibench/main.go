// Command wsibench drives a scheduler against a packed slide with a
// synthetic pan, then reports cache stats. It exercises only the prefetch
// path (UpdateViewport); it issues no GetTile calls. Useful as a smoke test and a
// rough throughput check without a real viewer attached.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fastpathlabs/wsitiles/internal/prefetch"
	"github.com/fastpathlabs/wsitiles/internal/scheduler"
)

func main() {
	var (
		l1MB, l2MB, prefetchDistance int
		steps                        int
		settleMS                     int
	)
	flag.IntVar(&l1MB, "l1-mb", 256, "L1 (decoded RGB) cache size in MB")
	flag.IntVar(&l2MB, "l2-mb", 512, "L2 (compressed JPEG) cache size in MB")
	flag.IntVar(&prefetchDistance, "prefetch-distance", 0, "Tiles-ahead override (0 = planner default)")
	flag.IntVar(&steps, "steps", 20, "Number of viewport pan steps to simulate")
	flag.IntVar(&settleMS, "settle-ms", 50, "Milliseconds to wait after each viewport update before sampling cache stats")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wsibench [flags] <slide-dir>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		flag.Usage()
		os.Exit(1)
	}
	slideDir := args[0]

	s, err := scheduler.New(l1MB, l2MB, prefetchDistance)
	if err != nil {
		log.Fatalf("creating scheduler: %v", err)
	}
	defer s.Shutdown()

	if err := s.Load(slideDir); err != nil {
		log.Fatalf("loading %s: %v", slideDir, err)
	}
	defer s.Close()

	s.PrefetchLowResLevels()
	time.Sleep(time.Duration(settleMS) * time.Millisecond)

	vx := 400.0
	for i := 0; i < steps; i++ {
		vp := prefetch.Viewport{
			X: float64(i) * 256, Y: 0,
			W: 1024, H: 768,
			Scale: 1.0,
			VX:    vx, VY: 0,
		}
		s.UpdateViewport(vp)
		time.Sleep(time.Duration(settleMS) * time.Millisecond)

		stats := s.CacheStats()
		fmt.Printf("step %2d: L1 hit=%.2f size=%dB n=%d | L2 hit=%.2f size=%dB n=%d\n",
			i, stats.L1.HitRatio, stats.L1.SizeBytes, stats.L1.NumTiles,
			stats.L2.HitRatio, stats.L2.SizeBytes, stats.L2.NumTiles)
	}

	final := s.CacheStats()
	fmt.Printf("\nfinal: L1 %d hits / %d misses, L2 %d hits / %d misses\n",
		final.L1.Hits, final.L1.Misses, final.L2.Hits, final.L2.Misses)
}
