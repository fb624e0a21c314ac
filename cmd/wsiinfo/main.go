// Command wsiinfo inspects a packed slide directory: its validated metadata
// and, per level, the container's index dimensions and a sample tile probe.
package main

import (
	"fmt"
	"os"

	"github.com/fastpathlabs/wsitiles/internal/container"
	"github.com/fastpathlabs/wsitiles/internal/decode"
	"github.com/fastpathlabs/wsitiles/internal/metadata"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: wsiinfo <slide-dir>\n")
		os.Exit(1)
	}
	slideDir := os.Args[1]

	meta, err := metadata.Load(slideDir + "/metadata.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cont, err := container.Open(slideDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cont.Close()

	fmt.Printf("Slide: %s\n", slideDir)
	fmt.Printf("Dimensions: %d x %d\n", meta.Width, meta.Height)
	fmt.Printf("Tile size: %d\n", meta.TileSize)
	fmt.Printf("Target MPP: %f  Target magnification: %f\n", meta.TargetMPP, meta.TargetMagnification)
	fmt.Printf("Levels: %d\n\n", len(meta.Levels))

	for _, l := range meta.Levels {
		cols, rows, ok := cont.Dims(l.Level)
		fmt.Printf("  level %d: downsample=%d metadata-grid=%dx%d", l.Level, l.Downsample, l.Cols, l.Rows)
		if !ok {
			fmt.Printf(" (no container data)\n")
			continue
		}
		fmt.Printf(" container-grid=%dx%d\n", cols, rows)

		raw, err := cont.Read(l.Level, 0, 0)
		if err != nil {
			fmt.Printf("    tile(0,0): ERROR: %v\n", err)
			continue
		}
		w, h, err := decode.Probe(raw)
		if err != nil {
			fmt.Printf("    tile(0,0): %d bytes, probe error: %v\n", len(raw), err)
			continue
		}
		fmt.Printf("    tile(0,0): %d bytes, %dx%d px\n", len(raw), w, h)
	}
}
