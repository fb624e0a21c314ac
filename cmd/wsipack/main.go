// Command wsipack packs a directory of per-level JPEG tile files
// (tiles_files/{level}/{col}_{row}.jpg) plus a metadata.json describing the
// pyramid into the scheduler's on-disk container format: one
// tiles/level_N.idx + tiles/level_N.pack pair per level.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/fastpathlabs/wsitiles/internal/container"
	"github.com/fastpathlabs/wsitiles/internal/metadata"
)

func main() {
	var verbose bool
	flag.BoolVar(&verbose, "verbose", false, "Log per-level progress")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wsipack [flags] <source-dir> <output-dir>\n\n")
		fmt.Fprintf(os.Stderr, "source-dir must contain metadata.json and tiles_files/{level}/{col}_{row}.jpg.\n")
		fmt.Fprintf(os.Stderr, "output-dir receives metadata.json and tiles/level_N.{idx,pack}.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		os.Exit(1)
	}
	sourceDir, outputDir := args[0], args[1]

	meta, err := metadata.Load(filepath.Join(sourceDir, "metadata.json"))
	if err != nil {
		log.Fatalf("loading metadata: %v", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		log.Fatalf("creating %s: %v", outputDir, err)
	}
	if err := copyFile(filepath.Join(sourceDir, "metadata.json"), filepath.Join(outputDir, "metadata.json")); err != nil {
		log.Fatalf("copying metadata.json: %v", err)
	}

	tilesFilesDir := filepath.Join(sourceDir, "tiles_files")
	var sourced, generated []int
	specs := make([]container.LevelSpec, 0, len(meta.Levels))
	for i, l := range meta.Levels {
		specs = append(specs, container.LevelSpec{Level: l.Level, Cols: l.Cols, Rows: l.Rows})
		if _, err := os.Stat(filepath.Join(tilesFilesDir, fmt.Sprintf("%d", l.Level))); err == nil {
			sourced = append(sourced, i)
		} else {
			generated = append(generated, i)
		}
	}
	if len(sourced) == 0 {
		log.Fatalf("no level under %s has source tiles to pack", tilesFilesDir)
	}

	sourcedSpecs := make([]container.LevelSpec, 0, len(sourced))
	for _, i := range sourced {
		sourcedSpecs = append(sourcedSpecs, specs[i])
	}
	if verbose {
		log.Printf("packing %d sourced levels from %s into %s", len(sourcedSpecs), sourceDir, outputDir)
	}
	if err := container.Pack(outputDir, tilesFilesDir, sourcedSpecs); err != nil {
		log.Fatalf("packing: %v", err)
	}

	// Generated levels must be produced in ascending level-number order
	// (finest to coarsest) since each is downsampled from the previous.
	for _, i := range generated {
		if i == 0 {
			log.Fatalf("level %d has no source tiles and no finer level to generate it from", meta.Levels[0].Level)
		}
		finer := meta.Levels[i-1]
		coarse := meta.Levels[i]
		if verbose {
			log.Printf("generating level %d from level %d (no source tiles found)", coarse.Level, finer.Level)
		}
		err := container.GenerateLevelFromFiner(outputDir,
			container.LevelSpec{Level: coarse.Level, Cols: coarse.Cols, Rows: coarse.Rows},
			container.LevelSpec{Level: finer.Level, Cols: finer.Cols, Rows: finer.Rows},
			int(meta.TileSize), 85)
		if err != nil {
			log.Fatalf("generating level %d: %v", coarse.Level, err)
		}
	}

	if verbose {
		log.Printf("done")
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
