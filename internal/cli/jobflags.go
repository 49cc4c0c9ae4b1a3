package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/pkg/config"
)

// jobFlags are the command-line form of a job file. A flag that was set
// explicitly overrides the value loaded from --config.
type jobFlags struct {
	configPath  string
	tileShape   string
	overlap     string
	overlapMode string
	concurrency int
	retries     int
	batchSize   int
	blend       string
	policy      string
	dropBorder  bool
	outputScale string
	dedup       float64
}

// register adds the geometry flags, and with full set the execution and
// stitching flags too.
func (f *jobFlags) register(cmd *cobra.Command, full bool) {
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "job file (.toml or .json)")
	fl.StringVarP(&f.tileShape, "tile", "t", "", "tile shape, e.g. 512x512 (default 512 per tiled axis)")
	fl.StringVar(&f.overlap, "overlap", "", "overlap per tiled axis, one value applies to all")
	fl.StringVar(&f.overlapMode, "overlap-mode", "", "overlap unit: absolute (cells) or fraction (of tile size)")
	if !full {
		return
	}
	fl.IntVarP(&f.concurrency, "concurrency", "j", 0, "tiles computed in parallel (0 = number of CPUs)")
	fl.IntVar(&f.retries, "retries", 0, "extra attempts for tiles that fail with a retryable error")
	fl.IntVar(&f.batchSize, "batch-size", 0, "tiles per function call (functions that support batches)")
	fl.StringVar(&f.blend, "blend", "", "array overlap blending: crop, linear, max, min")
	fl.StringVar(&f.policy, "policy", "", "force a stitch policy: array-blend, object-merge, coordinate-merge, passthrough, label-merge")
	fl.BoolVar(&f.dropBorder, "drop-border", false, "keep only each tile's seam region when stitching")
	fl.StringVar(&f.outputScale, "output-scale", "", "output/input size ratio per tiled axis")
	fl.Float64Var(&f.dedup, "dedup", 0, "IoU (objects) or distance (points) threshold for duplicates")
}

// defaultTile is the tile extent used when neither flags nor file set one.
const defaultTile = 512

// job builds the job configuration for an input with the given number of
// tiled axes.
func (f *jobFlags) job(cmd *cobra.Command, tiledAxes int) (config.Job, error) {
	var j config.Job
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return j, err
		}
		j = *loaded
	}

	changed := cmd.Flags().Changed
	if changed("tile") {
		shape, err := parseShape(f.tileShape)
		if err != nil {
			return j, err
		}
		j.TileShape = shape
	}
	if changed("overlap") {
		ov, err := parseFloats(f.overlap)
		if err != nil {
			return j, err
		}
		j.Overlap = ov
	}
	if changed("overlap-mode") {
		j.OverlapMode = f.overlapMode
	}
	if changed("concurrency") {
		j.Concurrency = f.concurrency
	}
	if changed("retries") {
		j.Retries = f.retries
	}
	if changed("batch-size") {
		j.BatchSize = f.batchSize
		j.BatchAxis = f.batchSize > 1
	}
	if changed("blend") {
		j.Blend = f.blend
	}
	if changed("policy") {
		j.Policy = f.policy
	}
	if changed("drop-border") {
		j.DropBorderOutput = f.dropBorder
	}
	if changed("output-scale") {
		s, err := parseFloats(f.outputScale)
		if err != nil {
			return j, err
		}
		j.OutputScale = s
	}
	if changed("dedup") {
		j.DedupThreshold = f.dedup
	}

	if len(j.TileShape) == 0 {
		j.TileShape = make([]int, max(tiledAxes, 1))
		for i := range j.TileShape {
			j.TileShape[i] = defaultTile
		}
	}
	return j, j.Validate()
}
