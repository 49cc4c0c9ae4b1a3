// Package pipeline provides the partition → run → stitch pipeline for tilestitch.
//
// This package chains the engine's stages so that the CLI, the HTTP server
// and library callers behave the same way. By centralizing this logic,
// caching, logging and error wrapping are applied once for every entry point.
//
// # Architecture
//
// The pipeline consists of three stages:
//
//  1. Partition: Build (or fetch from the registry) the tile layout for the source shape
//  2. Run: Read every tile and apply the user function on a backend
//  3. Stitch: Reassemble the tile outputs into one global result
//
// Errors from each stage are wrapped with the stage name ("partition: ...",
// "run: ...", "stitch: ..."); the coded error underneath stays reachable with
// errors.Is and errors.As.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.Options{
//	    Job:      config.Job{TileShape: []int{512, 512}, Overlap: []float64{32}},
//	    Source:   src,
//	    Func:     fn,
//	    FuncName: "blur",
//	}
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out := result.Stitched.Value.Array
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/tilestitch/pkg/cache"
	"github.com/matzehuels/tilestitch/pkg/config"
	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/job"
	"github.com/matzehuels/tilestitch/pkg/source"
	"github.com/matzehuels/tilestitch/pkg/stitch"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for one pipeline run.
type Options struct {
	// Job is the geometry, execution and stitching configuration.
	Job config.Job `json:"job"`

	// SourceID identifies the source for result reuse (a path or URI).
	// Without it tile results are not stored.
	SourceID string `json:"source_id,omitempty"`

	// FuncName and FuncParams identify the user function for result reuse.
	FuncName   string `json:"func,omitempty"`
	FuncParams any    `json:"func_params,omitempty"`

	// Refresh recomputes every tile even when stored results exist.
	Refresh bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Source source.Source `json:"-"`
	Func   job.Func      `json:"-"`
	Logger *log.Logger   `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// JobID is the UUID of the job graph, Seq its number among the jobs
	// run over the same partition.
	JobID string
	Seq   int

	Partition *tile.Partition

	// Tiles holds the per-tile results. It is nil when the stitched output
	// came from the cache.
	Tiles *job.Results

	Stitched *stitch.Stitched

	Stats Stats

	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	TileCount     int
	Failed        int
	Reused        int
	Computed      int
	PartitionTime time.Duration
	RunTime       time.Duration
	StitchTime    time.Duration
}

// CacheInfo tracks cache hits for each pipeline stage.
type CacheInfo struct {
	PartitionHit bool // Partition came from the registry
	StitchHit    bool // Stitched output came from the cache
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := o.ValidateForPlan(); err != nil {
		return err
	}
	if o.Source == nil {
		return errors.New(errors.ErrCodeInvalidInput, "source is required")
	}
	if o.Func == nil {
		return errors.New(errors.ErrCodeInvalidInput, "tile function is required")
	}
	if o.FuncName != "" {
		if err := errors.ValidateName(o.FuncName); err != nil {
			return err
		}
	}
	o.validated = true
	return nil
}

// ValidateForPlan checks the geometry options and sets the logger default.
func (o *Options) ValidateForPlan() error {
	if err := o.Job.Validate(); err != nil {
		return err
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

// Reusable reports whether tile results can be stored and reused: both the
// source and the function must be named.
func (o *Options) Reusable() bool {
	return o.SourceID != "" && o.FuncName != ""
}

// Fingerprint identifies everything that determines the tile outputs.
func (o *Options) Fingerprint() string {
	return cache.Fingerprint(o.SourceID, o.FuncName, o.FuncParams,
		o.Job.TileShape, o.Job.Overlap, o.Job.Mode(), o.Job.JobConfig())
}

// StitchKeyOpts returns cache key options for the stitched output.
func (o *Options) StitchKeyOpts() cache.StitchKeyOpts {
	sc := o.Job.StitchConfig()
	return cache.StitchKeyOpts{
		Policy:           sc.Policy,
		Blend:            string(sc.Blend),
		DropBorderOutput: sc.DropBorderOutput,
		OutputScale:      sc.OutputScale,
		DedupThreshold:   sc.DedupThreshold,
	}
}
