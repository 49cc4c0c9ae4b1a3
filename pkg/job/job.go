// Package job turns a partition, a source and a user function into an
// explicit task graph and runs it on a pluggable backend.
//
// Every tile contributes two tasks: a read of its region and an application
// of the user function to that data. The graph is bipartite (reads in row 0,
// applies in row 1) with no cross-tile edges, so tiles can run in any order,
// on any worker, and be re-run safely.
//
// A run is fail-together: every tile is attempted, and if any fail the run
// returns a *errors.TileComputationError naming each failing tile alongside
// the results of the tiles that succeeded. Cancelling the context stops
// outstanding work and the run returns the context error.
package job

import (
	"context"
	"fmt"
	"strings"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// Task stages.
const (
	StageRead  = "read"
	StageApply = "apply"
)

// Func is the per-tile computation. It receives the tile's pixels (leading
// axes whole) and the tile's provenance, and returns a tagged value.
// Implementations must be safe for concurrent use.
type Func interface {
	Apply(ctx context.Context, data *ndarray.Array, t tile.Tile) (tile.Value, error)
}

// FuncOf adapts a plain function to Func.
type FuncOf func(ctx context.Context, data *ndarray.Array, t tile.Tile) (tile.Value, error)

// Apply calls f.
func (f FuncOf) Apply(ctx context.Context, data *ndarray.Array, t tile.Tile) (tile.Value, error) {
	return f(ctx, data, t)
}

// BatchFunc is a Func that can process several tiles in one call. It is used
// when Config.BatchAxis is set and BatchSize > 1; it must return one value per
// input, in order.
type BatchFunc interface {
	Func
	ApplyBatch(ctx context.Context, data []*ndarray.Array, tiles []tile.Tile) ([]tile.Value, error)
}

// Config carries options that travel with a job from submission to stitching.
type Config struct {
	// DropBorderOutput keeps only each tile's seam region when stitching
	// dense outputs.
	DropBorderOutput bool `json:"drop_border_output,omitempty"`

	// OutputScale is the per-axis ratio of output to input size on the tiled
	// axes. Nil means 1 or, for arrays, inferred from the first tile output.
	OutputScale []float64 `json:"output_scale,omitempty"`

	// BatchAxis declares that the function accepts several tiles per call.
	BatchAxis bool `json:"batch_axis,omitempty"`

	// BatchSize is the number of tiles per call when BatchAxis is set.
	BatchSize int `json:"batch_size,omitempty"`

	// Retries is how many extra attempts a unit gets when it fails with a
	// Retryable error.
	Retries int `json:"retries,omitempty"`
}

// Validate rejects contradictory settings with INVALID_CONFIG.
func (c Config) Validate() error {
	for i, s := range c.OutputScale {
		if s <= 0 {
			return errors.New(errors.ErrCodeInvalidConfig, "output_scale must be positive (axis %d is %g)", i, s)
		}
	}
	if c.BatchSize < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "batch_size must not be negative")
	}
	if c.BatchSize > 1 && !c.BatchAxis {
		return errors.New(errors.ErrCodeInvalidConfig, "batch_size %d requires batch_axis", c.BatchSize)
	}
	if c.Retries < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "retries must not be negative")
	}
	return nil
}

func (c Config) batchSize() int {
	if c.BatchAxis && c.BatchSize > 1 {
		return c.BatchSize
	}
	return 1
}

// stageError tags a unit failure with the stage it happened in.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// tileErrors holds one entry per tile of a unit; nil entries succeeded.
type tileErrors struct {
	errs []error
}

func (e *tileErrors) Error() string {
	var msgs []string
	for _, err := range e.errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return fmt.Sprintf("%d of %d tiles failed: %s", len(msgs), len(e.errs), strings.Join(msgs, "; "))
}

// Unwrap exposes the failures so a Retryable tile makes the unit retryable.
func (e *tileErrors) Unwrap() []error {
	var out []error
	for _, err := range e.errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
