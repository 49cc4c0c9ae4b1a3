// Package stitch reassembles per-tile outputs into one global result.
//
// Stitching is a barrier: it runs once every tile of a partition has a
// result, and it refuses incomplete sets. The policy is chosen by the kind of
// the tile outputs (or named explicitly):
//
//   - array-blend: dense arrays are written into an output scaled to the
//     image, with overlaps resolved by a [BlendMode]
//   - object-merge: boxes are moved to global coordinates and duplicates in
//     overlaps are suppressed by IoU
//   - coordinate-merge: points are moved to global coordinates and near
//     duplicates are resolved in favour of the tile whose core is nearest
//   - passthrough: results are returned as they are, in row-major order
//   - label-merge: instance label masks are made unique across tiles and
//     labels that meet in an overlap or across a seam are merged; it is only
//     used when named
//
// Ties are always broken by tile index and then by the order in which a tile
// reported its detections, so output does not depend on completion order.
package stitch

import (
	"context"
	"slices"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// Policy names.
const (
	PolicyArrayBlend      = "array-blend"
	PolicyObjectMerge     = "object-merge"
	PolicyCoordinateMerge = "coordinate-merge"
	PolicyPassthrough     = "passthrough"
	PolicyLabelMerge      = "label-merge"
)

// Default dedup thresholds, used when Config.DedupThreshold is zero.
const (
	DefaultIoUThreshold  = 0.5
	DefaultPointDistance = 1.0
)

// BlendMode selects how overlapping array outputs are combined.
type BlendMode string

const (
	BlendCrop   BlendMode = "crop"   // Last writer in row-major order wins
	BlendLinear BlendMode = "linear" // Distance-weighted average across the overlap
	BlendMax    BlendMode = "max"
	BlendMin    BlendMode = "min"
)

// ValidBlendModes lists the supported blend modes.
var ValidBlendModes = []BlendMode{BlendCrop, BlendLinear, BlendMax, BlendMin}

// ParseBlendMode parses a blend mode name. The empty string means crop.
func ParseBlendMode(s string) (BlendMode, error) {
	if s == "" {
		return BlendCrop, nil
	}
	m := BlendMode(s)
	if !slices.Contains(ValidBlendModes, m) {
		return "", errors.New(errors.ErrCodeInvalidConfig, "unknown blend mode %q (valid: crop, linear, max, min)", s)
	}
	return m, nil
}

// Config holds the options that affect stitching.
type Config struct {
	// Policy forces a policy by name instead of choosing by output kind.
	Policy string `json:"policy,omitempty"`

	Blend BlendMode `json:"blend,omitempty"`

	// DropBorderOutput keeps only the part of each tile's output that lies in
	// the tile's seam region. Arrays are then pasted without blending; objects
	// and points are kept when their centre lies in the seam region.
	DropBorderOutput bool `json:"drop_border_output,omitempty"`

	// OutputScale is the per tiled axis ratio of output to input size. A
	// single value applies to every axis. Nil means 1, or inferred from the
	// first tile for arrays.
	OutputScale []float64 `json:"output_scale,omitempty"`

	// DedupThreshold is the IoU at or above which two objects are the same,
	// or the distance below which two points are the same.
	DedupThreshold float64 `json:"dedup_threshold,omitempty"`

	// JobID is passed to stitch hooks.
	JobID string `json:"-"`
}

// Validate rejects unusable settings with INVALID_CONFIG.
func (c Config) Validate() error {
	if c.Blend != "" {
		if _, err := ParseBlendMode(string(c.Blend)); err != nil {
			return err
		}
	}
	for i, s := range c.OutputScale {
		if s <= 0 {
			return errors.New(errors.ErrCodeInvalidConfig, "output_scale must be positive (axis %d is %g)", i, s)
		}
	}
	if c.DedupThreshold < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "dedup_threshold must not be negative")
	}
	return nil
}

func (c Config) blend() BlendMode {
	if c.Blend == "" {
		return BlendCrop
	}
	return c.Blend
}

// scales broadcasts OutputScale to n axes. ok is false when it is unset.
func (c Config) scales(n int) (s []float64, ok bool, err error) {
	switch len(c.OutputScale) {
	case 0:
		s = make([]float64, n)
		for i := range s {
			s[i] = 1
		}
		return s, false, nil
	case 1:
		s = make([]float64, n)
		for i := range s {
			s[i] = c.OutputScale[0]
		}
		return s, true, nil
	case n:
		return slices.Clone(c.OutputScale), true, nil
	}
	return nil, false, errors.New(errors.ErrCodeInvalidConfig, "output_scale has %d values for %d tiled axes", len(c.OutputScale), n)
}

// Stitched is the reassembled global result.
type Stitched struct {
	Policy string     `json:"policy"`
	Value  tile.Value `json:"value"`

	// Results is set by passthrough only.
	Results []tile.Result `json:"results,omitempty"`

	// Scale is the effective per-axis output scale.
	Scale []float64 `json:"scale,omitempty"`
}

// Policy combines a complete, row-major ordered result set.
type Policy interface {
	Name() string
	Accepts(k tile.Kind) bool
	Combine(ctx context.Context, p *tile.Partition, results []tile.Result, cfg Config) (*Stitched, error)
}
