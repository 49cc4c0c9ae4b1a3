package geometry

import (
	"math"

	"github.com/matzehuels/tilestitch/pkg/errors"
)

// OverlapMode selects how overlap values are interpreted.
type OverlapMode string

const (
	// OverlapAbsolute treats overlap values as cell counts.
	OverlapAbsolute OverlapMode = "absolute"
	// OverlapFraction treats overlap values as fractions of the tile size;
	// the cell count is rint(T*f).
	OverlapFraction OverlapMode = "fraction"
)

// ValidOverlapModes lists the accepted overlap modes.
var ValidOverlapModes = map[OverlapMode]bool{
	OverlapAbsolute: true,
	OverlapFraction: true,
}

// ParseOverlapMode converts a string to an OverlapMode. The empty string
// selects OverlapAbsolute.
func ParseOverlapMode(s string) (OverlapMode, error) {
	if s == "" {
		return OverlapAbsolute, nil
	}
	m := OverlapMode(s)
	if !ValidOverlapModes[m] {
		return "", errors.New(errors.ErrCodeInvalidConfig, "unknown overlap mode %q (want absolute or fraction)", s)
	}
	return m, nil
}

// Axis is the tiling of a single image axis.
type Axis struct {
	Size     int        `json:"size"`      // Image extent S
	TileSize int        `json:"tile_size"` // Requested tile extent T (before clamping)
	Overlap  int        `json:"overlap"`   // Overlap O in cells
	Tiles    []Interval `json:"tiles"`     // Clipped tile intervals, ascending
	Seams    []int      `json:"seams"`     // len(Tiles)+1 owner boundaries, from 0 to Size
}

// Count returns the number of tiles on the axis.
func (a Axis) Count() int { return len(a.Tiles) }

// Owner returns the interval tile i owns in crop stitching.
func (a Axis) Owner(i int) Interval { return Interval{Start: a.Seams[i], End: a.Seams[i+1]} }

// OverlapLo returns how far tile i overlaps its predecessor (0 for the first tile).
func (a Axis) OverlapLo(i int) int {
	if i == 0 {
		return 0
	}
	return a.Tiles[i-1].End - a.Tiles[i].Start
}

// OverlapHi returns how far tile i overlaps its successor (0 for the last tile).
func (a Axis) OverlapHi(i int) int {
	if i == len(a.Tiles)-1 {
		return 0
	}
	return a.Tiles[i].End - a.Tiles[i+1].Start
}

// Count returns the number of tiles along an axis of extent s for tile extent
// t and overlap o. Callers must have validated the inputs.
func Count(s, t, o int) int {
	if t >= s {
		return 1
	}
	n := int(math.Ceil(float64(s-o) / float64(t-o)))
	return max(n, 1)
}

// MaxTiles bounds the number of tiles a single plan may produce.
const MaxTiles = 1 << 20

func checkAxis(s, t, o int) error {
	switch {
	case s <= 0:
		return errors.New(errors.ErrCodeInvalidTileSpec, "image size must be positive, got %d", s)
	case t <= 0:
		return errors.New(errors.ErrCodeInvalidTileSpec, "tile size must be positive, got %d", t)
	case o < 0:
		return errors.New(errors.ErrCodeInvalidTileSpec, "overlap must not be negative, got %d", o)
	case t <= o:
		return errors.New(errors.ErrCodeInvalidTileSpec, "tile size %d must exceed overlap %d", t, o)
	}
	return nil
}

// Layout tiles a single axis. It fails with INVALID_TILE_SPEC when s or t is
// non-positive, when o is negative, when t <= o, or when the axis alone would
// need more than MaxTiles tiles.
func Layout(s, t, o int) (Axis, error) {
	if err := checkAxis(s, t, o); err != nil {
		return Axis{}, err
	}

	n := Count(s, t, o)
	if n > MaxTiles {
		return Axis{}, errors.New(errors.ErrCodeInvalidTileSpec, "%d tiles exceed the limit of %d", n, MaxTiles)
	}
	step := t - o
	ax := Axis{Size: s, TileSize: t, Overlap: o, Tiles: make([]Interval, n), Seams: make([]int, n+1)}
	for i := range n {
		start := i * step
		ax.Tiles[i] = Interval{Start: start, End: min(start+t, s)}
	}
	ax.Seams[n] = s
	for i := 1; i < n; i++ {
		ov := ax.Tiles[i-1].End - ax.Tiles[i].Start
		ax.Seams[i] = ax.Tiles[i].Start + ov/2
	}
	return ax, nil
}

// OverlapSizes converts overlap values to cell counts for each tiled axis.
// A single overlap value applies to every axis.
func OverlapSizes(tileShape []int, overlap []float64, mode OverlapMode) ([]int, error) {
	vals, err := broadcast(overlap, len(tileShape))
	if err != nil {
		return nil, err
	}
	out := make([]int, len(tileShape))
	for i, v := range vals {
		switch mode {
		case OverlapFraction:
			if v < 0 || v >= 1 {
				return nil, errors.New(errors.ErrCodeInvalidTileSpec, "fraction overlap must be in [0,1), got %g on axis %d", v, i)
			}
			out[i] = Round(float64(tileShape[i]) * v)
		case OverlapAbsolute, "":
			if v != math.Trunc(v) {
				return nil, errors.New(errors.ErrCodeInvalidTileSpec, "absolute overlap must be an integer, got %g on axis %d", v, i)
			}
			out[i] = int(v)
		default:
			return nil, errors.New(errors.ErrCodeInvalidTileSpec, "unknown overlap mode %q", mode)
		}
	}
	return out, nil
}

// Plan tiles the trailing len(tileShape) axes of shape. Leading axes are not
// tiled. The returned slice has one Axis per tiled axis. Plans with more than
// MaxTiles tiles in total are rejected before anything is allocated.
func Plan(shape, tileShape []int, overlap []float64, mode OverlapMode) ([]Axis, error) {
	if len(tileShape) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidTileSpec, "tile shape cannot be empty")
	}
	if len(tileShape) > len(shape) {
		return nil, errors.New(errors.ErrCodeInvalidTileSpec, "tile rank %d exceeds image rank %d", len(tileShape), len(shape))
	}
	if err := errors.ValidatePositive(errors.ErrCodeInvalidTileSpec, "image shape", shape); err != nil {
		return nil, err
	}
	if err := errors.ValidatePositive(errors.ErrCodeInvalidTileSpec, "tile shape", tileShape); err != nil {
		return nil, err
	}
	sizes, err := OverlapSizes(tileShape, overlap, mode)
	if err != nil {
		return nil, err
	}

	lead := len(shape) - len(tileShape)
	total := 1
	for i := range tileShape {
		s, t, o := shape[lead+i], tileShape[i], sizes[i]
		if err := checkAxis(s, t, o); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidTileSpec, err, "axis %d", lead+i)
		}
		// Compared by division so the product never overflows.
		n := Count(s, t, o)
		if n > MaxTiles/total {
			return nil, errors.New(errors.ErrCodeInvalidTileSpec, "partition needs more than %d tiles", MaxTiles)
		}
		total *= n
	}

	axes := make([]Axis, len(tileShape))
	for i := range tileShape {
		ax, err := Layout(shape[lead+i], tileShape[i], sizes[i])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidTileSpec, err, "axis %d", lead+i)
		}
		axes[i] = ax
	}
	return axes, nil
}

func broadcast(vals []float64, rank int) ([]float64, error) {
	switch len(vals) {
	case 0:
		return make([]float64, rank), nil
	case 1:
		out := make([]float64, rank)
		for i := range out {
			out[i] = vals[0]
		}
		return out, nil
	case rank:
		return vals, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidTileSpec, "overlap has %d values, want 1 or %d", len(vals), rank)
}
