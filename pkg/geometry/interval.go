package geometry

import (
	"fmt"
	"math"
	"strings"
)

// Interval is a half-open integer range [Start, End).
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns End-Start, or 0 for an empty interval.
func (iv Interval) Len() int {
	if iv.End < iv.Start {
		return 0
	}
	return iv.End - iv.Start
}

// Contains reports whether x lies in [Start, End).
func (iv Interval) Contains(x int) bool { return x >= iv.Start && x < iv.End }

// Intersect returns the overlap of two intervals; the result may be empty.
func (iv Interval) Intersect(o Interval) Interval {
	return Interval{Start: max(iv.Start, o.Start), End: min(iv.End, o.End)}
}

// Scale multiplies both ends by f and rounds half to even.
func (iv Interval) Scale(f float64) Interval {
	return Interval{Start: Round(float64(iv.Start) * f), End: Round(float64(iv.End) * f)}
}

func (iv Interval) String() string { return fmt.Sprintf("%d:%d", iv.Start, iv.End) }

// Box is an axis-aligned N-D region, one interval per axis.
type Box []Interval

// NewBox builds a box from per-axis starts and ends.
func NewBox(lo, hi []int) Box {
	b := make(Box, len(lo))
	for i := range lo {
		b[i] = Interval{Start: lo[i], End: hi[i]}
	}
	return b
}

// FullBox returns the box covering an entire shape.
func FullBox(shape []int) Box {
	b := make(Box, len(shape))
	for i, s := range shape {
		b[i] = Interval{End: s}
	}
	return b
}

// Rank returns the number of axes.
func (b Box) Rank() int { return len(b) }

// Shape returns the per-axis lengths.
func (b Box) Shape() []int {
	s := make([]int, len(b))
	for i, iv := range b {
		s[i] = iv.Len()
	}
	return s
}

// Size returns the number of cells in the box.
func (b Box) Size() int {
	n := 1
	for _, iv := range b {
		n *= iv.Len()
	}
	return n
}

// Empty reports whether any axis has zero length.
func (b Box) Empty() bool { return b.Size() == 0 }

// Lo returns the per-axis starts.
func (b Box) Lo() []int {
	s := make([]int, len(b))
	for i, iv := range b {
		s[i] = iv.Start
	}
	return s
}

// Hi returns the per-axis ends.
func (b Box) Hi() []int {
	s := make([]int, len(b))
	for i, iv := range b {
		s[i] = iv.End
	}
	return s
}

// Contains reports whether the point lies inside the box.
func (b Box) Contains(pt []int) bool {
	if len(pt) != len(b) {
		return false
	}
	for i, iv := range b {
		if !iv.Contains(pt[i]) {
			return false
		}
	}
	return true
}

// Intersect returns the per-axis intersection of two boxes of equal rank.
func (b Box) Intersect(o Box) Box {
	out := make(Box, len(b))
	for i := range b {
		out[i] = b[i].Intersect(o[i])
	}
	return out
}

// Scale scales each axis by the matching factor. A nil or short scales slice
// leaves the remaining axes unscaled.
func (b Box) Scale(scales []float64) Box {
	out := make(Box, len(b))
	for i, iv := range b {
		if i < len(scales) {
			out[i] = iv.Scale(scales[i])
		} else {
			out[i] = iv
		}
	}
	return out
}

// Translate shifts the box into the coordinate frame whose origin is at
// origin, i.e. subtracts origin from every axis.
func (b Box) Translate(origin []int) Box {
	out := make(Box, len(b))
	for i, iv := range b {
		out[i] = Interval{Start: iv.Start - origin[i], End: iv.End - origin[i]}
	}
	return out
}

// Prepend returns a new box with extra leading axes.
func (b Box) Prepend(lead ...Interval) Box {
	out := make(Box, 0, len(lead)+len(b))
	out = append(out, lead...)
	return append(out, b...)
}

// Equal reports whether two boxes are identical.
func (b Box) Equal(o Box) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if b[i] != o[i] {
			return false
		}
	}
	return true
}

func (b Box) String() string {
	parts := make([]string, len(b))
	for i, iv := range b {
		parts[i] = iv.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Round rounds half to even, matching the rint rounding used for fraction
// overlaps and output scaling.
func Round(x float64) int { return int(math.RoundToEven(x)) }
