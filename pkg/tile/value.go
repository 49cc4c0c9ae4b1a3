package tile

import (
	"fmt"
	"slices"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindArray Kind = iota
	KindObjects
	KindCoords
	KindScalar
	KindRaw
)

var kindNames = [...]string{"array", "objects", "coords", "scalar", "raw"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind converts a kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, errors.New(errors.ErrCodeInvalidInput, "unknown output kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Object is a detected region with an axis-aligned box in tile-local
// coordinates (global after stitching). Min and Max hold one value per tiled
// axis; Max is exclusive.
type Object struct {
	Min   []float64 `json:"min" bson:"min"`
	Max   []float64 `json:"max" bson:"max"`
	Score float64   `json:"score" bson:"score"`
	Label string    `json:"label,omitempty" bson:"label,omitempty"`

	// Provenance, filled in by stitching.
	Tile  Index `json:"tile,omitempty" bson:"tile,omitempty"`
	Order int   `json:"order" bson:"order"`
}

// Volume returns the box area (or volume), 0 for degenerate boxes.
func (o Object) Volume() float64 {
	v := 1.0
	for i := range o.Min {
		d := o.Max[i] - o.Min[i]
		if d <= 0 {
			return 0
		}
		v *= d
	}
	return v
}

// IoU returns the intersection over union of two boxes.
func (o Object) IoU(other Object) float64 {
	inter := 1.0
	for i := range o.Min {
		d := min(o.Max[i], other.Max[i]) - max(o.Min[i], other.Min[i])
		if d <= 0 {
			return 0
		}
		inter *= d
	}
	union := o.Volume() + other.Volume() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Shifted returns a copy of the object translated by offset and scaled by
// scale (nil scale means 1).
func (o Object) Shifted(offset []int, scale []float64) Object {
	out := o
	out.Min = shift(o.Min, offset, scale)
	out.Max = shift(o.Max, offset, scale)
	return out
}

// Point is a detected location in tile-local coordinates (global after
// stitching).
type Point struct {
	Coord []float64 `json:"coord" bson:"coord"`
	Score float64   `json:"score,omitempty" bson:"score,omitempty"`
	Label string    `json:"label,omitempty" bson:"label,omitempty"`

	Tile  Index `json:"tile,omitempty" bson:"tile,omitempty"`
	Order int   `json:"order" bson:"order"`
}

// Shifted returns a copy of the point translated by offset and scaled by scale.
func (p Point) Shifted(offset []int, scale []float64) Point {
	out := p
	out.Coord = shift(p.Coord, offset, scale)
	return out
}

func shift(v []float64, offset []int, scale []float64) []float64 {
	out := slices.Clone(v)
	for i := range out {
		if i >= len(offset) {
			break
		}
		f := 1.0
		if i < len(scale) {
			f = scale[i]
		}
		out[i] += float64(offset[i]) * f
	}
	return out
}

// Value is the output of a user function for one tile. Exactly the field
// selected by Kind is meaningful.
type Value struct {
	Kind    Kind           `json:"kind"`
	Array   *ndarray.Array `json:"array,omitempty"`
	Objects []Object       `json:"objects,omitempty"`
	Points  []Point        `json:"points,omitempty"`
	Scalar  float64        `json:"scalar,omitempty"`
	Raw     any            `json:"raw,omitempty"`
}

// ArrayValue wraps a dense array output.
func ArrayValue(a *ndarray.Array) Value { return Value{Kind: KindArray, Array: a} }

// ObjectsValue wraps a list of detected objects.
func ObjectsValue(objs []Object) Value { return Value{Kind: KindObjects, Objects: objs} }

// CoordsValue wraps a list of points.
func CoordsValue(pts []Point) Value { return Value{Kind: KindCoords, Points: pts} }

// ScalarValue wraps a single number.
func ScalarValue(v float64) Value { return Value{Kind: KindScalar, Scalar: v} }

// RawValue wraps an opaque value that only passthrough stitching accepts.
func RawValue(v any) Value { return Value{Kind: KindRaw, Raw: v} }

// Validate checks that the variant matches its tag.
func (v Value) Validate() error {
	switch v.Kind {
	case KindArray:
		if v.Array == nil {
			return errors.New(errors.ErrCodeInvalidInput, "array output is nil")
		}
	case KindObjects:
		for i, o := range v.Objects {
			if len(o.Min) == 0 || len(o.Min) != len(o.Max) {
				return errors.New(errors.ErrCodeInvalidInput, "object %d has malformed box", i)
			}
		}
	case KindCoords:
		for i, p := range v.Points {
			if len(p.Coord) == 0 {
				return errors.New(errors.ErrCodeInvalidInput, "point %d has no coordinates", i)
			}
		}
	case KindScalar, KindRaw:
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown output kind %v", v.Kind)
	}
	return nil
}

// ValidateRank checks v like Validate and also requires every object box and
// point to have exactly rank coordinates, one per tiled axis.
func (v Value) ValidateRank(rank int) error {
	if err := v.Validate(); err != nil {
		return err
	}
	for i, o := range v.Objects {
		if len(o.Min) != rank {
			return errors.New(errors.ErrCodeInvalidInput, "object %d has %d coordinates, want %d", i, len(o.Min), rank)
		}
	}
	for i, p := range v.Points {
		if len(p.Coord) != rank {
			return errors.New(errors.ErrCodeInvalidInput, "point %d has %d coordinates, want %d", i, len(p.Coord), rank)
		}
	}
	return nil
}

// Result pairs a tile with the value its function produced.
type Result struct {
	Tile  Tile  `json:"tile"`
	Value Value `json:"value"`
}

// SortResults orders results row-major by tile ordinal.
func SortResults(rs []Result) {
	slices.SortStableFunc(rs, func(a, b Result) int { return a.Tile.Index.Compare(b.Tile.Index) })
}

// CommonKind returns the kind shared by all results, or an
// UNSUPPORTED_OUTPUT_TYPE error when the set is empty or mixed.
func CommonKind(rs []Result) (Kind, error) {
	if len(rs) == 0 {
		return 0, errors.New(errors.ErrCodeUnsupportedOutputType, "no tile results")
	}
	k := rs[0].Value.Kind
	for _, r := range rs[1:] {
		if r.Value.Kind != k {
			return 0, errors.New(errors.ErrCodeUnsupportedOutputType,
				"mixed output kinds: tile %s is %s, tile %s is %s", rs[0].Tile.Index, k, r.Tile.Index, r.Value.Kind)
		}
	}
	return k, nil
}
