package ndarray

import (
	"fmt"
	"math"

	"github.com/matzehuels/tilestitch/pkg/errors"
)

// DType is the element type an array represents. Values are held as float64
// in memory; the DType governs casting, clamping and on-disk width.
type DType uint8

const (
	Uint8 DType = iota
	Uint16
	Int16
	Int32
	Float32
	Float64
)

var dtypeNames = map[DType]string{
	Uint8:   "uint8",
	Uint16:  "uint16",
	Int16:   "int16",
	Int32:   "int32",
	Float32: "float32",
	Float64: "float64",
}

func (d DType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// ParseDType converts a name such as "uint8" to a DType.
func ParseDType(s string) (DType, error) {
	for d, name := range dtypeNames {
		if name == s {
			return d, nil
		}
	}
	return 0, errors.New(errors.ErrCodeInvalidInput, "unknown dtype %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (d DType) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DType) UnmarshalText(b []byte) error {
	v, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Size returns the element width in bytes.
func (d DType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Uint16, Int16:
		return 2
	case Int32, Float32:
		return 4
	default:
		return 8
	}
}

// IsInteger reports whether values of this type are whole numbers.
func (d DType) IsInteger() bool { return d <= Int32 }

// Limits returns the representable range. Float types report ±MaxFloat.
func (d DType) Limits() (lo, hi float64) {
	switch d {
	case Uint8:
		return 0, math.MaxUint8
	case Uint16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Float32:
		return -math.MaxFloat32, math.MaxFloat32
	}
	return -math.MaxFloat64, math.MaxFloat64
}

// Convert maps v onto the type: integers are rounded half to even and
// clamped, float32 loses precision, NaN becomes 0 for integer types.
func (d DType) Convert(v float64) float64 {
	switch {
	case d.IsInteger():
		if math.IsNaN(v) {
			return 0
		}
		lo, hi := d.Limits()
		return math.Max(lo, math.Min(hi, math.RoundToEven(v)))
	case d == Float32:
		return float64(float32(v))
	}
	return v
}
