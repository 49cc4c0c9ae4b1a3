// Package ndarray provides a minimal dense N-dimensional array used to carry
// tile pixels between sources, user functions and stitch policies.
//
// Arrays are row-major. Element values are stored as float64 regardless of
// DType so that blending can accumulate without intermediate conversions;
// [Array.Cast] applies the rounding and clamping of the target type.
package ndarray

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/geometry"
)

// Array is a dense row-major N-D array.
type Array struct {
	dtype   DType
	shape   []int
	strides []int
	data    []float64
}

// New allocates a zero-filled array.
func New(dt DType, shape ...int) *Array {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Array{
		dtype:   dt,
		shape:   slices.Clone(shape),
		strides: stridesOf(shape),
		data:    make([]float64, n),
	}
}

// FromData wraps data as an array of the given shape. The slice is not copied.
func FromData(dt DType, shape []int, data []float64) (*Array, error) {
	n := 1
	for _, s := range shape {
		if s < 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput, "negative dimension in shape %v", shape)
		}
		n *= s
	}
	if n != len(data) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "shape %v needs %d elements, got %d", shape, n, len(data))
	}
	return &Array{dtype: dt, shape: slices.Clone(shape), strides: stridesOf(shape), data: data}, nil
}

func stridesOf(shape []int) []int {
	st := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= shape[i]
	}
	return st
}

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Shape returns a copy of the dimensions.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

// Rank returns the number of axes.
func (a *Array) Rank() int { return len(a.shape) }

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.data) }

// Data returns the backing slice in row-major order.
func (a *Array) Data() []float64 { return a.data }

// Offset returns the flat position of idx.
func (a *Array) Offset(idx ...int) int {
	off := 0
	for i, x := range idx {
		off += x * a.strides[i]
	}
	return off
}

// At returns the value at idx.
func (a *Array) At(idx ...int) float64 { return a.data[a.Offset(idx...)] }

// Set stores v at idx without conversion.
func (a *Array) Set(v float64, idx ...int) { a.data[a.Offset(idx...)] = v }

// Fill sets every element to v.
func (a *Array) Fill(v float64) {
	for i := range a.data {
		a.data[i] = v
	}
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{dtype: a.dtype, shape: slices.Clone(a.shape), strides: slices.Clone(a.strides), data: slices.Clone(a.data)}
}

// Cast returns a copy converted to dt.
func (a *Array) Cast(dt DType) *Array {
	out := &Array{dtype: dt, shape: slices.Clone(a.shape), strides: slices.Clone(a.strides), data: make([]float64, len(a.data))}
	for i, v := range a.data {
		out.data[i] = dt.Convert(v)
	}
	return out
}

// Equal reports whether both arrays have the same dtype, shape and values.
func (a *Array) Equal(o *Array) bool {
	return a.dtype == o.dtype && slices.Equal(a.shape, o.shape) && slices.Equal(a.data, o.data)
}

// Slice copies the region box out of the array. box must have the array's rank.
func (a *Array) Slice(box geometry.Box) (*Array, error) {
	if err := a.checkBox(box); err != nil {
		return nil, err
	}
	out := New(a.dtype, box.Shape()...)
	if out.Len() == 0 {
		return out, nil
	}
	last := len(box) - 1
	run := box[last].Len()
	src := make([]int, len(box))
	dstOff := 0
	Rows(box.Shape(), func(idx []int) {
		for i := range idx {
			src[i] = idx[i] + box[i].Start
		}
		off := a.Offset(src...)
		copy(out.data[dstOff:dstOff+run], a.data[off:off+run])
		dstOff += run
	})
	return out, nil
}

// Paste writes src into a with src's origin at origin. The pasted region must
// lie inside a; ranks must match.
func (a *Array) Paste(src *Array, origin []int) error {
	if len(origin) != a.Rank() || src.Rank() != a.Rank() {
		return errors.New(errors.ErrCodeInvalidInput, "paste rank mismatch: dst %d, src %d, origin %d", a.Rank(), src.Rank(), len(origin))
	}
	box := make(geometry.Box, a.Rank())
	for i := range box {
		box[i] = geometry.Interval{Start: origin[i], End: origin[i] + src.shape[i]}
	}
	if err := a.checkBox(box); err != nil {
		return err
	}
	if src.Len() == 0 {
		return nil
	}
	last := a.Rank() - 1
	run := src.shape[last]
	dst := make([]int, a.Rank())
	srcOff := 0
	Rows(src.shape, func(idx []int) {
		for i := range idx {
			dst[i] = idx[i] + origin[i]
		}
		off := a.Offset(dst...)
		copy(a.data[off:off+run], src.data[srcOff:srcOff+run])
		srcOff += run
	})
	return nil
}

func (a *Array) checkBox(box geometry.Box) error {
	if len(box) != a.Rank() {
		return errors.New(errors.ErrCodeInvalidInput, "region rank %d does not match array rank %d", len(box), a.Rank())
	}
	for i, iv := range box {
		if iv.Start < 0 || iv.End > a.shape[i] || iv.End < iv.Start {
			return errors.New(errors.ErrCodeInvalidInput, "region %v out of bounds for shape %v", box, a.shape)
		}
	}
	return nil
}

// Rows calls fn once per row of a row-major array with the given shape: idx
// ranges over every combination of the leading axes with the last axis at 0.
// idx is reused between calls.
func Rows(shape []int, fn func(idx []int)) {
	if len(shape) == 0 {
		return
	}
	for _, s := range shape {
		if s == 0 {
			return
		}
	}
	idx := make([]int, len(shape))
	for {
		fn(idx)
		ax := len(shape) - 2
		for ; ax >= 0; ax-- {
			idx[ax]++
			if idx[ax] < shape[ax] {
				break
			}
			idx[ax] = 0
		}
		if ax < 0 {
			return
		}
	}
}

// Each calls fn for every element with its index and flat offset, in
// row-major order. idx is reused between calls.
func (a *Array) Each(fn func(idx []int, off int)) {
	if a.Len() == 0 {
		return
	}
	idx := make([]int, a.Rank())
	for off := range a.data {
		fn(idx, off)
		for ax := len(idx) - 1; ax >= 0; ax-- {
			idx[ax]++
			if idx[ax] < a.shape[ax] {
				break
			}
			idx[ax] = 0
		}
	}
}

func (a *Array) String() string {
	return fmt.Sprintf("ndarray(%s, %v)", a.dtype, a.shape)
}

type arrayJSON struct {
	DType DType     `json:"dtype"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (a *Array) MarshalJSON() ([]byte, error) {
	return json.Marshal(arrayJSON{DType: a.dtype, Shape: a.shape, Data: a.data})
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Array) UnmarshalJSON(b []byte) error {
	var v arrayJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v.Data == nil {
		v.Data = []float64{}
	}
	arr, err := FromData(v.DType, v.Shape, v.Data)
	if err != nil {
		return err
	}
	*a = *arr
	return nil
}
