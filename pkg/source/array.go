package source

import (
	"context"

	"github.com/matzehuels/tilestitch/pkg/geometry"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
)

// ArraySource serves regions of an in-memory array.
type ArraySource struct {
	arr *ndarray.Array
}

// FromArray wraps an array. The array must not be modified while tiles are
// being read.
func FromArray(a *ndarray.Array) *ArraySource { return &ArraySource{arr: a} }

func (s *ArraySource) Shape() []int         { return s.arr.Shape() }
func (s *ArraySource) DType() ndarray.DType { return s.arr.DType() }

// ReadRegion copies box out of the array.
func (s *ArraySource) ReadRegion(ctx context.Context, box geometry.Box) (*ndarray.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRegion(s.arr.Shape(), box); err != nil {
		return nil, err
	}
	return s.arr.Slice(box)
}

var _ Source = (*ArraySource)(nil)
