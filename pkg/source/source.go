// Package source provides lazy, region-addressable access to the image being
// tiled.
//
// A [Source] only needs to answer three questions: its shape, its element
// type, and the pixels of an arbitrary box. [Lazy] binds a source to a
// partition so that each tile reads exactly its own region on demand;
// nothing is read until a tile asks for it. Implementations must allow
// concurrent ReadRegion calls.
package source

import (
	"context"
	"slices"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/geometry"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// Source is an image that can be read region by region.
type Source interface {
	Shape() []int
	DType() ndarray.DType
	// ReadRegion returns a copy of the cells in box. box has the source's
	// full rank.
	ReadRegion(ctx context.Context, box geometry.Box) (*ndarray.Array, error)
}

// Lazy reads tiles of a partition from a source.
type Lazy struct {
	src  Source
	part *tile.Partition
}

// NewLazy binds src to p. It fails with INVALID_INPUT if the source shape
// does not match the partition.
func NewLazy(src Source, p *tile.Partition) (*Lazy, error) {
	if src == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "source is nil")
	}
	if !slices.Equal(src.Shape(), p.Shape()) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "source shape %v does not match partition shape %v", src.Shape(), p.Shape())
	}
	return &Lazy{src: src, part: p}, nil
}

// Source returns the underlying source.
func (l *Lazy) Source() Source { return l.src }

// Read returns the pixels of t: its box on the tiled axes and the full
// extent of every leading axis.
func (l *Lazy) Read(ctx context.Context, t tile.Tile) (*ndarray.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := l.part.Ordinal(t.Index); !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "tile %s not in partition", t.Index)
	}
	return l.src.ReadRegion(ctx, l.part.ReadBox(t))
}

// checkRegion validates box against shape.
func checkRegion(shape []int, box geometry.Box) error {
	if len(box) != len(shape) {
		return errors.New(errors.ErrCodeInvalidInput, "region rank %d does not match source rank %d", len(box), len(shape))
	}
	for i, iv := range box {
		if iv.Start < 0 || iv.End > shape[i] || iv.End <= iv.Start {
			return errors.New(errors.ErrCodeInvalidInput, "region %v outside source shape %v", box, shape)
		}
	}
	return nil
}
