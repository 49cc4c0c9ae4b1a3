package stitch

import (
	"context"
	"slices"

	"github.com/matzehuels/tilestitch/pkg/tile"
)

// Passthrough returns the results unchanged, ordered row-major. It accepts
// every kind and is the only policy for scalars and raw values.
type Passthrough struct{}

func (Passthrough) Name() string { return PolicyPassthrough }

func (Passthrough) Accepts(tile.Kind) bool { return true }

func (Passthrough) Combine(_ context.Context, _ *tile.Partition, results []tile.Result, _ Config) (*Stitched, error) {
	out := &Stitched{Results: slices.Clone(results)}
	if k, err := tile.CommonKind(results); err == nil {
		out.Value.Kind = k
	} else {
		out.Value.Kind = tile.KindRaw
	}
	return out, nil
}
