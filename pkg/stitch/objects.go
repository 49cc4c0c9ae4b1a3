package stitch

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/matzehuels/tilestitch/pkg/geometry"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// ObjectMerge stitches detected boxes.
//
// Boxes are moved into global coordinates. A box that lies wholly inside its
// tile's core is kept as is. The remaining boxes are visited by score
// (highest first) and dropped when their IoU with any box already kept
// reaches the dedup threshold.
type ObjectMerge struct{}

func (ObjectMerge) Name() string { return PolicyObjectMerge }

func (ObjectMerge) Accepts(k tile.Kind) bool { return k == tile.KindObjects }

func (ObjectMerge) Combine(ctx context.Context, p *tile.Partition, results []tile.Result, cfg Config) (*Stitched, error) {
	scale, _, err := cfg.scales(len(p.Grid()))
	if err != nil {
		return nil, err
	}
	threshold := cfg.DedupThreshold
	if threshold <= 0 {
		threshold = DefaultIoUThreshold
	}

	var kept, candidates []tile.Object
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		core := scaledBounds(r.Tile.Core(), scale)
		seam := scaledBounds(r.Tile.Seam, scale)
		for i, o := range r.Value.Objects {
			g := o.Shifted(r.Tile.Offset(), scale)
			g.Tile = r.Tile.Index
			g.Order = i
			switch {
			case cfg.DropBorderOutput:
				if seam.containsPoint(center(g)) {
					kept = append(kept, g)
				}
			case core.containsBox(g.Min, g.Max):
				kept = append(kept, g)
			default:
				candidates = append(candidates, g)
			}
		}
	}

	slices.SortStableFunc(candidates, func(a, b tile.Object) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return compareProvenance(a.Tile, a.Order, b.Tile, b.Order)
	})
	for _, c := range candidates {
		if !suppressedBy(c, kept, threshold) {
			kept = append(kept, c)
		}
	}

	slices.SortStableFunc(kept, func(a, b tile.Object) int {
		return compareProvenance(a.Tile, a.Order, b.Tile, b.Order)
	})
	return &Stitched{Value: tile.ObjectsValue(kept), Scale: scale}, nil
}

func suppressedBy(o tile.Object, kept []tile.Object, threshold float64) bool {
	for _, k := range kept {
		if o.IoU(k) >= threshold {
			return true
		}
	}
	return false
}

func compareProvenance(ta tile.Index, oa int, tb tile.Index, ob int) int {
	if c := ta.Compare(tb); c != 0 {
		return c
	}
	return cmp.Compare(oa, ob)
}

func center(o tile.Object) []float64 {
	c := make([]float64, len(o.Min))
	for i := range c {
		c[i] = (o.Min[i] + o.Max[i]) / 2
	}
	return c
}

// bounds is a box in continuous output coordinates.
type bounds struct{ lo, hi []float64 }

func scaledBounds(b geometry.Box, scale []float64) bounds {
	out := bounds{lo: make([]float64, len(b)), hi: make([]float64, len(b))}
	for i, iv := range b {
		out.lo[i] = float64(iv.Start) * scale[i]
		out.hi[i] = float64(iv.End) * scale[i]
	}
	return out
}

func (b bounds) containsBox(lo, hi []float64) bool {
	if len(lo) != len(b.lo) {
		return false
	}
	for i := range lo {
		if lo[i] < b.lo[i] || hi[i] > b.hi[i] {
			return false
		}
	}
	return true
}

// containsPoint treats the upper edge as open so neighbouring seam regions
// never both claim a point.
func (b bounds) containsPoint(pt []float64) bool {
	if len(pt) != len(b.lo) {
		return false
	}
	for i, x := range pt {
		if x < b.lo[i] || x >= b.hi[i] {
			return false
		}
	}
	return true
}

// distance is the Euclidean distance from pt to the box, 0 inside.
func (b bounds) distance(pt []float64) float64 {
	var sum float64
	for i, x := range pt {
		if i >= len(b.lo) {
			break
		}
		d := max(b.lo[i]-x, 0, x-b.hi[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
