package stitch

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/matzehuels/tilestitch/pkg/tile"
)

// CoordinateMerge stitches point detections.
//
// Points are moved into global coordinates. Points inside their tile's core
// are kept. The others are visited nearest-core first, and a point closer
// than the dedup threshold to one already kept is dropped, so of two copies
// the one from the tile whose core it is nearest wins.
type CoordinateMerge struct{}

func (CoordinateMerge) Name() string { return PolicyCoordinateMerge }

func (CoordinateMerge) Accepts(k tile.Kind) bool { return k == tile.KindCoords }

func (CoordinateMerge) Combine(ctx context.Context, p *tile.Partition, results []tile.Result, cfg Config) (*Stitched, error) {
	scale, _, err := cfg.scales(len(p.Grid()))
	if err != nil {
		return nil, err
	}
	threshold := cfg.DedupThreshold
	if threshold <= 0 {
		threshold = DefaultPointDistance
	}

	type candidate struct {
		pt   tile.Point
		dist float64
	}
	var (
		kept       []tile.Point
		candidates []candidate
	)
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		core := scaledBounds(r.Tile.Core(), scale)
		seam := scaledBounds(r.Tile.Seam, scale)
		for i, pt := range r.Value.Points {
			g := pt.Shifted(r.Tile.Offset(), scale)
			g.Tile = r.Tile.Index
			g.Order = i
			if cfg.DropBorderOutput {
				if seam.containsPoint(g.Coord) {
					kept = append(kept, g)
				}
				continue
			}
			d := core.distance(g.Coord)
			if d == 0 {
				kept = append(kept, g)
				continue
			}
			candidates = append(candidates, candidate{pt: g, dist: d})
		}
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return compareProvenance(a.pt.Tile, a.pt.Order, b.pt.Tile, b.pt.Order)
	})
	for _, c := range candidates {
		if !nearAny(c.pt, kept, threshold) {
			kept = append(kept, c.pt)
		}
	}

	slices.SortStableFunc(kept, func(a, b tile.Point) int {
		return compareProvenance(a.Tile, a.Order, b.Tile, b.Order)
	})
	return &Stitched{Value: tile.CoordsValue(kept), Scale: scale}, nil
}

func nearAny(pt tile.Point, kept []tile.Point, threshold float64) bool {
	for _, k := range kept {
		if euclid(pt.Coord, k.Coord) < threshold {
			return true
		}
	}
	return false
}

func euclid(a, b []float64) float64 {
	var sum float64
	for i := range min(len(a), len(b)) {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
