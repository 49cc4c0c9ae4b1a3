package stitch

import (
	"context"
	"slices"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/geometry"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// ArrayBlend stitches dense array outputs.
//
// The output has the leading shape of the tile outputs and the image's tiled
// shape times the output scale, rounded. Overlaps are resolved by the blend
// mode; crop and drop-border output are copied, the other modes accumulate in
// float64 and are cast back to the tiles' dtype.
type ArrayBlend struct{}

func (ArrayBlend) Name() string { return PolicyArrayBlend }

func (ArrayBlend) Accepts(k tile.Kind) bool { return k == tile.KindArray }

func (ArrayBlend) Combine(ctx context.Context, p *tile.Partition, results []tile.Result, cfg Config) (*Stitched, error) {
	l, err := newLayout(p, results, cfg)
	if err != nil {
		return nil, err
	}

	var out *ndarray.Array
	switch mode := cfg.blend(); {
	case cfg.DropBorderOutput || mode == BlendCrop:
		out, err = l.paste(ctx, results, cfg.DropBorderOutput)
	default:
		out, err = l.accumulate(ctx, results, mode)
	}
	if err != nil {
		return nil, err
	}
	return &Stitched{Value: tile.ArrayValue(out), Scale: l.scale}, nil
}

// layout is the output geometry shared by all tiles of one stitch.
type layout struct {
	p     *tile.Partition
	dtype ndarray.DType
	lead  []int     // Leading shape of the tile outputs
	shape []int     // Full output shape
	scale []float64 // Effective scale per tiled axis
}

func newLayout(p *tile.Partition, results []tile.Result, cfg Config) (*layout, error) {
	tiled := p.TiledShape()
	nt := len(tiled)

	first := results[0].Value.Array
	if first.Rank() < nt {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"tile %s output has rank %d, need at least %d", results[0].Tile.Index, first.Rank(), nt)
	}
	fs := first.Shape()
	lead := fs[:len(fs)-nt]

	scale, set, err := cfg.scales(nt)
	if err != nil {
		return nil, err
	}
	if !set {
		box := results[0].Tile.Box.Shape()
		for i := range scale {
			scale[i] = float64(fs[len(lead)+i]) / float64(box[i])
		}
	}

	l := &layout{p: p, dtype: first.DType(), lead: slices.Clone(lead), scale: scale}
	l.shape = slices.Clone(lead)
	for i, s := range tiled {
		n := geometry.Round(float64(s) * scale[i])
		l.shape = append(l.shape, n)
		l.scale[i] = float64(n) / float64(s)
	}

	for _, r := range results {
		a := r.Value.Array
		if a.DType() != l.dtype {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"tile %s output is %s, tile %s is %s", r.Tile.Index, a.DType(), results[0].Tile.Index, l.dtype)
		}
		if a.Rank() != first.Rank() || !slices.Equal(a.Shape()[:len(lead)], lead) {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"tile %s output shape %v does not match %v", r.Tile.Index, a.Shape(), fs)
		}
		want := r.Tile.Box.Scale(l.scale).Shape()
		got := a.Shape()[len(lead):]
		for i := range want {
			if d := got[i] - want[i]; d > 1 || d < -1 {
				return nil, errors.New(errors.ErrCodeInvalidInput,
					"tile %s output extent %v does not match scaled tile %v", r.Tile.Index, got, want)
			}
		}
	}
	return l, nil
}

// extent is the global region covered by a tile's output: the scaled tile
// box, clipped to the array when rounding left it a pixel short.
func (l *layout) extent(r tile.Result) geometry.Box {
	box := r.Tile.Box.Scale(l.scale)
	shape := r.Value.Array.Shape()[len(l.lead):]
	for i := range box {
		box[i].End = min(box[i].End, box[i].Start+shape[i])
	}
	return box
}

// slice cuts the global tiled region out of a tile's output, leading axes whole.
func (l *layout) slice(r tile.Result, region geometry.Box) (*ndarray.Array, error) {
	origin := r.Tile.Box.Scale(l.scale).Lo()
	local := region.Translate(origin).Prepend(geometry.FullBox(l.lead)...)
	return r.Value.Array.Slice(local)
}

func (l *layout) origin(region geometry.Box) []int {
	return append(make([]int, len(l.lead)), region.Lo()...)
}

// paste copies each tile's region into the output in row-major order, so the
// later tile wins where regions overlap.
func (l *layout) paste(ctx context.Context, results []tile.Result, seamOnly bool) (*ndarray.Array, error) {
	out := ndarray.New(l.dtype, l.shape...)
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		region := l.extent(r)
		if seamOnly {
			region = r.Tile.Seam.Scale(l.scale).Intersect(region)
		}
		if region.Empty() {
			continue
		}
		piece, err := l.slice(r, region)
		if err != nil {
			return nil, err
		}
		if err := out.Paste(piece, l.origin(region)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l *layout) accumulate(ctx context.Context, results []tile.Result, mode BlendMode) (*ndarray.Array, error) {
	acc := ndarray.New(ndarray.Float64, l.shape...)
	weight := make([]float64, acc.Len())
	nl := len(l.lead)
	g := make([]int, len(l.shape))

	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		region := l.extent(r)
		piece, err := l.slice(r, region)
		if err != nil {
			return nil, err
		}
		var axisW [][]float64
		if mode == BlendLinear {
			axisW = l.axisWeights(r.Tile)
		}
		data := piece.Data()
		piece.Each(func(idx []int, off int) {
			w := 1.0
			copy(g, idx)
			for i := range region {
				g[nl+i] += region[i].Start
				if axisW != nil {
					w *= axisW[i][idx[nl+i]]
				}
			}
			at := acc.Offset(g...)
			v := data[off]
			switch mode {
			case BlendLinear:
				acc.Data()[at] += w * v
				weight[at] += w
			case BlendMax:
				if weight[at] == 0 || v > acc.Data()[at] {
					acc.Data()[at] = v
				}
				weight[at] = 1
			case BlendMin:
				if weight[at] == 0 || v < acc.Data()[at] {
					acc.Data()[at] = v
				}
				weight[at] = 1
			}
		})
	}

	if mode == BlendLinear {
		for i, w := range weight {
			if w > 0 {
				acc.Data()[i] /= w
			}
		}
	}
	return acc.Cast(l.dtype), nil
}

// axisWeights returns the per-axis linear ramps of a tile over its extent,
// indexed by tile-local output position.
func (l *layout) axisWeights(t tile.Tile) [][]float64 {
	box := t.Box.Scale(l.scale)
	margins := scaledMargins(l.p, t, l.scale)
	out := make([][]float64, len(box))
	for i, iv := range box {
		out[i] = ramp(iv.Len(), margins[i].Lo, margins[i].Hi)
	}
	return out
}

// ramp rises linearly over the lo margin and falls over the hi margin,
// sampled at pixel centres. Two ramps facing each other over the same
// overlap sum to 1 at every pixel and cross at 0.5 on the midline.
func ramp(n, lo, hi int) []float64 {
	w := make([]float64, n)
	for x := range w {
		v := 1.0
		if lo > 0 {
			v = min(v, (float64(x)+0.5)/float64(lo))
		}
		if hi > 0 {
			v = min(v, (float64(n-x)-0.5)/float64(hi))
		}
		w[x] = v
	}
	return w
}

// scaledMargins measures a tile's overlap with its predecessor and successor
// on each axis after scaling.
func scaledMargins(p *tile.Partition, t tile.Tile, scale []float64) []tile.Margin {
	out := make([]tile.Margin, len(t.Index))
	for a, i := range t.Index {
		ax := p.Axis(a)
		cur := ax.Tiles[i].Scale(scale[a])
		if i > 0 {
			out[a].Lo = max(0, ax.Tiles[i-1].Scale(scale[a]).End-cur.Start)
		}
		if i < ax.Count()-1 {
			out[a].Hi = max(0, cur.End-ax.Tiles[i+1].Scale(scale[a]).Start)
		}
	}
	return out
}

// LinearWeight returns the unnormalized linear blend weight of tile t at the
// global output position pos (tiled axes only). It is 0 outside the tile.
func LinearWeight(p *tile.Partition, t tile.Tile, scale []float64, pos []int) float64 {
	if scale == nil {
		scale = make([]float64, len(t.Box))
		for i := range scale {
			scale[i] = 1
		}
	}
	box := t.Box.Scale(scale)
	if !box.Contains(pos) {
		return 0
	}
	margins := scaledMargins(p, t, scale)
	w := 1.0
	for i, iv := range box {
		w *= ramp(iv.Len(), margins[i].Lo, margins[i].Hi)[pos[i]-iv.Start]
	}
	return w
}
