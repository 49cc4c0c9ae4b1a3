package stitch

import (
	"context"
	"math"
	"slices"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// LabelMerge stitches instance label masks: arrays where 0 is background and
// every other integer names one object within its tile.
//
// Each tile writes its seam region with labels made unique across tiles.
// Labels that claim the same pixel in an overlap are then the same object and
// are merged; on axes without overlap, labels touching across a seam are
// merged instead. Finally labels are renumbered from 1 in raster order within
// every plane of the leading axes. The output is int32.
//
// LabelMerge is never chosen by output kind; name it in Config.Policy.
type LabelMerge struct{}

func (LabelMerge) Name() string { return PolicyLabelMerge }

func (LabelMerge) Accepts(k tile.Kind) bool { return k == tile.KindArray }

func (LabelMerge) Combine(ctx context.Context, p *tile.Partition, results []tile.Result, cfg Config) (*Stitched, error) {
	l, err := newLayout(p, results, cfg)
	if err != nil {
		return nil, err
	}
	for i, s := range l.scale {
		if s != 1 {
			return nil, errors.New(errors.ErrCodeInvalidInput, "label masks cannot be rescaled (axis %d scale %g)", i, s)
		}
	}
	for _, r := range results {
		got := r.Value.Array.Shape()[len(l.lead):]
		if want := r.Tile.Box.Shape(); !slices.Equal(got, want) {
			return nil, errors.New(errors.ErrCodeInvalidInput, "tile %s mask extent %v does not match tile %v", r.Tile.Index, got, want)
		}
	}

	m := &labelMerge{
		layout: l,
		out:    ndarray.New(ndarray.Int32, l.shape...),
		ids:    make([]map[planeLabel]int, len(results)),
		sets:   unionFind{parent: []int{0}},
	}
	for k, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := m.own(k, r); err != nil {
			return nil, err
		}
	}
	for k, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.joinOverlap(k, r)
	}
	m.joinTouching(p.OverlapSizes())
	m.renumber()
	return &Stitched{Value: tile.ArrayValue(m.out), Scale: l.scale}, nil
}

type planeLabel struct {
	plane int
	label int
}

type labelMerge struct {
	*layout
	out  *ndarray.Array
	ids  []map[planeLabel]int // Per result: local label to global id
	sets unionFind
}

func (m *labelMerge) nl() int { return len(m.lead) }

// plane flattens the leading part of an index.
func (m *labelMerge) plane(idx []int) int {
	p := 0
	for i, n := range m.lead {
		p = p*n + idx[i]
	}
	return p
}

// own writes the seam region of result k with fresh global ids.
func (m *labelMerge) own(k int, r tile.Result) error {
	m.ids[k] = make(map[planeLabel]int)
	arr := r.Value.Array
	origin := r.Tile.Box.Lo()
	g := make([]int, arr.Rank())
	var bad error
	arr.Each(func(idx []int, off int) {
		v := arr.Data()[off]
		if v == 0 || bad != nil {
			return
		}
		if v < 0 || v != math.Trunc(v) {
			bad = errors.New(errors.ErrCodeInvalidInput, "tile %s has label %g, want non-negative integers", r.Tile.Index, v)
			return
		}
		m.global(g, idx, origin)
		if !r.Tile.Seam.Contains(g[m.nl():]) {
			return
		}
		key := planeLabel{plane: m.plane(idx), label: int(v)}
		id, ok := m.ids[k][key]
		if !ok {
			id = m.sets.add()
			m.ids[k][key] = id
		}
		m.out.Set(float64(id), g...)
	})
	return bad
}

// joinOverlap merges each label of result k with whatever label owns the
// pixels it covers outside its own seam.
func (m *labelMerge) joinOverlap(k int, r tile.Result) {
	arr := r.Value.Array
	origin := r.Tile.Box.Lo()
	g := make([]int, arr.Rank())
	arr.Each(func(idx []int, off int) {
		v := arr.Data()[off]
		if v == 0 {
			return
		}
		m.global(g, idx, origin)
		if r.Tile.Seam.Contains(g[m.nl():]) {
			return
		}
		id, ok := m.ids[k][planeLabel{plane: m.plane(idx), label: int(v)}]
		if !ok {
			return
		}
		if other := int(m.out.At(g...)); other != 0 {
			m.sets.union(id, other)
		}
	})
}

// joinTouching merges labels on either side of a seam on axes tiled without
// overlap, where no pixel is seen by two tiles.
func (m *labelMerge) joinTouching(overlap []int) {
	nl := m.nl()
	seams := make([][]int, len(overlap))
	for a, o := range overlap {
		if o == 0 {
			s := m.p.Axis(a).Seams
			seams[a] = s[1 : len(s)-1]
		}
	}
	next := make([]int, m.out.Rank())
	data := m.out.Data()
	m.out.Each(func(idx []int, off int) {
		id := int(data[off])
		if id == 0 {
			return
		}
		for a, s := range seams {
			if !slices.Contains(s, idx[nl+a]+1) {
				continue
			}
			copy(next, idx)
			next[nl+a]++
			if other := int(m.out.At(next...)); other != 0 {
				m.sets.union(id, other)
			}
		}
	})
}

// renumber replaces global ids by their merged label, numbered from 1 in
// raster order within each plane.
func (m *labelMerge) renumber() {
	final := make(map[planeLabel]int)
	counts := make(map[int]int)
	data := m.out.Data()
	m.out.Each(func(idx []int, off int) {
		id := int(data[off])
		if id == 0 {
			return
		}
		pl := m.plane(idx)
		key := planeLabel{plane: pl, label: m.sets.find(id)}
		n, ok := final[key]
		if !ok {
			counts[pl]++
			n = counts[pl]
			final[key] = n
		}
		data[off] = float64(n)
	})
}

func (m *labelMerge) global(g, idx, origin []int) {
	nl := m.nl()
	copy(g, idx)
	for i, o := range origin {
		g[nl+i] += o
	}
}

// unionFind is a disjoint-set forest over ids 1..n; slot 0 is unused.
type unionFind struct {
	parent []int
}

func (u *unionFind) add() int {
	id := len(u.parent)
	u.parent = append(u.parent, id)
	return id
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union keeps the smaller root so merging is order independent.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	switch {
	case ra < rb:
		u.parent[rb] = ra
	case rb < ra:
		u.parent[ra] = rb
	}
}
