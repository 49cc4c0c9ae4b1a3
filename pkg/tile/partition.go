package tile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/geometry"
)

// Partition is an immutable tiling of an image.
type Partition struct {
	shape     []int
	tileShape []int
	overlap   []float64
	mode      geometry.OverlapMode
	axes      []geometry.Axis
	grid      []int
	tiles     []Tile
	ordinals  map[string]int
	key       string
}

// Build tiles the trailing len(tileShape) axes of shape. overlap holds one
// value for every tiled axis or a single value for all of them, interpreted
// according to mode. Build is pure and deterministic.
func Build(shape, tileShape []int, overlap []float64, mode geometry.OverlapMode) (*Partition, error) {
	if mode == "" {
		mode = geometry.OverlapAbsolute
	}
	axes, err := geometry.Plan(shape, tileShape, overlap, mode)
	if err != nil {
		return nil, err
	}

	p := &Partition{
		shape:     slices.Clone(shape),
		tileShape: slices.Clone(tileShape),
		overlap:   slices.Clone(overlap),
		mode:      mode,
		axes:      axes,
		grid:      make([]int, len(axes)),
		key:       Key(shape, tileShape, overlap, mode),
	}
	n := 1
	for i, ax := range axes {
		p.grid[i] = ax.Count()
		n *= ax.Count()
	}

	p.tiles = make([]Tile, 0, n)
	p.ordinals = make(map[string]int, n)
	idx := make([]int, len(axes))
	for ord := range n {
		t := p.makeTile(slices.Clone(idx), ord)
		p.tiles = append(p.tiles, t)
		p.ordinals[t.Key()] = ord
		for ax := len(idx) - 1; ax >= 0; ax-- {
			idx[ax]++
			if idx[ax] < p.grid[ax] {
				break
			}
			idx[ax] = 0
		}
	}
	return p, nil
}

func (p *Partition) makeTile(idx Index, ord int) Tile {
	t := Tile{
		Index:   idx,
		Ordinal: ord,
		Box:     make(geometry.Box, len(idx)),
		Overlap: make([]Margin, len(idx)),
		Border:  make([]Border, len(idx)),
		Seam:    make(geometry.Box, len(idx)),
	}
	for a, i := range idx {
		ax := p.axes[a]
		t.Box[a] = ax.Tiles[i]
		t.Overlap[a] = Margin{Lo: ax.OverlapLo(i), Hi: ax.OverlapHi(i)}
		t.Border[a] = Border{Lo: i == 0, Hi: i == ax.Count()-1}
		t.Seam[a] = ax.Owner(i)
	}
	return t
}

// Key returns the geometry key under which a partition is cached.
func Key(shape, tileShape []int, overlap []float64, mode geometry.OverlapMode) string {
	if mode == "" {
		mode = geometry.OverlapAbsolute
	}
	return fmt.Sprintf("shape=%s;tile=%s;overlap=%s;mode=%s",
		joinInts(shape), joinInts(tileShape), joinFloats(overlap), mode)
}

// Key returns the geometry key of the partition.
func (p *Partition) Key() string { return p.key }

// Shape returns the image shape.
func (p *Partition) Shape() []int { return slices.Clone(p.shape) }

// TileShape returns the requested tile shape.
func (p *Partition) TileShape() []int { return slices.Clone(p.tileShape) }

// Overlap returns the overlap values as given to Build.
func (p *Partition) Overlap() []float64 { return slices.Clone(p.overlap) }

// Mode returns the overlap mode.
func (p *Partition) Mode() geometry.OverlapMode { return p.mode }

// OverlapSizes returns the overlap in cells for each tiled axis.
func (p *Partition) OverlapSizes() []int {
	out := make([]int, len(p.axes))
	for i, ax := range p.axes {
		out[i] = ax.Overlap
	}
	return out
}

// Grid returns the number of tiles along each tiled axis.
func (p *Partition) Grid() []int { return slices.Clone(p.grid) }

// Lead returns the number of leading, untiled axes.
func (p *Partition) Lead() int { return len(p.shape) - len(p.axes) }

// LeadingShape returns the extent of the untiled axes.
func (p *Partition) LeadingShape() []int { return slices.Clone(p.shape[:p.Lead()]) }

// TiledShape returns the extent of the tiled axes.
func (p *Partition) TiledShape() []int { return slices.Clone(p.shape[p.Lead():]) }

// Axis returns the tiling of tiled axis i.
func (p *Partition) Axis(i int) geometry.Axis {
	ax := p.axes[i]
	ax.Tiles = slices.Clone(ax.Tiles)
	ax.Seams = slices.Clone(ax.Seams)
	return ax
}

// Len returns the number of tiles.
func (p *Partition) Len() int { return len(p.tiles) }

// Tiles returns copies of all tiles in row-major order. Partitions are
// shared between goroutines, so callers never see the internal tiles.
func (p *Partition) Tiles() []Tile {
	out := make([]Tile, len(p.tiles))
	for i, t := range p.tiles {
		out[i] = t.Clone()
	}
	return out
}

// At returns a copy of the tile with the given row-major ordinal.
func (p *Partition) At(ordinal int) Tile { return p.tiles[ordinal].Clone() }

// Tile looks up a tile by grid index.
func (p *Partition) Tile(idx Index) (Tile, bool) {
	ord, ok := p.Ordinal(idx)
	if !ok {
		return Tile{}, false
	}
	return p.tiles[ord].Clone(), true
}

// Ordinal returns the row-major position of idx.
func (p *Partition) Ordinal(idx Index) (int, bool) {
	if len(idx) != len(p.grid) {
		return 0, false
	}
	ord, ok := p.ordinals[idx.Key()]
	return ord, ok
}

// ReadBox returns the full-rank region a tile reads from the image: the tile
// box prefixed with the whole extent of every leading axis.
func (p *Partition) ReadBox(t Tile) geometry.Box {
	lead := make([]geometry.Interval, p.Lead())
	for i := range lead {
		lead[i] = geometry.Interval{End: p.shape[i]}
	}
	return t.Box.Prepend(lead...)
}

// Neighbors returns the face-adjacent tiles of idx, ordered by axis and then
// predecessor before successor.
func (p *Partition) Neighbors(idx Index) ([]Neighbor, error) {
	if _, ok := p.Ordinal(idx); !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "tile %s not in partition", idx)
	}
	var out []Neighbor
	for a := range idx {
		for _, side := range []int{-1, 1} {
			j := idx[a] + side
			if j < 0 || j >= p.grid[a] {
				continue
			}
			n := slices.Clone(idx)
			n[a] = j
			out = append(out, Neighbor{Axis: a, Side: side, Index: n})
		}
	}
	return out, nil
}

// VerifyComplete checks that results hold exactly one entry for every tile
// of the partition. It returns an *errors.IncompleteTileSetError otherwise.
func (p *Partition) VerifyComplete(results []Result) error {
	seen := make([]int, len(p.tiles))
	var unknown [][]int
	for _, r := range results {
		ord, ok := p.Ordinal(r.Tile.Index)
		if !ok {
			unknown = append(unknown, r.Tile.Index)
			continue
		}
		seen[ord]++
	}

	var missing, dup [][]int
	for ord, n := range seen {
		switch {
		case n == 0:
			missing = append(missing, slices.Clone(p.tiles[ord].Index))
		case n > 1:
			dup = append(dup, slices.Clone(p.tiles[ord].Index))
		}
	}
	if len(missing) == 0 && len(dup) == 0 && len(unknown) == 0 {
		return nil
	}
	return &errors.IncompleteTileSetError{Missing: missing, Duplicate: dup, Unknown: unknown}
}

func (p *Partition) String() string {
	return fmt.Sprintf("partition %s grid=%s tiles=%d", joinInts(p.shape), joinInts(p.grid), len(p.tiles))
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = fmt.Sprint(x)
	}
	return strings.Join(s, "x")
}

func joinFloats(v []float64) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = fmt.Sprint(x)
	}
	return strings.Join(s, ",")
}
