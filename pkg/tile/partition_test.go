package tile

import (
	"fmt"
	"testing"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/geometry"
)

func TestBuildScenario(t *testing.T) {
	p, err := Build([]int{100, 100}, []int{60, 60}, []float64{20}, geometry.OverlapAbsolute)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", p.Len())
	}

	want := []string{
		"[0:60,0:60]",
		"[0:60,40:100]",
		"[40:100,0:60]",
		"[40:100,40:100]",
	}
	for i, tl := range p.Tiles() {
		if tl.Box.String() != want[i] {
			t.Errorf("tile %d box = %s, want %s", i, tl.Box, want[i])
		}
		if tl.Ordinal != i {
			t.Errorf("tile %d ordinal = %d", i, tl.Ordinal)
		}
	}

	t01, ok := p.Tile(Index{0, 1})
	if !ok {
		t.Fatal("Tile(0,1) not found")
	}
	if t01.Overlap[1].Lo != 20 || t01.Overlap[1].Hi != 0 || t01.Overlap[0].Hi != 20 {
		t.Errorf("tile (0,1) margins = %+v", t01.Overlap)
	}
	if !t01.Border[0].Lo || t01.Border[0].Hi || t01.Border[1].Lo || !t01.Border[1].Hi {
		t.Errorf("tile (0,1) border = %+v", t01.Border)
	}
	if got := t01.Core().String(); got != "[0:40,60:100]" {
		t.Errorf("tile (0,1) core = %s", got)
	}
	if got := t01.Seam.String(); got != "[0:50,50:100]" {
		t.Errorf("tile (0,1) seam = %s", got)
	}
}

func TestBuildCoverage(t *testing.T) {
	shapes := [][]int{{100, 100}, {37, 91}, {1, 64}, {3, 50, 70}}
	tiles := [][]int{{60, 60}, {16, 20}, {8, 8}, {32, 32}}
	overlaps := []float64{20, 5, 0, 7}

	for i, shape := range shapes {
		t.Run(fmt.Sprint(shape), func(t *testing.T) {
			p, err := Build(shape, tiles[i], []float64{overlaps[i]}, geometry.OverlapAbsolute)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			tiled := p.TiledShape()
			covered := make(map[string]int)
			owned := make(map[string]int)
			for _, tl := range p.Tiles() {
				forEachCell(tl.Box, func(pt []int) { covered[fmt.Sprint(pt)]++ })
				forEachCell(tl.Seam, func(pt []int) { owned[fmt.Sprint(pt)]++ })
			}
			forEachCell(geometry.FullBox(tiled), func(pt []int) {
				k := fmt.Sprint(pt)
				if covered[k] == 0 {
					t.Fatalf("cell %s not covered", k)
				}
				if owned[k] != 1 {
					t.Fatalf("cell %s owned %d times", k, owned[k])
				}
			})
		})
	}
}

func forEachCell(b geometry.Box, fn func([]int)) {
	if b.Empty() {
		return
	}
	pt := b.Lo()
	for {
		fn(pt)
		ax := len(b) - 1
		for ; ax >= 0; ax-- {
			pt[ax]++
			if pt[ax] < b[ax].End {
				break
			}
			pt[ax] = b[ax].Start
		}
		if ax < 0 {
			return
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	a, _ := Build([]int{300, 200}, []int{64, 64}, []float64{0.25}, geometry.OverlapFraction)
	b, _ := Build([]int{300, 200}, []int{64, 64}, []float64{0.25}, geometry.OverlapFraction)
	if a.Key() != b.Key() || a.Len() != b.Len() {
		t.Fatal("identical inputs should give identical partitions")
	}
	for i := range a.Tiles() {
		if !a.At(i).Box.Equal(b.At(i).Box) || !a.At(i).Seam.Equal(b.At(i).Seam) {
			t.Errorf("tile %d differs", i)
		}
	}
}

func TestBuildLeadingAxes(t *testing.T) {
	p, err := Build([]int{3, 100, 100}, []int{60, 60}, []float64{20}, geometry.OverlapAbsolute)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Lead() != 1 || fmt.Sprint(p.LeadingShape()) != "[3]" {
		t.Errorf("Lead() = %d, LeadingShape() = %v", p.Lead(), p.LeadingShape())
	}
	if got := p.ReadBox(p.At(3)).String(); got != "[0:3,40:100,40:100]" {
		t.Errorf("ReadBox() = %s", got)
	}
}

func TestBuildInvalid(t *testing.T) {
	_, err := Build([]int{100, 100}, []int{20, 20}, []float64{20}, geometry.OverlapAbsolute)
	if !errors.Is(err, errors.ErrCodeInvalidTileSpec) {
		t.Errorf("Build() error = %v, want %s", err, errors.ErrCodeInvalidTileSpec)
	}
}

func TestBuildTooManyTiles(t *testing.T) {
	_, err := Build([]int{100000, 100000}, []int{1, 1}, nil, geometry.OverlapAbsolute)
	if !errors.Is(err, errors.ErrCodeInvalidTileSpec) {
		t.Errorf("Build() error = %v, want %s", err, errors.ErrCodeInvalidTileSpec)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	p, _ := Build([]int{100, 100}, []int{60, 60}, []float64{20}, geometry.OverlapAbsolute)

	ts := p.Tiles()
	ts[0].Box[0].End = 7
	ts[0].Index[0] = 9
	ts[0].Overlap[1].Hi = 99
	ts[0].Border[0].Lo = false
	ts[0].Seam[1].Start = 3

	at := p.At(0)
	at.Box[1].Start = 11
	if tl, ok := p.Tile(Index{1, 1}); ok {
		tl.Index[1] = 5
	}
	ax := p.Axis(0)
	ax.Tiles[0].End = 1
	ax.Seams[1] = 1

	first := p.At(0)
	if got := first.Box.String(); got != "[0:60,0:60]" {
		t.Errorf("tile 0 box = %s after mutating a copy", got)
	}
	if !first.Index.Equal(Index{0, 0}) || first.Overlap[1].Hi != 20 || !first.Border[0].Lo {
		t.Errorf("tile 0 = %+v after mutating a copy", first)
	}
	if got := first.Seam.String(); got != "[0:50,0:50]" {
		t.Errorf("tile 0 seam = %s", got)
	}
	if _, ok := p.Tile(Index{1, 1}); !ok {
		t.Error("Tile(1,1) lost after mutating a copy")
	}
	if got := p.Axis(0).Tiles[0].End; got != 60 {
		t.Errorf("axis 0 first tile end = %d", got)
	}
	var all []Result
	for _, tl := range p.Tiles() {
		all = append(all, Result{Tile: tl, Value: ScalarValue(1)})
	}
	if err := p.VerifyComplete(all); err != nil {
		t.Errorf("VerifyComplete() = %v", err)
	}
}

func TestNeighbors(t *testing.T) {
	p, _ := Build([]int{100, 100}, []int{40, 40}, []float64{10}, geometry.OverlapAbsolute)
	// 3x3 grid
	ns, err := p.Neighbors(Index{1, 1})
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(ns) != 4 {
		t.Fatalf("center tile has %d neighbours, want 4", len(ns))
	}
	if !ns[0].Index.Equal(Index{0, 1}) || ns[0].Side != -1 || ns[0].Axis != 0 {
		t.Errorf("first neighbour = %+v", ns[0])
	}

	corner, _ := p.Neighbors(Index{0, 0})
	if len(corner) != 2 {
		t.Errorf("corner tile has %d neighbours, want 2", len(corner))
	}

	if _, err := p.Neighbors(Index{5, 5}); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Neighbors(out of grid) error = %v", err)
	}
}

func TestVerifyComplete(t *testing.T) {
	p, _ := Build([]int{100, 100}, []int{60, 60}, []float64{20}, geometry.OverlapAbsolute)
	all := make([]Result, 0, p.Len())
	for _, tl := range p.Tiles() {
		all = append(all, Result{Tile: tl, Value: ScalarValue(1)})
	}

	if err := p.VerifyComplete(all); err != nil {
		t.Errorf("VerifyComplete(all) = %v", err)
	}

	missing := []Result{all[0], all[2], all[3]}
	err := p.VerifyComplete(missing)
	if !errors.Is(err, errors.ErrCodeIncompleteTileSet) {
		t.Fatalf("VerifyComplete(missing) = %v", err)
	}
	var ite *errors.IncompleteTileSetError
	if !asIncomplete(err, &ite) || len(ite.Missing) != 1 || fmt.Sprint(ite.Missing[0]) != "[0 1]" {
		t.Errorf("missing = %+v", ite)
	}

	dup := append(all[:4:4], all[1])
	if err := p.VerifyComplete(dup); !errors.Is(err, errors.ErrCodeIncompleteTileSet) {
		t.Errorf("VerifyComplete(duplicate) = %v", err)
	}

	foreign := append(all[:4:4], Result{Tile: Tile{Index: Index{7, 7}}})
	if err := p.VerifyComplete(foreign); !errors.Is(err, errors.ErrCodeIncompleteTileSet) {
		t.Errorf("VerifyComplete(foreign) = %v", err)
	}
}

func asIncomplete(err error, target **errors.IncompleteTileSetError) bool {
	e, ok := err.(*errors.IncompleteTileSetError)
	if ok {
		*target = e
	}
	return ok
}

func ExampleBuild() {
	p, _ := Build([]int{100, 100}, []int{60, 60}, []float64{20}, geometry.OverlapAbsolute)
	for _, t := range p.Tiles() {
		fmt.Println(t.Index, t.Box)
	}
	// Output:
	// (0,0) [0:60,0:60]
	// (0,1) [0:60,40:100]
	// (1,0) [40:100,0:60]
	// (1,1) [40:100,40:100]
}
