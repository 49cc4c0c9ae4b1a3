package funcs

import (
	"context"
	"slices"
	"testing"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/job"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

func apply(t *testing.T, name string, params Params, data *ndarray.Array) tile.Value {
	t.Helper()
	f, err := New(name, params)
	if err != nil {
		t.Fatalf("New(%s) error: %v", name, err)
	}
	v, err := f.Apply(context.Background(), data, tile.Tile{})
	if err != nil {
		t.Fatalf("%s.Apply() error: %v", name, err)
	}
	if err := v.Validate(); err != nil {
		t.Fatalf("%s returned invalid value: %v", name, err)
	}
	return v
}

func fillRect(a *ndarray.Array, y0, x0, y1, x1 int, v float64) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			a.Set(v, y, x)
		}
	}
}

func TestNames(t *testing.T) {
	want := []string{"blobs", "blur", "edges", "identity", "mean", "peaks"}
	if got := Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if got := List(); len(got) != len(want) || got[0].Name != "blobs" || got[0].Kind != "objects" {
		t.Errorf("List() = %+v", got)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		fn     string
		params Params
		code   errors.Code
	}{
		{"unknown function", "sharpen", nil, errors.ErrCodeNotFound},
		{"unknown param", "blur", Params{"sigma": 1}, errors.ErrCodeInvalidInput},
		{"bad radius", "blur", Params{"radius": 0}, errors.ErrCodeInvalidInput},
		{"bad level", "blobs", Params{"level": 300}, errors.ErrCodeInvalidInput},
		{"bad area", "blobs", Params{"min_area": 0}, errors.ErrCodeInvalidInput},
		{"bad peak radius", "peaks", Params{"radius": 0}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.fn, tt.params)
			if !errors.Is(err, tt.code) {
				t.Errorf("New() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams([]string{"radius=3.5", "level=10"})
	if err != nil {
		t.Fatalf("ParseParams() error: %v", err)
	}
	if p["radius"] != 3.5 || p["level"] != 10 {
		t.Errorf("ParseParams() = %v", p)
	}
	for _, bad := range []string{"radius", "=1", "radius=x"} {
		if _, err := ParseParams([]string{bad}); err == nil {
			t.Errorf("ParseParams(%q) should fail", bad)
		}
	}
}

func TestIdentity(t *testing.T) {
	a := ndarray.New(ndarray.Uint8, 3, 4, 5)
	a.Set(7, 1, 2, 3)
	v := apply(t, "identity", nil, a)
	if !v.Array.Equal(a) {
		t.Error("identity changed the data")
	}
	a.Set(9, 0, 0, 0)
	if v.Array.At(0, 0, 0) == 9 {
		t.Error("identity must copy its input")
	}
}

func TestDenseKeepsLayout(t *testing.T) {
	inputs := []*ndarray.Array{
		ndarray.New(ndarray.Uint8, 12, 10),
		ndarray.New(ndarray.Uint8, 3, 12, 10),
		ndarray.New(ndarray.Uint8, 4, 12, 10),
	}
	for _, fn := range []string{"blur", "edges"} {
		for _, in := range inputs {
			v := apply(t, fn, nil, in)
			if !slices.Equal(v.Array.Shape(), in.Shape()) {
				t.Errorf("%s: shape = %v, want %v", fn, v.Array.Shape(), in.Shape())
			}
			if v.Array.DType() != ndarray.Uint8 {
				t.Errorf("%s: dtype = %v, want uint8", fn, v.Array.DType())
			}
		}
	}

	f, _ := New("blur", nil)
	_, err := f.Apply(context.Background(), ndarray.New(ndarray.Uint8, 2, 4, 4), tile.Tile{})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("2-channel tile: err = %v, want INVALID_INPUT", err)
	}
}

func TestBlobs(t *testing.T) {
	a := ndarray.New(ndarray.Uint8, 20, 20)
	fillRect(a, 2, 3, 5, 7, 255)
	fillRect(a, 10, 10, 12, 15, 255)
	a.Set(255, 18, 18)

	v := apply(t, "blobs", Params{"min_area": 2}, a)
	if v.Kind != tile.KindObjects {
		t.Fatalf("Kind = %v, want objects", v.Kind)
	}
	want := []tile.Object{
		{Min: []float64{2, 3}, Max: []float64{5, 7}, Score: 1, Label: "blob", Order: 0},
		{Min: []float64{10, 10}, Max: []float64{12, 15}, Score: 1, Label: "blob", Order: 1},
	}
	if len(v.Objects) != len(want) {
		t.Fatalf("got %d objects, want %d: %+v", len(v.Objects), len(want), v.Objects)
	}
	for i, o := range v.Objects {
		w := want[i]
		if !slices.Equal(o.Min, w.Min) || !slices.Equal(o.Max, w.Max) || o.Score != w.Score || o.Order != w.Order {
			t.Errorf("object %d = %+v, want %+v", i, o, w)
		}
	}
}

func TestBlobsRGB(t *testing.T) {
	a := ndarray.New(ndarray.Uint8, 3, 12, 12)
	for c := range 3 {
		for y := 4; y < 8; y++ {
			for x := 2; x < 6; x++ {
				a.Set(255, c, y, x)
			}
		}
	}

	v := apply(t, "blobs", nil, a)
	if len(v.Objects) != 1 {
		t.Fatalf("got %d objects, want 1: %+v", len(v.Objects), v.Objects)
	}
	if o := v.Objects[0]; !slices.Equal(o.Min, []float64{4, 2}) || !slices.Equal(o.Max, []float64{8, 6}) {
		t.Errorf("object = %+v", o)
	}
}

func TestPeaks(t *testing.T) {
	a := ndarray.New(ndarray.Uint8, 16, 16)
	a.Set(200, 4, 5)
	a.Set(150, 10, 10)
	a.Set(150, 10, 11)
	a.Set(100, 2, 2)

	v := apply(t, "peaks", nil, a)
	if v.Kind != tile.KindCoords {
		t.Fatalf("Kind = %v, want coords", v.Kind)
	}
	want := [][]float64{{4, 5}, {10, 10}}
	if len(v.Points) != len(want) {
		t.Fatalf("got %d points, want %d: %+v", len(v.Points), len(want), v.Points)
	}
	for i, p := range v.Points {
		if !slices.Equal(p.Coord, want[i]) || p.Order != i {
			t.Errorf("point %d = %+v, want %v", i, p, want[i])
		}
	}
}

func TestMean(t *testing.T) {
	a, err := ndarray.FromData(ndarray.Float32, []int{2, 2}, []float64{1, 2, 3, 6})
	if err != nil {
		t.Fatal(err)
	}
	v := apply(t, "mean", nil, a)
	if v.Kind != tile.KindScalar || v.Scalar != 3 {
		t.Errorf("mean = %+v, want scalar 3", v)
	}

	f, _ := New("mean", nil)
	bf, ok := f.(job.BatchFunc)
	if !ok {
		t.Fatal("mean should support batches")
	}
	vals, err := bf.ApplyBatch(context.Background(), []*ndarray.Array{a, ndarray.New(ndarray.Uint8, 3)}, make([]tile.Tile, 2))
	if err != nil {
		t.Fatalf("ApplyBatch() error: %v", err)
	}
	if len(vals) != 2 || vals[0].Scalar != 3 || vals[1].Scalar != 0 {
		t.Errorf("ApplyBatch() = %+v", vals)
	}
}
