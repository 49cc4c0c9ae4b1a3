package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/geometry"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/stitch"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

func grid(t *testing.T) *tile.Partition {
	t.Helper()
	p, err := tile.Build([]int{100, 100}, []int{60, 60}, []float64{20}, geometry.OverlapAbsolute)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return p
}

func objects() *stitch.Stitched {
	return &stitch.Stitched{
		Policy: stitch.PolicyObjectMerge,
		Value: tile.ObjectsValue([]tile.Object{
			{Min: []float64{1, 2}, Max: []float64{5, 6}, Score: 0.9, Tile: tile.Index{0, 0}},
			{Min: []float64{70, 70}, Max: []float64{80, 90}, Score: 0.4, Tile: tile.Index{1, 1}, Order: 1},
		}),
	}
}

func TestRenderPNG(t *testing.T) {
	a := ndarray.New(ndarray.Uint8, 4, 6)
	a.Fill(200)

	tests := []struct {
		name  string
		opts  []PNGOption
		wantW int
		wantH int
	}{
		{"native", nil, 6, 4},
		{"fit", []PNGOption{WithMaxSide(3)}, 3, 2},
		{"larger than image", []PNGOption{WithMaxSide(100)}, 6, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := RenderPNG(a, tt.opts...)
			if err != nil {
				t.Fatalf("RenderPNG() error: %v", err)
			}
			img, err := imaging.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			b := img.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
			g := color.GrayModel.Convert(img.At(b.Min.X, b.Min.Y)).(color.Gray)
			if g.Y != 200 {
				t.Errorf("pixel = %d, want 200", g.Y)
			}
		})
	}
}

func TestRenderPNGErrors(t *testing.T) {
	if _, err := RenderPNG(nil); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("nil array: err = %v, want INVALID_INPUT", err)
	}
	if _, err := RenderPNG(ndarray.New(ndarray.Uint8, 8)); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("rank 1: err = %v, want INVALID_INPUT", err)
	}
}

func TestSaveImage(t *testing.T) {
	a := ndarray.New(ndarray.Uint8, 3, 5, 7)
	path := filepath.Join(t.TempDir(), "out.png")
	if err := SaveImage(path, a); err != nil {
		t.Fatalf("SaveImage() error: %v", err)
	}
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 7 || b.Dy() != 5 {
		t.Errorf("size = %dx%d, want 7x5", b.Dx(), b.Dy())
	}

	if err := SaveImage(filepath.Join(t.TempDir(), "out.xyz"), a); err == nil {
		t.Error("SaveImage() with unknown extension should fail")
	}
}

func TestRenderJSON(t *testing.T) {
	p := grid(t)
	data, err := RenderJSON(objects(), WithJSONPartition(p), WithJSONJob("job-1"), WithJSONIndent())
	if err != nil {
		t.Fatalf("RenderJSON() error: %v", err)
	}

	var out jsonOutput
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	if out.Job != "job-1" {
		t.Errorf("Job = %q, want job-1", out.Job)
	}
	if out.Partition == nil || len(out.Partition.Tiles) != 4 {
		t.Fatalf("Partition = %+v, want 4 tiles", out.Partition)
	}
	if out.Partition.Key != p.Key() {
		t.Errorf("Key = %q, want %q", out.Partition.Key, p.Key())
	}
	if got := out.Partition.Tiles[3].Seam; !got.Equal(geometry.NewBox([]int{50, 50}, []int{100, 100})) {
		t.Errorf("Seam of last tile = %v", got)
	}
	if out.Stitched.Value.Kind != tile.KindObjects || len(out.Stitched.Value.Objects) != 2 {
		t.Errorf("Stitched = %+v", out.Stitched.Value)
	}
}

func TestRenderJSONMinimal(t *testing.T) {
	data, err := RenderJSON(objects())
	if err != nil {
		t.Fatalf("RenderJSON() error: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	if _, ok := raw["partition"]; ok {
		t.Error("partition should be omitted without WithJSONPartition")
	}
	if _, ok := raw["job"]; ok {
		t.Error("job should be omitted without WithJSONJob")
	}

	if _, err := RenderJSON(nil); err == nil {
		t.Error("RenderJSON(nil) should fail")
	}
}

func TestRenderOverlay(t *testing.T) {
	p := grid(t)
	red := colorful.Color{R: 1}
	img, err := RenderOverlay(nil, p, WithPalette([]colorful.Color{red}))
	if err != nil {
		t.Fatalf("RenderOverlay() error: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Fatalf("size = %v, want 100x100", b)
	}

	tests := []struct {
		name string
		x, y int
		want color.NRGBA
	}{
		{"interior", 30, 30, color.NRGBA{A: 255}},
		{"tile edge", 59, 10, color.NRGBA{R: 255, A: 255}},
		{"seam edge", 50, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := img.NRGBAAt(tt.x, tt.y); got != tt.want {
				t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestRenderOverlayFill(t *testing.T) {
	p := grid(t)
	img, err := RenderOverlay(nil, p, WithPalette([]colorful.Color{{R: 1}}), WithFill(1), WithoutSeams())
	if err != nil {
		t.Fatalf("RenderOverlay() error: %v", err)
	}
	if got := img.NRGBAAt(30, 30); got.R != 255 || got.G != 0 {
		t.Errorf("filled pixel = %v, want red", got)
	}
}

func TestRenderOverlayErrors(t *testing.T) {
	p := grid(t)
	if _, err := RenderOverlay(image.NewGray(image.Rect(0, 0, 10, 10)), p); err == nil {
		t.Error("size mismatch should fail")
	}
	line, err := tile.Build([]int{100}, []int{60}, []float64{20}, geometry.OverlapAbsolute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := RenderOverlay(nil, line); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("1 axis: err = %v, want INVALID_INPUT", err)
	}
}

func TestDocuments(t *testing.T) {
	docs, err := Documents("job-1", objects())
	if err != nil {
		t.Fatalf("Documents() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len = %d, want 2", len(docs))
	}
	if docs[1].Object == nil || docs[1].Object.Score != 0.4 || docs[1].Job != "job-1" {
		t.Errorf("docs[1] = %+v", docs[1])
	}

	pts := &stitch.Stitched{Value: tile.CoordsValue([]tile.Point{{Coord: []float64{1, 2}}})}
	docs, err = Documents("job-2", pts)
	if err != nil || len(docs) != 1 || docs[0].Point == nil || docs[0].Kind != tile.KindCoords.String() {
		t.Errorf("Documents(coords) = %+v, %v", docs, err)
	}

	_, err = Documents("job-3", &stitch.Stitched{Value: tile.ScalarValue(1)})
	if !errors.Is(err, errors.ErrCodeUnsupportedOutputType) {
		t.Errorf("scalar: err = %v, want UNSUPPORTED_OUTPUT_TYPE", err)
	}
}

func TestMongo(t *testing.T) {
	uri := os.Getenv("TILESTITCH_TEST_MONGO")
	if uri == "" {
		t.Skip("TILESTITCH_TEST_MONGO not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m, err := NewMongo(ctx, uri, "tilestitch_test", "detections")
	if err != nil {
		t.Fatalf("NewMongo() error: %v", err)
	}
	defer m.Close(ctx)

	for range 2 {
		n, err := m.Write(ctx, "job-mongo", objects())
		if err != nil {
			t.Fatalf("Write() error: %v", err)
		}
		if n != 2 {
			t.Errorf("inserted = %d, want 2", n)
		}
	}
	count, err := m.Count(ctx, "job-mongo")
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2 after rewrite", count)
	}
}

func TestNewMongoValidatesNames(t *testing.T) {
	_, err := NewMongo(context.Background(), "mongodb://localhost:1", "bad$db", "c")
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("err = %v, want INVALID_INPUT", err)
	}
}
