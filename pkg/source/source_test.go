package source

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/geometry"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

func ramp(dt ndarray.DType, shape ...int) *ndarray.Array {
	a := ndarray.New(dt, shape...)
	for i := range a.Data() {
		a.Data()[i] = float64(i % 251)
	}
	return a
}

func TestLazyRead(t *testing.T) {
	ctx := context.Background()
	arr := ramp(ndarray.Uint8, 3, 100, 100)
	p, err := tile.Build(arr.Shape(), []int{60, 60}, []float64{20}, geometry.OverlapAbsolute)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	lazy, err := NewLazy(FromArray(arr), p)
	if err != nil {
		t.Fatalf("NewLazy: %v", err)
	}

	for _, tl := range p.Tiles() {
		got, err := lazy.Read(ctx, tl)
		if err != nil {
			t.Fatalf("Read(%s): %v", tl.Index, err)
		}
		shape := got.Shape()
		if shape[0] != 3 || shape[1] != tl.Box[0].Len() || shape[2] != tl.Box[1].Len() {
			t.Fatalf("Read(%s) shape = %v", tl.Index, shape)
		}
		y, x := tl.Box[0].Start, tl.Box[1].Start
		if got.At(2, 0, 0) != arr.At(2, y, x) {
			t.Errorf("Read(%s) first pixel = %g, want %g", tl.Index, got.At(2, 0, 0), arr.At(2, y, x))
		}
	}
}

func TestLazyShapeMismatch(t *testing.T) {
	p, _ := tile.Build([]int{50, 50}, []int{20, 20}, nil, geometry.OverlapAbsolute)
	_, err := NewLazy(FromArray(ndarray.New(ndarray.Uint8, 40, 50)), p)
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("NewLazy() error = %v, want %s", err, errors.ErrCodeInvalidInput)
	}
}

func TestLazyCancelled(t *testing.T) {
	arr := ndarray.New(ndarray.Uint8, 10, 10)
	p, _ := tile.Build(arr.Shape(), []int{5, 5}, nil, geometry.OverlapAbsolute)
	lazy, _ := NewLazy(FromArray(arr), p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lazy.Read(ctx, p.At(0)); err != context.Canceled {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	for y := range 6 {
		for x := range 8 {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 20), B: 7, A: 255})
		}
	}
	return img
}

func TestImageSourceRGB(t *testing.T) {
	src := NewImageSource(testImage(), RGB)
	if got := src.Shape(); len(got) != 3 || got[0] != 3 || got[1] != 6 || got[2] != 8 {
		t.Fatalf("Shape() = %v", got)
	}

	region, err := src.ReadRegion(context.Background(), geometry.NewBox([]int{0, 2, 3}, []int{3, 4, 6}))
	if err != nil {
		t.Fatalf("ReadRegion: %v", err)
	}
	if region.At(0, 0, 0) != 30 || region.At(1, 1, 0) != 60 || region.At(2, 1, 2) != 7 {
		t.Errorf("ReadRegion values = %g %g %g", region.At(0, 0, 0), region.At(1, 1, 0), region.At(2, 1, 2))
	}
}

func TestImageSourceGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.Pix[5] = 200
	src := NewImageSource(img, Gray)
	region, err := src.ReadRegion(context.Background(), geometry.NewBox([]int{1, 1}, []int{3, 3}))
	if err != nil {
		t.Fatalf("ReadRegion: %v", err)
	}
	if region.At(0, 0) != 200 {
		t.Errorf("gray pixel = %g, want 200", region.At(0, 0))
	}
}

func TestToImageRoundTrip(t *testing.T) {
	arr := ArrayFromImage(testImage(), RGBA)
	img, err := ToImage(arr)
	if err != nil {
		t.Fatalf("ToImage: %v", err)
	}
	back := ArrayFromImage(img, RGBA)
	if !back.Equal(arr) {
		t.Error("image -> array -> image should be lossless for uint8 RGBA")
	}

	if _, err := ToImage(ndarray.New(ndarray.Uint8, 2, 4, 4)); err == nil {
		t.Error("ToImage() should reject two-channel arrays")
	}
}

func TestOpenImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.png")
	if err := imaging.Save(testImage(), path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	src, err := OpenImage(path, RGB)
	if err != nil {
		t.Fatalf("OpenImage: %v", err)
	}
	if src.Shape()[2] != 8 {
		t.Errorf("Shape() = %v", src.Shape())
	}
	if _, err := OpenImage(filepath.Join(t.TempDir(), "missing.png"), Gray); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("OpenImage(missing) error = %v", err)
	}
}

func TestRawFile(t *testing.T) {
	for _, dt := range []ndarray.DType{ndarray.Uint8, ndarray.Uint16, ndarray.Int16, ndarray.Int32, ndarray.Float32, ndarray.Float64} {
		t.Run(dt.String(), func(t *testing.T) {
			arr := ramp(dt, 2, 9, 11)
			var buf bytes.Buffer
			if err := WriteRaw(&buf, arr); err != nil {
				t.Fatalf("WriteRaw: %v", err)
			}
			raw, err := NewRaw(bytes.NewReader(buf.Bytes()), int64(buf.Len()), dt, arr.Shape())
			if err != nil {
				t.Fatalf("NewRaw: %v", err)
			}
			box := geometry.NewBox([]int{1, 2, 3}, []int{2, 7, 11})
			got, err := raw.ReadRegion(context.Background(), box)
			if err != nil {
				t.Fatalf("ReadRegion: %v", err)
			}
			want, _ := arr.Slice(box)
			if !got.Equal(want) {
				t.Errorf("ReadRegion() = %v, want %v", got.Data(), want.Data())
			}
		})
	}
}

func TestRawSizeMismatch(t *testing.T) {
	_, err := NewRaw(bytes.NewReader(make([]byte, 10)), 10, ndarray.Uint16, []int{2, 3})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("NewRaw() error = %v", err)
	}
}

func TestParseChannels(t *testing.T) {
	if c, err := ParseChannels(""); err != nil || c != Gray {
		t.Errorf("ParseChannels(\"\") = %v, %v", c, err)
	}
	if _, err := ParseChannels("cmyk"); err == nil {
		t.Error("ParseChannels(cmyk) should fail")
	}
}
