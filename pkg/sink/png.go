package sink

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/source"
)

// PNGOption configures PNG rendering.
type PNGOption func(*pngRenderer)

type pngRenderer struct {
	maxSide int
	filter  imaging.ResampleFilter
}

// WithMaxSide downsizes the image so its longer side is at most n pixels.
// Zero keeps the native size.
func WithMaxSide(n int) PNGOption {
	return func(r *pngRenderer) { r.maxSide = n }
}

// WithFilter sets the resampling filter used by [WithMaxSide] (default Lanczos).
func WithFilter(f imaging.ResampleFilter) PNGOption {
	return func(r *pngRenderer) { r.filter = f }
}

// Image converts a stitched array to an image, applying the resize options.
func Image(a *ndarray.Array, opts ...PNGOption) (image.Image, error) {
	if a == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no array to render")
	}
	r := pngRenderer{filter: imaging.Lanczos}
	for _, opt := range opts {
		opt(&r)
	}
	img, err := source.ToImage(a)
	if err != nil {
		return nil, err
	}
	return r.resize(img), nil
}

func (r pngRenderer) resize(img image.Image) image.Image {
	if r.maxSide <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= r.maxSide && b.Dy() <= r.maxSide {
		return img
	}
	return imaging.Fit(img, r.maxSide, r.maxSide, r.filter)
}

// RenderPNG encodes a stitched array as PNG.
func RenderPNG(a *ndarray.Array, opts ...PNGOption) ([]byte, error) {
	img, err := Image(a, opts...)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode png")
	}
	return buf.Bytes(), nil
}

// SaveImage writes a stitched array to path. The format follows the file
// extension (png, jpg, gif, tif, bmp).
func SaveImage(path string, a *ndarray.Array, opts ...PNGOption) error {
	img, err := Image(a, opts...)
	if err != nil {
		return err
	}
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "save %s", path)
	}
	return nil
}
