package funcs

import (
	"context"
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/job"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/source"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

func identity(_ context.Context, data *ndarray.Array, _ tile.Tile) (tile.Value, error) {
	return tile.ArrayValue(data.Clone()), nil
}

func newBlur(p Params) (job.Func, error) {
	radius := p.get("radius", 2)
	if radius <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "radius must be positive, got %g", radius)
	}
	return job.FuncOf(func(_ context.Context, data *ndarray.Array, _ tile.Tile) (tile.Value, error) {
		return filter(data, func(img image.Image) image.Image { return blur.Gaussian(img, radius) })
	}), nil
}

func edges(_ context.Context, data *ndarray.Array, _ tile.Tile) (tile.Value, error) {
	return filter(data, func(img image.Image) image.Image { return effect.Sobel(img) })
}

// filter runs an image operation over a tile and converts the result back to
// the channel layout of the input.
func filter(data *ndarray.Array, op func(image.Image) image.Image) (tile.Value, error) {
	ch, err := channelsOf(data)
	if err != nil {
		return tile.Value{}, err
	}
	img, err := source.ToImage(data)
	if err != nil {
		return tile.Value{}, err
	}
	return tile.ArrayValue(source.ArrayFromImage(op(img), ch)), nil
}

func channelsOf(a *ndarray.Array) (source.Channels, error) {
	shape := a.Shape()
	switch {
	case len(shape) == 2:
		return source.Gray, nil
	case len(shape) == 3 && shape[0] == 3:
		return source.RGB, nil
	case len(shape) == 3 && shape[0] == 4:
		return source.RGBA, nil
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "tile of shape %v is not an image", shape)
}

// luminance returns the tile as a grayscale image.
func luminance(data *ndarray.Array) (*image.Gray, error) {
	if _, err := channelsOf(data); err != nil {
		return nil, err
	}
	img, err := source.ToImage(data)
	if err != nil {
		return nil, err
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}
	// bild returns the luma replicated in R, G and B of an RGBA image.
	rgba := effect.Grayscale(img)
	b := rgba.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Pix[gray.PixOffset(x, y)] = rgba.Pix[rgba.PixOffset(x, y)]
		}
	}
	return gray, nil
}
