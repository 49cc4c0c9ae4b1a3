package source

import (
	"context"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/geometry"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
)

// Channels selects how an image is laid out as an array.
type Channels string

const (
	// Gray yields a (H, W) luminance array.
	Gray Channels = "gray"
	// RGB yields a (3, H, W) array.
	RGB Channels = "rgb"
	// RGBA yields a (4, H, W) array.
	RGBA Channels = "rgba"
)

// ParseChannels converts a string to Channels; "" selects Gray.
func ParseChannels(s string) (Channels, error) {
	switch Channels(s) {
	case "":
		return Gray, nil
	case Gray, RGB, RGBA:
		return Channels(s), nil
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "unknown channel layout %q (want gray, rgb or rgba)", s)
}

func (c Channels) count() int {
	switch c {
	case RGB:
		return 3
	case RGBA:
		return 4
	}
	return 1
}

// ImageSource serves regions of a decoded image as uint8 arrays. Colour
// images carry channels on the leading axis.
type ImageSource struct {
	img      image.Image
	channels Channels
	shape    []int
}

// NewImageSource wraps a decoded image.
func NewImageSource(img image.Image, ch Channels) *ImageSource {
	if ch == "" {
		ch = Gray
	}
	b := img.Bounds()
	shape := []int{b.Dy(), b.Dx()}
	if ch != Gray {
		shape = append([]int{ch.count()}, shape...)
	}
	return &ImageSource{img: img, channels: ch, shape: shape}
}

// OpenImage decodes an image file (PNG, JPEG, GIF, TIFF or BMP) honouring
// EXIF orientation.
func OpenImage(path string, ch Channels) (*ImageSource, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "open image %s", path)
	}
	return NewImageSource(img, ch), nil
}

func (s *ImageSource) Shape() []int         { return append([]int(nil), s.shape...) }
func (s *ImageSource) DType() ndarray.DType { return ndarray.Uint8 }

// Image returns the wrapped image.
func (s *ImageSource) Image() image.Image { return s.img }

// ReadRegion crops box out of the image.
func (s *ImageSource) ReadRegion(ctx context.Context, box geometry.Box) (*ndarray.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRegion(s.shape, box); err != nil {
		return nil, err
	}

	ys, xs := box[len(box)-2], box[len(box)-1]
	origin := s.img.Bounds().Min
	crop := imaging.Crop(s.img, image.Rect(xs.Start+origin.X, ys.Start+origin.Y, xs.End+origin.X, ys.End+origin.Y))
	if s.channels == Gray {
		crop = imaging.Grayscale(crop)
	}

	h, w := ys.Len(), xs.Len()
	if s.channels == Gray {
		out := ndarray.New(ndarray.Uint8, h, w)
		data := out.Data()
		for y := range h {
			row := crop.Pix[y*crop.Stride:]
			for x := range w {
				data[y*w+x] = float64(row[x*4])
			}
		}
		return out, nil
	}

	cs := box[0]
	out := ndarray.New(ndarray.Uint8, cs.Len(), h, w)
	data := out.Data()
	for c := cs.Start; c < cs.End; c++ {
		plane := data[(c-cs.Start)*h*w:]
		for y := range h {
			row := crop.Pix[y*crop.Stride:]
			for x := range w {
				plane[y*w+x] = float64(row[x*4+c])
			}
		}
	}
	return out, nil
}

var _ Source = (*ImageSource)(nil)

// ArrayFromImage converts a whole image to an array.
func ArrayFromImage(img image.Image, ch Channels) *ndarray.Array {
	s := NewImageSource(img, ch)
	arr, _ := s.ReadRegion(context.Background(), geometry.FullBox(s.shape))
	return arr
}

// ToImage converts a (H, W) or (C, H, W) array with C in {1, 3, 4} to an
// image. Values are clamped to 8 bits; uint16 data is scaled down.
func ToImage(a *ndarray.Array) (image.Image, error) {
	shape := a.Shape()
	var c, h, w int
	switch len(shape) {
	case 2:
		c, h, w = 1, shape[0], shape[1]
	case 3:
		c, h, w = shape[0], shape[1], shape[2]
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "cannot convert rank-%d array to an image", len(shape))
	}

	px := func(v float64) uint8 {
		if a.DType() == ndarray.Uint16 {
			v /= 257
		}
		return uint8(ndarray.Uint8.Convert(v))
	}
	data := a.Data()

	switch c {
	case 1:
		img := image.NewGray(image.Rect(0, 0, w, h))
		for i, v := range data {
			img.Pix[(i/w)*img.Stride+i%w] = px(v)
		}
		return img, nil
	case 3, 4:
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		plane := h * w
		for y := range h {
			for x := range w {
				o := y*w + x
				col := color.NRGBA{R: px(data[o]), G: px(data[plane+o]), B: px(data[2*plane+o]), A: 255}
				if c == 4 {
					col.A = px(data[3*plane+o])
				}
				img.SetNRGBA(x, y, col)
			}
		}
		return img, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "cannot convert %d channels to an image", c)
}
