package sink

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/geometry"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// OverlayOption configures [RenderOverlay].
type OverlayOption func(*overlayRenderer)

type overlayRenderer struct {
	palette   []colorful.Color
	seamColor color.Color
	fill      float64
	seams     bool
}

// WithPalette sets the tile colours. Tiles cycle through the palette in
// row-major order. The default is a generated palette with one colour per
// tile.
func WithPalette(p []colorful.Color) OverlayOption {
	return func(r *overlayRenderer) { r.palette = p }
}

// WithFill tints every tile box with its colour at the given opacity in
// [0, 1]. Zero draws outlines only.
func WithFill(alpha float64) OverlayOption {
	return func(r *overlayRenderer) { r.fill = alpha }
}

// WithSeamColor sets the colour of the ownership seams (default white).
func WithSeamColor(c color.Color) OverlayOption {
	return func(r *overlayRenderer) { r.seamColor = c }
}

// WithoutSeams draws only the tile boxes.
func WithoutSeams() OverlayOption {
	return func(r *overlayRenderer) { r.seams = false }
}

// RenderOverlay draws the tiles of a two-axis partition over img. A nil img
// draws onto a black canvas of the partition's size. The image must have the
// same size as the tiled shape.
func RenderOverlay(img image.Image, p *tile.Partition, opts ...OverlayOption) (*image.NRGBA, error) {
	if p == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no partition to draw")
	}
	shape := p.TiledShape()
	if len(shape) != 2 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "overlay needs 2 tiled axes, partition has %d", len(shape))
	}
	h, w := shape[0], shape[1]

	r := overlayRenderer{seamColor: color.White, seams: true}
	for _, opt := range opts {
		opt(&r)
	}
	if len(r.palette) == 0 {
		pal, err := colorful.HappyPalette(max(p.Len(), 1))
		if err != nil {
			pal = colorful.FastHappyPalette(max(p.Len(), 1))
		}
		r.palette = pal
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	if img != nil {
		b := img.Bounds()
		if b.Dx() != w || b.Dy() != h {
			return nil, errors.New(errors.ErrCodeInvalidInput, "image is %dx%d, partition is %dx%d", b.Dx(), b.Dy(), w, h)
		}
		draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	}

	for i, t := range p.Tiles() {
		c := r.palette[i%len(r.palette)]
		rect := toRect(t.Box)
		if r.fill > 0 {
			tint(canvas, rect, c, r.fill)
		}
		outline(canvas, rect, c)
	}
	if r.seams {
		for _, t := range p.Tiles() {
			outline(canvas, toRect(t.Seam), r.seamColor)
		}
	}
	return canvas, nil
}

func toRect(b geometry.Box) image.Rectangle {
	return image.Rect(b[1].Start, b[0].Start, b[1].End, b[0].End)
}

func outline(dst *image.NRGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		dst.Set(x, r.Min.Y, c)
		dst.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		dst.Set(r.Min.X, y, c)
		dst.Set(r.Max.X-1, y, c)
	}
}

func tint(dst *image.NRGBA, r image.Rectangle, c colorful.Color, alpha float64) {
	r = r.Intersect(dst.Bounds())
	alpha = min(max(alpha, 0), 1)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			px := dst.NRGBAAt(x, y)
			under := colorful.Color{R: float64(px.R) / 255, G: float64(px.G) / 255, B: float64(px.B) / 255}
			mixed := under.BlendRgb(c, alpha).Clamped()
			cr, cg, cb := mixed.RGB255()
			dst.SetNRGBA(x, y, color.NRGBA{R: cr, G: cg, B: cb, A: px.A})
		}
	}
}
