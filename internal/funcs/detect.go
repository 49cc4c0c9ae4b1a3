package funcs

import (
	"context"
	"image"

	"github.com/anthonynsimon/bild/segment"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/job"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

func level(p Params) (uint8, error) {
	l := p.get("level", 128)
	if l < 0 || l > 255 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "level must be in [0, 255], got %g", l)
	}
	return uint8(l), nil
}

func newBlobs(p Params) (job.Func, error) {
	lvl, err := level(p)
	if err != nil {
		return nil, err
	}
	minArea := int(p.get("min_area", 1))
	if minArea < 1 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "min_area must be at least 1")
	}
	return job.FuncOf(func(ctx context.Context, data *ndarray.Array, _ tile.Tile) (tile.Value, error) {
		gray, err := luminance(data)
		if err != nil {
			return tile.Value{}, err
		}
		mask := segment.Threshold(gray, lvl)
		objs, err := blobs(ctx, gray, mask, minArea)
		if err != nil {
			return tile.Value{}, err
		}
		return tile.ObjectsValue(objs), nil
	}), nil
}

// blobs finds 8-connected foreground regions of mask in raster order. The
// score of a region is its mean intensity in [0, 1].
func blobs(ctx context.Context, gray, mask *image.Gray, minArea int) ([]tile.Object, error) {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	visited := make([]bool, w*h)
	fg := func(x, y int) bool { return mask.GrayAt(b.Min.X+x, b.Min.Y+y).Y > 0 }

	var objs []tile.Object
	stack := make([]image.Point, 0, 64)
	for y := range h {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := range w {
			if visited[y*w+x] || !fg(x, y) {
				continue
			}
			x0, y0, x1, y1 := x, y, x, y
			area, sum := 0, 0.0
			stack = append(stack[:0], image.Pt(x, y))
			visited[y*w+x] = true
			for len(stack) > 0 {
				pt := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				area++
				sum += float64(gray.GrayAt(b.Min.X+pt.X, b.Min.Y+pt.Y).Y)
				x0, y0 = min(x0, pt.X), min(y0, pt.Y)
				x1, y1 = max(x1, pt.X), max(y1, pt.Y)
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := pt.X+dx, pt.Y+dy
						if nx < 0 || nx >= w || ny < 0 || ny >= h || visited[ny*w+nx] || !fg(nx, ny) {
							continue
						}
						visited[ny*w+nx] = true
						stack = append(stack, image.Pt(nx, ny))
					}
				}
			}
			if area < minArea {
				continue
			}
			objs = append(objs, tile.Object{
				Min:   []float64{float64(y0), float64(x0)},
				Max:   []float64{float64(y1 + 1), float64(x1 + 1)},
				Score: sum / float64(area) / 255,
				Label: "blob",
				Order: len(objs),
			})
		}
	}
	return objs, nil
}

func newPeaks(p Params) (job.Func, error) {
	lvl, err := level(p)
	if err != nil {
		return nil, err
	}
	radius := int(p.get("radius", 1))
	if radius < 1 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "radius must be at least 1")
	}
	return job.FuncOf(func(ctx context.Context, data *ndarray.Array, _ tile.Tile) (tile.Value, error) {
		gray, err := luminance(data)
		if err != nil {
			return tile.Value{}, err
		}
		pts, err := peaks(ctx, gray, lvl, radius)
		if err != nil {
			return tile.Value{}, err
		}
		return tile.CoordsValue(pts), nil
	}), nil
}

// peaks returns pixels at or above lvl that are maximal within radius. On a
// plateau only the first pixel in raster order is reported.
func peaks(ctx context.Context, gray *image.Gray, lvl uint8, radius int) ([]tile.Point, error) {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	at := func(x, y int) uint8 { return gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y }

	var pts []tile.Point
	for y := range h {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := range w {
			v := at(x, y)
			if v < lvl || !isPeak(at, x, y, w, h, radius, v) {
				continue
			}
			pts = append(pts, tile.Point{
				Coord: []float64{float64(y), float64(x)},
				Score: float64(v) / 255,
				Label: "peak",
				Order: len(pts),
			})
		}
	}
	return pts, nil
}

func isPeak(at func(x, y int) uint8, x, y, w, h, radius int, v uint8) bool {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			nx, ny := x+dx, y+dy
			if (dx == 0 && dy == 0) || nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			n := at(nx, ny)
			earlier := dy < 0 || (dy == 0 && dx < 0)
			if n > v || (earlier && n == v) {
				return false
			}
		}
	}
	return true
}

// meanFunc reduces each tile to its mean value. It accepts batches so the
// batched path of a job can be exercised from the command line.
type meanFunc struct{}

func (meanFunc) Apply(_ context.Context, data *ndarray.Array, _ tile.Tile) (tile.Value, error) {
	return tile.ScalarValue(mean(data)), nil
}

func (meanFunc) ApplyBatch(ctx context.Context, data []*ndarray.Array, _ []tile.Tile) ([]tile.Value, error) {
	out := make([]tile.Value, len(data))
	for i, d := range data {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = tile.ScalarValue(mean(d))
	}
	return out, nil
}

func mean(a *ndarray.Array) float64 {
	data := a.Data()
	if len(data) == 0 {
		return 0
	}
	var s float64
	for _, v := range data {
		s += v
	}
	return s / float64(len(data))
}

var _ job.BatchFunc = meanFunc{}
