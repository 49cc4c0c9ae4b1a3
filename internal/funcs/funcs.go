// Package funcs provides the built-in tile functions used by the CLI and the
// HTTP server. Each one covers an output kind so a partition can be exercised
// end to end without writing Go: dense arrays (identity, blur, edges),
// objects (blobs), coordinates (peaks) and scalars (mean).
//
// Image functions work on 8-bit data. A (H, W) tile is treated as grayscale,
// (3, H, W) as RGB and (4, H, W) as RGBA; dense outputs keep the layout of
// their input.
package funcs

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/job"
)

// Params holds numeric function parameters by name.
type Params map[string]float64

// ParseParams parses "key=value" pairs.
func ParseParams(pairs []string) (Params, error) {
	p := make(Params, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, "param %q: want key=value", kv)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "param %s", k)
		}
		p[k] = f
	}
	return p, nil
}

func (p Params) get(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Info describes a built-in function.
type Info struct {
	Name   string             `json:"name"`
	Kind   string             `json:"kind"`
	Desc   string             `json:"description"`
	Params map[string]float64 `json:"params,omitempty"` // defaults
}

type entry struct {
	info Info
	make func(Params) (job.Func, error)
}

var registry = map[string]entry{
	"identity": {
		info: Info{Name: "identity", Kind: "array", Desc: "returns the tile unchanged"},
		make: func(Params) (job.Func, error) { return job.FuncOf(identity), nil },
	},
	"blur": {
		info: Info{Name: "blur", Kind: "array", Desc: "gaussian blur", Params: map[string]float64{"radius": 2}},
		make: newBlur,
	},
	"edges": {
		info: Info{Name: "edges", Kind: "array", Desc: "sobel edge magnitude"},
		make: func(Params) (job.Func, error) { return job.FuncOf(edges), nil },
	},
	"blobs": {
		info: Info{Name: "blobs", Kind: "objects", Desc: "bounding boxes of connected bright regions", Params: map[string]float64{"level": 128, "min_area": 1}},
		make: newBlobs,
	},
	"peaks": {
		info: Info{Name: "peaks", Kind: "coords", Desc: "local intensity maxima", Params: map[string]float64{"level": 128, "radius": 1}},
		make: newPeaks,
	},
	"mean": {
		info: Info{Name: "mean", Kind: "scalar", Desc: "mean of all tile values"},
		make: func(Params) (job.Func, error) { return meanFunc{}, nil },
	},
}

// Names returns the built-in function names, sorted.
func Names() []string {
	return slices.Sorted(maps.Keys(registry))
}

// List describes every built-in function, sorted by name.
func List() []Info {
	out := make([]Info, 0, len(registry))
	for _, name := range Names() {
		out = append(out, registry[name].info)
	}
	return out
}

// New returns the named function configured with params. Unknown names fail
// with NOT_FOUND and unknown parameters with INVALID_INPUT.
func New(name string, params Params) (job.Func, error) {
	e, ok := registry[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "unknown function %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	for k := range params {
		if _, ok := e.info.Params[k]; !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "function %s has no parameter %q", name, k)
		}
	}
	f, err := e.make(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}
