package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/source"
)

// rawExts are file extensions read as headerless binary arrays.
var rawExts = map[string]bool{".raw": true, ".bin": true}

// inputFlags describe how an input file is turned into a source.
type inputFlags struct {
	channels string // image layout: gray, rgb, rgba
	dtype    string // raw element type
	shape    string // raw shape, e.g. 3x2048x2048
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.channels, "channels", "gray", "image layout: gray (H,W), rgb or rgba (C,H,W)")
	cmd.Flags().StringVar(&f.dtype, "dtype", "uint8", "element type of .raw/.bin inputs")
	cmd.Flags().StringVar(&f.shape, "raw-shape", "", "shape of .raw/.bin inputs, e.g. 2048x2048")
}

// open returns a source for path. The closer is never nil.
func (f inputFlags) open(path string) (source.Source, io.Closer, error) {
	if rawExts[strings.ToLower(filepath.Ext(path))] {
		dt, err := ndarray.ParseDType(f.dtype)
		if err != nil {
			return nil, nil, err
		}
		shape, err := parseShape(f.shape)
		if err != nil {
			return nil, nil, fmt.Errorf("--raw-shape: %w", err)
		}
		rf, err := source.OpenRaw(path, dt, shape)
		if err != nil {
			return nil, nil, err
		}
		return rf, rf, nil
	}

	ch, err := source.ParseChannels(f.channels)
	if err != nil {
		return nil, nil, err
	}
	src, err := source.OpenImage(path, ch)
	if err != nil {
		return nil, nil, err
	}
	return src, noClose{}, nil
}

// parseShape parses "HxW" or "C,H,W" style shapes.
func parseShape(s string) ([]int, error) {
	if s == "" {
		return nil, fmt.Errorf("shape is required")
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == 'x' || r == ',' })
	shape := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid extent %q in %q", f, s)
		}
		shape[i] = n
	}
	return shape, nil
}

func parseFloats(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == 'x' || r == ',' })
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q in %q", f, s)
		}
		out[i] = v
	}
	return out, nil
}

type noClose struct{}

func (noClose) Close() error { return nil }
