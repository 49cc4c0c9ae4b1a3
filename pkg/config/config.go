// Package config loads job configuration files.
//
// A job file names the tile geometry and the options that travel with the
// job into execution and stitching. TOML and JSON are supported, chosen by
// file extension. Both decoders are strict: an option this package does not
// recognise is an INVALID_CONFIG error rather than being ignored.
//
//	tile_shape = [512, 512]
//	overlap = [32]
//	blend = "linear"
//	dedup_threshold = 0.5
package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/geometry"
	"github.com/matzehuels/tilestitch/pkg/job"
	"github.com/matzehuels/tilestitch/pkg/stitch"
)

// Format is a config file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// Job is the job configuration surface.
type Job struct {
	// Geometry
	TileShape   []int     `toml:"tile_shape" json:"tile_shape"`
	Overlap     []float64 `toml:"overlap" json:"overlap,omitempty"`
	OverlapMode string    `toml:"overlap_mode" json:"overlap_mode,omitempty"`

	// Execution
	BatchAxis   bool `toml:"batch_axis" json:"batch_axis,omitempty"`
	BatchSize   int  `toml:"batch_size" json:"batch_size,omitempty"`
	Concurrency int  `toml:"concurrency" json:"concurrency,omitempty"`
	Retries     int  `toml:"retries" json:"retries,omitempty"`

	// Stitching
	DropBorderOutput bool      `toml:"drop_border_output" json:"drop_border_output,omitempty"`
	OutputScale      []float64 `toml:"output_scale" json:"output_scale,omitempty"`
	Blend            string    `toml:"blend" json:"blend,omitempty"`
	DedupThreshold   float64   `toml:"dedup_threshold" json:"dedup_threshold,omitempty"`
	Policy           string    `toml:"policy" json:"policy,omitempty"`
}

// Load reads a job file, picking the decoder by extension.
func Load(path string) (*Job, error) {
	var f Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		f = FormatTOML
	case ".json":
		f = FormatJSON
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unsupported config file %s (want .toml or .json)", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
	}
	j, err := Decode(bytes.NewReader(data), f)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Decode parses and validates a job config.
func Decode(r io.Reader, f Format) (*Job, error) {
	var j Job
	switch f {
	case FormatTOML:
		md, err := toml.NewDecoder(r).Decode(&j)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode toml")
		}
		if und := md.Undecoded(); len(und) > 0 {
			keys := make([]string, len(und))
			for i, k := range und {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown option(s): %s", strings.Join(keys, ", "))
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&j); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode json")
		}
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown config format %q", f)
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

// Validate checks the config for contradictions. Geometry that depends on
// the image shape is checked later, when the partition is built.
func (j *Job) Validate() error {
	if err := errors.ValidatePositive(errors.ErrCodeInvalidTileSpec, "tile_shape", j.TileShape); err != nil {
		return err
	}
	mode, err := geometry.ParseOverlapMode(j.OverlapMode)
	if err != nil {
		return err
	}
	if mode == geometry.OverlapFraction {
		for i, v := range j.Overlap {
			if v < 0 || v >= 1 {
				return errors.New(errors.ErrCodeInvalidConfig, "fraction overlap must be in [0,1), got %g at %d", v, i)
			}
		}
	}
	sizes, err := geometry.OverlapSizes(j.TileShape, j.Overlap, mode)
	if err != nil {
		return err
	}
	for i, o := range sizes {
		if o < 0 || o >= j.TileShape[i] {
			return errors.New(errors.ErrCodeInvalidTileSpec, "overlap %d must be in [0,%d) on axis %d", o, j.TileShape[i], i)
		}
	}
	if j.Concurrency < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "concurrency must not be negative")
	}
	if err := j.JobConfig().Validate(); err != nil {
		return err
	}
	return j.StitchConfig().Validate()
}

// Mode returns the parsed overlap mode, absolute when unset or invalid.
func (j *Job) Mode() geometry.OverlapMode {
	m, err := geometry.ParseOverlapMode(j.OverlapMode)
	if err != nil {
		return geometry.OverlapAbsolute
	}
	return m
}

// JobConfig returns the options used while running tiles.
func (j *Job) JobConfig() job.Config {
	return job.Config{
		DropBorderOutput: j.DropBorderOutput,
		OutputScale:      j.OutputScale,
		BatchAxis:        j.BatchAxis,
		BatchSize:        j.BatchSize,
		Retries:          j.Retries,
	}
}

// StitchConfig returns the options used while stitching.
func (j *Job) StitchConfig() stitch.Config {
	return stitch.Config{
		Policy:           j.Policy,
		Blend:            stitch.BlendMode(j.Blend),
		DropBorderOutput: j.DropBorderOutput,
		OutputScale:      j.OutputScale,
		DedupThreshold:   j.DedupThreshold,
	}
}

// Encode writes the config in the given format.
func (j *Job) Encode(w io.Writer, f Format) error {
	switch f {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(j)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(j)
	}
	return errors.New(errors.ErrCodeInvalidConfig, "unknown config format %q", f)
}
