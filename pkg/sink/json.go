package sink

import (
	"encoding/json"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/geometry"
	"github.com/matzehuels/tilestitch/pkg/stitch"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// JSONOption configures JSON rendering via [RenderJSON].
type JSONOption func(*jsonRenderer)

type jsonRenderer struct {
	partition *tile.Partition
	jobID     string
	indent    bool
}

// WithJSONPartition adds the partition key, grid and per-tile boxes.
func WithJSONPartition(p *tile.Partition) JSONOption {
	return func(r *jsonRenderer) { r.partition = p }
}

// WithJSONJob records the job that produced the result.
func WithJSONJob(id string) JSONOption { return func(r *jsonRenderer) { r.jobID = id } }

// WithJSONIndent pretty-prints the output.
func WithJSONIndent() JSONOption { return func(r *jsonRenderer) { r.indent = true } }

type jsonOutput struct {
	Job       string           `json:"job,omitempty"`
	Partition *jsonPartition   `json:"partition,omitempty"`
	Stitched  *stitch.Stitched `json:"stitched"`
}

type jsonPartition struct {
	Key   string     `json:"key"`
	Shape []int      `json:"shape"`
	Grid  []int      `json:"grid"`
	Tiles []jsonTile `json:"tiles"`
}

type jsonTile struct {
	Index tile.Index   `json:"index"`
	Box   geometry.Box `json:"box"`
	Seam  geometry.Box `json:"seam"`
}

// RenderJSON serializes a stitched result.
func RenderJSON(s *stitch.Stitched, opts ...JSONOption) ([]byte, error) {
	if s == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no stitched result to render")
	}
	var r jsonRenderer
	for _, opt := range opts {
		opt(&r)
	}

	out := jsonOutput{Job: r.jobID, Stitched: s}
	if r.partition != nil {
		out.Partition = describePartition(r.partition)
	}

	var (
		data []byte
		err  error
	)
	if r.indent {
		data, err = json.MarshalIndent(out, "", "  ")
	} else {
		data, err = json.Marshal(out)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode json")
	}
	return data, nil
}

// RenderPartitionJSON serializes only the partition layout.
func RenderPartitionJSON(p *tile.Partition, indent bool) ([]byte, error) {
	if p == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no partition to render")
	}
	v := describePartition(p)
	if indent {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func describePartition(p *tile.Partition) *jsonPartition {
	tiles := p.Tiles()
	jp := &jsonPartition{
		Key:   p.Key(),
		Shape: p.Shape(),
		Grid:  p.Grid(),
		Tiles: make([]jsonTile, len(tiles)),
	}
	for i, t := range tiles {
		jp.Tiles[i] = jsonTile{Index: t.Index, Box: t.Box, Seam: t.Seam}
	}
	return jp
}
