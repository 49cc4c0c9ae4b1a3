package cache

import "strings"

// Keyer generates cache keys.
type Keyer interface {
	// PartitionKey identifies a partition by its geometry key.
	PartitionKey(geometry string) string

	// ResultKey identifies one tile's output within a job. fingerprint
	// captures everything that determines the output: source, function,
	// function parameters and geometry.
	ResultKey(fingerprint, tile string) string

	// StitchKey identifies a stitched output.
	StitchKey(fingerprint string, opts StitchKeyOpts) string
}

// StitchKeyOpts holds the stitch options that change the output.
type StitchKeyOpts struct {
	Policy           string    `json:"policy,omitempty"`
	Blend            string    `json:"blend,omitempty"`
	DropBorderOutput bool      `json:"drop_border_output,omitempty"`
	OutputScale      []float64 `json:"output_scale,omitempty"`
	DedupThreshold   float64   `json:"dedup_threshold,omitempty"`
}

// DefaultKeyer produces unprefixed keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// PartitionKey hashes the geometry key.
func (DefaultKeyer) PartitionKey(geometry string) string {
	return hashKey("partition", geometry)
}

// ResultKey keeps the tile key readable so all tiles of a job share a prefix.
func (DefaultKeyer) ResultKey(fingerprint, tile string) string {
	return "result:" + fingerprint + ":" + strings.ReplaceAll(tile, ":", "_")
}

// StitchKey hashes the fingerprint together with the stitch options.
func (DefaultKeyer) StitchKey(fingerprint string, opts StitchKeyOpts) string {
	return hashKey("stitch", fingerprint, opts)
}
