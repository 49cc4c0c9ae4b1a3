// Package sink writes stitched results to their final destination.
//
// # Overview
//
// A "sink" takes a [stitch.Stitched] value (or a [tile.Partition] for
// diagnostics) and produces bytes or side effects. This package provides:
//
//   - PNG: dense array outputs encoded as images
//   - JSON: the stitched value with optional partition metadata
//   - Overlay: the tile grid and seams drawn over a source image
//   - Mongo: object and point outputs inserted as documents
//
// # PNG Output
//
// [RenderPNG] converts (H, W) or (C, H, W) arrays with C in {1, 3, 4}:
//
//	png, err := sink.RenderPNG(stitched.Value.Array, sink.WithMaxSide(1024))
//
// # JSON Output
//
// [RenderJSON] serializes the stitched value. [WithJSONPartition] adds the
// tile grid, [WithJSONIndent] pretty-prints.
//
// # Overlay
//
// [RenderOverlay] draws every tile box in its own palette colour and the
// ownership seams on top. Only partitions with exactly two tiled axes can be
// drawn.
//
// # Mongo
//
// [Mongo] stores one document per object or point, tagged with the job ID so
// repeated runs can be told apart.
//
// [stitch.Stitched]: github.com/matzehuels/tilestitch/pkg/stitch.Stitched
// [tile.Partition]: github.com/matzehuels/tilestitch/pkg/tile.Partition
package sink
