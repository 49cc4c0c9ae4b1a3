// Package pkg provides the core libraries for tilestitch.
//
// # Overview
//
// Tilestitch cuts N-dimensional arrays (usually large images) into
// overlapping tiles, runs a function on every tile in parallel and
// reassembles the per-tile outputs into one result. The pkg directory is
// organized into four areas:
//
//  1. Geometry - [geometry] intervals and tilings, [tile] partitions and values
//  2. Execution - [source] lazy tile reads, [job] the task graph and backends
//  3. Reassembly - [stitch] policies for arrays, objects, points and raw values
//  4. Plumbing - [pipeline], [cache], [config], [errors], [observability], [sink]
//
// # Architecture
//
// The data flow through tilestitch:
//
//	Source (image, raw file, in-memory array)
//	         ↓
//	    [tile] package (partition: tile boxes, seams, neighbors)
//	         ↓
//	    [job] package (read tile → apply function, on a backend)
//	         ↓
//	    [stitch] package (crop/blend arrays, dedup objects and points)
//	         ↓
//	    [sink] package (PNG, JSON, MongoDB)
//
// # Quick Start
//
// Blur a large image tile by tile:
//
//	src, _ := source.OpenImage("scan.png", source.Gray)
//	runner := pipeline.NewRunner(nil, nil, nil)
//	res, err := runner.Execute(ctx, pipeline.Options{
//	    Job:    config.Job{TileShape: []int{512, 512}, Overlap: []float64{32}, Blend: "linear"},
//	    Source: src,
//	    Func:   blur,
//	})
//	if err != nil {
//	    return err
//	}
//	return sink.SaveImage("blurred.png", res.Stitched.Value.Array)
//
// # Main Packages
//
// [geometry] - One-dimensional intervals and the per-axis tiling math:
// tile count, tile intervals and the seams at the overlap midpoints.
//
// [tile] - Immutable partitions built from a shape, tile shape and overlap,
// the process-wide partition [tile.Registry], and the tagged [tile.Value]
// union returned by user functions.
//
// [dag] - The directed graph underneath the job's read/apply task graph,
// with DOT export and SVG rendering.
//
// [job] - Builds the bipartite task graph for one partition and runs it on a
// [job.Backend]. Failed tiles are collected into a single
// TILE_COMPUTATION error; finished tiles can be stored and reused.
//
// [stitch] - The stitch engine picks a policy by output kind: array blending
// (crop, linear, max, min), object merge by IoU, coordinate merge by
// distance, or passthrough. Instance label masks are merged across seams
// by the label-merge policy when it is named.
//
// [pipeline] - Partition → run → stitch with caching, used by the CLI and the
// HTTP server alike.
//
// # Testing
//
// Run tests:
//
//	go test ./...                        # All tests
//	go test ./pkg/stitch/...             # Specific package
//	go test -run Example ./pkg/...       # Examples only
//	TILESTITCH_TEST_REDIS=redis://localhost:6379/0 go test ./pkg/cache/...
package pkg
