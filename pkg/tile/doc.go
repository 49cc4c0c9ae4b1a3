// Package tile partitions an N-D image into overlapping tiles and defines the
// tagged per-tile result values that stitch policies consume.
//
// A [Partition] is built once from (shape, tile shape, overlap, mode) and is
// immutable afterwards; it may be shared freely between goroutines. When the
// tile shape has fewer axes than the image, only the trailing axes are tiled
// and leading axes (channels, z-planes) are carried whole by every tile.
//
// Tiles are enumerated in row-major order of their grid index. Every tile
// knows its box, its overlap margins, which of its sides lie on the image
// border, its core (the part no other tile covers) and its seam box (the part
// it owns when tiles are cropped back together).
//
// # Registry
//
// Identical geometry always yields identical partitions, so [Registry] caches
// them for the life of the process. Entries are never evicted; call
// [Registry.Clear] to drop them.
package tile
