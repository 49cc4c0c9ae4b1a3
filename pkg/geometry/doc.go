// Package geometry computes tile grids over N-dimensional images.
//
// Every function here is pure: given an image extent S, a tile extent T and an
// overlap O on an axis, the grid is
//
//	n     = max(1, ceil((S-O)/(T-O)))
//	start = i*(T-O)
//	end   = min(start+T, S)
//
// Tiles are clipped at the image edge, never padded, so the last tile on an
// axis may be shorter than T and may overlap its predecessor by more than O.
// The seam between tiles i and i+1 lies at the midpoint of their overlap; the
// seams split the axis into non-overlapping owner intervals that exactly cover
// [0, S).
package geometry
