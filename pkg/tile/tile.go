package tile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/tilestitch/pkg/geometry"
)

// Index is the N-D grid position of a tile.
type Index []int

// Key returns a compact string form suitable as a map or cache key.
func (ix Index) Key() string {
	parts := make([]string, len(ix))
	for i, v := range ix {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "-")
}

func (ix Index) String() string {
	return "(" + strings.ReplaceAll(ix.Key(), "-", ",") + ")"
}

// Compare orders indices row-major.
func (ix Index) Compare(o Index) int {
	for i := 0; i < len(ix) && i < len(o); i++ {
		if ix[i] != o[i] {
			if ix[i] < o[i] {
				return -1
			}
			return 1
		}
	}
	return len(ix) - len(o)
}

// Equal reports whether both indices address the same tile.
func (ix Index) Equal(o Index) bool { return ix.Compare(o) == 0 }

// Margin is the overlap of a tile with its neighbours on one axis.
type Margin struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// Border flags which sides of a tile lie on the image edge.
type Border struct {
	Lo bool `json:"lo"`
	Hi bool `json:"hi"`
}

// Tile is one cell of a partition. Box, Seam and margins refer to the tiled
// axes only; leading axes are implicit and always read whole.
type Tile struct {
	Index   Index        `json:"index"`
	Ordinal int          `json:"ordinal"`
	Box     geometry.Box `json:"box"`
	Overlap []Margin     `json:"overlap"`
	Border  []Border     `json:"border"`
	Seam    geometry.Box `json:"seam"`
}

// Clone returns a deep copy of t.
func (t Tile) Clone() Tile {
	return Tile{
		Index:   slices.Clone(t.Index),
		Ordinal: t.Ordinal,
		Box:     slices.Clone(t.Box),
		Overlap: slices.Clone(t.Overlap),
		Border:  slices.Clone(t.Border),
		Seam:    slices.Clone(t.Seam),
	}
}

// Key returns the index key of the tile.
func (t Tile) Key() string { return t.Index.Key() }

// Offset returns the global start of the tile box.
func (t Tile) Offset() []int { return t.Box.Lo() }

// Shape returns the extent of the tile box.
func (t Tile) Shape() []int { return t.Box.Shape() }

// Core returns the part of the box that no other tile covers: the box
// shrunk by the full overlap on every non-border side.
func (t Tile) Core() geometry.Box {
	core := make(geometry.Box, len(t.Box))
	for i, iv := range t.Box {
		lo, hi := iv.Start, iv.End
		if !t.Border[i].Lo {
			lo += t.Overlap[i].Lo
		}
		if !t.Border[i].Hi {
			hi -= t.Overlap[i].Hi
		}
		core[i] = geometry.Interval{Start: lo, End: max(lo, hi)}
	}
	return core
}

// OnBorder reports whether any side of the tile touches the image edge.
func (t Tile) OnBorder() bool {
	for _, b := range t.Border {
		if b.Lo || b.Hi {
			return true
		}
	}
	return false
}

func (t Tile) String() string { return fmt.Sprintf("tile%s %v", t.Index, t.Box) }

// Neighbor is a face-adjacent tile.
type Neighbor struct {
	Axis  int   // Tiled axis along which the tiles touch
	Side  int   // -1 for the predecessor, +1 for the successor
	Index Index // Grid index of the neighbour
}
