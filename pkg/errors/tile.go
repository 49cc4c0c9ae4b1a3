package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TileFailure records why a single tile could not be computed.
type TileFailure struct {
	Index []int  // Grid index of the tile
	Lo    []int  // Inclusive start of the tile box per tiled axis
	Hi    []int  // Exclusive end of the tile box per tiled axis
	Stage string // "read" or "apply"
	Cause error
}

// Error implements the error interface.
func (f TileFailure) Error() string {
	return fmt.Sprintf("tile %s %s [%s]: %v", formatInts(f.Index), f.Stage, formatBox(f.Lo, f.Hi), f.Cause)
}

// Unwrap returns the underlying cause.
func (f TileFailure) Unwrap() error { return f.Cause }

// TileComputationError aggregates every tile that failed during a run.
// Failures are ordered by tile index.
type TileComputationError struct {
	Failures []TileFailure
}

// NewTileComputationError builds the aggregate error, ordering failures
// row-major by index. Returns nil when failures is empty.
func NewTileComputationError(failures []TileFailure) *TileComputationError {
	if len(failures) == 0 {
		return nil
	}
	sorted := make([]TileFailure, len(failures))
	copy(sorted, failures)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareInts(sorted[i].Index, sorted[j].Index) < 0
	})
	return &TileComputationError{Failures: sorted}
}

// Error implements the error interface.
func (e *TileComputationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d tile(s) failed", ErrCodeTileComputation, len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("\n  ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// ErrorCode returns ErrCodeTileComputation.
func (e *TileComputationError) ErrorCode() Code { return ErrCodeTileComputation }

// Unwrap exposes every failure cause to errors.Is and errors.As.
func (e *TileComputationError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Indices returns the grid indices of all failing tiles.
func (e *TileComputationError) Indices() [][]int {
	out := make([][]int, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Index
	}
	return out
}

// IncompleteTileSetError is returned when a result set does not match the
// tiles of its partition.
type IncompleteTileSetError struct {
	Missing   [][]int // Tiles of the partition with no result
	Duplicate [][]int // Tiles with more than one result
	Unknown   [][]int // Results whose index is not part of the partition
}

// Error implements the error interface.
func (e *IncompleteTileSetError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+formatIndices(e.Missing))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "duplicate "+formatIndices(e.Duplicate))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown "+formatIndices(e.Unknown))
	}
	return fmt.Sprintf("%s: %s", ErrCodeIncompleteTileSet, strings.Join(parts, "; "))
}

// ErrorCode returns ErrCodeIncompleteTileSet.
func (e *IncompleteTileSetError) ErrorCode() Code { return ErrCodeIncompleteTileSet }

// AsTileComputation extracts a *TileComputationError from err's chain.
func AsTileComputation(err error) (*TileComputationError, bool) {
	var tce *TileComputationError
	if errors.As(err, &tce) {
		return tce, true
	}
	return nil, false
}

func formatInts(v []int) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = fmt.Sprint(x)
	}
	return "(" + strings.Join(s, ",") + ")"
}

func formatBox(lo, hi []int) string {
	s := make([]string, len(lo))
	for i := range lo {
		end := 0
		if i < len(hi) {
			end = hi[i]
		}
		s[i] = fmt.Sprintf("%d:%d", lo[i], end)
	}
	return strings.Join(s, ",")
}

func formatIndices(idx [][]int) string {
	s := make([]string, len(idx))
	for i, v := range idx {
		s[i] = formatInts(v)
	}
	return strings.Join(s, " ")
}

func compareInts(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
