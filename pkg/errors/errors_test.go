package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("unexpected EOF")
	tests := []struct {
		err  *Error
		want string
		msg  string
	}{
		{New(ErrCodeInvalidTileSpec, "tile %d <= overlap %d", 16, 16), "INVALID_TILE_SPEC: tile 16 <= overlap 16", "tile 16 <= overlap 16"},
		{Wrap(ErrCodeInvalidConfig, cause, "decode %s", "job.toml"), "INVALID_CONFIG: decode job.toml: unexpected EOF", "decode job.toml"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
		if got := UserMessage(tt.err); got != tt.msg {
			t.Errorf("UserMessage() = %q, want %q", got, tt.msg)
		}
	}
	if UserMessage(cause) != "unexpected EOF" {
		t.Error("UserMessage should pass plain errors through")
	}
	if !errors.Is(tests[1].err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
}

func TestCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
	}{
		{"coded", New(ErrCodeNotFound, "partition"), ErrCodeNotFound},
		{"outer code wins", Wrap(ErrCodeInvalidConfig, New(ErrCodeInvalidInput, "inner"), "outer"), ErrCodeInvalidConfig},
		{"behind fmt.Errorf", fmt.Errorf("stitch: %w", New(ErrCodeUnsupportedOutputType, "raw")), ErrCodeUnsupportedOutputType},
		{"typed error", &IncompleteTileSetError{Missing: [][]int{{0}}}, ErrCodeIncompleteTileSet},
		{"plain", errors.New("plain"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.code {
				t.Errorf("GetCode() = %q, want %q", got, tt.code)
			}
			if tt.code != "" && !Is(tt.err, tt.code) {
				t.Errorf("Is(err, %s) = false", tt.code)
			}
			if Is(tt.err, "") {
				t.Error("Is(err, \"\") must be false")
			}
		})
	}
}

func TestTileComputationError(t *testing.T) {
	causeA := errors.New("boom")
	causeB := errors.New("disk")
	err := NewTileComputationError([]TileFailure{
		{Index: []int{1, 0}, Lo: []int{40, 0}, Hi: []int{100, 60}, Stage: "apply", Cause: causeA},
		{Index: []int{0, 1}, Lo: []int{0, 40}, Hi: []int{60, 100}, Stage: "read", Cause: causeB},
	})

	if !Is(err, ErrCodeTileComputation) {
		t.Errorf("Is(err, %v) = false, want true", ErrCodeTileComputation)
	}
	if !errors.Is(err, causeA) || !errors.Is(err, causeB) {
		t.Error("errors.Is should reach every failure cause")
	}

	got := err.Indices()
	if len(got) != 2 || got[0][0] != 0 || got[0][1] != 1 {
		t.Errorf("Indices() = %v, want row-major order", got)
	}

	wrapped := fmt.Errorf("compute: %w", err)
	tce, ok := AsTileComputation(wrapped)
	if !ok || len(tce.Failures) != 2 {
		t.Fatalf("AsTileComputation() = %v, %v", tce, ok)
	}
	if GetCode(wrapped) != ErrCodeTileComputation {
		t.Errorf("GetCode() = %v, want %v", GetCode(wrapped), ErrCodeTileComputation)
	}

	if !strings.Contains(err.Error(), "tile (1,0) apply [40:100,0:60]: boom") {
		t.Errorf("Error() = %q, missing failure detail", err.Error())
	}
}

func TestNewTileComputationErrorEmpty(t *testing.T) {
	if err := NewTileComputationError(nil); err != nil {
		t.Errorf("NewTileComputationError(nil) = %v, want nil", err)
	}
}

func TestIncompleteTileSetError(t *testing.T) {
	err := &IncompleteTileSetError{
		Missing:   [][]int{{0, 1}},
		Duplicate: [][]int{{1, 1}},
	}

	if !Is(err, ErrCodeIncompleteTileSet) {
		t.Errorf("Is(err, %v) = false, want true", ErrCodeIncompleteTileSet)
	}

	expected := "INCOMPLETE_TILE_SET: missing (0,1); duplicate (1,1)"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}
