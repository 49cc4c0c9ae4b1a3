package errors

import (
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "passthrough", false},
		{"valid with dash", "array-blend", false},
		{"valid with underscore", "gaussian_blur", false},
		{"valid with digits", "blur3", false},

		{"empty", "", true},
		{"too long", "a" + string(make([]byte, 70)), true},
		{"uppercase", "ArrayBlend", true},
		{"leading digit", "3blur", true},
		{"space", "array blend", true},
		{"slash", "a/b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "detections", false},
		{"valid dotted", "runs.objects", false},

		{"empty", "", true},
		{"dollar", "a$b", true},
		{"system prefix", "system.users", true},
		{"control char", "foo\x01bar", true},
		{"too long", string(make([]byte, 130)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCollectionName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePositive(t *testing.T) {
	tests := []struct {
		name    string
		dims    []int
		wantErr bool
	}{
		{"valid", []int{100, 100}, false},
		{"empty", nil, true},
		{"zero", []int{100, 0}, true},
		{"negative", []int{-1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositive(ErrCodeInvalidTileSpec, "tile shape", tt.dims)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePositive(%v) error = %v, wantErr %v", tt.dims, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidTileSpec) {
				t.Errorf("ValidatePositive(%v) code = %v, want %v", tt.dims, GetCode(err), ErrCodeInvalidTileSpec)
			}
		})
	}
}

func TestErrorCodesAreUnique(t *testing.T) {
	codes := []Code{
		ErrCodeInvalidTileSpec,
		ErrCodeInvalidConfig,
		ErrCodeInvalidInput,
		ErrCodeTileComputation,
		ErrCodeIncompleteTileSet,
		ErrCodeUnsupportedOutputType,
		ErrCodeNotFound,
		ErrCodeInternal,
	}

	seen := make(map[Code]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %s", code)
		}
		seen[code] = true
	}
}
