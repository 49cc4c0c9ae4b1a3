package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// nameRegex matches registry names for stitch policies and tile functions.
var nameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidateName validates a policy or function name used as a registry key.
// Names are lowercase identifiers of at most 64 characters, e.g.
// "array-blend" or "gaussian_blur".
func ValidateName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "name cannot be empty")
	}
	if len(name) > 64 {
		return New(ErrCodeInvalidInput, "name too long (max 64 characters)")
	}
	if !nameRegex.MatchString(name) {
		return New(ErrCodeInvalidInput, "invalid name: %q", name)
	}
	return nil
}

// ValidateCollectionName validates a MongoDB collection name for the
// stitched-output sink.
//
// Validation rules:
//   - Name cannot be empty
//   - Maximum length of 120 characters
//   - No null bytes or control characters
//   - No "$" (reserved by MongoDB)
//   - Must not start with "system."
func ValidateCollectionName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "collection name cannot be empty")
	}
	if len(name) > 120 {
		return New(ErrCodeInvalidInput, "collection name too long (max 120 characters)")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "collection name contains invalid control characters")
		}
	}
	if strings.Contains(name, "$") {
		return New(ErrCodeInvalidInput, "collection name cannot contain '$'")
	}
	if strings.HasPrefix(name, "system.") {
		return New(ErrCodeInvalidInput, "collection name cannot use the system. prefix")
	}
	return nil
}

// ValidatePositive checks that every value in dims is > 0. The code lets
// callers report geometry and configuration problems under their own code.
func ValidatePositive(code Code, what string, dims []int) error {
	if len(dims) == 0 {
		return New(code, "%s cannot be empty", what)
	}
	for i, d := range dims {
		if d <= 0 {
			return New(code, "%s must be positive on every axis (axis %d is %d)", what, i, d)
		}
	}
	return nil
}
