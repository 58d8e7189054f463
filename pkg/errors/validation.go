package errors

import (
	"strings"
	"unicode"
)

// ValidateEntryName validates the name of the archive entry to repair.
//
// Zip entry names are slash-separated and relative, so the rules are:
//   - No empty names
//   - No control characters or null bytes
//   - No leading slash and no backslashes
//   - No ".." path segments
func ValidateEntryName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "entry name cannot be empty")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "entry name contains invalid control characters")
		}
	}

	if strings.HasPrefix(name, "/") {
		return New(ErrCodeInvalidInput, "entry name must be relative: %q", name)
	}
	if strings.Contains(name, "\\") {
		return New(ErrCodeInvalidInput, "entry name must use forward slashes: %q", name)
	}

	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return New(ErrCodeInvalidInput, "entry name contains path traversal: %q", name)
		}
	}

	return nil
}
