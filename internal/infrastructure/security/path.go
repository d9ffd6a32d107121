// Package security provides path checks for files the client reads back
// from its own persisted state.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PathValidator confines paths to a set of allowed roots.
type PathValidator struct {
	allowedRoots []string
}

// NewPathValidator creates a validator that accepts paths under roots.
// Empty roots are ignored.
func NewPathValidator(roots ...string) *PathValidator {
	v := &PathValidator{}
	for _, r := range roots {
		v.AddAllowedRoot(r)
	}
	return v
}

// AddAllowedRoot adds an allowed root directory.
func (v *PathValidator) AddAllowedRoot(root string) {
	if root == "" {
		return
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	v.allowedRoots = append(v.allowedRoots, filepath.Clean(root))
}

// Validate returns an error unless path names a file strictly inside one of
// the allowed roots. The root itself is rejected.
func (v *PathValidator) Validate(path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}

	clean := filepath.Clean(path)
	for _, root := range v.allowedRoots {
		if within(root, clean) {
			return nil
		}
	}
	return fmt.Errorf("path is outside allowed directories: %s", path)
}

// WithinDir reports whether path resolves to an entry below root.
func WithinDir(root, path string) bool {
	return NewPathValidator(root).Validate(path) == nil
}

func within(root, clean string) bool {
	rel, err := filepath.Rel(root, clean)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
