package security

import (
	"path/filepath"
	"testing"
)

func TestPathValidator_Validate(t *testing.T) {
	root := t.TempDir()
	v := NewPathValidator(root, "")

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in root", filepath.Join(root, "a.jpg"), false},
		{"nested file", filepath.Join(root, "x", "b.jpg"), false},
		{"root itself", root, true},
		{"empty", "", true},
		{"relative", "a.jpg", true},
		{"traversal", root + "/../escape.jpg", true},
		{"sibling with shared prefix", root + "-other/a.jpg", true},
		{"elsewhere", "/etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestPathValidator_NoRoots(t *testing.T) {
	if err := NewPathValidator().Validate("/tmp/a.jpg"); err == nil {
		t.Error("expected error with no allowed roots")
	}
}

func TestWithinDir(t *testing.T) {
	root := t.TempDir()
	if !WithinDir(root, filepath.Join(root, "spool.jpg")) {
		t.Error("expected file inside root to be accepted")
	}
	if WithinDir(root, filepath.Dir(root)) {
		t.Error("expected parent to be rejected")
	}
	if WithinDir("", filepath.Join(root, "spool.jpg")) {
		t.Error("expected empty root to reject everything")
	}
}
