package output

import (
	"os"
	"testing"
)

func TestDetectColorSupport(t *testing.T) {
	// a regular file is never a terminal
	notTTY, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer notTTY.Close()

	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"NO_COLOR set", map[string]string{"NO_COLOR": "1", "TERM": "xterm-256color"}, false},
		{"NO_COLOR beats FORCE_COLOR", map[string]string{"NO_COLOR": "", "FORCE_COLOR": "1"}, false},
		{"FORCE_COLOR overrides", map[string]string{"FORCE_COLOR": "1"}, true},
		{"not a terminal", map[string]string{"TERM": "xterm-256color"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			}
			if got := detectColorSupport(lookup, notTTY); got != tt.want {
				t.Errorf("detectColorSupport() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResetColorDetection(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	ResetColorDetection()
	defer ResetColorDetection()

	if IsColorSupported() {
		t.Error("expected colors disabled with NO_COLOR")
	}
	if colorsEnabled == nil {
		t.Fatal("expected detection result to be cached")
	}
	ResetColorDetection()
	if colorsEnabled != nil {
		t.Error("expected cache to be cleared")
	}
}
