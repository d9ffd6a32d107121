package output

import (
	"os"
)

// colorsEnabled caches the result of color support detection.
var colorsEnabled *bool

// IsColorSupported reports whether stdout should receive ANSI colors.
// NO_COLOR disables them, FORCE_COLOR enables them, otherwise a terminal
// with a usable TERM gets them.
func IsColorSupported() bool {
	if colorsEnabled != nil {
		return *colorsEnabled
	}

	enabled := detectColorSupport(os.LookupEnv, os.Stdout)
	colorsEnabled = &enabled
	return enabled
}

func detectColorSupport(lookup func(string) (string, bool), out *os.File) bool {
	// https://no-color.org/
	if _, exists := lookup("NO_COLOR"); exists {
		return false
	}
	if _, exists := lookup("FORCE_COLOR"); exists {
		return true
	}

	stat, err := out.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice == 0 {
		return false
	}

	term, _ := lookup("TERM")
	return term != "" && term != "dumb"
}

// ResetColorDetection clears the cached detection result.
func ResetColorDetection() {
	colorsEnabled = nil
}

// severityColors maps a disease severity to its display color.
var severityColors = map[string]Color{
	"low":      ColorGreen,
	"moderate": ColorYellow,
	"high":     ColorRed,
	"critical": ColorMagenta,
}

// statusColors maps an analysis status to its display color.
var statusColors = map[string]Color{
	"pending":    ColorDim,
	"processing": ColorCyan,
	"completed":  ColorGreen,
	"failed":     ColorRed,
	"queued":     ColorYellow,
}
