// Package output renders command results as text, tables or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"
)

// Format is the output mode selected with --output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses the --output flag. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// Color is an ANSI escape sequence.
type Color string

const (
	ColorReset   Color = "\033[0m"
	ColorRed     Color = "\033[31m"
	ColorGreen   Color = "\033[32m"
	ColorYellow  Color = "\033[33m"
	ColorBlue    Color = "\033[34m"
	ColorMagenta Color = "\033[35m"
	ColorCyan    Color = "\033[36m"
	ColorBold    Color = "\033[1m"
	ColorDim     Color = "\033[2m"
)

// Formatter writes human or JSON output. It is safe for concurrent use so
// that streamed chat updates and status lines do not interleave mid-line.
type Formatter struct {
	mu     sync.Mutex
	writer io.Writer
	format Format
	color  bool
}

// Option configures a Formatter.
type Option func(*Formatter)

// NewFormatter creates a text formatter on stdout with colors on.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{writer: os.Stdout, format: FormatText, color: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithWriter sets the output writer.
func WithWriter(w io.Writer) Option {
	return func(f *Formatter) { f.writer = w }
}

// WithFormat sets the output format.
func WithFormat(format Format) Option {
	return func(f *Formatter) { f.format = format }
}

// WithColor enables or disables ANSI colors.
func WithColor(enabled bool) Option {
	return func(f *Formatter) { f.color = enabled }
}

// Format returns the output format.
func (f *Formatter) Format() Format {
	return f.format
}

// IsJSON reports whether output is machine-readable.
func (f *Formatter) IsJSON() bool {
	return f.format == FormatJSON
}

func (f *Formatter) write(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := io.WriteString(f.writer, s)
	return err
}

// Print writes formatted output without a newline.
func (f *Formatter) Print(format string, args ...any) error {
	return f.write(fmt.Sprintf(format, args...))
}

// Println writes formatted output followed by a newline.
func (f *Formatter) Println(format string, args ...any) error {
	return f.write(fmt.Sprintf(format, args...) + "\n")
}

// Colorize wraps text in color when colors are enabled.
func (f *Formatter) Colorize(text string, color Color) string {
	if !f.color || text == "" {
		return text
	}
	return string(color) + text + string(ColorReset)
}

// Bold renders text in bold.
func (f *Formatter) Bold(text string) string {
	return f.Colorize(text, ColorBold)
}

// Dim renders text muted.
func (f *Formatter) Dim(text string) string {
	return f.Colorize(text, ColorDim)
}

func (f *Formatter) status(symbol string, color Color, format string, args []any) error {
	return f.Println("%s", f.Colorize(symbol+" "+fmt.Sprintf(format, args...), color))
}

// Success prints a green confirmation.
func (f *Formatter) Success(format string, args ...any) error {
	return f.status("✓", ColorGreen, format, args)
}

// Error prints a red failure.
func (f *Formatter) Error(format string, args ...any) error {
	return f.status("✗", ColorRed, format, args)
}

// Warning prints a yellow warning.
func (f *Formatter) Warning(format string, args ...any) error {
	return f.status("⚠", ColorYellow, format, args)
}

// Info prints a blue note.
func (f *Formatter) Info(format string, args ...any) error {
	return f.status("ℹ", ColorBlue, format, args)
}

// Header prints a bold title underlined to its width.
func (f *Formatter) Header(msg string) error {
	return f.write(f.Bold(msg) + "\n" + strings.Repeat("─", width(msg)) + "\n")
}

// SubHeader prints a section title.
func (f *Formatter) SubHeader(msg string) error {
	return f.Println("%s", f.Colorize(msg, ColorCyan))
}

// Item prints an indented key: value line.
func (f *Formatter) Item(key, value string) error {
	return f.Println("  %s: %s", f.Dim(key), value)
}

// BulletItem prints an indented bullet.
func (f *Formatter) BulletItem(msg string) error {
	return f.Println("  • %s", msg)
}

// JSON writes v as indented JSON.
func (f *Formatter) JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return f.write(string(data) + "\n")
}

// Alignment is a table cell alignment.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// TableColumn describes one table column. Width is a minimum.
type TableColumn struct {
	Header string
	Width  int
	Align  Alignment
}

// TableData is a table to render.
type TableData struct {
	Columns []TableColumn
	Rows    [][]string
}

// Table writes data as aligned columns. Widths count runes so that unit
// symbols such as ° do not skew alignment. Cells beyond the last column
// are dropped.
func (f *Formatter) Table(data TableData) error {
	if len(data.Columns) == 0 {
		return nil
	}

	widths := make([]int, len(data.Columns))
	for i, col := range data.Columns {
		widths[i] = max(col.Width, width(col.Header))
	}
	for _, row := range data.Rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], width(cell))
			}
		}
	}

	var b strings.Builder
	line := func(cells []string, style func(string) string) {
		parts := make([]string, 0, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts = append(parts, padCell(cell, widths[i], data.Columns[i].Align))
		}
		b.WriteString(style(strings.TrimRight(strings.Join(parts, "  "), " ")))
		b.WriteByte('\n')
	}

	headers := make([]string, len(data.Columns))
	rules := make([]string, len(data.Columns))
	for i, col := range data.Columns {
		headers[i] = col.Header
		rules[i] = strings.Repeat("-", widths[i])
	}
	line(headers, f.Bold)
	line(rules, func(s string) string { return s })
	for _, row := range data.Rows {
		line(row, func(s string) string { return s })
	}
	return f.write(b.String())
}

func width(s string) int {
	return utf8.RuneCountInString(s)
}

func padCell(text string, w int, align Alignment) string {
	pad := w - width(text)
	if pad <= 0 {
		return text
	}
	switch align {
	case AlignRight:
		return strings.Repeat(" ", pad) + text
	case AlignCenter:
		left := pad / 2
		return strings.Repeat(" ", left) + text + strings.Repeat(" ", pad-left)
	default:
		return text + strings.Repeat(" ", pad)
	}
}
