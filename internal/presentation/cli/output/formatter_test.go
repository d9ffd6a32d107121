package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{" JSON ", FormatJSON, false},
		{"table", FormatText, true},
		{"yaml", FormatText, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewFormatter_Defaults(t *testing.T) {
	f := NewFormatter()
	if f.Format() != FormatText || f.IsJSON() {
		t.Errorf("default format = %q", f.Format())
	}
	if !NewFormatter(WithFormat(FormatJSON)).IsJSON() {
		t.Error("WithFormat(FormatJSON) not applied")
	}
}

func TestFormatter_StatusLines(t *testing.T) {
	tests := []struct {
		name  string
		emit  func(*Formatter) error
		want  string
		color Color
	}{
		{"success", func(f *Formatter) error { return f.Success("saved %d", 2) }, "✓ saved 2", ColorGreen},
		{"error", func(f *Formatter) error { return f.Error("upload failed") }, "✗ upload failed", ColorRed},
		{"warning", func(f *Formatter) error { return f.Warning("offline") }, "⚠ offline", ColorYellow},
		{"info", func(f *Formatter) error { return f.Info("queued") }, "ℹ queued", ColorBlue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.emit(NewFormatter(WithWriter(&buf), WithColor(false))); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want+"\n" {
				t.Errorf("plain output = %q, want %q", buf.String(), tt.want+"\n")
			}

			buf.Reset()
			_ = tt.emit(NewFormatter(WithWriter(&buf), WithColor(true)))
			if !strings.HasPrefix(buf.String(), string(tt.color)) || !strings.Contains(buf.String(), string(ColorReset)) {
				t.Errorf("colored output = %q", buf.String())
			}
		})
	}
}

func TestFormatter_Colorize(t *testing.T) {
	on := NewFormatter(WithColor(true))
	if got := on.Colorize("high", ColorRed); got != string(ColorRed)+"high"+string(ColorReset) {
		t.Errorf("Colorize() = %q", got)
	}
	if got := on.Colorize("", ColorRed); got != "" {
		t.Errorf("empty text should stay empty, got %q", got)
	}
	if got := NewFormatter(WithColor(false)).Bold("x"); got != "x" {
		t.Errorf("Bold() without color = %q", got)
	}
}

func TestFormatter_HeaderAndItem(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))
	_ = f.Header("Weather for Nashik")
	_ = f.Item("Humidity", "71%")
	_ = f.BulletItem("analysis create: 2")

	want := "Weather for Nashik\n" + strings.Repeat("─", 18) + "\n  Humidity: 71%\n  • analysis create: 2\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestFormatter_Table(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))

	err := f.Table(TableData{
		Columns: []TableColumn{
			{Header: "DATE"},
			{Header: "MAX", Align: AlignRight},
			{Header: "SUMMARY", Align: AlignCenter, Width: 9},
		},
		Rows: [][]string{
			{"2025-06-01", "34°", "sun"},
			{"2025-06-02", "29°"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	want := []string{
		"DATE        MAX   SUMMARY",
		"----------  ---  ---------",
		"2025-06-01  34°     sun",
		"2025-06-02  29°",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestFormatter_TableNoColumns(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(WithWriter(&buf)).Table(TableData{Rows: [][]string{{"x"}}}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestPadCell(t *testing.T) {
	tests := []struct {
		text  string
		width int
		align Alignment
		want  string
	}{
		{"ok", 4, AlignLeft, "ok  "},
		{"ok", 4, AlignRight, "  ok"},
		{"ok", 5, AlignCenter, " ok  "},
		{"29°", 4, AlignRight, " 29°"},
		{"overflow", 3, AlignLeft, "overflow"},
	}
	for _, tt := range tests {
		if got := padCell(tt.text, tt.width, tt.align); got != tt.want {
			t.Errorf("padCell(%q, %d, %d) = %q, want %q", tt.text, tt.width, tt.align, got, tt.want)
		}
	}
}

func TestFormatter_JSON(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithFormat(FormatJSON))
	if err := f.JSON(map[string]any{"queued": 2, "online": false}); err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["queued"] != float64(2) || decoded["online"] != false {
		t.Errorf("decoded = %v", decoded)
	}
	if !strings.Contains(buf.String(), "\n  \"") {
		t.Error("expected indented JSON")
	}

	if err := f.JSON(make(chan int)); err == nil {
		t.Error("expected error for unencodable value")
	}
}

func TestFormatter_ConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.Println("line")
		}()
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "line\n"); got != 20 {
		t.Errorf("got %d complete lines, want 20", got)
	}
}

// syncBuffer guards a buffer read by the test while the spinner writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_DrawsAndClears(t *testing.T) {
	var out syncBuffer
	s := NewSpinner("Analyzing photo...", WithSpinnerWriter(&out), WithSpinnerColor(false))
	s.interval = 5 * time.Millisecond

	s.Start()
	s.Start()
	time.Sleep(40 * time.Millisecond)
	s.Stop()
	s.Stop()

	got := out.String()
	if !strings.Contains(got, "Analyzing photo...") {
		t.Errorf("spinner never drew its message: %q", got)
	}
	if !strings.HasSuffix(got, "\r") {
		t.Errorf("line not cleared on stop: %q", got)
	}
	if strings.Contains(got, string(ColorCyan)) {
		t.Error("colors drawn while disabled")
	}
}

func TestSpinner_ShowsElapsed(t *testing.T) {
	var out syncBuffer
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := start
	s := NewSpinner("Uploading", WithSpinnerWriter(&out), WithSpinnerColor(false))
	s.interval = 5 * time.Millisecond
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	s.Start()
	mu.Lock()
	now = start.Add(3 * time.Second)
	mu.Unlock()
	time.Sleep(40 * time.Millisecond)
	s.Stop()

	if !strings.Contains(out.String(), "Uploading 3s") {
		t.Errorf("elapsed time missing: %q", out.String())
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	var out syncBuffer
	NewSpinner("idle", WithSpinnerWriter(&out)).Stop()
	if out.String() != "" {
		t.Errorf("unexpected output %q", out.String())
	}
}
