package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a status line on stderr while an upload or inference
// call is running. After a second it also shows the elapsed time, which
// matters on slow rural links.
type Spinner struct {
	mu       sync.Mutex
	message  string
	writer   io.Writer
	colored  bool
	interval time.Duration
	now      func() time.Time

	running bool
	started time.Time
	width   int
	done    chan struct{}
	stopped chan struct{}
}

// SpinnerOption configures a Spinner.
type SpinnerOption func(*Spinner)

// NewSpinner creates a stopped spinner.
func NewSpinner(message string, opts ...SpinnerOption) *Spinner {
	s := &Spinner{
		message:  message,
		writer:   os.Stderr,
		colored:  true,
		interval: 80 * time.Millisecond,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithSpinnerWriter sets where the spinner draws.
func WithSpinnerWriter(w io.Writer) SpinnerOption {
	return func(s *Spinner) { s.writer = w }
}

// WithSpinnerColor enables or disables colors.
func WithSpinnerColor(enabled bool) SpinnerOption {
	return func(s *Spinner) { s.colored = enabled }
}

// Start begins drawing. Starting a running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.started = s.now()
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.animate(s.done, s.stopped)
}

// Stop stops drawing and clears the line. Stopping a stopped spinner does
// nothing.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	stopped := s.stopped
	s.mu.Unlock()

	<-stopped

	s.mu.Lock()
	w := s.width
	s.width = 0
	s.mu.Unlock()
	if w > 0 {
		_, _ = fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", w))
	}
}

func (s *Spinner) animate(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		text := s.message
		if elapsed := s.now().Sub(s.started); elapsed >= time.Second {
			text += fmt.Sprintf(" %ds", int(elapsed.Seconds()))
		}
		frame := spinnerFrames[i%len(spinnerFrames)]
		s.width = max(s.width, width(text)+2)
		s.mu.Unlock()

		if s.colored {
			frame = string(ColorCyan) + frame + string(ColorReset)
		}
		_, _ = fmt.Fprintf(s.writer, "\r%s %s", frame, text)
	}
}
