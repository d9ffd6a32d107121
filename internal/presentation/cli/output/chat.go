package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jbctechsolutions/cropcare/internal/domain/chat"
)

// ChatRenderer prints transcript updates as they arrive: assistant replies
// are written incrementally, failed user messages get a notice.
type ChatRenderer struct {
	mu      sync.Mutex
	writer  io.Writer
	colored bool
	printed map[string]int
	failed  map[string]bool
	open    string
}

// NewChatRenderer creates a renderer writing to w.
func NewChatRenderer(w io.Writer, colored bool) *ChatRenderer {
	return &ChatRenderer{
		writer:  w,
		colored: colored,
		printed: make(map[string]int),
		failed:  make(map[string]bool),
	}
}

func (r *ChatRenderer) paint(text string, c Color) string {
	if !r.colored {
		return text
	}
	return string(c) + text + string(ColorReset)
}

// Update renders the latest state of one message.
func (r *ChatRenderer) Update(m chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m.Role {
	case chat.RoleAssistant:
		n, seen := r.printed[m.ID]
		if !seen {
			r.closeLocked()
			fmt.Fprint(r.writer, r.paint("assistant> ", ColorCyan))
			r.open = m.ID
		}
		if len(m.Content) > n {
			fmt.Fprint(r.writer, m.Content[n:])
			r.printed[m.ID] = len(m.Content)
		} else if !seen {
			r.printed[m.ID] = 0
		}
	case chat.RoleUser:
		if m.Status == chat.StatusError && !r.failed[m.ID] {
			r.failed[m.ID] = true
			r.closeLocked()
			fmt.Fprintln(r.writer, r.paint("✗ not delivered: "+preview(m.Content)+" (/retry to send again)", ColorRed))
		}
	}
}

// Finish ends the reply line being streamed, if any.
func (r *ChatRenderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *ChatRenderer) closeLocked() {
	if r.open != "" {
		fmt.Fprintln(r.writer)
		r.open = ""
	}
}

// Welcome prints the synthetic greeting that opens a conversation.
func (r *ChatRenderer) Welcome(m chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printed[m.ID] = len(m.Content)
	fmt.Fprintln(r.writer, r.paint("assistant> ", ColorCyan)+m.Content)
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return truncate(s, 40)
}

// ChatHistory prints stored exchanges oldest first.
func (f *Formatter) ChatHistory(exchanges []*chat.Exchange) error {
	if f.IsJSON() {
		return f.JSON(exchanges)
	}
	if len(exchanges) == 0 {
		return f.Info("No conversations yet")
	}
	for _, ex := range exchanges {
		f.Println("%s  %s", f.Dim(ex.CreatedAt.Local().Format(dateLayout)), f.Dim(shortID(ex.ID)))
		f.Println("%s %s", f.Colorize("you>", ColorBold), ex.Message)
		f.Println("%s %s", f.Colorize("assistant>", ColorCyan), ex.Response)
		f.Println("")
	}
	return nil
}
