package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jbctechsolutions/cropcare/internal/domain/chat"
)

func TestChatRenderer_StreamsDeltas(t *testing.T) {
	var buf bytes.Buffer
	r := NewChatRenderer(&buf, false)

	reply := chat.Message{ID: "a1", Role: chat.RoleAssistant}
	r.Update(reply)
	reply.Content = "Water "
	r.Update(reply)
	reply.Content = "Water early."
	r.Update(reply)
	r.Update(reply) // repeated state prints nothing
	r.Finish()

	if got := buf.String(); got != "assistant> Water early.\n" {
		t.Errorf("output = %q", got)
	}
}

func TestChatRenderer_FailedUserMessage(t *testing.T) {
	var buf bytes.Buffer
	r := NewChatRenderer(&buf, false)

	msg := chat.Message{ID: "u1", Role: chat.RoleUser, Content: "is   this blight?", Status: chat.StatusSending}
	r.Update(msg)
	if buf.Len() != 0 {
		t.Fatalf("sending messages are not echoed: %q", buf.String())
	}
	msg.Status = chat.StatusError
	r.Update(msg)
	r.Update(msg)

	out := buf.String()
	if strings.Count(out, "not delivered") != 1 {
		t.Errorf("expected one failure notice, got %q", out)
	}
	if !strings.Contains(out, "is this blight?") {
		t.Errorf("notice should quote the message: %q", out)
	}
}

func TestChatRenderer_WelcomeIsNotRepeated(t *testing.T) {
	var buf bytes.Buffer
	r := NewChatRenderer(&buf, false)
	welcome := *chat.NewWelcomeMessage("Hello!")
	r.Welcome(welcome)
	r.Update(welcome)
	r.Finish()

	if got := buf.String(); strings.Count(got, "Hello!") != 1 {
		t.Errorf("output = %q", got)
	}
}
