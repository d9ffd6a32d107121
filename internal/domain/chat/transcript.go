package chat

// Transcript is an ordered list of messages. It is not safe for concurrent use;
// the owning channel serializes access.
type Transcript struct {
	messages []*Message
}

// NewTranscript creates a transcript seeded with the given messages.
func NewTranscript(seed ...*Message) *Transcript {
	t := &Transcript{}
	t.messages = append(t.messages, seed...)
	return t
}

// Append adds a message to the end of the transcript.
func (t *Transcript) Append(m *Message) {
	t.messages = append(t.messages, m)
}

// Find returns the message with the given id, or nil.
func (t *Transcript) Find(id string) *Message {
	for _, m := range t.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Remove deletes the message with the given id and reports whether it was present.
func (t *Transcript) Remove(id string) bool {
	for i, m := range t.messages {
		if m.ID == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Snapshot returns copies of every message.
func (t *Transcript) Snapshot() []Message {
	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = *m
	}
	return out
}

// Context returns the role/content history sent upstream, skipping synthetic entries.
func (t *Transcript) Context() []Message {
	out := make([]Message, 0, len(t.messages))
	for _, m := range t.messages {
		if m.Synthetic {
			continue
		}
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}
	return out
}
