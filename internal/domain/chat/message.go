// Package chat provides domain entities for the crop assistant conversation.
package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	// RoleSystem represents a system message
	RoleSystem MessageRole = "system"
	// RoleUser represents a user message
	RoleUser MessageRole = "user"
	// RoleAssistant represents an assistant message
	RoleAssistant MessageRole = "assistant"
)

// IsValid checks if the message role is valid.
func (r MessageRole) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role.
func (r MessageRole) String() string {
	return string(r)
}

// DeliveryStatus is the simulated read-receipt shown next to a user message.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusError     DeliveryStatus = "error"
)

var deliveryRank = map[DeliveryStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// CanAdvance reports whether moving from s to next keeps the progression monotonic.
// read and error are final; error may be entered from any non-final state.
func (s DeliveryStatus) CanAdvance(next DeliveryStatus) bool {
	if s == StatusRead || s == StatusError {
		return false
	}
	if next == StatusError {
		return true
	}
	cur, ok := deliveryRank[s]
	if !ok {
		return false
	}
	n, ok := deliveryRank[next]
	return ok && n > cur
}

// Message is a single transcript entry.
type Message struct {
	ID        string         `json:"id"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Status    DeliveryStatus `json:"status,omitempty"`
	// Synthetic marks locally generated entries (the welcome text) that are never sent upstream.
	Synthetic bool `json:"synthetic,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(role MessageRole, content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a user message in the sending state.
func NewUserMessage(content string) *Message {
	m := NewMessage(RoleUser, content)
	m.Status = StatusSending
	return m
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) *Message {
	return NewMessage(RoleAssistant, content)
}

// NewWelcomeMessage creates the synthetic greeting shown at the top of a new transcript.
func NewWelcomeMessage(content string) *Message {
	m := NewMessage(RoleAssistant, content)
	m.Synthetic = true
	return m
}

// Validate validates the message.
func (m *Message) Validate() error {
	if m.Content == "" {
		return fmt.Errorf("message content cannot be empty")
	}

	if !m.Role.IsValid() {
		return fmt.Errorf("invalid message role: %s", m.Role)
	}

	return nil
}

// Advance moves the delivery status forward; it reports whether anything changed.
func (m *Message) Advance(next DeliveryStatus) bool {
	if !m.Status.CanAdvance(next) {
		return false
	}
	m.Status = next
	return true
}

// Exchange is a persisted prompt/response pair, one row of the chat_messages table.
type Exchange struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// NewExchange creates an exchange record for a completed stream.
func NewExchange(userID, prompt, response string) *Exchange {
	return &Exchange{
		ID:        uuid.New().String(),
		UserID:    userID,
		Message:   prompt,
		Response:  response,
		CreatedAt: time.Now().UTC(),
	}
}

// Messages expands the exchange into its user and assistant transcript entries.
func (e *Exchange) Messages() []*Message {
	user := &Message{ID: e.ID + ":q", Role: RoleUser, Content: e.Message, Timestamp: e.CreatedAt, Status: StatusRead}
	assistant := &Message{ID: e.ID + ":a", Role: RoleAssistant, Content: e.Response, Timestamp: e.CreatedAt}
	return []*Message{user, assistant}
}
