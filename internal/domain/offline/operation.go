// Package offline provides the domain types for queued mutations made while disconnected.
package offline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RetryCeiling is the number of failed attempts after which a queued operation is abandoned.
const RetryCeiling = 3

// SchemaVersion tags persisted operations so older formats can be recognized.
const SchemaVersion = 1

// EntityType identifies the backend table an operation mutates.
type EntityType string

const (
	EntityAnalysis    EntityType = "analysis"
	EntityChatMessage EntityType = "chat_message"
	EntityPreference  EntityType = "preference"
)

// EntityTypes lists every entity type the sync queue understands.
var EntityTypes = []EntityType{EntityAnalysis, EntityChatMessage, EntityPreference}

// IsValid reports whether the entity type is known.
func (e EntityType) IsValid() bool {
	switch e {
	case EntityAnalysis, EntityChatMessage, EntityPreference:
		return true
	default:
		return false
	}
}

// Action is the kind of mutation.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// IsValid reports whether the action is known.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// PendingOperation is a mutation recorded locally for later replay against the backend.
type PendingOperation struct {
	ID         string          `json:"id"`
	EntityType EntityType      `json:"entity_type"`
	Action     Action          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
}

// NewPendingOperation validates its inputs and encodes payload as JSON.
func NewPendingOperation(entity EntityType, action Action, payload any) (*PendingOperation, error) {
	if !entity.IsValid() {
		return nil, fmt.Errorf("unknown entity type %q", entity)
	}
	if !action.IsValid() {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return &PendingOperation{
		ID:         uuid.New().String(),
		EntityType: entity,
		Action:     action,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Exhausted reports whether the operation has reached the retry ceiling.
func (op *PendingOperation) Exhausted() bool {
	return op.RetryCount >= RetryCeiling
}

// Decode unmarshals the payload into dest.
func (op *PendingOperation) Decode(dest any) error {
	if err := json.Unmarshal(op.Payload, dest); err != nil {
		return fmt.Errorf("decode %s/%s payload: %w", op.EntityType, op.Action, err)
	}
	return nil
}

// Key returns the dispatch key for the handler registry.
func (op *PendingOperation) Key() string {
	return string(op.EntityType) + "/" + string(op.Action)
}
