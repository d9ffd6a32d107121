package offline

import "testing"

func TestNewPendingOperation(t *testing.T) {
	tests := []struct {
		name    string
		entity  EntityType
		action  Action
		wantErr bool
	}{
		{"analysis create", EntityAnalysis, ActionCreate, false},
		{"chat delete", EntityChatMessage, ActionDelete, false},
		{"preference update", EntityPreference, ActionUpdate, false},
		{"unknown entity", "weather", ActionCreate, true},
		{"unknown action", EntityAnalysis, "archive", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := NewPendingOperation(tt.entity, tt.action, map[string]string{"id": "x"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPendingOperation() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if op.ID == "" || op.EnqueuedAt.IsZero() {
				t.Errorf("operation missing id or timestamp: %+v", op)
			}
			if op.RetryCount != 0 {
				t.Errorf("RetryCount = %d, want 0", op.RetryCount)
			}
		})
	}
}

func TestPendingOperation_Decode(t *testing.T) {
	op, err := NewPendingOperation(EntityPreference, ActionUpdate, map[string]string{"language": "hi"})
	if err != nil {
		t.Fatalf("NewPendingOperation() error = %v", err)
	}

	var got map[string]string
	if err := op.Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got["language"] != "hi" {
		t.Errorf("language = %q, want hi", got["language"])
	}

	op.Payload = []byte("{broken")
	if err := op.Decode(&got); err == nil {
		t.Error("Decode() should fail on corrupt payload")
	}
}

func TestPendingOperation_Exhausted(t *testing.T) {
	op := &PendingOperation{RetryCount: RetryCeiling - 1}
	if op.Exhausted() {
		t.Error("operation below the ceiling should not be exhausted")
	}
	op.RetryCount++
	if !op.Exhausted() {
		t.Error("operation at the ceiling should be exhausted")
	}
	if op.Key() != "/" {
		t.Errorf("Key() = %q", op.Key())
	}
}
