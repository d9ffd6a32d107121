package offline

import (
	"context"
	"fmt"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/domain/offline"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/metrics"
)

// Queue records mutations made while the backend is unreachable.
type Queue struct {
	store  ports.QueuePort
	logger *logging.Logger
}

// NewQueue creates a queue over store.
func NewQueue(store ports.QueuePort, logger *logging.Logger) *Queue {
	if logger == nil {
		logger = logging.Default()
	}
	return &Queue{store: store, logger: logger}
}

// Enqueue appends a new operation with a zero retry count and returns its id.
// The operation is durable once Enqueue returns.
func (q *Queue) Enqueue(ctx context.Context, entity offline.EntityType, action offline.Action, payload any) (string, error) {
	op, err := offline.NewPendingOperation(entity, action, payload)
	if err != nil {
		return "", domainerrors.NewError(domainerrors.CodeValidation, "invalid queued operation", err)
	}
	if err := q.store.Append(ctx, op); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", op.Key(), err)
	}

	q.logger.InfoContext(logging.WithOperationID(ctx, op.ID), "operation queued for sync",
		"entity_type", string(entity), "action", string(action))
	q.reportDepth(ctx)
	return op.ID, nil
}

// List returns every queued operation in insertion order.
func (q *Queue) List(ctx context.Context) ([]*offline.PendingOperation, error) {
	return q.store.List(ctx)
}

// Len returns the number of queued operations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.store.Len(ctx)
}

func (q *Queue) reportDepth(ctx context.Context) {
	if n, err := q.store.Len(ctx); err == nil {
		metrics.SetQueueDepth(n)
	}
}
