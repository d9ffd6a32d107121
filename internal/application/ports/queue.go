package ports

import (
	"context"

	"github.com/jbctechsolutions/cropcare/internal/domain/offline"
)

// QueuePort is durable FIFO storage for pending operations.
type QueuePort interface {
	// Append persists op at the tail of the queue.
	Append(ctx context.Context, op *offline.PendingOperation) error

	// List returns every operation in insertion order.
	List(ctx context.Context) ([]*offline.PendingOperation, error)

	// Remove deletes the operation with the given id. Removing a missing id is not an error.
	Remove(ctx context.Context, id string) error

	// BumpRetry increments the retry count in place and returns the new count.
	BumpRetry(ctx context.Context, id string) (int, error)

	// Len returns the number of queued operations.
	Len(ctx context.Context) (int, error)
}
