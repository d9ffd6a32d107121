// Package queue provides QueuePort adapters for pending operations.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/offline"
)

// MemoryQueue keeps pending operations in a slice.
type MemoryQueue struct {
	mu  sync.Mutex
	ops []*offline.PendingOperation
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Append adds a copy of op at the tail.
func (q *MemoryQueue) Append(ctx context.Context, op *offline.PendingOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.ops {
		if existing.ID == op.ID {
			return fmt.Errorf("operation %s already queued", op.ID)
		}
	}
	stored := *op
	q.ops = append(q.ops, &stored)
	return nil
}

// List returns copies of every operation in insertion order.
func (q *MemoryQueue) List(ctx context.Context) ([]*offline.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*offline.PendingOperation, len(q.ops))
	for i, op := range q.ops {
		c := *op
		out[i] = &c
	}
	return out, nil
}

// Remove deletes the operation with id.
func (q *MemoryQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, op := range q.ops {
		if op.ID == id {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			return nil
		}
	}
	return nil
}

// BumpRetry increments the retry count of id.
func (q *MemoryQueue) BumpRetry(ctx context.Context, id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, op := range q.ops {
		if op.ID == id {
			op.RetryCount++
			return op.RetryCount, nil
		}
	}
	return 0, fmt.Errorf("operation %s not queued", id)
}

// Len returns the number of queued operations.
func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops), nil
}

var _ ports.QueuePort = (*MemoryQueue)(nil)
