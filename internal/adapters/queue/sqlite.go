package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/adapters/sqlite"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/offline"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
)

// SQLiteQueue stores pending operations in the pending_operations table,
// ordered by the autoincrement seq column.
type SQLiteQueue struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteQueue creates a queue on db.
func NewSQLiteQueue(db *sql.DB, logger *logging.Logger) *SQLiteQueue {
	if logger == nil {
		logger = logging.Default()
	}
	return &SQLiteQueue{db: db, logger: logger}
}

// Append persists op at the tail of the queue.
func (q *SQLiteQueue) Append(ctx context.Context, op *offline.PendingOperation) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pending_operations (id, schema_version, entity_type, action, payload, enqueued_at_ms, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, op.ID, offline.SchemaVersion, string(op.EntityType), string(op.Action), []byte(op.Payload),
		op.EnqueuedAt.UnixMilli(), op.RetryCount)
	return sqlite.MapError("enqueue operation", err)
}

// List returns every operation in insertion order.
// Rows written with an unknown schema version are dropped and logged.
func (q *SQLiteQueue) List(ctx context.Context) ([]*offline.PendingOperation, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, schema_version, entity_type, action, payload, enqueued_at_ms, retry_count
		FROM pending_operations
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, sqlite.MapError("list operations", err)
	}
	defer rows.Close()

	var ops []*offline.PendingOperation
	var stale []string
	for rows.Next() {
		var op offline.PendingOperation
		var version int
		var entity, action string
		var payload []byte
		var enqueuedMs int64
		if err := rows.Scan(&op.ID, &version, &entity, &action, &payload, &enqueuedMs, &op.RetryCount); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		if version != offline.SchemaVersion {
			stale = append(stale, op.ID)
			continue
		}
		op.EntityType = offline.EntityType(entity)
		op.Action = offline.Action(action)
		op.Payload = payload
		op.EnqueuedAt = time.UnixMilli(enqueuedMs).UTC()
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	rows.Close()

	for _, id := range stale {
		q.logger.Warn("dropping operation with unknown schema version", "operation_id", id)
		if err := q.Remove(ctx, id); err != nil {
			return nil, err
		}
	}
	return ops, nil
}

// Remove deletes the operation with id.
func (q *SQLiteQueue) Remove(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM pending_operations WHERE id = ?", id)
	return sqlite.MapError("remove operation", err)
}

// BumpRetry increments the retry count of id in place.
func (q *SQLiteQueue) BumpRetry(ctx context.Context, id string) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `
		UPDATE pending_operations SET retry_count = retry_count + 1
		WHERE id = ?
		RETURNING retry_count
	`, id).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("operation %s not queued", id)
	}
	if err != nil {
		return 0, sqlite.MapError("bump retry", err)
	}
	return count, nil
}

// Len returns the number of queued operations.
func (q *SQLiteQueue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_operations").Scan(&n); err != nil {
		return 0, sqlite.MapError("count operations", err)
	}
	return n, nil
}

var _ ports.QueuePort = (*SQLiteQueue)(nil)
