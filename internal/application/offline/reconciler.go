package offline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/domain/offline"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/tracing"
)

// OperationHandler replays one queued operation against the backend.
type OperationHandler func(ctx context.Context, op *offline.PendingOperation) error

// DrainResult summarizes one drain pass.
type DrainResult struct {
	// Skipped is set when another drain was already running; nothing was attempted.
	Skipped  bool          `json:"skipped"`
	Queued   int           `json:"queued"`
	Applied  int           `json:"applied"`
	Failed   int           `json:"failed"`
	Dropped  int           `json:"dropped"`
	Duration time.Duration `json:"duration"`
}

// Reconciler drains the operation queue in insertion order.
type Reconciler struct {
	queue   ports.QueuePort
	cache   *Cache
	logger  *logging.Logger
	tracer  *tracing.Tracer
	ceiling int

	mu       sync.RWMutex
	handlers map[string]OperationHandler

	draining atomic.Bool
}

// NewReconciler creates a reconciler. A ceiling <= 0 uses offline.RetryCeiling.
func NewReconciler(queue ports.QueuePort, cache *Cache, ceiling int, logger *logging.Logger, tracer *tracing.Tracer) *Reconciler {
	if ceiling <= 0 {
		ceiling = offline.RetryCeiling
	}
	if logger == nil {
		logger = logging.Default()
	}
	if tracer == nil {
		tracer = tracing.Default()
	}
	return &Reconciler{
		queue:    queue,
		cache:    cache,
		logger:   logger,
		tracer:   tracer,
		ceiling:  ceiling,
		handlers: make(map[string]OperationHandler),
	}
}

// Register sets the handler for an (entity, action) pair, replacing any previous one.
func (r *Reconciler) Register(entity offline.EntityType, action offline.Action, h OperationHandler) {
	r.mu.Lock()
	r.handlers[string(entity)+"/"+string(action)] = h
	r.mu.Unlock()
}

func (r *Reconciler) handler(op *offline.PendingOperation) (OperationHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[op.Key()]
	return h, ok
}

// Draining reports whether a drain pass is in progress.
func (r *Reconciler) Draining() bool { return r.draining.Load() }

// Drain replays every queued operation once. Successes are removed and their
// entity caches invalidated. Failures stay in place with a bumped retry
// count, except that the failure which brings the count to the ceiling
// removes the operation. Operations already at the ceiling, such as rows
// written by an older build, are removed unattempted. A call made while
// another drain runs returns immediately with Skipped set.
func (r *Reconciler) Drain(ctx context.Context) DrainResult {
	if !r.draining.CompareAndSwap(false, true) {
		metrics.RecordDrain(metrics.DrainSkipped)
		r.logger.DebugContext(ctx, "drain already in progress, request dropped")
		return DrainResult{Skipped: true}
	}
	defer r.draining.Store(false)

	// Each pass gets its own correlation id; drains started by the daemon
	// would otherwise share one for the life of the process.
	ctx = logging.WithCorrelationID(ctx, ulid.Make().String())
	start := time.Now()
	ops, err := r.queue.List(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to read operation queue", "error", err)
		return DrainResult{Duration: time.Since(start)}
	}

	res := DrainResult{Queued: len(ops)}
	ctx, span := r.tracer.StartDrainSpan(ctx, len(ops))
	logging.LogDrainStart(ctx, r.logger, len(ops))

	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		switch r.apply(ctx, op) {
		case outcomeApplied:
			res.Applied++
		case outcomeFailed:
			res.Failed++
		case outcomeDropped:
			res.Dropped++
		}
	}

	res.Duration = time.Since(start)
	logging.LogDrainComplete(ctx, r.logger, res.Applied, res.Failed, res.Dropped, res.Duration)
	metrics.RecordDrain(metrics.DrainCompleted)
	if n, err := r.queue.Len(ctx); err == nil {
		metrics.SetQueueDepth(n)
	}
	span.Finish(nil)
	return res
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeFailed
	outcomeDropped
)

func (r *Reconciler) apply(ctx context.Context, op *offline.PendingOperation) outcome {
	ctx = logging.WithEntityType(logging.WithOperationID(ctx, op.ID), string(op.EntityType))
	entity, action := string(op.EntityType), string(op.Action)

	if op.RetryCount >= r.ceiling {
		return r.drop(ctx, op, op.RetryCount)
	}

	ctx, span := r.tracer.StartOperationSpan(ctx, op.ID, entity, action, op.RetryCount)
	err := r.dispatch(ctx, op)
	span.Finish(err)

	if err != nil {
		count, bumpErr := r.queue.BumpRetry(ctx, op.ID)
		if bumpErr != nil {
			r.logger.ErrorContext(ctx, "failed to record retry", "error", bumpErr)
			count = op.RetryCount + 1
		}
		logging.LogOperationFailed(ctx, r.logger, op.ID, count, err)
		if count >= r.ceiling {
			return r.drop(ctx, op, count)
		}
		metrics.RecordOperation(entity, metrics.OpRetried)
		return outcomeFailed
	}

	if err := r.queue.Remove(ctx, op.ID); err != nil {
		r.logger.ErrorContext(ctx, "failed to remove applied operation", "error", err)
	}
	if r.cache != nil {
		if _, err := r.cache.InvalidateEntity(ctx, op.EntityType); err != nil {
			r.logger.WarnContext(ctx, "cache invalidation failed", "error", err)
		}
	}
	logging.LogOperationApplied(ctx, r.logger, op.ID, entity, action)
	metrics.RecordOperation(entity, metrics.OpApplied)
	return outcomeApplied
}

// drop removes an operation that has used up its retries.
func (r *Reconciler) drop(ctx context.Context, op *offline.PendingOperation, retries int) outcome {
	entity := string(op.EntityType)
	if err := r.queue.Remove(ctx, op.ID); err != nil {
		r.logger.ErrorContext(ctx, "failed to remove exhausted operation", "error", err)
	}
	logging.LogOperationDropped(ctx, r.logger, op.ID, entity, string(op.Action), retries)
	metrics.RecordOperation(entity, metrics.OpDropped)
	return outcomeDropped
}

func (r *Reconciler) dispatch(ctx context.Context, op *offline.PendingOperation) (err error) {
	h, ok := r.handler(op)
	if !ok {
		return domainerrors.NewError(domainerrors.CodeConfiguration, "no handler for "+op.Key(), nil)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler %s panicked: %v", op.Key(), p)
		}
	}()
	return h(ctx, op)
}
