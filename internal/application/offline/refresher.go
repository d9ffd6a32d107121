package offline

import (
	"context"
	"sync"
	"time"

	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/domain/offline"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
)

// DefaultRefreshPeriod is how often read caches are refreshed while online.
const DefaultRefreshPeriod = 5 * time.Minute

// RefreshFunc refetches one entity's data into the cache.
type RefreshFunc func(ctx context.Context) error

type refreshTarget struct {
	entity offline.EntityType
	fn     RefreshFunc
}

// Refresher periodically drains the queue and refetches read caches while
// the device is online. It is independent of queue contents.
type Refresher struct {
	online     func() bool
	reconciler *Reconciler
	period     time.Duration
	logger     *logging.Logger

	mu      sync.RWMutex
	targets []refreshTarget
}

// NewRefresher creates a refresher. reconciler may be nil to refresh only.
func NewRefresher(online func() bool, reconciler *Reconciler, period time.Duration, logger *logging.Logger) *Refresher {
	if period <= 0 {
		period = DefaultRefreshPeriod
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Refresher{online: online, reconciler: reconciler, period: period, logger: logger}
}

// Register adds the refetch function for an entity.
func (r *Refresher) Register(entity offline.EntityType, fn RefreshFunc) {
	r.mu.Lock()
	r.targets = append(r.targets, refreshTarget{entity: entity, fn: fn})
	r.mu.Unlock()
}

func (r *Refresher) snapshot() []refreshTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]refreshTarget(nil), r.targets...)
}

// Refresh refetches every registered function for entity.
func (r *Refresher) Refresh(ctx context.Context, entity offline.EntityType) error {
	found := false
	for _, t := range r.snapshot() {
		if t.entity != entity {
			continue
		}
		found = true
		if err := t.fn(ctx); err != nil {
			return err
		}
	}
	if !found {
		return domainerrors.NewError(domainerrors.CodeNotFound, "no refresh registered for "+string(entity), nil)
	}
	return nil
}

// RefreshAll refetches every entity and returns the number of failures.
// Failures are logged.
func (r *Refresher) RefreshAll(ctx context.Context) int {
	failed := 0
	for _, t := range r.snapshot() {
		if err := t.fn(ctx); err != nil {
			failed++
			r.logger.WarnContext(ctx, "cache refresh failed", "entity_type", string(t.entity), "error", err)
		}
	}
	return failed
}

// Tick drains the queue and refreshes every cache, if online.
func (r *Refresher) Tick(ctx context.Context) {
	if r.online != nil && !r.online() {
		return
	}
	if r.reconciler != nil {
		r.reconciler.Drain(ctx)
	}
	r.RefreshAll(ctx)
}

// Run ticks every period until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}
