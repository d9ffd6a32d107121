package offline

import (
	"context"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/offline"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
)

// DefaultResubscribeDelay is the pause before reconnecting a lost change feed.
const DefaultResubscribeDelay = 10 * time.Second

// tableEntities maps backend tables to the entity whose caches they feed.
var tableEntities = map[string]offline.EntityType{
	ports.TableAnalyses:        offline.EntityAnalysis,
	ports.TableRecommendations: offline.EntityAnalysis,
	ports.TableChatMessages:    offline.EntityChatMessage,
	ports.TablePreferences:     offline.EntityPreference,
}

// ChangeFeed invalidates and refetches caches when the backend reports a row
// change. Only the table and row id of a notification are used.
type ChangeFeed struct {
	realtime  ports.RealtimePort
	cache     *Cache
	refresher *Refresher
	delay     time.Duration
	logger    *logging.Logger
}

// NewChangeFeed creates a change feed consumer.
func NewChangeFeed(realtime ports.RealtimePort, cache *Cache, refresher *Refresher, logger *logging.Logger) *ChangeFeed {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChangeFeed{realtime: realtime, cache: cache, refresher: refresher, delay: DefaultResubscribeDelay, logger: logger}
}

// UserFilters returns the subscriptions for one user's rows.
func UserFilters(userID string) []ports.ChangeFilter {
	f := "user_id=eq." + userID
	return []ports.ChangeFilter{
		{Event: "*", Schema: "public", Table: ports.TableAnalyses, Filter: f},
		{Event: "*", Schema: "public", Table: ports.TableChatMessages, Filter: f},
		{Event: "*", Schema: "public", Table: ports.TablePreferences, Filter: f},
	}
}

// Handle applies one change notification.
func (f *ChangeFeed) Handle(ctx context.Context, ev ports.ChangeEvent) {
	entity, ok := tableEntities[ev.Table]
	if !ok {
		return
	}
	if _, err := f.cache.InvalidateEntity(ctx, entity); err != nil {
		f.logger.WarnContext(ctx, "cache invalidation failed", "table", ev.Table, "error", err)
	}
	if f.refresher == nil {
		return
	}
	if err := f.refresher.Refresh(ctx, entity); err != nil {
		f.logger.WarnContext(ctx, "refetch after change failed", "table", ev.Table, "record_id", ev.RecordID, "error", err)
	}
}

// Run consumes the feed until ctx is done, resubscribing after failures.
func (f *ChangeFeed) Run(ctx context.Context, filters []ports.ChangeFilter) error {
	for {
		sub, err := f.realtime.Subscribe(ctx, filters)
		if err != nil {
			f.logger.WarnContext(ctx, "change feed subscribe failed", "error", err)
		} else {
			for ev := range sub.Events() {
				f.Handle(ctx, ev)
			}
			sub.Close()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.delay):
		}
	}
}
