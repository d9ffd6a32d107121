// Package offline provides the local read-through cache, the write-behind
// operation queue and the reconciler that replays it against the backend.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/domain/offline"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/metrics"
)

const (
	// CacheSchemaVersion tags every stored record. Records written under any
	// other version are treated as absent.
	CacheSchemaVersion = 1

	DefaultTTL         = 7 * 24 * time.Hour
	DefaultSweepPeriod = time.Hour
)

// SessionKey holds the signed-in session.
const SessionKey = "auth:session"

// AnalysesKey holds the user's analysis list.
func AnalysesKey(userID string) string { return "analyses:" + userID }

// AnalysisKey holds one analysis with its recommendation.
func AnalysisKey(analysisID string) string { return "analyses:item:" + analysisID }

// PendingAnalysisKey holds an analysis captured offline and not yet synced.
// It lives outside the analyses: prefix so sync invalidation keeps it.
func PendingAnalysisKey(userID, localID string) string {
	return PendingAnalysesPrefix(userID) + localID
}

// PendingAnalysesPrefix covers every pending analysis of a user.
func PendingAnalysesPrefix(userID string) string { return "pending-analyses:" + userID + ":" }

// ChatKey holds the user's chat history.
func ChatKey(userID string) string { return "chat:" + userID }

// PreferencesKey holds the user's preferences.
func PreferencesKey(userID string) string { return "preferences:" + userID }

// WeatherKey holds a forecast for a position rounded to about a kilometre.
func WeatherKey(lat, lng float64) string { return fmt.Sprintf("weather:%.2f:%.2f", lat, lng) }

// entityPrefixes maps a synced entity to the read caches it invalidates.
var entityPrefixes = map[offline.EntityType]string{
	offline.EntityAnalysis:    "analyses:",
	offline.EntityChatMessage: "chat:",
	offline.EntityPreference:  "preferences:",
}

// Cache is the local persistent cache. Values are stored as JSON with an
// expiry; expired or undecodable entries read as absent and are deleted.
type Cache struct {
	store       ports.LocalCachePort
	logger      *logging.Logger
	defaultTTL  time.Duration
	sweepPeriod time.Duration
	now         func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithDefaultTTL sets the expiry used when Set is given no ttl.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithSweepPeriod sets how often Run removes expired entries.
func WithSweepPeriod(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.sweepPeriod = d
		}
	}
}

// NewCache creates a cache over store.
func NewCache(store ports.LocalCachePort, logger *logging.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Cache{
		store:       store,
		logger:      logger,
		defaultTTL:  DefaultTTL,
		sweepPeriod: DefaultSweepPeriod,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores value under key until now+ttl, replacing any previous entry.
// A ttl <= 0 uses the default. When local storage is full the entry is not
// stored, expired entries are swept, and Set still returns nil.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := c.now()
	err = c.store.Put(ctx, &ports.CacheRecord{
		Key:           key,
		SchemaVersion: CacheSchemaVersion,
		Data:          data,
		StoredAt:      now,
		ExpiresAt:     now.Add(ttl),
	})
	if errors.Is(err, domainerrors.ErrStorageQuotaExceeded) {
		logging.LogStorageQuota(ctx, c.logger, key, err)
		metrics.RecordStorageQuota()
		if _, sweepErr := c.Sweep(ctx); sweepErr != nil {
			c.logger.WarnContext(ctx, "sweep after quota failure failed", "error", sweepErr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Get decodes the entry under key into dest and reports whether it was present.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	rec, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "cache read failed", "cache_key", key, "error", err)
		metrics.RecordCacheLookup(metrics.CacheMiss)
		return false
	}
	if !found {
		metrics.RecordCacheLookup(metrics.CacheMiss)
		return false
	}

	if rec.Expired(c.now()) {
		metrics.RecordCacheLookup(metrics.CacheExpired)
		c.discard(ctx, key)
		return false
	}
	if rec.SchemaVersion != CacheSchemaVersion || json.Unmarshal(rec.Data, dest) != nil {
		c.logger.DebugContext(ctx, "discarding unreadable cache entry", "cache_key", key, "schema_version", rec.SchemaVersion)
		metrics.RecordCacheLookup(metrics.CacheCorrupt)
		c.discard(ctx, key)
		return false
	}

	metrics.RecordCacheLookup(metrics.CacheHit)
	return true
}

func (c *Cache) discard(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.WarnContext(ctx, "cache delete failed", "cache_key", key, "error", err)
	}
}

// Remove deletes key.
func (c *Cache) Remove(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// RemovePrefix deletes every key starting with prefix.
func (c *Cache) RemovePrefix(ctx context.Context, prefix string) (int64, error) {
	return c.store.DeletePrefix(ctx, prefix)
}

// Clear deletes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// InvalidateEntity drops the read caches fed by entity so the next read refetches.
func (c *Cache) InvalidateEntity(ctx context.Context, entity offline.EntityType) (int64, error) {
	prefix, ok := entityPrefixes[entity]
	if !ok {
		return 0, domainerrors.Validation("unknown entity type %q", entity)
	}
	return c.store.DeletePrefix(ctx, prefix)
}

// Sweep deletes every expired entry.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	removed, err := c.store.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	logging.LogCacheSweep(ctx, c.logger, removed)
	metrics.RecordCacheSweep(removed)
	return removed, nil
}

// Stats summarizes the store.
func (c *Cache) Stats(ctx context.Context) (*ports.LocalCacheStats, error) {
	return c.store.Stats(ctx, c.now())
}

// Run sweeps every sweep period until ctx is done. Failures are logged.
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.sweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil {
				c.logger.WarnContext(ctx, "periodic cache sweep failed", "error", err)
			}
		}
	}
}
