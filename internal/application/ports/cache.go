package ports

import (
	"context"
	"time"
)

// CacheRecord is a stored cache value with its expiry metadata.
// Data is the JSON encoding of the cached value.
type CacheRecord struct {
	Key           string    `json:"key"`
	SchemaVersion int       `json:"schema_version"`
	Data          []byte    `json:"data"`
	StoredAt      time.Time `json:"stored_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at now.
func (r *CacheRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// LocalCacheStats summarizes the durable cache contents.
type LocalCacheStats struct {
	Entries int64     `json:"entries"`
	Bytes   int64     `json:"bytes"`
	Expired int64     `json:"expired"`
	Oldest  time.Time `json:"oldest"`
	Newest  time.Time `json:"newest"`
}

// LocalCachePort is durable key/value storage for cached backend reads.
// Implementations store records verbatim; expiry and schema checks belong to the caller.
type LocalCachePort interface {
	// Put inserts or replaces the record for rec.Key.
	// Implementations return errors.ErrStorageQuotaExceeded when the device is out of space.
	Put(ctx context.Context, rec *CacheRecord) error

	// Get returns the record for key and whether it was found.
	Get(ctx context.Context, key string) (*CacheRecord, bool, error)

	// Delete removes a single key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)

	// DeleteExpired removes records whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Clear removes every record.
	Clear(ctx context.Context) error

	// Stats reports entry counts relative to now.
	Stats(ctx context.Context, now time.Time) (*LocalCacheStats, error)
}

// TranslationStorePort persists translated strings, evicting by insertion order.
type TranslationStorePort interface {
	// Get returns the translation stored under key.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores a translation; re-putting an existing key refreshes its position.
	Put(ctx context.Context, key, text string) error

	// Trim keeps the max most recently stored entries and returns how many were evicted.
	Trim(ctx context.Context, max int) (int64, error)

	// Len returns the number of stored translations.
	Len(ctx context.Context) (int, error)

	// Clear removes every translation.
	Clear(ctx context.Context) error
}
