package cache

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/adapters/sqlite"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
)

// SQLiteCache implements LocalCachePort on the local_cache table.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache creates a new SQLite-backed cache.
func NewSQLiteCache(db *sql.DB) *SQLiteCache {
	return &SQLiteCache{db: db}
}

// Put inserts or replaces the record for rec.Key.
func (s *SQLiteCache) Put(ctx context.Context, rec *ports.CacheRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_cache (key, schema_version, data, stored_at_ms, expires_at_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			schema_version = excluded.schema_version,
			data = excluded.data,
			stored_at_ms = excluded.stored_at_ms,
			expires_at_ms = excluded.expires_at_ms
	`, rec.Key, rec.SchemaVersion, rec.Data, rec.StoredAt.UnixMilli(), rec.ExpiresAt.UnixMilli())
	return sqlite.MapError("write cache entry", err)
}

// Get returns the record for key.
func (s *SQLiteCache) Get(ctx context.Context, key string) (*ports.CacheRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, schema_version, data, stored_at_ms, expires_at_ms
		FROM local_cache
		WHERE key = ?
	`, key)

	var rec ports.CacheRecord
	var storedMs, expiresMs int64
	if err := row.Scan(&rec.Key, &rec.SchemaVersion, &rec.Data, &storedMs, &expiresMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, sqlite.MapError("read cache entry", err)
	}
	rec.StoredAt = time.UnixMilli(storedMs)
	rec.ExpiresAt = time.UnixMilli(expiresMs)
	return &rec, true, nil
}

// Delete removes key.
func (s *SQLiteCache) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM local_cache WHERE key = ?", key)
	return sqlite.MapError("delete cache entry", err)
}

// DeletePrefix removes every key starting with prefix.
func (s *SQLiteCache) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM local_cache WHERE key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
	if err != nil {
		return 0, sqlite.MapError("delete cache prefix", err)
	}
	return res.RowsAffected()
}

// DeleteExpired removes records that expired before now.
func (s *SQLiteCache) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM local_cache WHERE expires_at_ms < ?", now.UnixMilli())
	if err != nil {
		return 0, sqlite.MapError("sweep cache", err)
	}
	return res.RowsAffected()
}

// Clear removes every record.
func (s *SQLiteCache) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM local_cache")
	return sqlite.MapError("clear cache", err)
}

// Stats reports entry counts relative to now.
func (s *SQLiteCache) Stats(ctx context.Context, now time.Time) (*ports.LocalCacheStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(LENGTH(data)), 0),
			COALESCE(SUM(CASE WHEN expires_at_ms < ? THEN 1 ELSE 0 END), 0),
			COALESCE(MIN(stored_at_ms), 0),
			COALESCE(MAX(stored_at_ms), 0)
		FROM local_cache
	`, now.UnixMilli())

	var stats ports.LocalCacheStats
	var oldestMs, newestMs int64
	if err := row.Scan(&stats.Entries, &stats.Bytes, &stats.Expired, &oldestMs, &newestMs); err != nil {
		return nil, sqlite.MapError("cache stats", err)
	}
	if stats.Entries > 0 {
		stats.Oldest = time.UnixMilli(oldestMs)
		stats.Newest = time.UnixMilli(newestMs)
	}
	return &stats, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var _ ports.LocalCachePort = (*SQLiteCache)(nil)
