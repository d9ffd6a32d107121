// Package cache provides LocalCachePort and TranslationStorePort adapters.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

// MemoryCache implements LocalCachePort with an in-memory map.
// A positive maxSize bounds the total data size to emulate device storage limits.
type MemoryCache struct {
	mu          sync.RWMutex
	entries     map[string]*ports.CacheRecord
	maxSize     int64
	currentSize int64
}

// NewMemoryCache creates a new in-memory cache. maxSize <= 0 means unbounded.
func NewMemoryCache(maxSize int64) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*ports.CacheRecord),
		maxSize: maxSize,
	}
}

// Put stores a copy of rec.
func (m *MemoryCache) Put(ctx context.Context, rec *ports.CacheRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	newSize := m.currentSize + int64(len(rec.Data))
	if old, ok := m.entries[rec.Key]; ok {
		newSize -= int64(len(old.Data))
	}
	if m.maxSize > 0 && newSize > m.maxSize {
		return domainerrors.NewError(domainerrors.CodeStorageQuota, "memory cache full", nil)
	}

	stored := *rec
	stored.Data = append([]byte(nil), rec.Data...)
	m.entries[rec.Key] = &stored
	m.currentSize = newSize
	return nil
}

// Get returns a copy of the record for key.
func (m *MemoryCache) Get(ctx context.Context, key string) (*ports.CacheRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := *rec
	out.Data = append([]byte(nil), rec.Data...)
	return &out, true, nil
}

// Delete removes key.
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(key)
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (m *MemoryCache) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			m.deleteLocked(key)
			removed++
		}
	}
	return removed, nil
}

// DeleteExpired removes records that expired before now.
func (m *MemoryCache) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, rec := range m.entries {
		if rec.Expired(now) {
			m.deleteLocked(key)
			removed++
		}
	}
	return removed, nil
}

// Clear removes every record.
func (m *MemoryCache) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*ports.CacheRecord)
	m.currentSize = 0
	return nil
}

// Stats reports entry counts relative to now.
func (m *MemoryCache) Stats(ctx context.Context, now time.Time) (*ports.LocalCacheStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &ports.LocalCacheStats{Bytes: m.currentSize}
	for _, rec := range m.entries {
		stats.Entries++
		if rec.Expired(now) {
			stats.Expired++
		}
		if stats.Oldest.IsZero() || rec.StoredAt.Before(stats.Oldest) {
			stats.Oldest = rec.StoredAt
		}
		if rec.StoredAt.After(stats.Newest) {
			stats.Newest = rec.StoredAt
		}
	}
	return stats, nil
}

func (m *MemoryCache) deleteLocked(key string) {
	if rec, ok := m.entries[key]; ok {
		m.currentSize -= int64(len(rec.Data))
		delete(m.entries, key)
	}
}

var _ ports.LocalCachePort = (*MemoryCache)(nil)
