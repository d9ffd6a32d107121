package cache

import (
	"container/list"
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jbctechsolutions/cropcare/internal/adapters/sqlite"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
)

// MemoryTranslationStore keeps translations in insertion order.
type MemoryTranslationStore struct {
	mu    sync.Mutex
	order *list.List
	index map[string]*list.Element
}

type translationEntry struct {
	key  string
	text string
}

// NewMemoryTranslationStore creates an empty store.
func NewMemoryTranslationStore() *MemoryTranslationStore {
	return &MemoryTranslationStore{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Get returns the translation stored under key.
func (m *MemoryTranslationStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.index[key]
	if !ok {
		return "", false, nil
	}
	return el.Value.(*translationEntry).text, true, nil
}

// Put stores text under key as the newest entry.
func (m *MemoryTranslationStore) Put(ctx context.Context, key, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.index[key]; ok {
		m.order.Remove(el)
	}
	m.index[key] = m.order.PushBack(&translationEntry{key: key, text: text})
	return nil
}

// Trim evicts the oldest entries beyond max.
func (m *MemoryTranslationStore) Trim(ctx context.Context, max int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted int64
	for m.order.Len() > max {
		front := m.order.Front()
		m.order.Remove(front)
		delete(m.index, front.Value.(*translationEntry).key)
		evicted++
	}
	return evicted, nil
}

// Len returns the number of stored translations.
func (m *MemoryTranslationStore) Len(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len(), nil
}

// Clear removes every translation.
func (m *MemoryTranslationStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order.Init()
	m.index = make(map[string]*list.Element)
	return nil
}

// SQLiteTranslationStore persists translations in the translations table.
// The autoincrement seq column records insertion order.
type SQLiteTranslationStore struct {
	db *sql.DB
}

// NewSQLiteTranslationStore creates a store on db.
func NewSQLiteTranslationStore(db *sql.DB) *SQLiteTranslationStore {
	return &SQLiteTranslationStore{db: db}
}

// Get returns the translation stored under key.
func (s *SQLiteTranslationStore) Get(ctx context.Context, key string) (string, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx, "SELECT text FROM translations WHERE key = ?", key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, sqlite.MapError("read translation", err)
	}
	return text, true, nil
}

// Put stores text under key as the newest entry.
func (s *SQLiteTranslationStore) Put(ctx context.Context, key, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sqlite.MapError("begin translation write", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM translations WHERE key = ?", key); err != nil {
		return sqlite.MapError("replace translation", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO translations (key, text) VALUES (?, ?)", key, text); err != nil {
		return sqlite.MapError("write translation", err)
	}
	return sqlite.MapError("commit translation", tx.Commit())
}

// Trim evicts the oldest entries beyond max.
func (s *SQLiteTranslationStore) Trim(ctx context.Context, max int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM translations
		WHERE seq NOT IN (SELECT seq FROM translations ORDER BY seq DESC LIMIT ?)
	`, max)
	if err != nil {
		return 0, sqlite.MapError("trim translations", err)
	}
	return res.RowsAffected()
}

// Len returns the number of stored translations.
func (s *SQLiteTranslationStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM translations").Scan(&n); err != nil {
		return 0, sqlite.MapError("count translations", err)
	}
	return n, nil
}

// Clear removes every translation.
func (s *SQLiteTranslationStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM translations")
	return sqlite.MapError("clear translations", err)
}

var (
	_ ports.TranslationStorePort = (*MemoryTranslationStore)(nil)
	_ ports.TranslationStorePort = (*SQLiteTranslationStore)(nil)
)
