package sqlite

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{1, "create_local_cache_table", createLocalCacheTable},
	{2, "create_pending_operations_table", createPendingOperationsTable},
	{3, "create_translations_table", createTranslationsTable},
	{4, "create_indices", createIndices},
}

// applyMigrations applies all database migrations in order.
func applyMigrations(db *sql.DB) error {
	if err := createMigrationsTable(db); err != nil {
		return err
	}

	for _, m := range migrations {
		applied, err := isMigrationApplied(db, m.version)
		if err != nil {
			return fmt.Errorf("could not check migration %d: %w", m.version, err)
		}
		if applied {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("could not apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("could not record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("could not commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

// createMigrationsTable creates the migrations tracking table.
func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// isMigrationApplied checks if a migration has been applied.
func isMigrationApplied(db *sql.DB, version int) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Migration SQL statements

const createLocalCacheTable = `
CREATE TABLE local_cache (
	key TEXT PRIMARY KEY,
	schema_version INTEGER NOT NULL,
	data BLOB NOT NULL,
	stored_at_ms INTEGER NOT NULL,
	expires_at_ms INTEGER NOT NULL
);
`

const createPendingOperationsTable = `
CREATE TABLE pending_operations (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	schema_version INTEGER NOT NULL,
	entity_type TEXT NOT NULL,
	action TEXT NOT NULL,
	payload BLOB NOT NULL,
	enqueued_at_ms INTEGER NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0
);
`

const createTranslationsTable = `
CREATE TABLE translations (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	key TEXT NOT NULL UNIQUE,
	text TEXT NOT NULL
);
`

const createIndices = `
CREATE INDEX idx_local_cache_expires ON local_cache(expires_at_ms);
CREATE INDEX idx_pending_operations_entity ON pending_operations(entity_type);
`
