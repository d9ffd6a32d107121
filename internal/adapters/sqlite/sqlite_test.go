package sqlite

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"

	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

func TestNewConnection(t *testing.T) {
	t.Run("creates connection with custom path", func(t *testing.T) {
		conn, err := NewConnection("/tmp/test.db")
		if err != nil {
			t.Fatalf("NewConnection() error = %v", err)
		}
		if conn.Path() != "/tmp/test.db" {
			t.Errorf("Path() = %q, want %q", conn.Path(), "/tmp/test.db")
		}
	})

	t.Run("creates connection with default path", func(t *testing.T) {
		conn, err := NewConnection("")
		if err != nil {
			t.Fatalf("NewConnection() error = %v", err)
		}
		homeDir, _ := os.UserHomeDir()
		expectedPath := filepath.Join(homeDir, ".cropcare", "cropcare.db")
		if conn.Path() != expectedPath {
			t.Errorf("Path() = %q, want %q", conn.Path(), expectedPath)
		}
	})
}

func TestConnection_OpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	conn, err := NewConnection(dbPath)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}

	t.Run("open creates database and runs migrations", func(t *testing.T) {
		if err := conn.Open(); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("Open() did not create database file")
		}

		db, err := conn.DB()
		if err != nil {
			t.Fatalf("DB() error = %v", err)
		}
		for _, table := range []string{"local_cache", "pending_operations", "translations"} {
			var name string
			err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
			if err != nil {
				t.Errorf("table %s missing: %v", table, err)
			}
		}
	})

	t.Run("open on already open connection returns error", func(t *testing.T) {
		if err := conn.Open(); err == nil {
			t.Error("Open() on already open connection should return error")
		}
	})

	t.Run("close closes the connection", func(t *testing.T) {
		if err := conn.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if !conn.IsClosed() {
			t.Error("IsClosed() = false, want true")
		}
		if _, err := conn.DB(); err == nil {
			t.Error("DB() after Close() should return error")
		}
	})

	t.Run("reopen skips applied migrations", func(t *testing.T) {
		again, _ := NewConnection(dbPath)
		if err := again.Open(); err != nil {
			t.Fatalf("reopen error = %v", err)
		}
		defer again.Close()

		db, _ := again.DB()
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
			t.Fatalf("count migrations: %v", err)
		}
		if count != len(migrations) {
			t.Errorf("migrations recorded = %d, want %d", count, len(migrations))
		}
	})
}

func TestMapError(t *testing.T) {
	if MapError("op", nil) != nil {
		t.Error("MapError(nil) should be nil")
	}

	full := MapError("write cache", sqlite3.Error{Code: sqlite3.ErrFull})
	if !errors.Is(full, domainerrors.ErrStorageQuotaExceeded) {
		t.Errorf("SQLITE_FULL should map to storage quota, got %v", full)
	}

	other := MapError("write cache", errors.New("disk I/O error"))
	if errors.Is(other, domainerrors.ErrStorageQuotaExceeded) {
		t.Error("unrelated errors must not map to storage quota")
	}
}
