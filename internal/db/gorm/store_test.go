// Package gorm provides GORM-based database operations for promptvault.
package gorm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

// testStore opens a migrated store in a temporary directory.
func testStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStore(t *testing.T) {
	store := testStore(t)

	// Verify connection works
	require.NoError(t, store.Ping())

	// Verify WAL mode is enabled
	var journalMode string
	err := store.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error
	require.NoError(t, err)
	if journalMode != "wal" {
		t.Errorf("expected WAL mode, got %q", journalMode)
	}

	tables := []string{
		"prompts",
		"subcategories",
		"variables",
		"prompt_fragments",
		"env_variables",
		"favorites",
		"executions",
	}
	for _, table := range tables {
		if !store.DB.Migrator().HasTable(table) {
			t.Errorf("table %q does not exist", table)
		}
	}

	// Virtual tables are not visible to Migrator().HasTable
	var count int
	err = store.DB.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='prompts_fts'").Scan(&count).Error
	require.NoError(t, err)
	if count != 1 {
		t.Errorf("FTS table prompts_fts does not exist")
	}
}

func TestMigrationIdempotency(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	cfg := Config{Path: dbPath, LogLevel: logger.Silent}

	store1, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore (first) failed: %v", err)
	}
	_, err = NewEnvStore(store1).SetGlobal(context.Background(), "API_KEY", "secret")
	require.NoError(t, err)
	store1.Close()

	store2, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore (second) failed: %v", err)
	}
	defer store2.Close()

	envs, err := NewEnvStore(store2).List(context.Background())
	require.NoError(t, err)
	require.Len(t, envs, 1)
}
