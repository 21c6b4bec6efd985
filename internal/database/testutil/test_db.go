package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bsudfrance/bsf-server/internal/database"
)

// MustOpenTestDB opens an in-memory SQLite database for tests with the full
// schema applied. The connection is closed via t.Cleanup.
func MustOpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return mustOpen(t, "file::memory:?_foreign_keys=1")
}

// MustOpenFileTestDB opens a file-backed SQLite database so several
// goroutines can write concurrently. Transactions take the write lock up
// front and contenders wait on the busy timeout instead of failing fast.
func MustOpenFileTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.ToSlash(filepath.Join(t.TempDir(), "bsf.db"))
	return mustOpen(t, fmt.Sprintf(
		"file:%s?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path))
}

func mustOpen(t *testing.T, dsn string) *gorm.DB {
	t.Helper()

	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)

	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
