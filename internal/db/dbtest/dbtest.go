// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"diary/internal/db"
)

// Open returns a migrated sqlite database living in t.TempDir().
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	gdb, err := db.Connect("sqlite:" + filepath.Join(t.TempDir(), "diary.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrateAndIndexes(gdb))

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}
