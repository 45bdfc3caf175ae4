package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diary/internal/db/dialect"
	"diary/internal/diary"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		dsn  string
		name string
	}{
		{"postgres://u:p@localhost:5432/diary?sslmode=disable", "postgres"},
		{"postgresql://u:p@localhost/diary", "postgres"},
		{"sqlite:/tmp/diary.db", "sqlite"},
		{"file:diary.db?cache=shared", "sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			d, err := Dialector(tt.dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())
		})
	}

	_, err := Dialector("mysql://localhost/diary")
	assert.Error(t, err)
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "/x.db?_busy_timeout=5000&_foreign_keys=on", sqliteDSN("/x.db"))
	assert.Equal(t, "/x.db?mode=ro", sqliteDSN("/x.db?mode=ro"))
}

func TestAutoMigrateAndIndexes_Idempotent(t *testing.T) {
	gdb, err := Connect("sqlite:" + filepath.Join(t.TempDir(), "diary.db"))
	require.NoError(t, err)

	require.NoError(t, AutoMigrateAndIndexes(gdb))
	require.NoError(t, AutoMigrateAndIndexes(gdb))

	for _, table := range []string{"users", "tags", "notes", "note_tags", "jobs"} {
		assert.True(t, gdb.Migrator().HasTable(table), table)
	}
}

func TestUniqueIndexes(t *testing.T) {
	gdb, err := Connect("sqlite:" + filepath.Join(t.TempDir(), "diary.db"))
	require.NoError(t, err)
	require.NoError(t, AutoMigrateAndIndexes(gdb))

	now := time.Now().UTC()
	require.NoError(t, gdb.Create(&diary.Tag{UserID: 1, Name: "x", CreatedAt: now}).Error)
	require.NoError(t, gdb.Create(&diary.Tag{UserID: 2, Name: "x", CreatedAt: now}).Error)

	err = gdb.Create(&diary.Tag{UserID: 1, Name: "x", CreatedAt: now}).Error
	require.Error(t, err)
	assert.True(t, dialect.IsUniqueViolation(err))

	require.NoError(t, gdb.Create(&diary.Note{UserID: 1, Title: "t", CreatedAt: now}).Error)
	err = gdb.Create(&diary.Note{UserID: 1, Title: "t", CreatedAt: now}).Error
	assert.True(t, dialect.IsUniqueViolation(err))
}
