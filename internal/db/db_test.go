package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://vitals:xxxxx@db:5432/vitals?sslmode=disable",
		redact("postgres://vitals:s3cret@db:5432/vitals?sslmode=disable"))
	assert.Equal(t, "postgres://db/vitals", redact("postgres://db/vitals"))
	assert.Equal(t, "<dsn>", redact("host=db user=vitals password=s3cret"))
	assert.Equal(t, "<empty>", redact(""))
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitals.db")
	gdb, err := OpenSQLite(path)
	require.NoError(t, err)

	var mode string
	require.NoError(t, gdb.Raw("PRAGMA journal_mode").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	require.NoError(t, sqlDB.Close())
}

func TestOpenSQLiteMissingDirectory(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "missing", "vitals.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite directory")
}
