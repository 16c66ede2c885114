package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite opens (or creates) a SQLite database for local runs and tests.
// path may be a file path or a "file:...?mode=memory" DSN.
func OpenSQLite(path string) (*gorm.DB, error) {
	inMemory := strings.Contains(path, "mode=memory") || path == ":memory:"

	// Fail early if the parent directory does not exist instead of surfacing
	// sqlite's "out of memory (14)".
	if !inMemory {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, fmt.Errorf("[DATABASE] sqlite directory: %w", err)
			}
		}
	}

	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to open sqlite: %w", err)
	}

	gdb.Exec("PRAGMA foreign_keys=ON;")
	gdb.Exec("PRAGMA busy_timeout=5000;")
	if !inMemory {
		gdb.Exec("PRAGMA journal_mode=WAL;")
		gdb.Exec("PRAGMA synchronous=NORMAL;")
	}

	// SQLite serializes writers; a single connection keeps transactions from
	// failing with SQLITE_BUSY and keeps in-memory databases alive.
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxIdleTime(0)
		sqlDB.SetConnMaxLifetime(0)
	}

	return gdb, nil
}
