// Package db provides database connection management for the local
// pending-queue store.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "fieldsync.db"

// DB wraps the sql.DB with FieldSync-specific configuration.
type DB struct {
	*sql.DB
	Path string
}

// Open opens a SQLite database inside dataDir. The database is opened with:
// - WAL mode so readers do not block the single writer
// - synchronous=FULL so a committed append survives power loss
// - a busy timeout instead of immediate SQLITE_BUSY
// - foreign key constraints enabled
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, FileName)

	// modernc.org/sqlite is pure Go, so the same build runs on mobile targets.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return &DB{DB: db, Path: dbPath}, nil
}

// OpenAndMigrate opens the database and applies the embedded migrations.
func OpenAndMigrate(dataDir string) (*DB, error) {
	database, err := Open(dataDir)
	if err != nil {
		return nil, err
	}

	migrator := NewMigrator(database.DB, Migrations())
	if err := migrator.Initialize(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return database, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
