package db

import (
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the migration files compiled into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		// fs.Sub only fails on an invalid path literal.
		panic(err)
	}
	return sub
}

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// Migrator handles database schema migrations.
type Migrator struct {
	db    *sql.DB
	files fs.FS
}

// NewMigrator creates a new Migrator reading V<n>__name.up.sql files from files.
func NewMigrator(db *sql.DB, files fs.FS) *Migrator {
	return &Migrator{
		db:    db,
		files: files,
	}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		migrations = append(migrations, mig)
	}
	return migrations, rows.Err()
}

type migrationFile struct {
	version int
	name    string
}

// upFiles lists up-migration files sorted by version.
func (m *Migrator) upFiles() ([]migrationFile, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		// V1__pending_records.up.sql
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		parts := strings.SplitN(strings.TrimSuffix(name, ".up.sql"), "__", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(strings.TrimPrefix(parts[0], "V"))
		if err != nil {
			continue
		}
		files = append(files, migrationFile{version: version, name: name})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].version < files[j].version
	})
	return files, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	appliedVersions := make(map[int]string)
	for _, mig := range applied {
		appliedVersions[mig.Version] = mig.Checksum
	}

	files, err := m.upFiles()
	if err != nil {
		return err
	}

	for _, mig := range files {
		if sum, ok := appliedVersions[mig.version]; ok {
			content, err := fs.ReadFile(m.files, mig.name)
			if err != nil {
				return fmt.Errorf("failed to read migration file: %w", err)
			}
			if checksum(content) != sum {
				return fmt.Errorf("migration V%d was modified after being applied", mig.version)
			}
			continue
		}

		if err := m.applyMigration(mig.version, mig.name); err != nil {
			return fmt.Errorf("failed to apply migration V%d: %w", mig.version, err)
		}
	}

	return nil
}

func checksum(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// applyMigration applies a single migration.
func (m *Migrator) applyMigration(version int, filename string) error {
	content, err := fs.ReadFile(m.files, filename)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	description := strings.TrimSuffix(filename, ".up.sql")
	description = strings.TrimPrefix(description, fmt.Sprintf("V%d__", version))
	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(query, version, time.Now().Unix(), description, checksum(content)); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// Down rolls back the last migration.
func (m *Migrator) Down() error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	matches, err := fs.Glob(m.files, fmt.Sprintf("V%d__*.down.sql", current))
	if err != nil {
		return fmt.Errorf("failed to search for rollback migration: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no rollback migration found for version %d", current)
	}

	content, err := fs.ReadFile(m.files, path.Clean(matches[0]))
	if err != nil {
		return fmt.Errorf("failed to read rollback migration: %w", err)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("failed to execute rollback SQL: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", current); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}
