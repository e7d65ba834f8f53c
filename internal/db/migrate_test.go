// Package db tests for database migration management.
package db

import (
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"
)

// openMemory opens a single-connection in-memory database.
func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInitialize verifies schema_migrations table creation.
func TestInitialize(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, Migrations())

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	_, err := db.Exec("INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
		1, 123456, "test_migration", strings.Repeat("a", 64))
	if err != nil {
		t.Errorf("Failed to insert test row: %v", err)
	}
}

// TestCurrentVersion verifies version tracking.
func TestCurrentVersion(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, Migrations())

	if _, err := m.CurrentVersion(); err == nil {
		t.Error("CurrentVersion() should fail before Initialize()")
	}

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	v, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion() failed: %v", err)
	}
	if v != 0 {
		t.Errorf("CurrentVersion() = %d, want 0", v)
	}
}

// TestUpDown verifies embedded migrations apply and roll back.
func TestUpDown(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, Migrations())

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	v, _ := m.CurrentVersion()
	if v != 1 {
		t.Errorf("CurrentVersion() = %d, want 1", v)
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations() failed: %v", err)
	}
	if len(applied) != 1 || applied[0].Description != "pending_records" {
		t.Errorf("applied = %+v", applied)
	}

	// Rejects rows outside the two named queues.
	_, err = db.Exec(`INSERT INTO pending_records (queue_name, id, payload, queued_at) VALUES ('pending_sales', 'x', '{}', 1)`)
	if err == nil {
		t.Error("insert into unknown queue should fail the CHECK constraint")
	}

	if err := m.Down(); err != nil {
		t.Fatalf("Down() failed: %v", err)
	}
	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='pending_records'").Scan(&name)
	if err != sql.ErrNoRows {
		t.Errorf("pending_records should be dropped, got err=%v", err)
	}

	if err := m.Down(); err == nil {
		t.Error("Down() with nothing applied should fail")
	}
}

// TestUp_ordering verifies files apply in numeric version order.
func TestUp_ordering(t *testing.T) {
	db := openMemory(t)
	files := fstest.MapFS{
		"V10__second.up.sql": {Data: []byte("INSERT INTO log (step) VALUES ('ten');")},
		"V2__first.up.sql":   {Data: []byte("CREATE TABLE log (step TEXT); INSERT INTO log (step) VALUES ('two');")},
		"README.md":          {Data: []byte("ignored")},
		"Vx__bad.up.sql":     {Data: []byte("ignored")},
	}
	m := NewMigrator(db, files)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	rows, err := db.Query("SELECT step FROM log ORDER BY rowid")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var steps []string
	for rows.Next() {
		var s string
		rows.Scan(&s)
		steps = append(steps, s)
	}
	if strings.Join(steps, ",") != "two,ten" {
		t.Errorf("steps = %v, want [two ten]", steps)
	}
}

// TestUp_checksumMismatch verifies edited migrations are refused.
func TestUp_checksumMismatch(t *testing.T) {
	db := openMemory(t)
	files := fstest.MapFS{
		"V1__init.up.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")},
	}
	m := NewMigrator(db, files)
	m.Initialize()
	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	files["V1__init.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE b (id INTEGER);")}
	if err := m.Up(); err == nil {
		t.Error("Up() should refuse a modified migration")
	}
}
