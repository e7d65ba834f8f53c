package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kimhsiao/fieldsync/internal/models"
)

// SQLiteBackend stores queue rows in the pending_records table created by
// the db migrations.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend wraps an open, migrated database.
func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// Insert implements Backend.
func (b *SQLiteBackend) Insert(ctx context.Context, row models.PendingRecord) error {
	query := `
	INSERT INTO pending_records (queue_name, id, payload, queued_at, schema_version, attempts)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := b.db.ExecContext(ctx, query, row.Queue, row.ID, string(row.Payload),
		row.QueuedAt, row.SchemaVersion, row.Attempts)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errDuplicateID(row.ID)
		}
		return fmt.Errorf("insert pending record: %w", err)
	}
	return nil
}

// List implements Backend.
func (b *SQLiteBackend) List(ctx context.Context, queue Name) ([]models.PendingRecord, error) {
	query := `
	SELECT seq, queue_name, id, payload, queued_at, schema_version, attempts,
		   last_error, last_attempt_at
	FROM pending_records WHERE queue_name = ? ORDER BY seq ASC
	`
	rows, err := b.db.QueryContext(ctx, query, string(queue))
	if err != nil {
		return nil, fmt.Errorf("list pending records: %w", err)
	}
	defer rows.Close()

	var out []models.PendingRecord
	for rows.Next() {
		var rec models.PendingRecord
		var payload string
		var lastError sql.NullString
		var lastAttempt sql.NullInt64
		if err := rows.Scan(&rec.Seq, &rec.Queue, &rec.ID, &payload, &rec.QueuedAt,
			&rec.SchemaVersion, &rec.Attempts, &lastError, &lastAttempt); err != nil {
			return nil, fmt.Errorf("scan pending record: %w", err)
		}
		rec.Payload = []byte(payload)
		if lastError.Valid {
			rec.LastError = lastError.String
		}
		if lastAttempt.Valid {
			rec.LastAttemptAt = lastAttempt.Int64
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending records: %w", err)
	}
	return out, nil
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, queue Name, id string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM pending_records WHERE queue_name = ? AND id = ?`,
		string(queue), id)
	if err != nil {
		return fmt.Errorf("delete pending record: %w", err)
	}
	return nil
}

// Count implements Backend.
func (b *SQLiteBackend) Count(ctx context.Context, queue Name) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_records WHERE queue_name = ?`,
		string(queue)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending records: %w", err)
	}
	return n, nil
}

// MarkAttempt implements Backend.
func (b *SQLiteBackend) MarkAttempt(ctx context.Context, queue Name, id string, lastError string, at int64) error {
	query := `
	UPDATE pending_records
	SET attempts = attempts + 1, last_error = ?, last_attempt_at = ?
	WHERE queue_name = ? AND id = ?
	`
	if _, err := b.db.ExecContext(ctx, query, lastError, at, string(queue), id); err != nil {
		return fmt.Errorf("mark pending attempt: %w", err)
	}
	return nil
}
