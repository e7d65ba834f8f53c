package models

import "encoding/json"

// PendingSchemaVersion is written with every queued row so a later client
// can migrate payload shapes.
const PendingSchemaVersion = 1

// PendingRecord is the persisted row of a pending queue entry.
type PendingRecord struct {
	Seq           int64           `db:"seq" json:"-"`
	Queue         string          `db:"queue_name" json:"-"`
	ID            string          `db:"id" json:"id"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	QueuedAt      int64           `db:"queued_at" json:"queuedAt"` // unix millis
	SchemaVersion int             `db:"schema_version" json:"schemaVersion"`
	Attempts      int             `db:"attempts" json:"attempts"`
	LastError     string          `db:"last_error" json:"lastError,omitempty"`
	LastAttemptAt int64           `db:"last_attempt_at" json:"lastAttemptAt,omitempty"` // unix millis
}

// TableName returns the table name for PendingRecord.
func (PendingRecord) TableName() string {
	return "pending_records"
}
