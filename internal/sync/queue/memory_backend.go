package queue

import (
	"context"
	"sync"

	"github.com/kimhsiao/fieldsync/internal/models"
)

// MemoryBackend keeps queue rows in process memory. It is used in tests and
// on hosts that opt out of disk persistence.
type MemoryBackend struct {
	mu   sync.Mutex
	seq  int64
	rows map[Name][]models.PendingRecord
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rows: make(map[Name][]models.PendingRecord)}
}

// Insert implements Backend.
func (b *MemoryBackend) Insert(ctx context.Context, row models.PendingRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := Name(row.Queue)
	for _, existing := range b.rows[q] {
		if existing.ID == row.ID {
			return errDuplicateID(row.ID)
		}
	}
	b.seq++
	row.Seq = b.seq
	b.rows[q] = append(b.rows[q], row)
	return nil
}

// List implements Backend.
func (b *MemoryBackend) List(ctx context.Context, queue Name) ([]models.PendingRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.PendingRecord, len(b.rows[queue]))
	copy(out, b.rows[queue])
	return out, nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(ctx context.Context, queue Name, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows := b.rows[queue]
	for i, row := range rows {
		if row.ID == id {
			b.rows[queue] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// Count implements Backend.
func (b *MemoryBackend) Count(ctx context.Context, queue Name) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows[queue]), nil
}

// MarkAttempt implements Backend.
func (b *MemoryBackend) MarkAttempt(ctx context.Context, queue Name, id string, lastError string, at int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows := b.rows[queue]
	for i := range rows {
		if rows[i].ID == id {
			rows[i].Attempts++
			rows[i].LastError = lastError
			rows[i].LastAttemptAt = at
			return nil
		}
	}
	return nil
}
