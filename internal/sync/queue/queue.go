package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kimhsiao/fieldsync/internal/clock"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

// Record is a payload that has been accepted into a queue but not yet
// confirmed by the backend.
type Record[T models.Payload] struct {
	ID            string
	Payload       T
	QueuedAt      time.Time
	SchemaVersion int
	Attempts      int
	LastError     string
	LastAttemptAt time.Time
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	clock clock.Clock
	newID func() (string, error)
}

// WithClock sets the clock used for queued-at and attempt timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(o *options) { o.newID = fn }
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.RealClock{}, newID: uuid.NewOrdered}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Queue is a durable FIFO of payloads of one kind.
// All mutations are serialized per queue and persisted before returning.
type Queue[T models.Payload] struct {
	name    Name
	backend Backend
	opts    options
	mu      sync.Mutex
}

// New creates a queue over backend.
func New[T models.Payload](name Name, backend Backend, opts ...Option) (*Queue[T], error) {
	if !name.Valid() {
		return nil, apperrors.Newf(apperrors.ErrInvalid, "unknown queue %q", name)
	}
	if backend == nil {
		return nil, apperrors.New(apperrors.ErrInvalid, "queue backend is required")
	}
	return &Queue[T]{name: name, backend: backend, opts: buildOptions(opts)}, nil
}

// Name returns the persisted queue key.
func (q *Queue[T]) Name() Name {
	return q.name
}

// Append validates payload and writes it to the end of the queue.
func (q *Queue[T]) Append(ctx context.Context, payload T) (Record[T], error) {
	if err := payload.Validate(); err != nil {
		return Record[T]{}, apperrors.Wrap(apperrors.ErrValidation, "payload rejected", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Record[T]{}, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode payload", err)
	}

	id, err := q.opts.newID()
	if err != nil {
		return Record[T]{}, apperrors.Wrap(apperrors.ErrInternal, "failed to generate record id", err)
	}

	now := q.opts.clock.Now()
	row := models.PendingRecord{
		Queue:         string(q.name),
		ID:            id,
		Payload:       data,
		QueuedAt:      now.UnixMilli(),
		SchemaVersion: models.PendingSchemaVersion,
	}

	q.mu.Lock()
	err = q.backend.Insert(ctx, row)
	q.mu.Unlock()
	if err != nil {
		logging.Error("Failed to append pending record", err, map[string]interface{}{
			"queue": string(q.name),
		})
		return Record[T]{}, apperrors.Wrap(apperrors.ErrStore, "failed to persist pending record", err)
	}

	logging.Debug("Pending record appended", map[string]interface{}{
		"queue": string(q.name),
		"id":    id,
	})

	return Record[T]{
		ID:            id,
		Payload:       payload,
		QueuedAt:      time.UnixMilli(row.QueuedAt),
		SchemaVersion: row.SchemaVersion,
	}, nil
}

// ListAll returns every record in insertion order. An unreadable row is
// a store error; it is never silently dropped.
func (q *Queue[T]) ListAll(ctx context.Context) ([]Record[T], error) {
	q.mu.Lock()
	rows, err := q.backend.List(ctx, q.name)
	q.mu.Unlock()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to read pending queue", err)
	}

	records := make([]Record[T], 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow[T](row)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStore,
				fmt.Sprintf("pending record %s is unreadable", row.ID), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Remove deletes the record with id. Removing an absent id succeeds.
func (q *Queue[T]) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	err := q.backend.Delete(ctx, q.name, id)
	q.mu.Unlock()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to remove pending record", err)
	}
	return nil
}

// Count returns the number of pending records.
func (q *Queue[T]) Count(ctx context.Context) (int, error) {
	n, err := q.backend.Count(ctx, q.name)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStore, "failed to count pending queue", err)
	}
	return n, nil
}

// RecordAttempt notes a failed delivery attempt for id. The payload itself
// is left untouched.
func (q *Queue[T]) RecordAttempt(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	q.mu.Lock()
	err := q.backend.MarkAttempt(ctx, q.name, id, msg, q.opts.clock.Now().UnixMilli())
	q.mu.Unlock()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to record delivery attempt", err)
	}
	return nil
}

func fromRow[T models.Payload](row models.PendingRecord) (Record[T], error) {
	var payload T
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		return Record[T]{}, err
	}
	rec := Record[T]{
		ID:            row.ID,
		Payload:       payload,
		QueuedAt:      time.UnixMilli(row.QueuedAt),
		SchemaVersion: row.SchemaVersion,
		Attempts:      row.Attempts,
		LastError:     row.LastError,
	}
	if row.LastAttemptAt > 0 {
		rec.LastAttemptAt = time.UnixMilli(row.LastAttemptAt)
	}
	return rec, nil
}

func errDuplicateID(id string) error {
	return fmt.Errorf("pending record %s already exists", id)
}
