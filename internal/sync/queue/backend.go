// Package queue provides the durable pending store: two independent FIFO
// queues, one for visits and one for location logs, that hold payloads the
// backend has not yet confirmed.
package queue

import (
	"context"

	"github.com/kimhsiao/fieldsync/internal/models"
)

// Name is a fixed persisted queue key.
type Name string

const (
	Visits    Name = "pending_visits"
	Locations Name = "pending_locations"
)

// Valid reports whether n is one of the two known queues.
func (n Name) Valid() bool {
	return n == Visits || n == Locations
}

// ForKind returns the queue that holds payloads of kind.
func ForKind(kind models.Kind) (Name, bool) {
	switch kind {
	case models.KindVisit:
		return Visits, true
	case models.KindLocation:
		return Locations, true
	}
	return "", false
}

// Backend persists queue rows. Every method must have taken durable effect
// before it returns; the queue layer adds no write-behind buffering.
type Backend interface {
	// Insert appends a row to the end of its queue.
	Insert(ctx context.Context, row models.PendingRecord) error

	// List returns all rows of a queue in insertion order.
	List(ctx context.Context, queue Name) ([]models.PendingRecord, error)

	// Delete removes a row. Deleting a missing id is not an error.
	Delete(ctx context.Context, queue Name, id string) error

	// Count returns the number of rows without reading payloads.
	Count(ctx context.Context, queue Name) (int, error)

	// MarkAttempt bumps the attempt counter of a row and records the last error.
	MarkAttempt(ctx context.Context, queue Name, id string, lastError string, at int64) error
}
