// Package sync submits field payloads to the backend and replays the
// durable pending queues when the device comes back online.
package sync

import (
	"context"
	"time"

	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/sync/queue"
)

// SyncEngineInterface defines the interface for sync engine operations.
// This interface allows for mocking in tests and alternative implementations.
type SyncEngineInterface interface {
	// Drain replays both pending queues once.
	// A concurrent or offline call returns a skipped result without error.
	Drain(ctx context.Context) (*DrainResult, error)

	// SubmitOrQueue delivers payload or durably queues it.
	SubmitOrQueue(ctx context.Context, payload models.Payload) (SubmitOutcome, error)

	// PendingCounts returns the size of each pending queue.
	PendingCounts(ctx context.Context) (queue.Counts, error)

	// SetEventHandler sets the event handler for sync notifications.
	SetEventHandler(handler SyncEventHandler)

	// Status returns the current sync status.
	Status() SyncStatus

	// LastSync returns the end time of the last completed drain.
	LastSync() *time.Time

	// LastError returns the error of the last failed drain.
	LastError() error
}

// SyncEventHandler receives engine notifications.
type SyncEventHandler interface {
	OnSyncEvent(event SyncEvent)
}

// SyncEventHandlerFunc adapts a function to SyncEventHandler.
type SyncEventHandlerFunc func(event SyncEvent)

// OnSyncEvent implements SyncEventHandler.
func (f SyncEventHandlerFunc) OnSyncEvent(event SyncEvent) { f(event) }
