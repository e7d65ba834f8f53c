package sync

import "time"

// SyncStatus represents the current sync status.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusFailed  SyncStatus = "failed"
)

// SubmitStatus says where a submitted payload ended up.
type SubmitStatus string

const (
	// Submitted means the backend holds the entity, either newly created or
	// already present.
	Submitted SubmitStatus = "submitted"
	// Queued means the payload is in the durable pending store.
	Queued SubmitStatus = "queued"
)

// SubmitOutcome is the result of SubmitOrQueue.
type SubmitOutcome struct {
	Status   SubmitStatus `json:"status"`
	RemoteID string       `json:"remoteId,omitempty"`
	RecordID string       `json:"recordId,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

// DrainResult aggregates one drain. It is built privately and returned
// only when the drain is over.
type DrainResult struct {
	VisitsSucceeded    int `json:"visitsSucceeded"`
	VisitsFailed       int `json:"visitsFailed"`
	LocationsSucceeded int `json:"locationsSucceeded"`
	LocationsFailed    int `json:"locationsFailed"`

	// Rejected counts failures the backend refused with a 4xx. They stay
	// queued for operator review.
	Rejected int `json:"rejected"`
	// OverRetryBudget counts retained records whose attempts exceed the
	// configured max retries.
	OverRetryBudget int `json:"overRetryBudget"`

	Success bool   `json:"success"`
	Skipped bool   `json:"skipped"`
	Message string `json:"message,omitempty"`

	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`
}

// Succeeded returns the total of both queues.
func (r *DrainResult) Succeeded() int {
	return r.VisitsSucceeded + r.LocationsSucceeded
}

// Failed returns the total of both queues.
func (r *DrainResult) Failed() int {
	return r.VisitsFailed + r.LocationsFailed
}

// EventType identifies a sync event.
type EventType string

const (
	EventDrainStarted   EventType = "sync.started"
	EventDrainCompleted EventType = "sync.completed"
	EventDrainFailed    EventType = "sync.failed"
	EventDrainSkipped   EventType = "sync.skipped"
	EventRecordQueued   EventType = "record.queued"
	EventRecordSent     EventType = "record.submitted"
)

// SyncEvent is emitted to the engine's event handler.
type SyncEvent struct {
	Type      EventType    `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Result    *DrainResult `json:"result,omitempty"`
	Queue     string       `json:"queue,omitempty"`
	RecordID  string       `json:"recordId,omitempty"`
	Error     string       `json:"error,omitempty"`
}
