package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kimhsiao/fieldsync/internal/clock"
	"github.com/kimhsiao/fieldsync/internal/connectivity"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/gateway"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/sync/queue"
)

const tracerName = "github.com/kimhsiao/fieldsync/internal/sync"

// EngineConfig holds engine configuration.
type EngineConfig struct {
	// MaxRetries is reported, not enforced: records past it stay queued and
	// are counted in DrainResult.OverRetryBudget. Zero disables the count.
	MaxRetries int
	Clock      clock.Clock
	Tracer     trace.Tracer
}

// SyncEngine routes payloads to the gateway and replays the pending store.
type SyncEngine struct {
	store      *queue.Store
	gateway    gateway.Gateway
	oracle     connectivity.Oracle
	clock      clock.Clock
	tracer     trace.Tracer
	maxRetries int

	draining atomic.Bool

	mu         sync.RWMutex
	handler    SyncEventHandler
	status     SyncStatus
	lastSync   *time.Time
	lastErr    error
	lastResult *DrainResult
}

// NewSyncEngine creates a new SyncEngine.
func NewSyncEngine(store *queue.Store, gw gateway.Gateway, oracle connectivity.Oracle, config *EngineConfig) *SyncEngine {
	if config == nil {
		config = &EngineConfig{}
	}
	e := &SyncEngine{
		store:      store,
		gateway:    gw,
		oracle:     oracle,
		clock:      config.Clock,
		tracer:     config.Tracer,
		maxRetries: config.MaxRetries,
		status:     SyncStatusIdle,
	}
	if e.clock == nil {
		e.clock = clock.RealClock{}
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e
}

// SetEventHandler sets the event handler for sync notifications.
func (e *SyncEngine) SetEventHandler(handler SyncEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// Status returns the current sync status.
func (e *SyncEngine) Status() SyncStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// LastSync returns the end time of the last completed drain.
func (e *SyncEngine) LastSync() *time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSync
}

// LastError returns the last drain error.
func (e *SyncEngine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// LastResult returns the result of the last drain that was not skipped.
func (e *SyncEngine) LastResult() *DrainResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastResult
}

// PendingCounts returns the size of each pending queue.
func (e *SyncEngine) PendingCounts(ctx context.Context) (queue.Counts, error) {
	return e.store.Counts(ctx)
}

func (e *SyncEngine) emit(event SyncEvent) {
	e.mu.RLock()
	handler := e.handler
	e.mu.RUnlock()
	if handler == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.clock.Now()
	}
	handler.OnSyncEvent(event)
}

// SubmitVisit submits a visit or queues it.
func (e *SyncEngine) SubmitVisit(ctx context.Context, visit models.Visit) (SubmitOutcome, error) {
	return submitOrQueue(ctx, e, e.store.Visits, visit.Normalized(), e.gateway.CreateVisit, true)
}

// SubmitLocation submits a location log or queues it.
func (e *SyncEngine) SubmitLocation(ctx context.Context, log models.LocationLog) (SubmitOutcome, error) {
	return submitOrQueue(ctx, e, e.store.Locations, log, e.gateway.CreateLocationLog, false)
}

// SubmitOrQueue dispatches payload by kind. The only errors are validation
// failures and failures to persist; every other outcome leaves the payload
// either on the backend or in the pending store.
func (e *SyncEngine) SubmitOrQueue(ctx context.Context, payload models.Payload) (SubmitOutcome, error) {
	switch p := payload.(type) {
	case models.Visit:
		return e.SubmitVisit(ctx, p)
	case *models.Visit:
		return e.SubmitVisit(ctx, *p)
	case models.LocationLog:
		return e.SubmitLocation(ctx, p)
	case *models.LocationLog:
		return e.SubmitLocation(ctx, *p)
	default:
		return SubmitOutcome{}, apperrors.Newf(apperrors.ErrInvalid, "unsupported payload %T", payload)
	}
}

func submitOrQueue[T models.Payload](
	ctx context.Context,
	e *SyncEngine,
	q *queue.Queue[T],
	payload T,
	send func(context.Context, T) (gateway.Receipt, error),
	conflictAware bool,
) (SubmitOutcome, error) {
	ctx, span := e.tracer.Start(ctx, "sync.submit", trace.WithAttributes(
		attribute.String("fieldsync.kind", string(payload.Kind())),
	))
	defer span.End()

	if err := payload.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid payload")
		return SubmitOutcome{}, apperrors.Wrap(apperrors.ErrValidation, "payload rejected", err)
	}

	if !connectivity.Online(ctx, e.oracle) {
		span.SetAttributes(attribute.Bool("fieldsync.online", false))
		return enqueue(ctx, e, q, payload, "offline", nil)
	}
	span.SetAttributes(attribute.Bool("fieldsync.online", true))

	receipt, err := send(ctx, payload)
	switch {
	case err == nil:
		e.emit(SyncEvent{Type: EventRecordSent, Queue: string(q.Name())})
		return SubmitOutcome{Status: Submitted, RemoteID: receipt.ID}, nil
	case conflictAware && gateway.IsConflict(err):
		logging.Info("Backend already has this entity", map[string]interface{}{
			"queue":       string(q.Name()),
			"existing_id": gateway.ExistingVisitID(err),
		})
		return SubmitOutcome{
			Status:   Submitted,
			RemoteID: gateway.ExistingVisitID(err),
			Reason:   "already exists",
		}, nil
	default:
		span.RecordError(err)
		logging.Warn("Direct submit failed, queueing", map[string]interface{}{
			"queue": string(q.Name()),
			"code":  string(apperrors.CodeOf(err)),
			"error": err.Error(),
		})
		return enqueue(ctx, e, q, payload, err.Error(), err)
	}
}

// enqueue appends payload and, when cause is set, records the failed direct
// attempt against the new record.
func enqueue[T models.Payload](ctx context.Context, e *SyncEngine, q *queue.Queue[T], payload T, reason string, cause error) (SubmitOutcome, error) {
	rec, err := q.Append(ctx, payload)
	if err != nil {
		trace.SpanFromContext(ctx).SetStatus(codes.Error, "queue append failed")
		logging.ErrorWithCode("Failed to queue payload", string(apperrors.CodeOf(err)), err,
			map[string]interface{}{"queue": string(q.Name())})
		return SubmitOutcome{}, err
	}
	if cause != nil {
		if err := q.RecordAttempt(ctx, rec.ID, cause); err != nil {
			logging.Error("Failed to record delivery attempt", err, map[string]interface{}{
				"queue": string(q.Name()),
				"id":    rec.ID,
			})
		}
	}

	e.emit(SyncEvent{Type: EventRecordQueued, Queue: string(q.Name()), RecordID: rec.ID})
	return SubmitOutcome{Status: Queued, RecordID: rec.ID, Reason: reason}, nil
}

// Drain replays the visits queue then the locations queue, oldest first.
// Per-record failures are counted and never abort the drain. A store
// failure or missing credentials abort it with an error and no counts.
func (e *SyncEngine) Drain(ctx context.Context) (*DrainResult, error) {
	if !e.draining.CompareAndSwap(false, true) {
		logging.Debug("Drain already in progress, skipping", nil)
		return e.skipped("drain already in progress"), nil
	}
	defer e.draining.Store(false)

	if !connectivity.Online(ctx, e.oracle) {
		result := e.skipped("offline")
		e.emit(SyncEvent{Type: EventDrainSkipped, Result: result})
		return result, nil
	}

	ctx, span := e.tracer.Start(ctx, "sync.drain")
	defer span.End()

	e.mu.Lock()
	e.status = SyncStatusSyncing
	e.mu.Unlock()
	e.emit(SyncEvent{Type: EventDrainStarted})

	result := &DrainResult{StartTime: e.clock.Now()}

	var visits, locations tally
	err := drainQueue(ctx, e, e.store.Visits, e.gateway.CreateVisit, true, &visits)
	if err == nil {
		err = drainQueue(ctx, e, e.store.Locations, e.gateway.CreateLocationLog, false, &locations)
	}

	result.EndTime = e.clock.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	if err != nil {
		result.Success = false
		result.Message = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "drain aborted")
		logging.ErrorWithCode("Drain aborted", string(apperrors.CodeOf(err)), err, nil)

		e.mu.Lock()
		e.status = SyncStatusFailed
		e.lastErr = err
		e.lastResult = result
		e.mu.Unlock()
		e.emit(SyncEvent{Type: EventDrainFailed, Result: result, Error: err.Error()})
		return result, err
	}

	result.VisitsSucceeded = visits.succeeded
	result.VisitsFailed = visits.failed
	result.LocationsSucceeded = locations.succeeded
	result.LocationsFailed = locations.failed
	result.Rejected = visits.rejected + locations.rejected
	result.OverRetryBudget = visits.overBudget + locations.overBudget
	result.Success = true
	result.Message = fmt.Sprintf("synced %d, %d still pending", result.Succeeded(), result.Failed())

	span.SetAttributes(
		attribute.Int("fieldsync.visits.succeeded", result.VisitsSucceeded),
		attribute.Int("fieldsync.visits.failed", result.VisitsFailed),
		attribute.Int("fieldsync.locations.succeeded", result.LocationsSucceeded),
		attribute.Int("fieldsync.locations.failed", result.LocationsFailed),
	)

	logging.Info("Drain completed", map[string]interface{}{
		"visits_succeeded":    result.VisitsSucceeded,
		"visits_failed":       result.VisitsFailed,
		"locations_succeeded": result.LocationsSucceeded,
		"locations_failed":    result.LocationsFailed,
		"rejected":            result.Rejected,
		"over_retry_budget":   result.OverRetryBudget,
		"duration_ms":         result.Duration.Milliseconds(),
	})

	e.mu.Lock()
	e.status = SyncStatusIdle
	e.lastErr = nil
	e.lastSync = &result.EndTime
	e.lastResult = result
	e.mu.Unlock()
	e.emit(SyncEvent{Type: EventDrainCompleted, Result: result})
	return result, nil
}

// IsDraining reports whether a drain is running.
func (e *SyncEngine) IsDraining() bool {
	return e.draining.Load()
}

func (e *SyncEngine) skipped(message string) *DrainResult {
	now := e.clock.Now()
	return &DrainResult{
		Skipped:   true,
		Message:   message,
		StartTime: now,
		EndTime:   now,
	}
}

type tally struct {
	succeeded  int
	failed     int
	rejected   int
	overBudget int
}

func drainQueue[T models.Payload](
	ctx context.Context,
	e *SyncEngine,
	q *queue.Queue[T],
	send func(context.Context, T) (gateway.Receipt, error),
	conflictAware bool,
	t *tally,
) error {
	records, err := q.ListAll(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		_, err := send(ctx, rec.Payload)
		switch {
		case err == nil:
		case conflictAware && gateway.IsConflict(err):
			logging.Info("Pending record already on backend, removing", map[string]interface{}{
				"queue":       string(q.Name()),
				"id":          rec.ID,
				"existing_id": gateway.ExistingVisitID(err),
			})
		case gateway.IsUnauthenticated(err):
			return err
		default:
			t.failed++
			if gateway.IsRejected(err) {
				t.rejected++
			}
			attempts := rec.Attempts + 1
			if attemptErr := q.RecordAttempt(ctx, rec.ID, err); attemptErr != nil {
				logging.Error("Failed to record delivery attempt", attemptErr, map[string]interface{}{
					"queue": string(q.Name()),
					"id":    rec.ID,
				})
			}
			if e.maxRetries > 0 && attempts > e.maxRetries {
				t.overBudget++
				logging.Warn("Pending record exceeded retry budget, keeping", map[string]interface{}{
					"queue":       string(q.Name()),
					"id":          rec.ID,
					"attempts":    attempts,
					"max_retries": e.maxRetries,
				})
			}
			logging.Warn("Pending record delivery failed", map[string]interface{}{
				"queue":    string(q.Name()),
				"id":       rec.ID,
				"attempts": attempts,
				"code":     string(apperrors.CodeOf(err)),
				"error":    err.Error(),
			})
			continue
		}

		if err := q.Remove(ctx, rec.ID); err != nil {
			return err
		}
		t.succeeded++
	}
	return nil
}

var _ SyncEngineInterface = (*SyncEngine)(nil)
