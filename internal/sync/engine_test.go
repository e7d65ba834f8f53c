// Package sync tests for sync engine functionality.
package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kimhsiao/fieldsync/internal/clock"
	"github.com/kimhsiao/fieldsync/internal/connectivity"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/gateway"
	"github.com/kimhsiao/fieldsync/internal/gateway/gatewaytest"
	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/sync/queue"
)

// =====================================================
// Test Helpers
// =====================================================

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	engine  *SyncEngine
	gateway *gatewaytest.Fake
	oracle  *connectivity.Manual
	store   *queue.Store
	backend queue.Backend
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	return newHarnessWithBackend(t, online, queue.NewMemoryBackend())
}

func newHarnessWithBackend(t *testing.T, online bool, backend queue.Backend) *harness {
	t.Helper()
	clk := clock.NewMock(testEpoch)
	store, err := queue.NewStore(backend, queue.WithClock(clk))
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	fake := gatewaytest.New()
	oracle := connectivity.NewManual(online)
	engine := NewSyncEngine(store, fake, oracle, &EngineConfig{MaxRetries: 3, Clock: clk})
	return &harness{engine: engine, gateway: fake, oracle: oracle, store: store, backend: backend}
}

func testVisit(doctor string) models.Visit {
	loc := models.NewGeoPoint(19.076, 72.8777)
	return models.Visit{
		DoctorID:  doctor,
		VisitDate: testEpoch,
		Outcome:   models.OutcomeMetDoctor,
		Location:  &loc,
	}
}

func testLocation(lat float64) models.LocationLog {
	return models.LocationLog{
		Location:  models.NewGeoPoint(lat, 72.8777),
		Accuracy:  8,
		Timestamp: testEpoch,
		Platform:  models.PlatformIOS,
	}
}

func (h *harness) queueVisits(t *testing.T, doctors ...string) {
	t.Helper()
	for _, d := range doctors {
		if _, err := h.store.Visits.Append(context.Background(), testVisit(d)); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}
}

func (h *harness) counts(t *testing.T) queue.Counts {
	t.Helper()
	c, err := h.engine.PendingCounts(context.Background())
	if err != nil {
		t.Fatalf("PendingCounts() failed: %v", err)
	}
	return c
}

// failingBackend fails every List call.
type failingBackend struct {
	queue.Backend
	err error
}

func (b *failingBackend) List(ctx context.Context, q queue.Name) ([]models.PendingRecord, error) {
	return nil, b.err
}

// =====================================================
// SubmitOrQueue Tests
// =====================================================

func TestNewSyncEngine(t *testing.T) {
	h := newHarness(t, true)

	if h.engine.Status() != SyncStatusIdle {
		t.Errorf("status = %v, want SyncStatusIdle", h.engine.Status())
	}
	if h.engine.LastSync() != nil {
		t.Error("lastSync should be nil initially")
	}
	if h.engine.LastError() != nil {
		t.Error("lastErr should be nil initially")
	}
	if h.engine.LastResult() != nil {
		t.Error("lastResult should be nil initially")
	}
}

func TestSubmitOrQueue_offlineNeverCallsGateway(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := h.engine.SubmitOrQueue(ctx, testVisit(fmt.Sprintf("doc-%d", i)))
		if err != nil {
			t.Fatalf("SubmitOrQueue() error = %v", err)
		}
		if out.Status != Queued || out.Reason != "offline" || out.RecordID == "" {
			t.Errorf("outcome = %+v, want queued offline", out)
		}
	}
	if _, err := h.engine.SubmitOrQueue(ctx, testLocation(19)); err != nil {
		t.Fatalf("SubmitOrQueue(location) error = %v", err)
	}

	if n := len(h.gateway.Calls()); n != 0 {
		t.Errorf("gateway called %d times while offline", n)
	}
	if c := h.counts(t); c.Visits != 3 || c.Locations != 1 {
		t.Errorf("counts = %+v, want 3 visits 1 location", c)
	}
}

func TestSubmitOrQueue_onlineSubmits(t *testing.T) {
	h := newHarness(t, true)

	out, err := h.engine.SubmitVisit(context.Background(), testVisit("doc-1"))
	if err != nil {
		t.Fatalf("SubmitVisit() error = %v", err)
	}
	if out.Status != Submitted || out.RemoteID == "" {
		t.Errorf("outcome = %+v, want submitted with remote id", out)
	}
	if c := h.counts(t); c.Total() != 0 {
		t.Errorf("counts = %+v, want empty", c)
	}

	calls := h.gateway.Calls()
	if len(calls) != 1 {
		t.Fatalf("gateway calls = %d, want 1", len(calls))
	}
	if v := calls[0].Payload.(models.Visit); v.Status != models.VisitStatusCompleted {
		t.Errorf("submitted visit status = %q, want normalized COMPLETED", v.Status)
	}
}

func TestSubmitOrQueue_failureFallsBackToQueue(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"network", gatewaytest.Unreachable()},
		{"server error", gatewaytest.Status(http.StatusInternalServerError)},
		{"validation rejection", gatewaytest.Status(http.StatusUnprocessableEntity)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)
			h.gateway.LocationFunc = func(context.Context, models.LocationLog) error { return tt.err }

			out, err := h.engine.SubmitLocation(context.Background(), testLocation(19))
			if err != nil {
				t.Fatalf("SubmitLocation() error = %v", err)
			}
			if out.Status != Queued {
				t.Errorf("status = %s, want queued", out.Status)
			}

			records, _ := h.store.Locations.ListAll(context.Background())
			if len(records) != 1 {
				t.Fatalf("queued records = %d, want 1", len(records))
			}
			if records[0].Attempts != 1 {
				t.Errorf("attempts = %d, want 1 for the failed direct call", records[0].Attempts)
			}
		})
	}
}

func TestSubmitOrQueue_conflictIsSubmitted(t *testing.T) {
	h := newHarness(t, true)
	h.gateway.VisitFunc = func(context.Context, models.Visit) error { return gatewaytest.Conflict("v-42") }

	out, err := h.engine.SubmitVisit(context.Background(), testVisit("doc-1"))
	if err != nil {
		t.Fatalf("SubmitVisit() error = %v", err)
	}
	if out.Status != Submitted || out.RemoteID != "v-42" {
		t.Errorf("outcome = %+v, want submitted v-42", out)
	}
	if c := h.counts(t); c.Visits != 0 {
		t.Errorf("visits queued = %d, want 0", c.Visits)
	}
}

func TestSubmitOrQueue_invalidPayload(t *testing.T) {
	h := newHarness(t, true)
	bad := testVisit("doc-1")
	bad.Location = nil

	_, err := h.engine.SubmitOrQueue(context.Background(), bad)
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("SubmitOrQueue() error = %v, want VALIDATION_ERROR", err)
	}
	if n := len(h.gateway.Calls()); n != 0 {
		t.Errorf("gateway calls = %d, want 0", n)
	}

	if _, err := h.engine.SubmitOrQueue(context.Background(), unknownPayload{}); !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("SubmitOrQueue(unknown) error = %v, want INVALID_INPUT", err)
	}
}

// unknownPayload is a Payload the engine has no queue for.
type unknownPayload struct{}

func (unknownPayload) Kind() models.Kind { return "expense" }
func (unknownPayload) Validate() error   { return nil }

func TestSubmitOrQueue_nonFiniteReadingRejected(t *testing.T) {
	h := newHarness(t, false)
	loc := testLocation(19)
	speed := math.Inf(1)
	loc.Speed = &speed

	_, err := h.engine.SubmitOrQueue(context.Background(), loc)
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("SubmitOrQueue() error = %v, want VALIDATION_ERROR", err)
	}
	if c := h.counts(t); c.Total() != 0 {
		t.Errorf("pending = %+v, want nothing queued", c)
	}
}

func TestSubmitOrQueue_pointerPayload(t *testing.T) {
	h := newHarness(t, false)
	loc := testLocation(19)
	out, err := h.engine.SubmitOrQueue(context.Background(), &loc)
	if err != nil || out.Status != Queued {
		t.Fatalf("SubmitOrQueue(&loc) = %+v, %v", out, err)
	}
}

// =====================================================
// Drain Tests
// =====================================================

func TestDrain_offlineSkips(t *testing.T) {
	h := newHarness(t, false)
	h.queueVisits(t, "doc-1")

	result, err := h.engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if !result.Skipped || result.Message != "offline" {
		t.Errorf("result = %+v, want skipped offline", result)
	}
	if n := len(h.gateway.Calls()); n != 0 {
		t.Errorf("gateway calls = %d, want 0", n)
	}
	if c := h.counts(t); c.Visits != 1 {
		t.Errorf("visits = %d, want 1 untouched", c.Visits)
	}
}

func TestDrain_fifoOrder(t *testing.T) {
	h := newHarness(t, true)
	h.queueVisits(t, "A", "B", "C")

	result, err := h.engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	got := h.gateway.VisitDoctors()
	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Errorf("submission order = %v, want [A B C]", got)
	}
	if result.VisitsSucceeded != 3 || result.VisitsFailed != 0 || !result.Success {
		t.Errorf("result = %+v", result)
	}
	if c := h.counts(t); c.Visits != 0 {
		t.Errorf("visits = %d, want 0", c.Visits)
	}
}

func TestDrain_conflictRemovesRecord(t *testing.T) {
	h := newHarness(t, true)
	h.queueVisits(t, "X")
	h.gateway.VisitFunc = func(context.Context, models.Visit) error { return gatewaytest.Conflict("v-1") }

	result, err := h.engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if result.VisitsSucceeded != 1 || result.VisitsFailed != 0 {
		t.Errorf("result = %+v, want 1 succeeded", result)
	}

	if _, err := h.engine.Drain(context.Background()); err != nil {
		t.Fatalf("second Drain() error = %v", err)
	}
	if n := h.gateway.CallCount("CreateVisit"); n != 1 {
		t.Errorf("CreateVisit calls = %d, want 1 (no re-submit)", n)
	}
}

// TestDrain_bareConflictRetainsVisit drains through the real client: a 409
// that does not name an existing visit is not a duplicate.
func TestDrain_bareConflictRetainsVisit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"resource locked, retry"}`))
	}))
	defer srv.Close()

	store, err := queue.NewStore(queue.NewMemoryBackend())
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	client := gateway.NewClient(srv.URL, gateway.WithTokenSource(gateway.StaticToken("test-token")))
	engine := NewSyncEngine(store, client, connectivity.NewManual(true), nil)
	if _, err := store.Visits.Append(context.Background(), testVisit("X")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	result, err := engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if result.VisitsSucceeded != 0 || result.VisitsFailed != 1 || result.Rejected != 1 {
		t.Errorf("result = %+v, want 1 failed and rejected", result)
	}
	if n, _ := store.Visits.Count(context.Background()); n != 1 {
		t.Errorf("visits pending = %d, want 1 retained", n)
	}
}

func TestDrain_partialFailureIsolation(t *testing.T) {
	h := newHarness(t, true)
	h.queueVisits(t, "A", "B")
	h.gateway.VisitFunc = func(_ context.Context, v models.Visit) error {
		if v.DoctorID == "A" {
			return gatewaytest.Status(http.StatusInternalServerError)
		}
		return nil
	}

	result, err := h.engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if result.VisitsSucceeded != 1 || result.VisitsFailed != 1 {
		t.Errorf("result = %+v, want {succeeded:1, failed:1}", result)
	}

	records, _ := h.store.Visits.ListAll(context.Background())
	if len(records) != 1 || records[0].Payload.DoctorID != "A" {
		t.Fatalf("remaining = %+v, want only A", records)
	}
	if records[0].Attempts != 1 {
		t.Errorf("A attempts = %d, want 1", records[0].Attempts)
	}
}

func TestDrain_locationsHaveNoConflictSignal(t *testing.T) {
	h := newHarness(t, true)
	for i := 0; i < 2; i++ {
		h.store.Locations.Append(context.Background(), testLocation(19))
	}
	h.gateway.LocationFunc = func(context.Context, models.LocationLog) error {
		return gatewaytest.Status(http.StatusConflict)
	}

	result, err := h.engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if result.LocationsFailed != 2 || result.LocationsSucceeded != 0 || result.Rejected != 2 {
		t.Errorf("result = %+v, want 2 failed and rejected", result)
	}
	if c := h.counts(t); c.Locations != 2 {
		t.Errorf("locations = %d, want 2 retained", c.Locations)
	}
}

func TestDrain_visitsBeforeLocations(t *testing.T) {
	h := newHarness(t, true)
	h.store.Locations.Append(context.Background(), testLocation(19))
	h.queueVisits(t, "A")

	if _, err := h.engine.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	calls := h.gateway.Calls()
	if len(calls) != 2 || calls[0].Op != "CreateVisit" || calls[1].Op != "CreateLocationLog" {
		t.Errorf("calls = %+v, want visit then location", calls)
	}
}

func TestDrain_retryBudgetIsReportedNotEnforced(t *testing.T) {
	h := newHarness(t, true)
	h.queueVisits(t, "A")
	h.gateway.VisitFunc = func(context.Context, models.Visit) error { return gatewaytest.Unreachable() }

	var last *DrainResult
	for i := 0; i < 5; i++ {
		r, err := h.engine.Drain(context.Background())
		if err != nil {
			t.Fatalf("Drain() error = %v", err)
		}
		last = r
	}
	if last.OverRetryBudget != 1 {
		t.Errorf("OverRetryBudget = %d, want 1", last.OverRetryBudget)
	}
	if c := h.counts(t); c.Visits != 1 {
		t.Errorf("visits = %d, want record kept past budget", c.Visits)
	}
	records, _ := h.store.Visits.ListAll(context.Background())
	if records[0].Attempts != 5 {
		t.Errorf("attempts = %d, want 5", records[0].Attempts)
	}
}

func TestDrain_storeFailureAborts(t *testing.T) {
	storeErr := errors.New("disk I/O error")
	h := newHarnessWithBackend(t, true, &failingBackend{Backend: queue.NewMemoryBackend(), err: storeErr})

	result, err := h.engine.Drain(context.Background())
	if !apperrors.Is(err, apperrors.ErrStore) || !errors.Is(err, storeErr) {
		t.Fatalf("Drain() error = %v, want STORE_ERROR wrapping disk error", err)
	}
	if result.Success || result.Succeeded() != 0 || result.Failed() != 0 {
		t.Errorf("result = %+v, want failure without counts", result)
	}
	if h.engine.Status() != SyncStatusFailed || h.engine.LastError() == nil {
		t.Errorf("status = %s, lastErr = %v", h.engine.Status(), h.engine.LastError())
	}
}

func TestDrain_unauthenticatedAborts(t *testing.T) {
	h := newHarness(t, true)
	h.queueVisits(t, "A", "B")
	h.gateway.VisitFunc = func(context.Context, models.Visit) error {
		return gatewaytest.Status(http.StatusUnauthorized)
	}

	_, err := h.engine.Drain(context.Background())
	if !gateway.IsUnauthenticated(err) {
		t.Fatalf("Drain() error = %v, want UNAUTHENTICATED", err)
	}
	if n := h.gateway.CallCount("CreateVisit"); n != 1 {
		t.Errorf("CreateVisit calls = %d, want 1 before abort", n)
	}
	if c := h.counts(t); c.Visits != 2 {
		t.Errorf("visits = %d, want 2 retained", c.Visits)
	}
}

func TestDrain_noConcurrentDrains(t *testing.T) {
	h := newHarness(t, true)
	h.queueVisits(t, "A")

	entered := make(chan struct{})
	release := make(chan struct{})
	h.gateway.VisitFunc = func(context.Context, models.Visit) error {
		close(entered)
		<-release
		return nil
	}

	var wg sync.WaitGroup
	var first *DrainResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = h.engine.Drain(context.Background())
	}()

	<-entered
	if !h.engine.IsDraining() {
		t.Error("IsDraining() should be true mid-drain")
	}
	second, err := h.engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("overlapping Drain() error = %v", err)
	}
	if !second.Skipped {
		t.Errorf("overlapping Drain() = %+v, want skipped", second)
	}
	close(release)
	wg.Wait()

	if first.Skipped || first.VisitsSucceeded != 1 {
		t.Errorf("first Drain() = %+v, want 1 succeeded", first)
	}
	if n := h.gateway.CallCount("CreateVisit"); n != 1 {
		t.Errorf("CreateVisit calls = %d, want 1", n)
	}
	if h.engine.IsDraining() {
		t.Error("IsDraining() should be false after drain")
	}
}

func TestDrain_noLossAcrossDrains(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		h.engine.SubmitVisit(ctx, testVisit(fmt.Sprintf("doc-%d", i)))
	}

	h.oracle.Set(true)
	failing := true
	h.gateway.VisitFunc = func(context.Context, models.Visit) error {
		if failing {
			return gatewaytest.Status(http.StatusBadGateway)
		}
		return nil
	}

	r1, _ := h.engine.Drain(ctx)
	if r1.VisitsFailed != 4 || h.counts(t).Visits != 4 {
		t.Fatalf("first drain = %+v, want all 4 retained", r1)
	}

	failing = false
	r2, _ := h.engine.Drain(ctx)
	if r2.VisitsSucceeded != 4 || h.counts(t).Visits != 0 {
		t.Fatalf("second drain = %+v, want all 4 delivered", r2)
	}
	if h.engine.LastSync() == nil {
		t.Error("LastSync() should be set after a completed drain")
	}
}

// =====================================================
// Event Tests
// =====================================================

func TestSetEventHandler(t *testing.T) {
	h := newHarness(t, true)
	h.queueVisits(t, "A")

	var events []EventType
	h.engine.SetEventHandler(SyncEventHandlerFunc(func(e SyncEvent) {
		events = append(events, e.Type)
	}))

	h.engine.Drain(context.Background())
	h.oracle.Set(false)
	h.engine.SubmitLocation(context.Background(), testLocation(19))
	h.engine.Drain(context.Background())

	want := []EventType{EventDrainStarted, EventDrainCompleted, EventRecordQueued, EventDrainSkipped}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}
