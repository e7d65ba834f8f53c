// Package handlers provides REST API handlers for submitting field records
// and driving the sync scheduler.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/models"
	syncpkg "github.com/kimhsiao/fieldsync/internal/sync"
	"github.com/kimhsiao/fieldsync/internal/sync/queue"
	"github.com/kimhsiao/fieldsync/internal/sync/scheduler"
)

// maxBodyBytes caps a submitted record.
const maxBodyBytes = 1 << 20

// Submitter delivers or queues records. *syncpkg.SyncEngine implements it.
type Submitter interface {
	SubmitOrQueue(ctx context.Context, payload models.Payload) (syncpkg.SubmitOutcome, error)
	PendingCounts(ctx context.Context) (queue.Counts, error)
}

// SyncRunner runs drains on demand. *scheduler.Scheduler implements it.
type SyncRunner interface {
	SyncNow(ctx context.Context) (*syncpkg.DrainResult, error)
	GetStatus() scheduler.SchedulerStatus
	RefreshPending(ctx context.Context)
}

// SyncHandler handles record submission and sync operations.
type SyncHandler struct {
	submitter Submitter
	runner    SyncRunner
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(submitter Submitter, runner SyncRunner) *SyncHandler {
	return &SyncHandler{
		submitter: submitter,
		runner:    runner,
	}
}

// =====================================================
// Status Endpoints
// =====================================================

// Health handles GET /api/health
func (h *SyncHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "fieldsync-desktop",
	})
}

// GetStatus handles GET /api/status
// Returns the scheduler snapshot: connectivity, in-flight drain, last result
// and pending counts.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.runner.GetStatus())
}

// GetPending handles GET /api/pending
func (h *SyncHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	counts, err := h.submitter.PendingCounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"visits":    counts.Visits,
		"locations": counts.Locations,
		"total":     counts.Total(),
	})
}

// =====================================================
// Sync Trigger Endpoint
// =====================================================

// TriggerSync handles POST /api/sync
// Drains both queues and returns the result. Answers 409 while another
// drain is running.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.runner.SyncNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =====================================================
// Record Submission Endpoints
// =====================================================

// CreateVisit handles POST /api/visits
func (h *SyncHandler) CreateVisit(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.KindVisit)
}

// CreateLocation handles POST /api/locations
func (h *SyncHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.KindLocation)
}

// submit answers 201 when the backend took the record and 202 when it was
// queued for a later drain.
func (h *SyncHandler) submit(w http.ResponseWriter, r *http.Request, kind models.Kind) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "failed to read request body", err))
		return
	}

	payload, err := models.DecodePayload(kind, body)
	if err != nil {
		writeError(w, errors.Wrap(errors.ErrValidation, "invalid "+string(kind), err))
		return
	}

	outcome, err := h.submitter.SubmitOrQueue(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	if outcome.Status == syncpkg.Queued {
		h.runner.RefreshPending(r.Context())
		writeJSON(w, http.StatusAccepted, outcome)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

// =====================================================
// Response Helpers
// =====================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", err, nil)
	}
}

// writeError maps an error code to an HTTP status and writes it as JSON.
func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithCode("Request failed", string(code), err, nil)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	})
}

func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalid, errors.ErrValidation:
		return http.StatusBadRequest
	case errors.ErrUnauthenticated:
		return http.StatusUnauthorized
	case errors.ErrSyncInProgress:
		return http.StatusConflict
	case errors.ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
