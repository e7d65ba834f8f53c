//go:build cgo

package main

/*
#cgo CFLAGS: -Wall -Wextra
#include <stdlib.h>
*/
import "C"
import (
	"sync"
	"unsafe"

	"github.com/kimhsiao/fieldsync/internal/models"
)

var (
	lastErr string
	lastMu  sync.RWMutex
)

func setLastError(err error) {
	lastMu.Lock()
	defer lastMu.Unlock()
	if err == nil {
		lastErr = ""
		return
	}
	lastErr = err.Error()
}

// result converts a JSON result to a C string, or records err and returns nil.
func result(s string, err error) *C.char {
	setLastError(err)
	if err != nil {
		return nil
	}
	return C.CString(s)
}

// status returns 0 on success and -1 after recording err.
func status(err error) C.int {
	setLastError(err)
	if err != nil {
		return -1
	}
	return 0
}

//export Init
// Init starts the core with a JSON (or YAML) config. Returns 0 on success.
func Init(configJSON *C.char) C.int {
	return status(core.init(C.GoString(configJSON)))
}

//export Cleanup
// Cleanup stops tracking and the scheduler and closes the pending store.
func Cleanup() C.int {
	return status(core.cleanup())
}

//export GetLastError
// GetLastError returns the last error message.
// Returns a C string that must be freed by the caller.
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()

	return C.CString(lastErr)
}

// =====================================================
// Connectivity
// =====================================================

//export SetOnline
// SetOnline reports the OS connectivity state. Going online triggers a drain.
func SetOnline(online C.int) C.int {
	return status(core.setOnline(online != 0))
}

// =====================================================
// Record Submission and Sync
// =====================================================

//export SubmitVisit
// SubmitVisit sends a visit or queues it.
// Returns the outcome JSON that must be freed by the caller.
func SubmitVisit(visitJSON *C.char) *C.char {
	return result(core.submit(models.KindVisit, C.GoString(visitJSON)))
}

//export SubmitLocation
// SubmitLocation sends a location log or queues it.
// Returns the outcome JSON that must be freed by the caller.
func SubmitLocation(locationJSON *C.char) *C.char {
	return result(core.submit(models.KindLocation, C.GoString(locationJSON)))
}

//export SyncNow
// SyncNow drains both pending queues and returns the result JSON.
func SyncNow() *C.char {
	return result(core.syncNow())
}

//export PendingCounts
// PendingCounts returns {"visits":n,"locations":n}.
func PendingCounts() *C.char {
	return result(core.pendingCounts())
}

// =====================================================
// Location Tracking
// =====================================================

//export SetPermissions
// SetPermissions records the OS permission answers ("granted", "denied",
// "undetermined").
func SetPermissions(foreground, background *C.char) C.int {
	return status(core.setPermissions(C.GoString(foreground), C.GoString(background)))
}

//export SetBackgroundAvailable
// SetBackgroundAvailable says whether the host can run background updates.
func SetBackgroundAvailable(available C.int) C.int {
	return status(core.setBackgroundAvailable(available != 0))
}

//export TrackingStart
// TrackingStart starts the location sampler and returns its state JSON.
func TrackingStart() *C.char {
	return result(core.trackingStart())
}

//export TrackingStop
// TrackingStop stops the location sampler and returns its state JSON.
func TrackingStop() *C.char {
	return result(core.trackingStop())
}

//export TrackingState
// TrackingState returns the sampler state JSON.
func TrackingState() *C.char {
	return result(core.trackingState())
}

//export DeliverFixes
// DeliverFixes forwards a JSON array of background fixes. Returns 1 if a
// background registration consumed them, 0 if none is active, -1 on error.
func DeliverFixes(fixesJSON *C.char) C.int {
	delivered, err := core.deliverFixes(C.GoString(fixesJSON))
	setLastError(err)
	switch {
	case err != nil:
		return -1
	case delivered:
		return 1
	default:
		return 0
	}
}

//export UpdateCurrentFix
// UpdateCurrentFix sets the fix returned for one-shot foreground reads.
func UpdateCurrentFix(fixJSON *C.char) C.int {
	return status(core.updateCurrentFix(C.GoString(fixJSON)))
}

//export FreeString
// FreeString frees a string allocated by Go.
func FreeString(ptr *C.char) {
	C.free(unsafe.Pointer(ptr))
}
