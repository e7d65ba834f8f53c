package gateway

import (
	stderrors "errors"
	"fmt"
	"net/http"

	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
)

// ErrNoToken is returned by a TokenSource when no user is signed in.
var ErrNoToken = stderrors.New("no access token")

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	StatusCode      int
	Message         string
	ExistingVisitID string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// classify maps a backend status to an error code. Only create-visit has a
// duplicate signal, and only when the 409 names the existing visit; any
// other 409 is a plain rejection.
func classify(se *StatusError, conflictAware bool) *apperrors.AppError {
	switch {
	case se.StatusCode == http.StatusConflict && conflictAware && se.ExistingVisitID != "":
		return apperrors.Wrap(apperrors.ErrGatewayConflict, "equivalent entity already exists", se)
	case se.StatusCode == http.StatusUnauthorized:
		return apperrors.Wrap(apperrors.ErrUnauthenticated, "backend refused credentials", se)
	case se.StatusCode == http.StatusRequestTimeout || se.StatusCode == http.StatusTooManyRequests:
		return apperrors.Wrap(apperrors.ErrGatewayUnavailable, "backend asked to retry", se)
	case se.StatusCode >= 400 && se.StatusCode < 500:
		return apperrors.Wrap(apperrors.ErrGatewayRejected, "backend rejected request", se)
	default:
		return apperrors.Wrap(apperrors.ErrGatewayUnavailable, "backend unavailable", se)
	}
}

// ResponseError returns the classified error for a non-2xx response.
// conflictAware marks operations whose 409 means the entity already exists.
func ResponseError(se *StatusError, conflictAware bool) error {
	return classify(se, conflictAware)
}

// NetworkError wraps a transport failure as a transient gateway error.
func NetworkError(err error) error {
	return apperrors.Wrap(apperrors.ErrGatewayUnavailable, "backend unreachable", err)
}

// IsConflict reports whether err is a duplicate-entity response.
func IsConflict(err error) bool {
	return apperrors.Is(err, apperrors.ErrGatewayConflict)
}

// IsRejected reports whether the backend definitively refused the payload.
func IsRejected(err error) bool {
	return apperrors.Is(err, apperrors.ErrGatewayRejected)
}

// IsTransient reports whether err is a network, timeout or 5xx failure.
func IsTransient(err error) bool {
	return apperrors.Is(err, apperrors.ErrGatewayUnavailable)
}

// IsUnauthenticated reports whether the call failed for lack of credentials.
func IsUnauthenticated(err error) bool {
	return apperrors.Is(err, apperrors.ErrUnauthenticated)
}

// ExistingVisitID returns the id the backend reported for a duplicate visit.
func ExistingVisitID(err error) string {
	var se *StatusError
	if stderrors.As(err, &se) {
		return se.ExistingVisitID
	}
	return ""
}
