// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/fabtrack/fabtrack/internal/shared"
)

// ErrUnauthorized is returned when no principal is attached to the request.
var ErrUnauthorized = errors.New("unauthorized")

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, shared.ErrPreconditionNotMet):
		return http.StatusConflict, "Precondition Not Met"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, shared.ErrCSRFTokenMissing), errors.Is(err, shared.ErrCSRFTokenMismatch):
		return http.StatusForbidden, "Invalid CSRF Token"
	case errors.Is(err, shared.ErrBackingService):
		return http.StatusServiceUnavailable, "Service Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// StatusFor reports the HTTP status RespondError would send for err.
func StatusFor(err error) int {
	status, _ := classify(err)
	return status
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := classify(err)
	detail := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		detail = "backing service unavailable, try again"
	case http.StatusInternalServerError:
		detail = ""
	}
	Problem(w, status, title, detail)
}
