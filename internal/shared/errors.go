package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden indicates the actor may not view or act on the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrPreconditionNotMet indicates a workflow guard rejected the action.
	ErrPreconditionNotMet = errors.New("precondition not met")
	// ErrBackingService indicates the store or an upstream service failed.
	ErrBackingService = errors.New("backing service failure")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the request cannot be honoured in the current state.
	ErrConflict = errors.New("conflict")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
