package shared

import "errors"

var (
	// ErrNotFound indicates a referenced entity is missing.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a business-rule conflict, distinct from a denied action.
	ErrConflict = errors.New("conflict")
	// ErrAccessDenied indicates an authorization precondition failed.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidStatus indicates a state transition not permitted from the current status.
	ErrInvalidStatus = errors.New("invalid status transition")
	// ErrNotImplemented marks features intentionally left unimplemented.
	ErrNotImplemented = errors.New("not implemented")
)

// ErrValidation indicates malformed or rule-violating input.
var ErrValidation = errors.New("validation failed")
