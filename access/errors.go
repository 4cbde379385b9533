package access

import "errors"

var (
	// ErrNotFound means a referenced user, project, team or ticket does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized means the request carries no valid session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the session is valid but lacks role or membership.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict means a membership for the same entity and user already exists.
	ErrConflict = errors.New("already exists")
)

// ErrInvalidInput wraps request validation failures.
var ErrInvalidInput = errors.New("invalid input")
