package models

import "errors"

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrAlreadyQueued      = errors.New("player already queued")
	ErrNotQueued          = errors.New("player not queued")
	ErrAccessDenied       = errors.New("access denied")
	ErrEntityNotFound     = errors.New("entity not found")
	ErrInvariantViolation = errors.New("invariant violation")
)

// ErrorCode maps an error from the taxonomy above to the code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrAlreadyQueued):
		return "ALREADY_REGISTERED"
	case errors.Is(err, ErrNotQueued):
		return "NOT_REGISTERED"
	case errors.Is(err, ErrAccessDenied):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrEntityNotFound):
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}
