package model

import "errors"

// Failure categories surfaced by the delivery core. Callers match them with errors.Is.
var (
	// ErrInvalidInput rejects a malformed request before any side effect.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTarget means the addressed user or group does not exist.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrUnauthorized means the caller is not a party to the conversation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPersistence means the durable store did not commit; the caller retries.
	ErrPersistence = errors.New("persistence failure")
	// ErrCache is logged and swallowed; it never reaches a caller.
	ErrCache = errors.New("cache failure")
	// ErrDelivery marks a single unreachable session during fan-out.
	ErrDelivery = errors.New("delivery failure")

	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// ErrorCode maps an error to the stable code relayed to clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrInvalidTarget):
		return "INVALID_TARGET"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrPersistence):
		return "PERSISTENCE_ERROR"
	default:
		return "INTERNAL"
	}
}
