package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected before any state change.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration means the AI boundary cannot be used at all, e.g. a
	// missing credential.
	ErrConfiguration = errors.New("configuration error")
	// ErrUpstream means the generation call itself failed.
	ErrUpstream = errors.New("upstream error")
	// ErrPersistenceWrite wraps failures of best-effort writes.
	ErrPersistenceWrite = errors.New("persistence write error")
	// ErrNotFound is returned by repositories for unknown ids.
	ErrNotFound = errors.New("not found")
	// ErrBusy rejects a turn while another one is in flight.
	ErrBusy = errors.New("a chat turn is already in flight")

	ErrEmptyMessage        = fmt.Errorf("%w: user message is required", ErrValidation)
	ErrUnknownConversation = fmt.Errorf("%w: unknown conversation", ErrValidation)
)

// LoadError reports a failed initial load. The store keeps its previous state.
type LoadError struct {
	UserID string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load state for user %s: %v", e.UserID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrorKind labels a boundary failure for logging.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "unknown"
	}
}
