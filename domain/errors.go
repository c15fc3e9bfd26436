package domain

import "errors"

var (
	// ErrInvalidInput is returned for client-correctable request problems.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized indicates the request carried no usable identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when a task or subtask is absent or owned by
	// another user.
	ErrNotFound = errors.New("not found")
	// ErrCompletionUnavailable means the completion service errored, timed
	// out or produced no content.
	ErrCompletionUnavailable = errors.New("completion unavailable")
	// ErrBreakdownParse means the generated text could not be turned into a
	// usable breakdown.
	ErrBreakdownParse = errors.New("breakdown parse error")
	// ErrPersistence wraps any storage failure.
	ErrPersistence = errors.New("persistence error")
)

// errInvalidBreakdown is the internal validation failure for model output.
// It never reaches a caller unwrapped; Interpret converts it.
var errInvalidBreakdown = errors.New("invalid breakdown")

// InputError carries a client-facing message and matches ErrInvalidInput.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

// Is reports ErrInvalidInput so callers can use errors.Is.
func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }
