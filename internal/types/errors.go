package types

import "errors"

// Sentinel errors shared across the store, services, and handlers.
// Handlers map these onto HTTP statuses; webhook rejections additionally
// carry a machine-readable reason code so senders can tell a validation
// rejection from a transport failure.
var (
	// ErrNotFound indicates an unknown job or render identifier
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation that is not legal for the
	// job's current status
	ErrInvalidState = errors.New("invalid state for operation")
	// ErrStoreUnavailable indicates a transient store failure; read paths
	// degrade to cache, write paths surface it to the caller
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrOutOfOrderSequence indicates a step callback older than one
	// already applied
	ErrOutOfOrderSequence = errors.New("sequence older than last applied")
	// ErrBackwardProgression indicates a step start below the current step
	ErrBackwardProgression = errors.New("step number behind current step")
	// ErrQueuePaused indicates dequeuing is administratively paused
	ErrQueuePaused = errors.New("queue is paused")
)

// Webhook rejection reason codes, returned with success:false responses.
const (
	ReasonSequenceValidation = "sequence_validation_failed"
	ReasonStepProgression    = "step_progression_validation_failed"
)

// RejectReason maps a validation error to its webhook reason code.
// Returns the empty string for errors with no code.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrOutOfOrderSequence):
		return ReasonSequenceValidation
	case errors.Is(err, ErrBackwardProgression):
		return ReasonStepProgression
	default:
		return ""
	}
}
