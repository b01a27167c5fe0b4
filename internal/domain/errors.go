package domain

import "errors"

// Error kinds for the evaluation engine. Callers classify failures with
// errors.Is; the API layer maps each kind to an HTTP status.
var (
	// ErrValidation marks missing or malformed input. No side effects
	// have been performed when this is returned.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound marks a reference to a nonexistent transaction or rule.
	ErrNotFound = errors.New("record not found")

	// ErrProvider marks a score provider failure (unavailable, timeout,
	// malformed response). Never coerced into a verdict; the caller
	// chooses the fallback policy.
	ErrProvider = errors.New("score provider failure")

	// ErrPersistence marks a failed decision or report write. The
	// in-memory verdict may still be returned, flagged as non-durable.
	ErrPersistence = errors.New("persistence failure")
)
