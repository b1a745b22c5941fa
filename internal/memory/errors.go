package memory

import "errors"

var (
	// ErrNotFound is returned by point reads and updates against an id
	// that does not exist. Callers treat it as a normal outcome.
	ErrNotFound = errors.New("memory not found")

	// ErrProviderUnavailable marks a transient failure of an external
	// capability (embedding, gate or extract model). It is retryable and
	// must never be persisted as store state.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrMalformedCandidate marks an extracted candidate missing required
	// fields. The candidate is dropped; its siblings proceed.
	ErrMalformedCandidate = errors.New("malformed candidate")
)
