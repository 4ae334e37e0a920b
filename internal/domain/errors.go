package domain

import "errors"

// Error classes shared by every stage. Adapters wrap one of these so callers
// can decide between retrying, skipping a unit, or aborting with errors.Is.
var (
	// ErrConnection covers unreachable endpoints, non-2xx responses and
	// service-level error bodies. Retried with backoff.
	ErrConnection = errors.New("connection failure")

	// ErrValidation means a response or file is missing expected fields.
	// Never retried.
	ErrValidation = errors.New("validation failure")

	// ErrProcessing means a payload could not be turned into a table.
	ErrProcessing = errors.New("processing failure")

	// ErrPersistence means an output could not be written.
	ErrPersistence = errors.New("persistence failure")
)
