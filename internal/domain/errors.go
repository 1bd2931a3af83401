package domain

import "errors"

// Error taxonomy for the core. Handlers map these to HTTP status codes;
// storage errors are surfaced verbatim (wrapped) and never retried here.
var (
	// ErrValidation: malformed or missing required input.
	ErrValidation = errors.New("validation error")

	// ErrInvalidCondition: unknown field, disallowed operator, bad value type
	// or a missing connective between two conditions.
	ErrInvalidCondition = errors.New("invalid condition")

	// ErrNotFound: segment, customer or log entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable: persistence unreachable, timed out, or schema missing.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDispatchIntegrity: log/receipt correlation could not be established
	// atomically. Fatal to the dispatch call; the batch is rolled back.
	ErrDispatchIntegrity = errors.New("dispatch integrity violation")
)
