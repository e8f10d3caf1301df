package entropy

import "errors"

// The pipeline's error taxonomy. Every error returned by this package wraps
// exactly one of these sentinels; match with errors.Is.
var (
	// ErrNoSource means the device is absent, torn down, or the pipeline
	// is shutting down. Not retried; surfaced immediately.
	ErrNoSource = errors.New("no data source available")

	// ErrFault means a malformed protocol response, an oversized transfer,
	// or a sticky health-test failure. Not retried; the triggering buffer
	// is discarded and never released.
	ErrFault = errors.New("device fault")

	// ErrTimeout means the bounded retry or time budget was exhausted.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidParameter means programming-level misuse of the pipeline.
	ErrInvalidParameter = errors.New("invalid parameter")
)
