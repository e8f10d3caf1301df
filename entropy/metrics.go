package entropy

import "sync/atomic"

// Metrics contains atomic counters for a pipeline. Fields are safe to read
// concurrently and can back a prometheus CounterFunc or similar without any
// extra locking.
type Metrics struct {
	// FetchAttempts counts transport command round-trips, including retries.
	FetchAttempts atomic.Uint64
	// FetchRetries counts failed attempts that were retried.
	FetchRetries atomic.Uint64
	// Refills counts completed refill cycles released to consumers.
	Refills atomic.Uint64
	// HealthFailures counts refills discarded by a health-test failure.
	HealthFailures atomic.Uint64
	// BytesRead counts conditioned bytes copied out to callers.
	BytesRead atomic.Uint64
}
