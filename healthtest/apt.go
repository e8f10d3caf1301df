package healthtest

// Adaptive proportion defaults, matching the device driver's tuning.
const (
	DefaultWindowSize  = 64
	DefaultCutoffValue = 5
)

// AdaptiveProportion detects a byte value occurring far more often than a
// uniform source allows. The first sample of each window becomes the window's
// reference value; within the window every recurrence of the reference bumps
// a match counter, and each time the counter exceeds the cutoff it records a
// detection and restarts the match count for a new sub-cycle. Detections
// accumulate until they reach the failure threshold, which latches Fail.
// When the window fills, the monitor re-arms on the next sample with a fresh
// reference value.
//
// Not safe for concurrent use.
type AdaptiveProportion struct {
	windowSize    int
	cutoff        int
	failThreshold int

	initialized bool
	reference   byte
	samples     int
	matches     int
	failures    int
	status      Status
}

// NewAdaptiveProportion returns a restarted monitor. Non-positive parameters
// fall back to the defaults.
func NewAdaptiveProportion(windowSize, cutoff, failThreshold int) *AdaptiveProportion {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if cutoff <= 0 {
		cutoff = DefaultCutoffValue
	}
	if failThreshold <= 0 {
		failThreshold = DefaultFailThreshold
	}
	t := &AdaptiveProportion{windowSize: windowSize, cutoff: cutoff, failThreshold: failThreshold}
	t.Restart()
	return t
}

// Sample feeds one conditioned byte to the monitor.
func (t *AdaptiveProportion) Sample(value byte) {
	if t.status == StatusUnknown {
		t.status = StatusPass
	}
	if !t.initialized {
		t.initialized = true
		t.reference = value
		t.samples = 0
		t.matches = 0
		return
	}
	t.samples++
	if t.samples >= t.windowSize {
		// Window is full; re-arm with a new reference on the next sample.
		t.initialized = false
	}
	if value != t.reference {
		return
	}
	t.matches++
	if t.matches > t.cutoff {
		t.matches = 0
		t.failures++
		if t.failures >= t.failThreshold {
			t.status = StatusFail
		}
	}
}

// Restart re-arms the window and clears the detection count. Unlike the
// repetition count monitor this runs once at pipeline start, not per refill:
// the window re-arms itself as it fills. A sticky Fail status is NOT cleared.
func (t *AdaptiveProportion) Restart() {
	t.initialized = false
	t.failures = 0
}

// Reset returns the monitor to its initial Unknown state, dropping a sticky
// failure. Intended for explicit operator intervention only.
func (t *AdaptiveProportion) Reset() {
	t.Restart()
	t.status = StatusUnknown
}

// Status returns the monitor's tri-state outcome.
func (t *AdaptiveProportion) Status() Status {
	return t.status
}

// Signature returns the monitor's failure code, or 0 while healthy.
func (t *AdaptiveProportion) Signature() byte {
	if t.status == StatusFail {
		return SignatureAdaptiveProportion
	}
	return 0
}
