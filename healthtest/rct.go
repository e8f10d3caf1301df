package healthtest

// Repetition count defaults, matching the device driver's tuning.
const (
	DefaultMaxRepetitions = 5
	// DefaultFailThreshold is the number of detections either monitor
	// tolerates before latching failure.
	DefaultFailThreshold = 5
)

// RepetitionCount detects a noise source stuck on a single value. It tracks
// the length of the current run of identical bytes; every time the run
// reaches maxRepetitions it counts a detection, and once detections reach the
// failure threshold the status latches Fail.
//
// Not safe for concurrent use.
type RepetitionCount struct {
	maxRepetitions int
	failThreshold  int

	initialized bool
	last        byte
	run         int
	failures    int
	status      Status
}

// NewRepetitionCount returns a restarted monitor. Non-positive parameters
// fall back to the defaults.
func NewRepetitionCount(maxRepetitions, failThreshold int) *RepetitionCount {
	if maxRepetitions <= 0 {
		maxRepetitions = DefaultMaxRepetitions
	}
	if failThreshold <= 0 {
		failThreshold = DefaultFailThreshold
	}
	t := &RepetitionCount{maxRepetitions: maxRepetitions, failThreshold: failThreshold}
	t.Restart()
	return t
}

// Sample feeds one conditioned byte to the monitor.
func (t *RepetitionCount) Sample(value byte) {
	if t.status == StatusUnknown {
		t.status = StatusPass
	}
	if !t.initialized {
		t.initialized = true
		t.last = value
		t.run = 1
		return
	}
	if value != t.last {
		t.last = value
		t.run = 1
		return
	}
	t.run++
	if t.run >= t.maxRepetitions {
		t.run = 1
		t.failures++
		if t.failures >= t.failThreshold {
			t.status = StatusFail
		}
	}
}

// Restart clears the run state and detection count at the start of a refill
// cycle. A sticky Fail status is NOT cleared.
func (t *RepetitionCount) Restart() {
	t.initialized = false
	t.run = 1
	t.failures = 0
}

// Reset returns the monitor to its initial Unknown state, dropping a sticky
// failure. Intended for explicit operator intervention only.
func (t *RepetitionCount) Reset() {
	t.Restart()
	t.status = StatusUnknown
}

// Status returns the monitor's tri-state outcome.
func (t *RepetitionCount) Status() Status {
	return t.status
}

// Signature returns the monitor's failure code, or 0 while healthy.
func (t *RepetitionCount) Signature() byte {
	if t.status == StatusFail {
		return SignatureRepetitionCount
	}
	return 0
}
