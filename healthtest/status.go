package healthtest

// Status is the tri-state outcome of a monitor. A monitor starts Unknown,
// moves to Pass on its first sample, and latches Fail on the first detected
// anomaly. Fail is sticky: it survives per-refill restarts and only an
// explicit Reset returns the monitor to Unknown.
type Status int8

const (
	// StatusUnknown means the monitor has not observed a sample yet.
	StatusUnknown Status = iota
	// StatusPass means samples have been observed and no anomaly detected.
	StatusPass
	// StatusFail means an anomaly was detected; the status is sticky.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusPass:
		return "pass"
	case StatusFail:
		return "fail"
	default:
		return "invalid"
	}
}

// Signature codes identifying which monitor failed, reported alongside a
// sticky failure.
const (
	SignatureRepetitionCount    byte = 1
	SignatureAdaptiveProportion byte = 2
)
