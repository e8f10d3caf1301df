package healthtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepetitionCount_StartsUnknown(t *testing.T) {
	rct := NewRepetitionCount(0, 0)
	assert.Equal(t, StatusUnknown, rct.Status())
	assert.Equal(t, byte(0), rct.Signature())

	rct.Sample(0x42)
	assert.Equal(t, StatusPass, rct.Status())
}

func TestRepetitionCount_LongRunFails(t *testing.T) {
	rct := NewRepetitionCount(5, 5)

	// A run of maxRepetitions*failThreshold identical bytes must latch Fail.
	for i := 0; i < 5*5; i++ {
		rct.Sample(0x77)
	}
	assert.Equal(t, StatusFail, rct.Status())
	assert.Equal(t, SignatureRepetitionCount, rct.Signature())
}

func TestRepetitionCount_ShortRunsPass(t *testing.T) {
	rct := NewRepetitionCount(5, 5)

	// Runs of length maxRepetitions-1 never count a detection.
	for i := 0; i < 1000; i++ {
		v := byte(i / 4) // runs of exactly 4
		rct.Sample(v)
	}
	assert.Equal(t, StatusPass, rct.Status())
	assert.Equal(t, byte(0), rct.Signature())
}

func TestRepetitionCount_DetectionsAccumulateAcrossRuns(t *testing.T) {
	rct := NewRepetitionCount(5, 5)

	// Four detections, interleaved with differing bytes so no single run
	// carries the failure on its own.
	for d := 0; d < 4; d++ {
		for i := 0; i < 5; i++ {
			rct.Sample(0xAA)
		}
		rct.Sample(byte(d)) // break the run
	}
	assert.Equal(t, StatusPass, rct.Status(), "four detections stay below the threshold")

	for i := 0; i < 5; i++ {
		rct.Sample(0xAA)
	}
	assert.Equal(t, StatusFail, rct.Status(), "fifth detection latches failure")
}

func TestRepetitionCount_RestartClearsDetectionsNotFailure(t *testing.T) {
	rct := NewRepetitionCount(5, 5)

	// Accumulate four detections, then restart: the counter must clear.
	for i := 0; i < 4*5; i++ {
		rct.Sample(0x11)
	}
	assert.Equal(t, StatusPass, rct.Status())
	rct.Restart()
	for i := 0; i < 4*5; i++ {
		rct.Sample(0x11)
	}
	assert.Equal(t, StatusPass, rct.Status(), "restart must clear accumulated detections")

	// Latch a failure, then confirm restart does not clear it.
	for i := 0; i < 5*5; i++ {
		rct.Sample(0x11)
	}
	assert.Equal(t, StatusFail, rct.Status())
	rct.Restart()
	assert.Equal(t, StatusFail, rct.Status(), "failure status is sticky across restarts")

	rct.Reset()
	assert.Equal(t, StatusUnknown, rct.Status(), "explicit reset drops the sticky failure")
}
