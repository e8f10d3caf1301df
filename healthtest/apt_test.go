package healthtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdaptiveProportion_StartsUnknown(t *testing.T) {
	apt := NewAdaptiveProportion(0, 0, 0)
	assert.Equal(t, StatusUnknown, apt.Status())
	assert.Equal(t, byte(0), apt.Signature())

	apt.Sample(0x42)
	assert.Equal(t, StatusPass, apt.Status())
}

func TestAdaptiveProportion_ConstantStreamFails(t *testing.T) {
	apt := NewAdaptiveProportion(64, 5, 5)

	for i := 0; i < 64; i++ {
		apt.Sample(0x5A)
	}
	assert.Equal(t, StatusFail, apt.Status())
	assert.Equal(t, SignatureAdaptiveProportion, apt.Signature())
}

func TestAdaptiveProportion_CyclingStreamPasses(t *testing.T) {
	apt := NewAdaptiveProportion(64, 5, 5)

	// Cycling through all byte values: any window reference recurs far
	// less often than the cutoff.
	for i := 0; i < 4096; i++ {
		apt.Sample(byte(i))
	}
	assert.Equal(t, StatusPass, apt.Status())
	assert.Equal(t, byte(0), apt.Signature())
}

// One cutoff excess per window, repeated across failThreshold windows, must
// accumulate into a sticky failure even though no single window fails alone.
func TestAdaptiveProportion_DetectionsAccumulateAcrossWindows(t *testing.T) {
	const (
		window = 64
		cutoff = 5
		thresh = 5
	)
	apt := NewAdaptiveProportion(window, cutoff, thresh)

	feedWindow := func(ref byte) {
		apt.Sample(ref) // becomes the window reference
		// cutoff+1 recurrences: exactly one detection in this window.
		for i := 0; i < cutoff+1; i++ {
			apt.Sample(ref)
		}
		// Fill the rest of the window with non-matching values.
		for i := 0; i < window-(cutoff+1); i++ {
			apt.Sample(ref + 1 + byte(i%16))
		}
	}

	for w := 0; w < thresh-1; w++ {
		feedWindow(0x10)
	}
	assert.Equal(t, StatusPass, apt.Status(), "below the window failure threshold")

	feedWindow(0x10)
	assert.Equal(t, StatusFail, apt.Status())
}

func TestAdaptiveProportion_WindowReArmsWithNewReference(t *testing.T) {
	apt := NewAdaptiveProportion(8, 5, 5)

	// First window: reference 0xAA, no recurrences.
	apt.Sample(0xAA)
	for i := 0; i < 8; i++ {
		apt.Sample(byte(i))
	}
	// The window filled; the next sample starts a new window and becomes
	// its reference, so recurrences of the OLD reference no longer match.
	apt.Sample(0xBB)
	for i := 0; i < 7; i++ {
		apt.Sample(0xAA)
	}
	assert.Equal(t, StatusPass, apt.Status(), "old reference must not match after re-arm")
}

func TestAdaptiveProportion_RestartClearsDetectionsNotFailure(t *testing.T) {
	apt := NewAdaptiveProportion(64, 5, 5)

	// Four detections, then restart: accumulated detections must clear.
	apt.Sample(0x33)
	for i := 0; i < 4*6; i++ {
		apt.Sample(0x33)
	}
	assert.Equal(t, StatusPass, apt.Status())
	apt.Restart()
	apt.Sample(0x33)
	for i := 0; i < 4*6; i++ {
		apt.Sample(0x33)
	}
	assert.Equal(t, StatusPass, apt.Status(), "restart must clear accumulated detections")

	// Latch a failure and confirm stickiness.
	for i := 0; i < 64; i++ {
		apt.Sample(0x33)
	}
	assert.Equal(t, StatusFail, apt.Status())
	apt.Restart()
	assert.Equal(t, StatusFail, apt.Status(), "failure status is sticky across restarts")

	apt.Reset()
	assert.Equal(t, StatusUnknown, apt.Status())
}
