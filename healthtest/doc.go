// Package healthtest provides the two online statistical monitors that watch
// the conditioned byte stream for hardware failure or stuck-at behavior: the
// Repetition Count Test and the Adaptive Proportion Test. Both tolerate a
// bounded number of detections and then latch a sticky failure status; a set
// status never clears on its own and must be dropped with an explicit Reset.
package healthtest
