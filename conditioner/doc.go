// Package conditioner implements the cryptographic whitening stage of the
// TL100/TL200 entropy pipeline. Raw device noise is mixed through a
// from-scratch SHA-256 compression function in fixed 8-word groups, with a
// monotonically increasing serial word appended to every group so that no two
// hash invocations ever see identical input, even if the raw source repeats.
package conditioner
