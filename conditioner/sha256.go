package conditioner

import (
	"errors"
	"math/bits"
)

// ErrInvalidLength is returned when a hash or conditioning input has a
// non-positive or misaligned length.
var ErrInvalidLength = errors.New("conditioner: invalid input length")

// blockWords is the SHA-256 block size in 32-bit words (512 bits).
const blockWords = 16

// initState holds the FIPS 180-4 section 5.3.3 initial hash values.
var initState = [8]uint32{
	0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a,
	0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19,
}

// roundK holds the FIPS 180-4 section 4.2.2 round constants.
var roundK = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5, 0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3, 0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc, 0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7, 0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13, 0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3, 0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5, 0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208, 0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

// digest is the working state for one hash computation: the eight-word
// running state plus the 64-word message schedule. It is a scratch area
// reused across calls; hashWords fully overwrites it on entry so no state
// leaks between logically independent inputs.
type digest struct {
	h [8]uint32
	w [64]uint32
}

// hashWords computes the SHA-256 digest of a message given as a sequence of
// 32-bit words, leaving the result in d.h. The state is reinitialized fresh
// on every call; consecutive calls are independent, not chained.
//
// Padding follows the standard convention: a single set bit after the
// message, zero fill, and the original bit length in the final two words. If
// the padding does not fit in the last block, an additional block is used.
func (d *digest) hashWords(src []uint32) error {
	if len(src) == 0 {
		return ErrInvalidLength
	}
	d.h = initState
	bitLen := uint64(len(src)) * 32

	i := 0
	for ; i+blockWords <= len(src); i += blockWords {
		copy(d.w[:blockWords], src[i:i+blockWords])
		d.compress()
	}

	var blk [blockWords]uint32
	rem := copy(blk[:], src[i:])
	blk[rem] = 0x80000000
	if rem+1 > blockWords-2 {
		// No room for the length suffix; close this block and pad a
		// fresh all-zero block with the length.
		copy(d.w[:blockWords], blk[:])
		d.compress()
		blk = [blockWords]uint32{}
	}
	blk[blockWords-2] = uint32(bitLen >> 32)
	blk[blockWords-1] = uint32(bitLen)
	copy(d.w[:blockWords], blk[:])
	d.compress()
	return nil
}

// compress runs the 64-round compression function over the block currently
// loaded in d.w[0:16], folding the result into d.h.
func (d *digest) compress() {
	for t := 16; t < 64; t++ {
		d.w[t] = sigma1(d.w[t-2]) + d.w[t-7] + sigma0(d.w[t-15]) + d.w[t-16]
	}

	a, b, c, dd := d.h[0], d.h[1], d.h[2], d.h[3]
	e, f, g, h := d.h[4], d.h[5], d.h[6], d.h[7]

	for t := 0; t < 64; t++ {
		t1 := h + sum1(e) + ch(e, f, g) + roundK[t] + d.w[t]
		t2 := sum0(a) + maj(a, b, c)
		h = g
		g = f
		f = e
		e = dd + t1
		dd = c
		c = b
		b = a
		a = t1 + t2
	}

	d.h[0] += a
	d.h[1] += b
	d.h[2] += c
	d.h[3] += dd
	d.h[4] += e
	d.h[5] += f
	d.h[6] += g
	d.h[7] += h
}

// FIPS 180-4 section 4.1.2 formulas (4.2) through (4.7).

func ch(x, y, z uint32) uint32 {
	return (x & y) ^ (^x & z)
}

func maj(x, y, z uint32) uint32 {
	return (x & y) ^ (x & z) ^ (y & z)
}

func sum0(x uint32) uint32 {
	return bits.RotateLeft32(x, -2) ^ bits.RotateLeft32(x, -13) ^ bits.RotateLeft32(x, -22)
}

func sum1(x uint32) uint32 {
	return bits.RotateLeft32(x, -6) ^ bits.RotateLeft32(x, -11) ^ bits.RotateLeft32(x, -25)
}

func sigma0(x uint32) uint32 {
	return bits.RotateLeft32(x, -7) ^ bits.RotateLeft32(x, -18) ^ (x >> 3)
}

func sigma1(x uint32) uint32 {
	return bits.RotateLeft32(x, -17) ^ bits.RotateLeft32(x, -19) ^ (x >> 10)
}
