package conditioner

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// WordSize is the size of a hash input word in bytes.
	WordSize = 4
	// GroupWords is the number of raw 32-bit words consumed per hash
	// invocation, before the serial word is appended.
	GroupWords = 8
	// GroupBytes is the raw byte span of one hash input group.
	GroupBytes = GroupWords * WordSize
	// OutputBytes is the number of conditioned bytes produced per group
	// (the full 8-word digest).
	OutputBytes = 8 * WordSize
)

// ErrSelfTest is returned when the startup known-answer test fails.
var ErrSelfTest = errors.New("conditioner: self-test failed")

// Conditioner mixes raw noise-source blocks into uniformly distributed
// output. Each 8-word group is stamped with the next serial number and hashed
// independently; the serial counter increments once per group and is never
// reset for the life of the Conditioner (it wraps at 32 bits).
//
// The working state is a scratch area reused across calls. A Conditioner is
// not safe for concurrent use.
type Conditioner struct {
	serial uint32
	d      digest
	in     [GroupWords + 1]uint32
}

// New returns a Conditioner whose serial counter starts at seed. The seed
// should come from an external source of variation (the original device
// driver seeded it once at module load).
func New(seed uint32) *Conditioner {
	return &Conditioner{serial: seed}
}

// Serial returns the serial number that will be stamped on the next group.
func (c *Conditioner) Serial() uint32 {
	return c.serial
}

// OutputLen returns the conditioned output length for a raw block of n bytes.
func OutputLen(n int) int {
	return n / GroupBytes * OutputBytes
}

// Condition mixes raw into dst. len(raw) must be a positive multiple of
// GroupBytes and dst must hold OutputLen(len(raw)) bytes. Raw bytes are
// consumed as little-endian words; digest words are written back
// little-endian, matching the byte order the device driver produced on its
// target hardware.
func (c *Conditioner) Condition(raw, dst []byte) error {
	if len(raw) == 0 || len(raw)%GroupBytes != 0 {
		return fmt.Errorf("%w: raw block of %d bytes (need a positive multiple of %d)",
			ErrInvalidLength, len(raw), GroupBytes)
	}
	if len(dst) < OutputLen(len(raw)) {
		return fmt.Errorf("%w: output buffer of %d bytes (need %d)",
			ErrInvalidLength, len(dst), OutputLen(len(raw)))
	}

	out := 0
	for off := 0; off < len(raw); off += GroupBytes {
		for j := 0; j < GroupWords; j++ {
			c.in[j] = binary.LittleEndian.Uint32(raw[off+j*WordSize:])
		}
		c.in[GroupWords] = c.serial
		c.serial++

		if err := c.d.hashWords(c.in[:]); err != nil {
			return err
		}
		for _, h := range c.d.h {
			binary.LittleEndian.PutUint32(dst[out:], h)
			out += WordSize
		}
	}
	return nil
}

// Known-answer vector for SelfTest: an 11-word message and its expected
// digest. Reproducibility of this pair is the determinism guarantee the
// pipeline relies on at startup.
var (
	selfTestMsg = [11]uint32{
		0x00010203, 0x04050607, 0x08090a0b, 0x0c0d0e0f,
		0x10111213, 0x14151617, 0x18191a1b, 0x1c1d1e1f,
		0x20212223, 0x24252627, 0x28292a2b,
	}
	selfTestDigest = [8]uint32{
		0x17619ec4, 0x250ef65f, 0x083e2314, 0xef30af79,
		0x6b6f1198, 0xd0fddfbb, 0x0f272930, 0xbf9bb991,
	}
)

// SelfTest verifies the hash implementation against a known answer. It must
// pass before any conditioned bytes are handed out; a failure means the
// whitening logic is miscompiled or corrupted and the pipeline must not
// start.
func SelfTest() error {
	var d digest
	if err := d.hashWords(selfTestMsg[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrSelfTest, err)
	}
	if d.h != selfTestDigest {
		return ErrSelfTest
	}
	return nil
}
