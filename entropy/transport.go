package entropy

import "time"

// Transport is the raw byte channel to a TL device. Implementations exist for
// bulk USB (tlusb), USB-CDC serial bridges (tlserial), and an in-memory
// simulated device (tlsim).
//
// The device delivers response data in chunks of MaxPacketSize bytes where
// the first byte of every chunk is a framing byte, not payload; the protocol
// handler discards it. A single ReceiveBytes transfer never legitimately
// exceeds BufferCapacity bytes.
type Transport interface {
	// SendBytes writes a command to the device's outbound channel and
	// returns the number of bytes actually transferred.
	SendBytes(buf []byte) (int, error)

	// ReceiveBytes reads one inbound transfer into buf, blocking at most
	// timeout, and returns the number of bytes transferred.
	ReceiveBytes(buf []byte, timeout time.Duration) (int, error)

	// MaxPacketSize returns the negotiated lower-level chunk size.
	MaxPacketSize() int

	// BufferCapacity returns the device-declared maximum transfer size.
	// A transfer reporting more than this is a fatal framing error.
	BufferCapacity() int

	// Ready reports whether the noise source is attached and usable.
	Ready() bool

	// Close releases the underlying channel.
	Close() error
}
