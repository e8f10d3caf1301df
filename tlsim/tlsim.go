// Package tlsim provides an in-memory simulated TL device honoring the exact
// wire protocol of the real hardware: a 3-byte command (marker byte plus a
// little-endian 16-bit length), a response of length+1 bytes with a trailing
// status byte, delivered in fixed-size chunks whose first byte is framing and
// not payload.
//
// It satisfies the entropy.Transport interface and backs the pipeline tests
// and the demo CLIs when no hardware is present.
package tlsim

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"
)

const (
	cmdMarker = 'x'
	frameByte = 0xA5

	// DefaultMaxPacketSize mirrors a full-speed bulk endpoint.
	DefaultMaxPacketSize = 64
	// DefaultBufferCapacity mirrors the device transfer buffer.
	DefaultBufferCapacity = 16384
)

// Device is a simulated TL noise source. Safe for use from one pipeline at a
// time, like the hardware it stands in for.
type Device struct {
	mu sync.Mutex

	maxPacket int
	bufCap    int
	status    byte
	noise     func([]byte)

	shortSends int // sends left to report one byte short
	dropResps  int // accepted commands left to answer with silence

	pending  []byte // framed response bytes not yet delivered
	commands int
	ready    bool
	closed   bool
}

// Option configures a simulated device.
type Option func(*Device)

// WithMaxPacketSize sets the lower-level chunk size.
func WithMaxPacketSize(n int) Option {
	return func(d *Device) { d.maxPacket = n }
}

// WithBufferCapacity sets the device-declared maximum transfer size.
func WithBufferCapacity(n int) Option {
	return func(d *Device) { d.bufCap = n }
}

// WithStatusByte sets the trailing status byte of every response. Any value
// other than zero makes the device look protocol-faulty to the pipeline.
func WithStatusByte(b byte) Option {
	return func(d *Device) { d.status = b }
}

// WithNoise replaces the raw noise source (default crypto/rand). The function
// must fill the whole slice; deterministic fills make pipeline behavior
// reproducible in tests.
func WithNoise(fill func([]byte)) Option {
	return func(d *Device) { d.noise = fill }
}

// WithShortSends makes the first n commands transfer one byte fewer than
// requested, exercising the protocol handler's send-retry path.
func WithShortSends(n int) Option {
	return func(d *Device) { d.shortSends = n }
}

// WithDropResponses makes the device swallow the first n commands without
// answering, exercising the receive-timeout retry path.
func WithDropResponses(n int) Option {
	return func(d *Device) { d.dropResps = n }
}

// New returns a ready simulated device.
func New(opts ...Option) *Device {
	d := &Device{
		maxPacket: DefaultMaxPacketSize,
		bufCap:    DefaultBufferCapacity,
		noise:     func(b []byte) { _, _ = rand.Read(b) },
		ready:     true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendBytes accepts a device command. A well-formed fetch command queues a
// framed response; anything else is accepted and ignored, like hardware
// discarding garbage.
func (d *Device) SendBytes(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, errors.New("tlsim: device closed")
	}
	if d.shortSends > 0 {
		d.shortSends--
		n := len(buf) - 1
		if n < 0 {
			n = 0
		}
		return n, nil
	}
	if len(buf) != 3 || buf[0] != cmdMarker {
		return len(buf), nil
	}

	d.commands++
	if d.dropResps > 0 {
		d.dropResps--
		return len(buf), nil
	}

	length := int(buf[1]) | int(buf[2])<<8
	payload := make([]byte, length+1)
	d.noise(payload[:length])
	payload[length] = d.status
	d.pending = d.frame(payload)
	return len(buf), nil
}

// frame splits payload into chunks of maxPacket bytes, each led by one
// framing byte the receiver must discard.
func (d *Device) frame(payload []byte) []byte {
	perChunk := d.maxPacket - 1
	framed := make([]byte, 0, len(payload)+len(payload)/perChunk+1)
	for off := 0; off < len(payload); off += perChunk {
		end := off + perChunk
		if end > len(payload) {
			end = len(payload)
		}
		framed = append(framed, frameByte)
		framed = append(framed, payload[off:end]...)
	}
	return framed
}

// ReceiveBytes delivers pending framed response bytes, whole chunks at a
// time. With nothing pending it idles briefly and reports an empty transfer,
// as a polled bulk endpoint does.
func (d *Device) ReceiveBytes(buf []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, errors.New("tlsim: device closed")
	}
	if len(d.pending) == 0 {
		d.mu.Unlock()
		idle := time.Millisecond
		if timeout < idle {
			idle = timeout
		}
		if idle > 0 {
			time.Sleep(idle)
		}
		return 0, nil
	}

	n := len(buf)
	if n > len(d.pending) {
		n = len(d.pending)
	}
	// Transfers split only on chunk boundaries so every delivered chunk
	// starts with its framing byte.
	if n < len(d.pending) {
		n -= n % d.maxPacket
	}
	copy(buf, d.pending[:n])
	d.pending = d.pending[n:]
	d.mu.Unlock()
	return n, nil
}

// MaxPacketSize returns the simulated chunk size.
func (d *Device) MaxPacketSize() int { return d.maxPacket }

// BufferCapacity returns the simulated transfer buffer size.
func (d *Device) BufferCapacity() int { return d.bufCap }

// Ready reports whether the simulated device is attached.
func (d *Device) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready && !d.closed
}

// SetReady simulates unplugging (false) or re-attaching (true) the device.
func (d *Device) SetReady(ready bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = ready
}

// Commands returns how many well-formed fetch commands the device accepted.
func (d *Device) Commands() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commands
}

// Close detaches the simulated device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
