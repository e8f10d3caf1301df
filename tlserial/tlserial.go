// Package tlserial drives TL-compatible noise sources exposed through a
// USB-CDC serial bridge. The bridge speaks the same command/response protocol
// as the bulk USB interface and preserves its chunk framing: response data
// arrives in fixed-size chunks whose first byte is framing, not payload.
package tlserial

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// USB identity of the bridge, as reported by the port enumerator.
const (
	bridgeVID = "1FC9"
	pidTL100  = "8110"
	pidTL200  = "8111"
)

// ModelPrefixes are the product-name prefixes accepted when VID/PID metadata
// is unavailable.
var ModelPrefixes = []string{"TL100", "TL200"}

// bridgeChunkSize is the framing chunk the bridge preserves from the bulk
// interface.
const bridgeChunkSize = 64

// bridgeBufferCapacity is the largest transfer the bridge firmware emits.
const bridgeBufferCapacity = 16384

// Port is an open serial connection to a TL bridge. It implements the
// entropy.Transport interface.
type Port struct {
	port serial.Port
	name string

	mu     sync.Mutex
	closed bool
}

// Detect reports whether a TL serial bridge is present on the system.
func Detect() (bool, error) {
	name, err := FindPort()
	if err != nil {
		if errors.Is(err, ErrPortNotFound) {
			return false, nil
		}
		return false, err
	}
	return name != "", nil
}

// ErrPortNotFound means no serial port matched the TL bridge identity.
var ErrPortNotFound = errors.New("tlserial: no TL bridge port found")

// FindPort returns the first port path of a detected TL bridge, e.g.
// "/dev/ttyACM0" or "COM5".
func FindPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("enumerating ports: %w", err)
	}
	for _, p := range ports {
		if p != nil && isTLBridge(p) {
			return p.Name, nil
		}
	}
	return "", ErrPortNotFound
}

// Open connects to the bridge on portName; with an empty name the first
// detected bridge port is used.
func Open(portName string) (*Port, error) {
	if portName == "" {
		var err error
		portName, err = FindPort()
		if err != nil {
			return nil, err
		}
	}

	mode := &serial.Mode{
		BaudRate: 115200, // CDC bridges ignore the rate; set for OS bookkeeping
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", portName, err)
	}
	_ = port.SetDTR(true)
	if err := port.ResetInputBuffer(); err != nil {
		// stale bytes are tolerable; the protocol resynchronizes per command
	}
	return &Port{port: port, name: portName}, nil
}

// Name returns the underlying port path.
func (p *Port) Name() string {
	return p.name
}

// SendBytes writes a command to the bridge.
func (p *Port) SendBytes(buf []byte) (int, error) {
	return p.port.Write(buf)
}

// ReceiveBytes reads one transfer from the bridge, blocking at most timeout.
func (p *Port) ReceiveBytes(buf []byte, timeout time.Duration) (int, error) {
	if err := p.port.SetReadTimeout(timeout); err != nil {
		return 0, fmt.Errorf("set read timeout: %w", err)
	}
	return p.port.Read(buf)
}

// MaxPacketSize returns the preserved framing chunk size.
func (p *Port) MaxPacketSize() int {
	return bridgeChunkSize
}

// BufferCapacity returns the bridge's maximum transfer size.
func (p *Port) BufferCapacity() int {
	return bridgeBufferCapacity
}

// Ready reports whether the port is still open.
func (p *Port) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// Close releases the serial port.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.port.Close()
}

func isTLBridge(p *enumerator.PortDetails) bool {
	if p.IsUSB && strings.EqualFold(p.VID, bridgeVID) &&
		(strings.EqualFold(p.PID, pidTL100) || strings.EqualFold(p.PID, pidTL200)) {
		return true
	}
	for _, prefix := range ModelPrefixes {
		if p.IsUSB && strings.HasPrefix(p.Product, prefix) {
			return true
		}
	}
	return false
}
