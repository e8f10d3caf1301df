package tlusb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/gousb"
)

// TectroLabs vendor/product IDs.
const (
	tlVendorID     = 0x1fc9
	tl100ProductID = 0x8110
	tl200ProductID = 0x8111
)

// deviceBufferCapacity is the device-declared maximum size of one bulk
// transfer. A transfer reporting more than this is corrupt.
const deviceBufferCapacity = 16384

// Session encapsulates an open TL100/TL200 device. It implements the
// entropy.Transport interface.
//
// Usage:
//
//	s, _ := tlusb.Open()
//	defer s.Close()
//	p, _ := entropy.New(s)
type Session struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	inEp  *gousb.InEndpoint
	outEp *gousb.OutEndpoint

	maxPacket int

	mu     sync.Mutex
	closed bool
}

// Open claims the first TL100 or TL200 device found and resolves its bulk
// IN/OUT endpoint pair.
func Open() (*Session, error) {
	ctx := gousb.NewContext()

	dev, err := openFirst(ctx)
	if err != nil {
		ctx.Close()
		return nil, err
	}

	// Detach any kernel driver that grabbed the interface.
	_ = dev.SetAutoDetach(true)

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, err
	}

	var inEp *gousb.InEndpoint
	var outEp *gousb.OutEndpoint
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && inEp == nil {
			inEp, err = intf.InEndpoint(ep.Number)
		}
		if ep.Direction == gousb.EndpointDirectionOut && outEp == nil {
			outEp, err = intf.OutEndpoint(ep.Number)
		}
		if err != nil {
			break
		}
	}
	if err == nil && (inEp == nil || outEp == nil) {
		err = errors.New("tlusb: bulk IN/OUT endpoint pair not found")
	}
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, err
	}

	return &Session{
		ctx:       ctx,
		dev:       dev,
		cfg:       cfg,
		intf:      intf,
		inEp:      inEp,
		outEp:     outEp,
		maxPacket: int(inEp.Desc.MaxPacketSize),
	}, nil
}

func openFirst(ctx *gousb.Context) (*gousb.Device, error) {
	for _, pid := range []gousb.ID{tl200ProductID, tl100ProductID} {
		dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(tlVendorID), pid)
		if err != nil {
			return nil, err
		}
		if dev != nil {
			return dev, nil
		}
	}
	return nil, errors.New("tlusb: no TL100/TL200 device found")
}

// SendBytes writes a command to the bulk OUT endpoint.
func (s *Session) SendBytes(buf []byte) (int, error) {
	return s.outEp.Write(buf)
}

// ReceiveBytes reads one bulk IN transfer, blocking at most timeout.
func (s *Session) ReceiveBytes(buf []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.inEp.ReadContext(ctx, buf)
}

// MaxPacketSize returns the IN endpoint's negotiated packet size. The device
// prepends one framing byte per packet of response data.
func (s *Session) MaxPacketSize() int {
	return s.maxPacket
}

// BufferCapacity returns the device's declared maximum transfer size.
func (s *Session) BufferCapacity() int {
	return deviceBufferCapacity
}

// Ready reports whether the session is still open.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close releases the interface, configuration, device and USB context.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.intf != nil {
		s.intf.Close()
	}
	if s.cfg != nil {
		s.cfg.Close()
	}
	if s.dev != nil {
		s.dev.Close()
	}
	if s.ctx != nil {
		s.ctx.Close()
	}
	return nil
}
