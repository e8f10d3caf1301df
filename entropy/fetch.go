package entropy

import (
	"errors"
	"fmt"
	"time"
)

const (
	// cmdMarker is the fixed first byte of every device command.
	cmdMarker = 'x'
	// statusOK is the success sentinel in the trailing response byte.
	statusOK = 0
)

// fetch performs one command/response round-trip with retries, filling dst
// with a raw noise block. The command requests len(dst) bytes; the device
// answers with len(dst)+1 bytes whose trailing status byte must be zero.
//
// A short send or a bad status byte consumes one attempt and is retried;
// exhausting the attempt budget yields ErrTimeout. A shutdown observed at the
// top of an attempt, or a fatal framing error from the receive path, aborts
// immediately.
func (p *Pipeline) fetch(dst []byte) error {
	if len(dst) == 0 || len(dst) > 0xFFFF {
		return fmt.Errorf("%w: fetch of %d bytes", ErrInvalidParameter, len(dst))
	}
	cmd := [3]byte{cmdMarker, byte(len(dst)), byte(len(dst) >> 8)}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if p.shuttingDown() {
			return fmt.Errorf("fetch aborted by shutdown: %w", ErrNoSource)
		}
		p.metrics.FetchAttempts.Add(1)

		n, err := p.tr.SendBytes(cmd[:])
		if err != nil || n != len(cmd) {
			p.log.Debug("command send failed", "attempt", attempt, "sent", n, "err", err)
			p.metrics.FetchRetries.Add(1)
			continue
		}

		err = p.receive(p.resp, p.recvTimeout)
		if errors.Is(err, ErrNoSource) || errors.Is(err, ErrFault) {
			return err
		}
		if err != nil {
			p.log.Debug("response receive failed", "attempt", attempt, "err", err)
			p.metrics.FetchRetries.Add(1)
			continue
		}

		if status := p.resp[len(dst)]; status != statusOK {
			p.log.Debug("device returned bad status code", "attempt", attempt, "status", status)
			p.metrics.FetchRetries.Add(1)
			continue
		}

		copy(dst, p.resp[:len(dst)])
		return nil
	}
	return fmt.Errorf("fetch failed after %d attempts: %w", p.maxAttempts, ErrTimeout)
}

// receive collects exactly len(dst) payload bytes from the transport within
// timeout. The lower transport delivers data in chunks of MaxPacketSize bytes
// whose first byte is framing, not payload; it is discarded here. Transfers
// of two bytes or fewer carry no payload and are skipped. A transfer
// reporting more than the transport's buffer capacity is a fatal framing
// error and is not retried.
func (p *Pipeline) receive(dst []byte, timeout time.Duration) error {
	chunk := p.tr.MaxPacketSize()
	if chunk <= 0 {
		return fmt.Errorf("%w: transport reports packet size %d", ErrFault, chunk)
	}
	deadline := time.Now().Add(timeout)

	cnt := 0
	for {
		if p.shuttingDown() {
			return fmt.Errorf("receive aborted by shutdown: %w", ErrNoSource)
		}
		remain := time.Until(deadline)
		if remain < 0 {
			remain = 0
		}
		n, err := p.tr.ReceiveBytes(p.chunkBuf, remain)
		if err != nil {
			return fmt.Errorf("bulk receive: %w", err)
		}
		if n > len(p.chunkBuf) {
			return fmt.Errorf("%w: transfer reported %d bytes, capacity %d", ErrFault, n, len(p.chunkBuf))
		}
		if n > 2 {
			for i := 0; i < n; i++ {
				if i%chunk == 0 {
					continue // framing byte
				}
				dst[cnt] = p.chunkBuf[i]
				cnt++
				if cnt == len(dst) {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("received %d of %d bytes: %w", cnt, len(dst), ErrTimeout)
		}
	}
}
