package entropy

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mathiashelseth/tl200/conditioner"
	"github.com/mathiashelseth/tl200/healthtest"
)

const (
	// DefaultBlockSize is the raw bytes requested per device round-trip.
	// Conditioning maps it 1:1 onto the conditioned buffer size (every
	// 32-byte group hashes to a 32-byte digest).
	DefaultBlockSize = 16000

	// DefaultReceiveTimeout bounds one response receive, in whole seconds.
	DefaultReceiveTimeout = 10 * time.Second

	// DefaultMaxAttempts is the transport retry budget per fetch.
	DefaultMaxAttempts = 3

	// DefaultCloseGrace bounds how long Close waits for an in-flight
	// operation to finish before releasing the transport under it.
	DefaultCloseGrace = 10 * time.Second
)

// Pipeline owns all mutable entropy state: the serial-tagged conditioner, the
// health monitors, the raw and conditioned buffers, and the read cursor. All
// operations are serialized by one interruptible lock; there is no internal
// parallelism.
type Pipeline struct {
	tr  Transport
	log *slog.Logger

	maxAttempts int
	recvTimeout time.Duration
	closeGrace  time.Duration

	cond *conditioner.Conditioner
	rct  *healthtest.RepetitionCount
	apt  *healthtest.AdaptiveProportion

	raw      []byte // raw noise block, pipeline-owned
	resp     []byte // raw block plus trailing status byte
	chunkBuf []byte // one lower-level transfer, sized to BufferCapacity
	out      []byte // conditioned buffer, pipeline-owned
	cursor   int    // consumption offset into out

	sem    chan struct{} // 1-slot lock, acquired under select for interruptibility
	ctx    context.Context
	cancel context.CancelFunc

	readPending  atomic.Bool
	fetchPending atomic.Bool
	healthSig    atomic.Uint32

	metrics Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) error {
		if log == nil {
			return fmt.Errorf("%w: nil logger", ErrInvalidParameter)
		}
		p.log = log
		return nil
	}
}

// WithMaxAttempts sets the transport retry budget per fetch.
func WithMaxAttempts(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("%w: max attempts %d", ErrInvalidParameter, n)
		}
		p.maxAttempts = n
		return nil
	}
}

// WithReceiveTimeout bounds each response receive.
func WithReceiveTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("%w: receive timeout %s", ErrInvalidParameter, d)
		}
		p.recvTimeout = d
		return nil
	}
}

// WithBlockSize sets the raw bytes requested per round-trip. The size must be
// a positive multiple of the conditioner group size and fit the command's
// 16-bit length field.
func WithBlockSize(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 || n > 0xFFFF || n%conditioner.GroupBytes != 0 {
			return fmt.Errorf("%w: block size %d", ErrInvalidParameter, n)
		}
		p.raw = make([]byte, n)
		return nil
	}
}

// WithSerialSeed sets the starting value of the serial counter. Without this
// option the seed is drawn from the operating system at construction.
func WithSerialSeed(seed uint32) Option {
	return func(p *Pipeline) error {
		p.cond = conditioner.New(seed)
		return nil
	}
}

// WithHealthTests replaces the default monitors, e.g. to tighten thresholds.
func WithHealthTests(rct *healthtest.RepetitionCount, apt *healthtest.AdaptiveProportion) Option {
	return func(p *Pipeline) error {
		if rct == nil || apt == nil {
			return fmt.Errorf("%w: nil health test", ErrInvalidParameter)
		}
		p.rct = rct
		p.apt = apt
		return nil
	}
}

// WithCloseGrace bounds how long Close waits for in-flight operations.
func WithCloseGrace(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("%w: close grace %s", ErrInvalidParameter, d)
		}
		p.closeGrace = d
		return nil
	}
}

// New builds a pipeline over tr. The conditioner's known-answer self-test
// runs first; if it fails, no pipeline is returned and no bytes will ever be
// produced.
func New(tr Transport, opts ...Option) (*Pipeline, error) {
	if tr == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	if err := conditioner.SelfTest(); err != nil {
		return nil, fmt.Errorf("startup self-test: %w", err)
	}

	p := &Pipeline{
		tr:          tr,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxAttempts: DefaultMaxAttempts,
		recvTimeout: DefaultReceiveTimeout,
		closeGrace:  DefaultCloseGrace,
		rct:         healthtest.NewRepetitionCount(0, 0),
		apt:         healthtest.NewAdaptiveProportion(0, 0, 0),
		raw:         make([]byte, DefaultBlockSize),
		sem:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.cond == nil {
		var seed [4]byte
		if _, err := crand.Read(seed[:]); err != nil {
			return nil, fmt.Errorf("drawing serial seed: %w", err)
		}
		p.cond = conditioner.New(binary.LittleEndian.Uint32(seed[:]))
	}

	p.resp = make([]byte, len(p.raw)+1)
	p.chunkBuf = make([]byte, tr.BufferCapacity())
	p.out = make([]byte, conditioner.OutputLen(len(p.raw)))
	p.cursor = len(p.out) // empty: first read triggers a refill

	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p, nil
}

// Read fills dst with conditioned random bytes and returns the number of
// bytes written. When the conditioned buffer runs out mid-read, a refill
// cycle (fetch, condition, health scan) runs synchronously. A refill failure
// aborts the read with that error; bytes already copied into dst remain
// there, but the call reports failure.
//
// The error wraps ErrNoSource, ErrFault or ErrTimeout; see the package error
// taxonomy.
func (p *Pipeline) Read(ctx context.Context, dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if err := p.acquire(ctx); err != nil {
		return 0, err
	}
	defer p.release()

	if p.shuttingDown() || !p.tr.Ready() {
		return 0, fmt.Errorf("read: %w", ErrNoSource)
	}

	p.readPending.Store(true)
	defer p.readPending.Store(false)

	total := 0
	for total < len(dst) {
		if p.cursor >= len(p.out) {
			if err := p.refill(); err != nil {
				return total, fmt.Errorf("read: %w", err)
			}
		}
		n := copy(dst[total:], p.out[p.cursor:])
		p.cursor += n
		total += n
	}
	p.metrics.BytesRead.Add(uint64(total))
	return total, nil
}

// refill runs one full cycle: fetch a raw block, condition it group by group,
// then scan every conditioned byte with both health monitors before the
// buffer is released. Any non-passing monitor discards the fresh buffer and
// fails the refill; the sticky failure makes every later refill fail too,
// until ResetHealth.
func (p *Pipeline) refill() error {
	p.fetchPending.Store(true)
	defer p.fetchPending.Store(false)

	if p.shuttingDown() || !p.tr.Ready() {
		return fmt.Errorf("refill: %w", ErrNoSource)
	}
	if err := p.fetch(p.raw); err != nil {
		return err
	}

	p.rct.Restart()
	if err := p.cond.Condition(p.raw, p.out); err != nil {
		return fmt.Errorf("%w: conditioning: %v", ErrInvalidParameter, err)
	}

	for _, b := range p.out {
		p.rct.Sample(b)
		p.apt.Sample(b)
	}
	if p.rct.Status() == healthtest.StatusFail {
		return p.failRefill("repetition count test failure", p.rct.Signature())
	}
	if p.apt.Status() == healthtest.StatusFail {
		return p.failRefill("adaptive proportion test failure", p.apt.Signature())
	}

	p.cursor = 0
	p.metrics.Refills.Add(1)
	return nil
}

func (p *Pipeline) failRefill(msg string, sig byte) error {
	p.cursor = len(p.out) // discard the buffer, never release it
	p.healthSig.Store(uint32(sig))
	p.metrics.HealthFailures.Add(1)
	p.log.Error(msg, "signature", sig)
	return fmt.Errorf("%s: %w", msg, ErrFault)
}

// FailureSignature returns the signature of the first failed health monitor,
// or 0 while both pass. Safe to call concurrently.
func (p *Pipeline) FailureSignature() byte {
	return byte(p.healthSig.Load())
}

// ResetHealth explicitly reinitializes both health monitors, dropping any
// sticky failure. This is an operator decision: after a genuine hardware
// anomaly the next refills will simply fail again.
func (p *Pipeline) ResetHealth(ctx context.Context) error {
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.release()

	p.rct.Reset()
	p.apt.Reset()
	p.healthSig.Store(0)
	return nil
}

// Metrics returns the pipeline's counters.
func (p *Pipeline) Metrics() *Metrics {
	return &p.metrics
}

// Close signals shutdown, waits up to the close grace period for an in-flight
// read or fetch to observe it and finish, then releases the transport. An
// operation that outlives the grace period loses the transport under it and
// surfaces ErrNoSource to its caller.
func (p *Pipeline) Close() error {
	p.cancel()

	select {
	case p.sem <- struct{}{}:
		<-p.sem
	case <-time.After(p.closeGrace):
		p.log.Warn("closing with operation still pending",
			"readPending", p.readPending.Load(),
			"fetchPending", p.fetchPending.Load())
	}
	return p.tr.Close()
}

// acquire takes the pipeline lock, giving up if the caller's context or the
// pipeline's shutdown fires first.
func (p *Pipeline) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("interrupted waiting for pipeline lock: %w", ErrNoSource)
	case <-p.ctx.Done():
		return fmt.Errorf("pipeline shutting down: %w", ErrNoSource)
	}
}

func (p *Pipeline) release() {
	<-p.sem
}

func (p *Pipeline) shuttingDown() bool {
	return p.ctx.Err() != nil
}
