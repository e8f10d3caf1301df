package entropy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathiashelseth/tl200/conditioner"
	"github.com/mathiashelseth/tl200/healthtest"
	"github.com/mathiashelseth/tl200/tlsim"
)

// countingNoise fills raw blocks with a fixed pattern so pipeline output is
// reproducible.
func countingNoise(b []byte) {
	for i := range b {
		b[i] = byte(i)
	}
}

func newTestPipeline(t *testing.T, dev *tlsim.Device, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{
		WithSerialSeed(413145),
		WithBlockSize(64),
		WithReceiveTimeout(time.Second),
	}, opts...)
	p, err := New(dev, opts...)
	require.NoError(t, err)
	return p
}

func TestPipeline_ReadMatchesConditioner(t *testing.T) {
	dev := tlsim.New(tlsim.WithNoise(countingNoise))
	p := newTestPipeline(t, dev)
	defer p.Close()

	got := make([]byte, 128) // spans two refills
	n, err := p.Read(context.Background(), got)
	require.NoError(t, err)
	require.Equal(t, len(got), n)

	// The pipeline must produce exactly what the conditioner produces for
	// the same raw blocks and serial seed.
	raw := make([]byte, 64)
	countingNoise(raw)
	want := make([]byte, 128)
	cond := conditioner.New(413145)
	require.NoError(t, cond.Condition(raw, want[:64]))
	require.NoError(t, cond.Condition(raw, want[64:]))
	assert.Equal(t, want, got)

	assert.Equal(t, 2, dev.Commands())
	assert.Equal(t, uint64(128), p.Metrics().BytesRead.Load())
}

// A read covering exactly one buffer triggers exactly one fetch; the refill
// for the next buffer happens on the next read, not eagerly.
func TestPipeline_ExactBoundaryTriggersOneRefill(t *testing.T) {
	dev := tlsim.New(tlsim.WithNoise(countingNoise))
	p := newTestPipeline(t, dev)
	defer p.Close()

	buf := make([]byte, 64)
	_, err := p.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, 1, dev.Commands(), "boundary read must fetch exactly once")

	_, err = p.Read(context.Background(), buf[:1])
	require.NoError(t, err)
	assert.Equal(t, 2, dev.Commands(), "the next byte needs a second refill")
}

func TestPipeline_SmallReadsShareOneRefill(t *testing.T) {
	dev := tlsim.New(tlsim.WithNoise(countingNoise))
	p := newTestPipeline(t, dev)
	defer p.Close()

	buf := make([]byte, 16)
	for i := 0; i < 4; i++ {
		_, err := p.Read(context.Background(), buf)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, dev.Commands(), "64 bytes in small reads fit one refill")
}

// A device that always answers with a non-zero status byte must exhaust
// exactly the configured attempt budget and surface a timeout.
func TestPipeline_RetryExhaustionOnBadStatus(t *testing.T) {
	dev := tlsim.New(tlsim.WithNoise(countingNoise), tlsim.WithStatusByte(7))
	p := newTestPipeline(t, dev, WithMaxAttempts(3))
	defer p.Close()

	n, err := p.Read(context.Background(), make([]byte, 16))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, dev.Commands(), "never fewer, never more than the attempt budget")
	assert.Equal(t, uint64(3), p.Metrics().FetchAttempts.Load())
}

func TestPipeline_ShortSendRetried(t *testing.T) {
	dev := tlsim.New(tlsim.WithNoise(countingNoise), tlsim.WithShortSends(1))
	p := newTestPipeline(t, dev)
	defer p.Close()

	_, err := p.Read(context.Background(), make([]byte, 16))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Metrics().FetchRetries.Load())
	assert.Equal(t, uint64(2), p.Metrics().FetchAttempts.Load())
}

func TestPipeline_DroppedResponseRetried(t *testing.T) {
	dev := tlsim.New(tlsim.WithNoise(countingNoise), tlsim.WithDropResponses(1))
	p := newTestPipeline(t, dev, WithReceiveTimeout(50*time.Millisecond))
	defer p.Close()

	_, err := p.Read(context.Background(), make([]byte, 16))
	require.NoError(t, err)
	assert.Equal(t, 2, dev.Commands())
	assert.Equal(t, uint64(1), p.Metrics().FetchRetries.Load())
}

func TestPipeline_ReceiveTimeoutExhaustsBudget(t *testing.T) {
	dev := tlsim.New(tlsim.WithNoise(countingNoise), tlsim.WithDropResponses(100))
	p := newTestPipeline(t, dev,
		WithMaxAttempts(2),
		WithReceiveTimeout(20*time.Millisecond))
	defer p.Close()

	_, err := p.Read(context.Background(), make([]byte, 16))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, dev.Commands())
}

func TestPipeline_ShutdownShortCircuitsRead(t *testing.T) {
	dev := tlsim.New(tlsim.WithNoise(countingNoise), tlsim.WithDropResponses(10000))
	p := newTestPipeline(t, dev,
		WithMaxAttempts(1000),
		WithReceiveTimeout(10*time.Second))

	errc := make(chan error, 1)
	go func() {
		_, err := p.Read(context.Background(), make([]byte, 16))
		errc <- err
	}()

	// Give the read time to enter the receive loop, then shut down.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrNoSource, "in-flight fetch must abort on shutdown, not keep retrying")
	case <-time.After(2 * time.Second):
		t.Fatal("read did not observe shutdown")
	}
}

func TestPipeline_ReadAfterCloseFails(t *testing.T) {
	dev := tlsim.New(tlsim.WithNoise(countingNoise))
	p := newTestPipeline(t, dev)
	require.NoError(t, p.Close())

	_, err := p.Read(context.Background(), make([]byte, 8))
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestPipeline_DeviceNotReady(t *testing.T) {
	dev := tlsim.New(tlsim.WithNoise(countingNoise))
	p := newTestPipeline(t, dev)
	defer p.Close()

	dev.SetReady(false)
	_, err := p.Read(context.Background(), make([]byte, 8))
	assert.ErrorIs(t, err, ErrNoSource)

	dev.SetReady(true)
	_, err = p.Read(context.Background(), make([]byte, 8))
	assert.NoError(t, err)
}

func TestPipeline_LockWaiterInterruptedByContext(t *testing.T) {
	dev := tlsim.New(tlsim.WithNoise(countingNoise), tlsim.WithDropResponses(10000))
	p := newTestPipeline(t, dev,
		WithMaxAttempts(1000),
		WithReceiveTimeout(10*time.Second))
	defer p.Close()

	go func() {
		_, _ = p.Read(context.Background(), make([]byte, 16)) // holds the lock
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Read(ctx, make([]byte, 8))
	assert.ErrorIs(t, err, ErrNoSource, "waiter must get a permission-style error, not block")
}

// A sticky health-test failure makes the refill a hard failure: the fresh
// buffer is discarded, never partially released, and later refills keep
// failing until the monitors are explicitly reinitialized.
func TestPipeline_HealthFailureDiscardsBuffer(t *testing.T) {
	// Latch the repetition count monitor before handing it to the
	// pipeline; restarts must not clear it.
	rct := healthtest.NewRepetitionCount(5, 5)
	for i := 0; i < 25; i++ {
		rct.Sample(0xEE)
	}
	require.Equal(t, healthtest.StatusFail, rct.Status())

	dev := tlsim.New(tlsim.WithNoise(countingNoise))
	p := newTestPipeline(t, dev, WithHealthTests(rct, healthtest.NewAdaptiveProportion(0, 0, 0)))
	defer p.Close()

	n, err := p.Read(context.Background(), make([]byte, 16))
	assert.ErrorIs(t, err, ErrFault)
	assert.Equal(t, 0, n)
	assert.Equal(t, healthtest.SignatureRepetitionCount, p.FailureSignature())
	assert.Equal(t, uint64(1), p.Metrics().HealthFailures.Load())
	assert.Equal(t, uint64(0), p.Metrics().Refills.Load())

	// Still failing: sticky status survives the per-refill restart.
	_, err = p.Read(context.Background(), make([]byte, 16))
	assert.ErrorIs(t, err, ErrFault)

	// Operator intervention clears it.
	require.NoError(t, p.ResetHealth(context.Background()))
	assert.Equal(t, byte(0), p.FailureSignature())
	_, err = p.Read(context.Background(), make([]byte, 16))
	assert.NoError(t, err)
}

func TestPipeline_ConditionedStreamPassesHealthTests(t *testing.T) {
	// Even a constant raw source passes: serial tagging makes every
	// conditioned group unique, which is exactly why the monitors sit on
	// the conditioned stream in this design.
	dev := tlsim.New(tlsim.WithNoise(func(b []byte) {
		for i := range b {
			b[i] = 0x00
		}
	}))
	p := newTestPipeline(t, dev)
	defer p.Close()

	_, err := p.Read(context.Background(), make([]byte, 256))
	require.NoError(t, err)
	assert.Equal(t, byte(0), p.FailureSignature())
}

func TestPipeline_EmptyReadIsNoop(t *testing.T) {
	dev := tlsim.New(tlsim.WithNoise(countingNoise))
	p := newTestPipeline(t, dev)
	defer p.Close()

	n, err := p.Read(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, dev.Commands())
}

func TestNew_InvalidOptions(t *testing.T) {
	dev := tlsim.New()

	_, err := New(nil)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = New(dev, WithBlockSize(10))
	assert.ErrorIs(t, err, ErrInvalidParameter, "block size must be group-aligned")

	_, err = New(dev, WithBlockSize(0x10000))
	assert.ErrorIs(t, err, ErrInvalidParameter, "block size must fit the 16-bit length field")

	_, err = New(dev, WithMaxAttempts(0))
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = New(dev, WithReceiveTimeout(0))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
