package entropy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oversizeTransport reports a transfer larger than its declared buffer
// capacity, which the receive path must treat as a fatal framing error.
type oversizeTransport struct{}

func (oversizeTransport) SendBytes(buf []byte) (int, error) { return len(buf), nil }
func (oversizeTransport) ReceiveBytes(buf []byte, _ time.Duration) (int, error) {
	return len(buf) + 1, nil
}
func (oversizeTransport) MaxPacketSize() int  { return 8 }
func (oversizeTransport) BufferCapacity() int { return 8 }
func (oversizeTransport) Ready() bool         { return true }
func (oversizeTransport) Close() error        { return nil }

func TestFetch_OversizedTransferIsFatal(t *testing.T) {
	p, err := New(oversizeTransport{},
		WithBlockSize(32),
		WithSerialSeed(1),
		WithMaxAttempts(5))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Read(context.Background(), make([]byte, 8))
	assert.ErrorIs(t, err, ErrFault)
	assert.Equal(t, uint64(1), p.Metrics().FetchAttempts.Load(),
		"framing errors are fatal, not retried")
}

func TestFetch_RejectsOversizedRequest(t *testing.T) {
	p, err := New(oversizeTransport{}, WithSerialSeed(1))
	require.NoError(t, err)
	defer p.Close()

	assert.ErrorIs(t, p.fetch(make([]byte, 0x10000)), ErrInvalidParameter)
	assert.ErrorIs(t, p.fetch(nil), ErrInvalidParameter)
}
