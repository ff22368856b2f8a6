package audiosink

import (
	"bytes"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bufferCloser is a concurrency-safe in-memory WriteCloser that can block
// writes until released.
type bufferCloser struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	gate    chan struct{}
	closed  bool
	failErr error
}

func (b *bufferCloser) Write(p []byte) (int, error) {
	if b.gate != nil {
		<-b.gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return 0, b.failErr
	}
	return b.buf.Write(p)
}

func (b *bufferCloser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *bufferCloser) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func TestDiscard(t *testing.T) {
	s := NewDiscard()
	n, err := s.Write(make([]int16, 10))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, uint64(10), s.Samples())
	assert.NoError(t, s.Close())
}

func TestPipe_WritesS16LE(t *testing.T) {
	w := &bufferCloser{}
	p := NewPipe(w, 0)

	n, err := p.Write([]int16{1, -1, 0x1234})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, p.Close())
	assert.Equal(t, []byte{0x01, 0x00, 0xFF, 0xFF, 0x34, 0x12}, w.Bytes())
	assert.True(t, w.closed)
	assert.Equal(t, uint64(3), p.Written())

	_, err = p.Write([]int16{1})
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, p.Close(), "close is idempotent")
}

func TestPipe_DropsWhenFull(t *testing.T) {
	w := &bufferCloser{gate: make(chan struct{})}
	p := NewPipe(w, 4)

	// The first batch may be picked up by the writer, which then blocks on
	// the gate; either way at most limit samples are queued.
	var accepted int
	for i := 0; i < 10; i++ {
		n, err := p.Write([]int16{int16(i)})
		require.NoError(t, err)
		accepted += n
	}
	assert.LessOrEqual(t, accepted, 8)
	assert.GreaterOrEqual(t, accepted, 4)
	assert.Equal(t, uint64(10-accepted), p.Dropped())

	start := time.Now()
	n, err := p.Write(make([]int16, 100))
	require.NoError(t, err)
	assert.Less(t, n, 100)
	assert.Less(t, time.Since(start), time.Second, "write must not block")

	close(w.gate)
	require.NoError(t, p.Close())
}

func TestPipe_WriterFailure(t *testing.T) {
	boom := errors.New("broken pipe")
	w := &bufferCloser{failErr: boom}
	p := NewPipe(w, 0)

	_, err := p.Write([]int16{1, 2})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := p.Write([]int16{3})
		return errors.Is(err, boom)
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Close())
}

func TestNewCommand(t *testing.T) {
	_, err := NewCommand("   ", 24000, 1, 0)
	assert.ErrorIs(t, err, ErrEmptyCommand)

	_, err = NewCommand("/nonexistent/player -r {rate}", 24000, 1, 0)
	assert.Error(t, err)

	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	p, err := NewCommand("cat", 24000, 1, 0)
	require.NoError(t, err)
	n, err := p.Write([]int16{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, p.Close())
}
