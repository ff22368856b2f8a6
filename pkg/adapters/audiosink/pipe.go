package audiosink

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/user/pointstream/pkg/ports"
)

// DefaultBuffer is the queue limit in samples (one second of 24 kHz mono).
const DefaultBuffer = 24000

var (
	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("audiosink: sink closed")

	// ErrEmptyCommand is returned by NewCommand without a program.
	ErrEmptyCommand = errors.New("audiosink: empty command")
)

// Pipe queues samples and writes them as S16LE to w from its own goroutine.
// Write never blocks: samples beyond the queue limit are dropped.
type Pipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []int16
	spare  []int16
	limit  int
	closed bool
	err    error

	w    io.WriteCloser
	cmd  *exec.Cmd
	done chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewPipe starts a sink writing to w. limit is the queue size in samples;
// 0 selects DefaultBuffer.
func NewPipe(w io.WriteCloser, limit int) *Pipe {
	if limit <= 0 {
		limit = DefaultBuffer
	}
	p := &Pipe{
		limit: limit,
		w:     w,
		done:  make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.loop()
	return p
}

// NewCommand starts command and streams samples to its stdin. The
// placeholders {rate} and {channels} in command are substituted, e.g.
// "aplay -q -t raw -f S16_LE -r {rate} -c {channels}".
func NewCommand(command string, sampleRate, channels, limit int) (*Pipe, error) {
	command = strings.NewReplacer(
		"{rate}", strconv.Itoa(sampleRate),
		"{channels}", strconv.Itoa(channels),
	).Replace(command)

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}

	cmd := exec.Command(fields[0], fields[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("audiosink: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audiosink: start %s: %w", fields[0], err)
	}

	p := NewPipe(stdin, limit)
	p.cmd = cmd
	return p, nil
}

// Write queues as many samples as fit and reports how many were accepted.
// Once the underlying writer has failed, Write returns that error.
func (p *Pipe) Write(samples []int16) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}
	if p.err != nil {
		return 0, p.err
	}

	n := min(len(samples), p.limit-len(p.queue))
	p.queue = append(p.queue, samples[:n]...)
	if dropped := len(samples) - n; dropped > 0 {
		p.dropped.Add(uint64(dropped))
	}
	if n > 0 {
		p.cond.Signal()
	}
	return n, nil
}

// Written returns the number of samples handed to the writer.
func (p *Pipe) Written() uint64 { return p.written.Load() }

// Dropped returns the number of samples rejected because the queue was full.
func (p *Pipe) Dropped() uint64 { return p.dropped.Load() }

// Close flushes queued samples, closes the writer and waits for the command.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	<-p.done
	err := p.w.Close()
	if p.cmd != nil {
		if werr := p.cmd.Wait(); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (p *Pipe) loop() {
	defer close(p.done)
	var buf []byte

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		batch := p.queue
		p.queue = p.spare[:0]
		p.spare = nil
		p.mu.Unlock()

		buf = buf[:0]
		for _, s := range batch {
			buf = append(buf, byte(s), byte(uint16(s)>>8))
		}
		_, err := p.w.Write(buf)

		p.mu.Lock()
		p.spare = batch
		if err != nil {
			p.err = fmt.Errorf("audiosink: write: %w", err)
			p.queue = p.queue[:0]
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
		p.written.Add(uint64(len(batch)))
	}
}

var _ ports.AudioSink = (*Pipe)(nil)
