package ffmpegdecoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/user/pointstream/pkg/media"
)

// process is one running ffmpeg instance with a writer goroutine feeding
// stdin from packets and a reader goroutine slicing stdout into frames.
type process struct {
	cmd     *exec.Cmd
	stderr  bytes.Buffer
	packets chan []byte
	frames  chan *media.Frame
	stop    chan struct{}
	group   errgroup.Group

	inputOnce sync.Once
	stopOnce  sync.Once
	waitOnce  sync.Once
	waitErr   error
}

func startProcess(path string, args []string, pool *media.FramePool, depth int, fr *framer) (*process, error) {
	p := &process{
		packets: make(chan []byte, depth),
		frames:  make(chan *media.Frame, depth),
		stop:    make(chan struct{}),
	}

	p.cmd = execCommand(path, args...)
	p.cmd.Stderr = &p.stderr

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := p.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	p.group.Go(func() error { return p.writeLoop(stdin, fr) })
	p.group.Go(func() error { return p.readLoop(stdout, pool) })
	return p, nil
}

func (p *process) writeLoop(stdin io.WriteCloser, fr *framer) error {
	defer stdin.Close()
	for {
		select {
		case pkt, ok := <-p.packets:
			if !ok {
				return nil
			}
			if err := fr.write(stdin, pkt); err != nil {
				if p.stopped() {
					return nil
				}
				return fmt.Errorf("write packet: %w", err)
			}
		case <-p.stop:
			return nil
		}
	}
}

func (p *process) readLoop(stdout io.Reader, pool *media.FramePool) error {
	defer close(p.frames)
	planes := pool.Layout().Planes
	for {
		f := pool.Get()
		if err := readFrame(stdout, f, planes); err != nil {
			f.Release()
			if errors.Is(err, io.EOF) || p.stopped() {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		select {
		case p.frames <- f:
		case <-p.stop:
			f.Release()
			return nil
		}
	}
}

// readFrame fills every plane from r. A clean end of stream before the first
// byte is io.EOF; a partial frame is io.ErrUnexpectedEOF.
func readFrame(r io.Reader, f *media.Frame, planes int) error {
	for i := 0; i < planes; i++ {
		if _, err := io.ReadFull(r, f.Planes[i]); err != nil {
			if i > 0 && errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

// closeInput ends the input so ffmpeg drains and exits.
func (p *process) closeInput() {
	p.inputOnce.Do(func() { close(p.packets) })
}

func (p *process) stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

// wait joins the goroutines and reaps the process. It must only be called
// once stdout has reached EOF or the process has been stopped.
func (p *process) wait() error {
	p.waitOnce.Do(func() {
		gerr := p.group.Wait()
		cerr := p.cmd.Wait()
		switch {
		case gerr != nil:
			p.waitErr = gerr
		case cerr != nil && !p.stopped():
			p.waitErr = fmt.Errorf("%w: %s", cerr, strings.TrimSpace(p.stderr.String()))
		}
	})
	return p.waitErr
}

// kill terminates the process and releases frames still queued.
func (p *process) kill() {
	p.stopOnce.Do(func() {
		close(p.stop)
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
	})
	p.wait()
	for f := range p.frames {
		f.Release()
	}
}
