// Package ffmpegdecoder decodes compressed video by streaming packets through
// a long-running ffmpeg process, with optional hardware acceleration.
//
// Elementary stream packets are written to ffmpeg's stdin and raw frames in
// the negotiated pixel format are read back from stdout.
package ffmpegdecoder

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/user/pointstream/pkg/media"
	"github.com/user/pointstream/pkg/ports"
)

const (
	// DefaultQueueDepth bounds both the packet queue and the frame queue.
	DefaultQueueDepth = 8
	// DefaultFlushTimeout bounds the wait for the remaining frames after a flush.
	DefaultFlushTimeout = 2 * time.Second
	// DefaultFrameWait is how long ReceiveFrame waits for output while streaming.
	DefaultFrameWait = 20 * time.Millisecond
)

// Names lists the codec names served by this backend.
var Names = []string{"h264", "hevc", "h265", "vp8", "vp9", "av1", "mjpeg"}

// HardwareBackends lists the accepted hardware backend names.
var HardwareBackends = []string{"vaapi", "cuda", "qsv", "videotoolbox", "mediacodec"}

var (
	// ErrFFmpegNotFound is returned when ffmpeg cannot be located.
	ErrFFmpegNotFound = errors.New("ffmpegdecoder: ffmpeg not found")

	// ErrUnsupportedCodec is returned by Open for an unknown codec name.
	ErrUnsupportedCodec = errors.New("ffmpegdecoder: unsupported codec")

	// ErrUnsupportedHardware is returned by Open for an unknown hardware backend.
	ErrUnsupportedHardware = errors.New("ffmpegdecoder: unsupported hardware backend")

	// ErrUnknownDimensions is returned by Open when the size is not configured
	// and cannot be read from the bitstream.
	ErrUnknownDimensions = errors.New("ffmpegdecoder: frame dimensions unknown")

	// ErrProcessExited is returned when ffmpeg stops outside of a flush.
	ErrProcessExited = errors.New("ffmpegdecoder: ffmpeg exited unexpectedly")

	// ErrFlushTimeout is returned when a flush does not complete in time.
	ErrFlushTimeout = errors.New("ffmpegdecoder: flush timed out")

	// ErrNotOpen is returned when the decoder is used before Open.
	ErrNotOpen = errors.New("ffmpegdecoder: decoder not open")
)

// Options tunes the backend.
type Options struct {
	FFmpegPath   string        // explicit ffmpeg binary; empty to search
	FlushTimeout time.Duration // 0 for DefaultFlushTimeout
	FrameWait    time.Duration // 0 for DefaultFrameWait
}

// Decoder implements ports.VideoCodec on top of an ffmpeg subprocess.
type Decoder struct {
	opts   Options
	path   string
	info   codecInfo
	cfg    ports.CodecConfig
	probed bool

	pool     *media.FramePool
	last     *media.FramePool
	proc     *process
	flushing bool
	pts      int64
}

// New creates an unopened decoder.
func New(opts Options) *Decoder {
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}
	if opts.FrameWait <= 0 {
		opts.FrameWait = DefaultFrameWait
	}
	return &Decoder{opts: opts}
}

// Factory returns a ports.CodecFactory producing decoders with opts.
func Factory(opts Options) ports.CodecFactory {
	return func() ports.VideoCodec { return New(opts) }
}

// Open validates the configuration and locates ffmpeg. The process itself
// starts with the first packet.
func (d *Decoder) Open(cfg ports.CodecConfig) error {
	info, ok := codecs[strings.ToLower(cfg.Codec)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedCodec, cfg.Codec)
	}
	if cfg.Hardware != "" {
		if _, ok := hwaccels[strings.ToLower(cfg.Hardware)]; !ok {
			return fmt.Errorf("%w: %s", ErrUnsupportedHardware, cfg.Hardware)
		}
	}
	if _, err := media.LayoutOf(cfg.PixelFormat, 2, 2); err != nil {
		return fmt.Errorf("ffmpegdecoder: %w", err)
	}

	sized := cfg.Width > 0 && cfg.Height > 0
	if !sized && info.probe == nil {
		return fmt.Errorf("%w: %s streams need width and height", ErrUnknownDimensions, cfg.Codec)
	}

	path, err := FindFFmpeg(d.opts.FFmpegPath)
	if err != nil {
		return err
	}

	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	d.path = path
	d.info = info
	d.cfg = cfg
	d.probed = !sized
	if sized {
		return d.setSize(cfg.Width, cfg.Height)
	}
	return nil
}

// SendPacket queues one packet for the writer goroutine. A nil packet closes
// ffmpeg's input so the remaining frames drain. Packets that arrive before
// the first sequence header of a stream with unknown size are rejected with
// ErrInvalidData.
func (d *Decoder) SendPacket(pkt []byte) error {
	if d.path == "" {
		return ErrNotOpen
	}
	if pkt == nil {
		if !d.flushing {
			d.flushing = true
			if d.proc != nil {
				d.proc.closeInput()
			}
		}
		return nil
	}
	if d.flushing {
		return ports.ErrAgain
	}

	if d.proc == nil {
		if d.pool == nil {
			w, h, ok := d.info.probe(pkt)
			if !ok {
				return fmt.Errorf("%w: waiting for sequence header", ports.ErrInvalidData)
			}
			if err := d.setSize(w, h); err != nil {
				return err
			}
		}
		fr := &framer{fourcc: d.info.fourcc, width: d.cfg.Width, height: d.cfg.Height}
		proc, err := startProcess(d.path, buildArgs(d.info, d.cfg), d.pool, d.cfg.QueueDepth, fr)
		if err != nil {
			return err
		}
		d.proc = proc
	}

	// The caller may reuse pkt after we return.
	buf := append([]byte(nil), pkt...)
	select {
	case d.proc.packets <- buf:
		return nil
	default:
		return ports.ErrAgain
	}
}

// ReceiveFrame returns the next decoded frame. While streaming it waits at
// most FrameWait and then reports ErrAgain. After a flush it waits up to
// FlushTimeout per frame and returns io.EOF once ffmpeg has exited.
func (d *Decoder) ReceiveFrame() (*media.Frame, error) {
	if d.path == "" {
		return nil, ErrNotOpen
	}
	if d.proc == nil {
		if d.flushing {
			return nil, io.EOF
		}
		return nil, ports.ErrAgain
	}

	select {
	case f, ok := <-d.proc.frames:
		return d.frameOrExit(f, ok)
	default:
	}

	wait := d.opts.FrameWait
	if d.flushing {
		wait = d.opts.FlushTimeout
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case f, ok := <-d.proc.frames:
		return d.frameOrExit(f, ok)
	case <-timer.C:
		if d.flushing {
			return nil, ErrFlushTimeout
		}
		return nil, ports.ErrAgain
	}
}

func (d *Decoder) frameOrExit(f *media.Frame, ok bool) (*media.Frame, error) {
	if ok {
		f.PTS = d.pts
		d.pts++
		return f, nil
	}
	err := d.proc.wait()
	if d.flushing && err == nil {
		return nil, io.EOF
	}
	if err == nil {
		err = errors.New("no error reported")
	}
	return nil, fmt.Errorf("%w: %v", ErrProcessExited, err)
}

// Reset stops the current process; the next packet starts a new one.
func (d *Decoder) Reset() {
	if d.proc != nil {
		d.proc.kill()
		d.proc = nil
	}
	d.flushing = false
	if d.probed {
		// A new stream may change resolution.
		d.last, d.pool = d.pool, nil
	}
}

// Close stops ffmpeg and releases queued frames.
func (d *Decoder) Close() error {
	d.Reset()
	d.path = ""
	d.last = nil
	return nil
}

func (d *Decoder) setSize(w, h int) error {
	pool := d.last
	if pool == nil || !pool.Matches(d.cfg.PixelFormat, w, h) {
		var err error
		if pool, err = media.NewFramePool(d.cfg.PixelFormat, w, h); err != nil {
			return fmt.Errorf("ffmpegdecoder: %w", err)
		}
	}
	d.last = nil
	d.cfg.Width = w
	d.cfg.Height = h
	d.pool = pool
	return nil
}

var _ ports.VideoCodec = (*Decoder)(nil)
