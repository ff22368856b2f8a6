// Package rawdecoder provides an in-process "decoder" for uncompressed video,
// where every packet carries exactly one tightly packed frame.
package rawdecoder

import (
	"errors"
	"fmt"
	"io"

	"github.com/user/pointstream/pkg/media"
	"github.com/user/pointstream/pkg/ports"
)

// DefaultQueueDepth is the number of decoded frames held before SendPacket
// reports ErrAgain.
const DefaultQueueDepth = 2

// Names lists the codec names served by this backend.
var Names = []string{"rawvideo", "raw"}

var (
	// ErrMissingDimensions is returned by Open when width or height is zero.
	ErrMissingDimensions = errors.New("rawdecoder: width and height are required")

	// ErrNotOpen is returned when the decoder is used before Open.
	ErrNotOpen = errors.New("rawdecoder: decoder not open")
)

// Decoder implements ports.VideoCodec for raw frames.
type Decoder struct {
	pool     *media.FramePool
	size     int
	depth    int
	queue    []*media.Frame
	flushing bool
	pts      int64
}

// New creates an unopened raw decoder.
func New() *Decoder {
	return &Decoder{}
}

// Factory returns the decoder as a ports.CodecFactory.
func Factory() ports.VideoCodec {
	return New()
}

// Open prepares a frame pool for the configured format and size.
func (d *Decoder) Open(cfg ports.CodecConfig) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ErrMissingDimensions
	}
	pool, err := media.NewFramePool(cfg.PixelFormat, cfg.Width, cfg.Height)
	if err != nil {
		return fmt.Errorf("rawdecoder: %w", err)
	}
	d.pool = pool
	d.size = pool.Layout().Size()
	d.depth = cfg.QueueDepth
	if d.depth <= 0 {
		d.depth = DefaultQueueDepth
	}
	return nil
}

// SendPacket copies one packed frame into a pooled frame. A nil packet starts
// a flush; packets sent while flushing get ErrAgain until the flush drains.
func (d *Decoder) SendPacket(pkt []byte) error {
	if d.pool == nil {
		return ErrNotOpen
	}
	if pkt == nil {
		d.flushing = true
		return nil
	}
	if d.flushing || len(d.queue) >= d.depth {
		return ports.ErrAgain
	}
	if len(pkt) != d.size {
		return fmt.Errorf("%w: packet is %d bytes, frame needs %d", ports.ErrInvalidData, len(pkt), d.size)
	}

	f := d.pool.Get()
	f.Fill(pkt)
	f.PTS = d.pts
	d.pts++
	d.queue = append(d.queue, f)
	return nil
}

// ReceiveFrame pops the oldest queued frame. The caller owns its reference.
func (d *Decoder) ReceiveFrame() (*media.Frame, error) {
	if d.pool == nil {
		return nil, ErrNotOpen
	}
	if len(d.queue) == 0 {
		if d.flushing {
			return nil, io.EOF
		}
		return nil, ports.ErrAgain
	}
	f := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return f, nil
}

// Reset drops queued frames and ends a pending flush.
func (d *Decoder) Reset() {
	d.drop()
	d.flushing = false
}

// Close releases queued frames.
func (d *Decoder) Close() error {
	d.drop()
	d.pool = nil
	return nil
}

// Allocations reports how many frame buffers the pool has created.
func (d *Decoder) Allocations() int64 {
	if d.pool == nil {
		return 0
	}
	return d.pool.Allocations()
}

func (d *Decoder) drop() {
	for _, f := range d.queue {
		f.Release()
	}
	d.queue = nil
}

var _ ports.VideoCodec = (*Decoder)(nil)
