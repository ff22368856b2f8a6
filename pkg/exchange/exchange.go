// Package exchange hands decoded frames and point clouds from the decode
// worker to consumers without copying pixel or point data.
//
// A single mutex guards the per-channel frame references, the shared point
// cloud and the pending aux buffers. The producer holds it only for the
// constant-time Publish; a consumer holds it from BeginRead to EndRead.
package exchange

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/user/pointstream/pkg/media"
)

var (
	// ErrNoData is returned by BeginRead when nothing was published since the
	// last read.
	ErrNoData = errors.New("exchange: no new data")

	// ErrNotReading is returned by EndRead without a matching BeginRead on
	// the same Reader.
	ErrNotReading = errors.New("exchange: end read without begin read")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("exchange: closed")
)

// FrameView is the metadata of a published frame. Planes alias the frame's
// buffers and are valid only until EndRead. For an aux slot, Planes[0] holds
// the payload and Strides[0] its length.
type FrameView struct {
	Width   int
	Height  int
	Format  media.PixelFormat
	Planes  [media.MaxPlanes][]byte
	Strides [media.MaxPlanes]int
	PTS     int64
}

// PointCloudView aliases the shared point cloud until EndRead.
type PointCloudView struct {
	Positions [][3]float32
	Colors    []uint32
	Size      int
	Used      int
}

// Stats counts publishes and overwritten, never-read data.
type Stats struct {
	Publishes  uint64
	FrameDrops uint64
	AuxDrops   uint64
	Reads      uint64
}

// Exchange is the producer/consumer hand-off point.
type Exchange struct {
	mu           sync.Mutex
	decoders     int
	auxes        int
	frames       []*media.Frame
	aux          [][]byte
	shared       *media.PointCloud
	cloudPending bool
	closed       bool

	owner   atomic.Pointer[Reader]
	primary *Reader

	publishes  atomic.Uint64
	frameDrops atomic.Uint64
	auxDrops   atomic.Uint64
	reads      atomic.Uint64
}

// New creates an exchange for the given number of decoder and aux channels.
func New(decoders, auxes int) *Exchange {
	e := &Exchange{
		decoders: decoders,
		auxes:    auxes,
		frames:   make([]*media.Frame, decoders),
		aux:      make([][]byte, auxes),
		shared:   &media.PointCloud{},
	}
	e.primary = e.NewReader()
	return e
}

// Reader is one consumer's read bracket. Only the Reader whose BeginRead
// succeeded can end that read, so consumers running in separate goroutines
// should each take their own Reader.
type Reader struct {
	e *Exchange
}

// NewReader returns a Reader on e.
func (e *Exchange) NewReader() *Reader {
	return &Reader{e: e}
}

// BeginRead is Exchange.BeginRead bound to r.
func (r *Reader) BeginRead(frames []FrameView, pc *PointCloudView) error {
	return r.e.beginRead(r, frames, pc)
}

// EndRead ends a read started by r. It returns ErrNotReading when r holds no
// read, leaving another Reader's read untouched.
func (r *Reader) EndRead() error {
	return r.e.endRead(r)
}

// Publish makes frames, cloud and aux visible to consumers.
//
// Every non-nil frame replaces the reference held for its channel; the
// exchange retains it, so the caller keeps its own reference. A non-nil cloud
// becomes the shared cloud and the previously shared one is returned for the
// producer to fill next. With a nil cloud Publish returns nil. Aux entries
// with data are stored as pending. After Close nothing is kept and cloud is
// handed back.
func (e *Exchange) Publish(frames []*media.Frame, cloud *media.PointCloud, aux [][]byte) *media.PointCloud {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return cloud
	}

	for i, f := range frames {
		if i >= e.decoders || f == nil {
			continue
		}
		if old := e.frames[i]; old != nil {
			old.Release()
			e.frameDrops.Add(1)
		}
		e.frames[i] = nil
		if err := f.Retain(); err == nil {
			e.frames[i] = f
		}
	}

	var next *media.PointCloud
	if cloud != nil {
		next = e.shared
		e.shared = cloud
		e.cloudPending = true
	}

	for i, a := range aux {
		if i >= e.auxes || len(a) == 0 {
			continue
		}
		if e.aux[i] != nil {
			e.auxDrops.Add(1)
		}
		e.aux[i] = a
	}

	e.publishes.Add(1)
	return next
}

// BeginRead copies the metadata of pending data into frames and pc and
// returns with the exchange locked; the caller must call EndRead promptly.
// Slots [0, decoders) of frames receive decoded frames and slots
// [decoders, decoders+auxes) receive aux payloads. Either argument may be nil.
// When nothing is pending it returns ErrNoData without holding the lock.
//
// BeginRead and EndRead on the Exchange itself share one Reader; use
// NewReader for concurrent consumers.
func (e *Exchange) BeginRead(frames []FrameView, pc *PointCloudView) error {
	return e.beginRead(e.primary, frames, pc)
}

func (e *Exchange) beginRead(r *Reader, frames []FrameView, pc *PointCloudView) error {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if !e.pending() {
		e.mu.Unlock()
		return ErrNoData
	}

	for i := range frames {
		frames[i] = FrameView{}
		switch {
		case i < e.decoders:
			if f := e.frames[i]; f != nil {
				frames[i] = FrameView{
					Width:   f.Width,
					Height:  f.Height,
					Format:  f.Format,
					Planes:  f.Planes,
					Strides: f.Strides,
					PTS:     f.PTS,
				}
			}
		case i < e.decoders+e.auxes:
			if a := e.aux[i-e.decoders]; a != nil {
				frames[i].Planes[0] = a
				frames[i].Strides[0] = len(a)
			}
		}
	}

	if pc != nil {
		*pc = PointCloudView{
			Positions: e.shared.Positions,
			Colors:    e.shared.Colors,
			Size:      e.shared.Size(),
			Used:      e.shared.Used,
		}
	}

	e.owner.Store(r)
	e.reads.Add(1)
	return nil
}

// EndRead releases the frame references handed out by BeginRead, clears the
// pending aux buffers and unlocks the exchange.
func (e *Exchange) EndRead() error {
	return e.endRead(e.primary)
}

func (e *Exchange) endRead(r *Reader) error {
	if !e.owner.CompareAndSwap(r, nil) {
		return ErrNotReading
	}
	e.clear()
	e.mu.Unlock()
	return nil
}

// Close drops every held reference. Later reads return ErrClosed.
func (e *Exchange) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clear()
	e.closed = true
}

// Stats returns a snapshot of the counters.
func (e *Exchange) Stats() Stats {
	return Stats{
		Publishes:  e.publishes.Load(),
		FrameDrops: e.frameDrops.Load(),
		AuxDrops:   e.auxDrops.Load(),
		Reads:      e.reads.Load(),
	}
}

func (e *Exchange) pending() bool {
	if e.cloudPending {
		return true
	}
	for _, f := range e.frames {
		if f != nil {
			return true
		}
	}
	for _, a := range e.aux {
		if a != nil {
			return true
		}
	}
	return false
}

func (e *Exchange) clear() {
	for i, f := range e.frames {
		if f != nil {
			f.Release()
			e.frames[i] = nil
		}
	}
	for i := range e.aux {
		e.aux[i] = nil
	}
	e.cloudPending = false
}
