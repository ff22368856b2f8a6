package media

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrFrameReleased is returned when retaining a frame whose last reference is gone.
var ErrFrameReleased = errors.New("media: frame already released")

// Frame is a decoded image with per-plane data and strides.
//
// Frames are reference counted. A new frame holds one reference; every holder
// that keeps the frame past the call that handed it over must Retain it and
// Release it when done. Plane data must be treated as read-only once a frame
// has been shared.
type Frame struct {
	Width   int
	Height  int
	Format  PixelFormat
	Planes  [MaxPlanes][]byte
	Strides [MaxPlanes]int
	PTS     int64

	refs atomic.Int32
	pool *FramePool
}

// NewFrame allocates an unpooled frame with a tightly packed layout.
func NewFrame(format PixelFormat, width, height int) (*Frame, error) {
	layout, err := LayoutOf(format, width, height)
	if err != nil {
		return nil, err
	}
	f := allocFrame(format, width, height, layout)
	f.refs.Store(1)
	return f, nil
}

func allocFrame(format PixelFormat, width, height int, layout Layout) *Frame {
	f := &Frame{Width: width, Height: height, Format: format}
	buf := make([]byte, layout.Size())
	off := 0
	for i := 0; i < layout.Planes; i++ {
		n := layout.PlaneSize(i)
		f.Planes[i] = buf[off : off+n : off+n]
		f.Strides[i] = layout.Strides[i]
		off += n
	}
	return f
}

// Retain adds a reference.
func (f *Frame) Retain() error {
	for {
		n := f.refs.Load()
		if n <= 0 {
			return ErrFrameReleased
		}
		if f.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference. The last release returns the frame to its pool.
func (f *Frame) Release() {
	n := f.refs.Add(-1)
	switch {
	case n == 0:
		if f.pool != nil {
			f.pool.put(f)
		}
	case n < 0:
		panic("media: frame released more times than retained")
	}
}

// Refs reports the current reference count.
func (f *Frame) Refs() int {
	return int(f.refs.Load())
}

// FramePool recycles frame buffers of a single format and size.
type FramePool struct {
	format PixelFormat
	width  int
	height int
	layout Layout
	pool   sync.Pool

	allocs atomic.Int64
}

// NewFramePool creates a pool for frames of format at width x height.
func NewFramePool(format PixelFormat, width, height int) (*FramePool, error) {
	layout, err := LayoutOf(format, width, height)
	if err != nil {
		return nil, err
	}
	p := &FramePool{format: format, width: width, height: height, layout: layout}
	p.pool.New = func() any {
		p.allocs.Add(1)
		f := allocFrame(p.format, p.width, p.height, p.layout)
		f.pool = p
		return f
	}
	return p, nil
}

// Get returns a frame holding one reference.
func (p *FramePool) Get() *Frame {
	f := p.pool.Get().(*Frame)
	f.PTS = 0
	f.refs.Store(1)
	return f
}

// Layout returns the layout of frames handed out by the pool.
func (p *FramePool) Layout() Layout {
	return p.layout
}

// Allocations reports how many frames the pool has allocated.
func (p *FramePool) Allocations() int64 {
	return p.allocs.Load()
}

// Matches reports whether the pool serves frames of the given shape.
func (p *FramePool) Matches(format PixelFormat, width, height int) bool {
	return p.format == format && p.width == width && p.height == height
}

func (p *FramePool) put(f *Frame) {
	p.pool.Put(f)
}

// Fill copies a tightly packed buffer laid out as in Layout into the planes.
func (f *Frame) Fill(data []byte) int {
	off := 0
	for i := 0; i < MaxPlanes && f.Planes[i] != nil; i++ {
		off += copy(f.Planes[i], data[off:])
		if off >= len(data) {
			break
		}
	}
	return off
}
