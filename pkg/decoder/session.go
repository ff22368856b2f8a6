// Package decoder wraps a single video codec backend in a session with the
// send/receive/flush state machine used by the network decoder.
package decoder

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/user/pointstream/pkg/media"
	"github.com/user/pointstream/pkg/ports"
)

// DefaultPixelFormat is negotiated when the configuration names none.
const DefaultPixelFormat = media.FormatYUV420P

// State is the lifecycle state of a session.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status is the outcome of a send or receive call.
type Status int

const (
	// StatusOK means the call succeeded. A receive with StatusOK may still
	// return no frame when the backend needs more input.
	StatusOK Status = iota
	// StatusAgain means the backend cannot take input until output is drained.
	StatusAgain
	// StatusError means the call failed; the accompanying error has the cause.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusAgain:
		return "again"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Config describes the decoder to open.
type Config struct {
	Codec       string // e.g. "h264", "hevc", "rawvideo"
	Hardware    string // e.g. "vaapi"; empty for software decoding
	Device      string // e.g. "/dev/dri/renderD128"
	PixelFormat string // ffmpeg pixel format name; empty for the default
	Width       int
	Height      int
	Profile     int
	QueueDepth  int
}

// Session owns one codec backend. Every method is serialized by an internal
// mutex, so Send/Receive never interleave with Close.
type Session struct {
	mu      sync.Mutex
	cfg     Config
	codec   ports.VideoCodec
	format  media.PixelFormat
	state   State
	current *media.Frame
	log     ports.Logger
}

// New resolves and opens the backend for cfg. On failure nothing stays
// allocated and the returned error wraps ErrNotFound, ErrAllocFailed or
// ErrOpenFailed.
func New(cfg Config, reg *Registry, log ports.Logger) (*Session, error) {
	factory, err := reg.Lookup(cfg.Codec, cfg.Hardware)
	if err != nil {
		return nil, err
	}

	format, err := media.ParsePixelFormat(cfg.PixelFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if format == media.FormatNone {
		format = DefaultPixelFormat
	}

	codec := factory()
	if codec == nil {
		return nil, fmt.Errorf("%w: codec %q", ErrAllocFailed, cfg.Codec)
	}

	err = codec.Open(ports.CodecConfig{
		Codec:       cfg.Codec,
		Hardware:    cfg.Hardware,
		Device:      cfg.Device,
		PixelFormat: format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Profile:     cfg.Profile,
		QueueDepth:  cfg.QueueDepth,
	})
	if err != nil {
		codec.Close()
		if errors.Is(err, ports.ErrNoMemory) {
			return nil, fmt.Errorf("%w: %v", ErrAllocFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	s := &Session{
		cfg:    cfg,
		codec:  codec,
		format: format,
		state:  StateReady,
		log:    log.WithComponent("decoder"),
	}
	if cfg.Hardware != "" {
		s.log.Info("Opened %s decoder with %s acceleration (%s)", cfg.Codec, cfg.Hardware, format)
	} else {
		s.log.Info("Opened %s decoder (%s)", cfg.Codec, format)
	}
	return s, nil
}

// SendPacket submits one compressed packet. A nil packet requests a flush.
// Corrupt packets and per-packet I/O errors are logged and reported as
// StatusOK so a lossy stream keeps decoding.
func (s *Session) SendPacket(pkt []byte) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return StatusError, ErrNotReady
	}

	err := s.codec.SendPacket(pkt)
	switch {
	case err == nil:
		return StatusOK, nil
	case errors.Is(err, ports.ErrAgain):
		return StatusAgain, nil
	case errors.Is(err, ports.ErrInvalidData), errors.Is(err, ports.ErrIO):
		s.log.Warn("Dropped packet of %d bytes: %v", len(pkt), err)
		return StatusOK, nil
	default:
		return StatusError, fmt.Errorf("decoder: send packet: %w", err)
	}
}

// ReceiveFrame returns the next decoded frame, or nil with StatusOK when the
// backend needs more input or has finished a flush. After a finished flush
// the backend is reset for a new stream.
//
// The frame stays owned by the session until the next ReceiveFrame or Close;
// callers keeping it longer must Retain it.
func (s *Session) ReceiveFrame() (*media.Frame, Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return nil, StatusError, ErrNotReady
	}

	s.releaseCurrent()

	frame, err := s.codec.ReceiveFrame()
	switch {
	case err == nil:
		s.current = frame
		return frame, StatusOK, nil
	case errors.Is(err, ports.ErrAgain):
		return nil, StatusOK, nil
	case errors.Is(err, io.EOF):
		s.codec.Reset()
		return nil, StatusOK, nil
	default:
		return nil, StatusError, fmt.Errorf("decoder: receive frame: %w", err)
	}
}

// Close releases the held frame and the backend. It is idempotent and safe
// on a nil session.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}
	s.releaseCurrent()
	s.state = StateClosed

	var err error
	if s.codec != nil {
		err = s.codec.Close()
		s.codec = nil
	}
	return err
}

// State returns the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PixelFormat returns the negotiated output format.
func (s *Session) PixelFormat() media.PixelFormat {
	return s.format
}

// Config returns the configuration the session was opened with.
func (s *Session) Config() Config {
	return s.cfg
}

func (s *Session) releaseCurrent() {
	if s.current != nil {
		s.current.Release()
		s.current = nil
	}
}
