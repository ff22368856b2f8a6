// Package pointstream is the public entry point: it receives encoded depth
// and texture streams, decodes them, unprojects depth to a colored point
// cloud in a background worker and hands the results to readers.
package pointstream

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/user/pointstream/pkg/adapters/logger"
	"github.com/user/pointstream/pkg/audio"
	"github.com/user/pointstream/pkg/config"
	"github.com/user/pointstream/pkg/decoder"
	"github.com/user/pointstream/pkg/depth"
	"github.com/user/pointstream/pkg/exchange"
	"github.com/user/pointstream/pkg/media"
	"github.com/user/pointstream/pkg/netdecoder"
	"github.com/user/pointstream/pkg/orchestrator"
	"github.com/user/pointstream/pkg/ports"
)

const (
	MaxDecoders    = config.MaxDecoders
	MaxAuxChannels = config.MaxAuxChannels
	MaxPlanes      = media.MaxPlanes
)

var (
	// ErrClosed is returned by reads after Close.
	ErrClosed = errors.New("pointstream: session closed")

	// ErrNoData is returned by reads when nothing new was published.
	ErrNoData = exchange.ErrNoData
)

// Frame is the per-channel view filled by the read calls. Decoder channels
// carry planes and strides; aux channels carry their payload in Planes[0]
// with its length in Strides[0].
type Frame = exchange.FrameView

// PointCloud is the point cloud view filled by the read calls.
type PointCloud = exchange.PointCloudView

// Session is a running decode and unprojection pipeline.
type Session struct {
	id   string
	log  ports.Logger
	ex   *exchange.Exchange
	src  *netdecoder.Decoder
	orch *orchestrator.Orchestrator
	sink ports.AudioSink

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Init validates cfg, builds the pipeline and starts the worker. On failure
// everything acquired so far is released.
func Init(cfg config.Config, opts ...Option) (*Session, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var cleanup []func()
	if o.src != nil {
		cleanup = append(cleanup, func() { o.src.Close() })
	}
	if o.sink != nil {
		cleanup = append(cleanup, func() { o.sink.Close() })
	}
	release := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	if err := cfg.Validate(); err != nil {
		release()
		return nil, err
	}

	id := uuid.NewString()
	log := o.log
	if log == nil {
		log = NewLogger(cfg.Log)
		if s, ok := log.(*logger.StructuredLogger); ok {
			log = s.WithField("session", id)
		}
	}
	log = log.WithComponent("pointstream")

	unwind := func(err error) (*Session, error) {
		release()
		log.Error("Initialization failed: %v", err)
		return nil, err
	}

	src := o.src
	if src == nil {
		var err error
		if src, err = openTransport(cfg, log); err != nil {
			return unwind(err)
		}
		cleanup = append(cleanup, func() { src.Close() })
	}

	reg := o.registry
	if reg == nil {
		reg = DefaultRegistry(cfg.FFmpegPath)
	}
	sessions := make([]*decoder.Session, 0, len(cfg.Decoders))
	for i, dc := range cfg.ToDecoderConfigs() {
		s, err := decoder.New(dc, reg, log.WithComponent(fmt.Sprintf("decoder%d", i)))
		if err != nil {
			return unwind(fmt.Errorf("pointstream: decoder %d: %w", i, err))
		}
		sessions = append(sessions, s)
		cleanup = append(cleanup, func() { s.Close() })
	}

	var unproj *depth.Unprojector
	if cfg.Depth != nil {
		var err error
		if unproj, err = depth.New(cfg.ToDepthConfig()); err != nil {
			return unwind(err)
		}
	}

	var auxDec ports.AuxDecoder
	if cfg.Aux.Channels > 0 {
		var err error
		if auxDec, err = audio.NewDecoder(cfg.Aux.Codec); err != nil {
			return unwind(err)
		}
	}

	sink := o.sink
	if sink == nil {
		var err error
		if sink, err = openSink(cfg.Audio); err != nil {
			return unwind(err)
		}
	}

	nd := netdecoder.New(src, sessions, cfg.Aux.Channels, log)
	ex := exchange.New(len(sessions), cfg.Aux.Channels)
	orch := orchestrator.New(nd, ex, unproj, auxDec, sink, log, cfg.ToOrchestratorConfig())
	orch.Start()

	log.Info("Session %s started with %d decoders and %d aux channels", id, len(sessions), cfg.Aux.Channels)
	return &Session{
		id:   id,
		log:  log,
		ex:   ex,
		src:  nd,
		orch: orch,
		sink: sink,
	}, nil
}

// ID returns the session identifier used in log output.
func (s *Session) ID() string {
	return s.id
}

// Close stops the worker and releases decoders, transport, sink and frames.
// It waits for a reader between BeginRead and EndRead to finish.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.orch.Close()

		var errs []error
		if err := s.src.Close(); err != nil {
			errs = append(errs, err)
		}
		if s.sink != nil {
			if err := s.sink.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.ex.Close()
		s.closeErr = errors.Join(errs...)
		s.log.Info("Session %s closed", s.id)
	})
	return s.closeErr
}

// BeginRead fills frames (one entry per decoder channel followed by one per
// aux channel; it may be shorter or nil) and pc (may be nil) with the latest
// published data and keeps it valid until EndRead. It returns ErrNoData when
// nothing new was published since the last read.
//
// The Session's own read calls form a single bracket. Readers in separate
// goroutines should each use NewReader.
func (s *Session) BeginRead(frames []Frame, pc *PointCloud) error {
	return s.begin(s.ex.BeginRead, frames, pc)
}

// EndRead releases the data handed out by BeginRead.
func (s *Session) EndRead() error {
	return s.ex.EndRead()
}

func (s *Session) begin(read func([]Frame, *PointCloud) error, frames []Frame, pc *PointCloud) error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := read(frames, pc)
	if errors.Is(err, exchange.ErrClosed) {
		return ErrClosed
	}
	return err
}

// Reader is a read bracket owned by one consumer. EndRead on a Reader
// never ends a read begun by another one.
type Reader struct {
	s *Session
	r *exchange.Reader
}

// NewReader returns a Reader for a consumer goroutine.
func (s *Session) NewReader() *Reader {
	return &Reader{s: s, r: s.ex.NewReader()}
}

// BeginRead behaves like Session.BeginRead.
func (r *Reader) BeginRead(frames []Frame, pc *PointCloud) error {
	return r.s.begin(r.r.BeginRead, frames, pc)
}

// EndRead ends the read begun by this Reader.
func (r *Reader) EndRead() error {
	return r.r.EndRead()
}

// BeginFrameRead is BeginRead without the point cloud.
func (s *Session) BeginFrameRead(frames []Frame) error {
	return s.BeginRead(frames, nil)
}

// EndFrameRead ends a BeginFrameRead.
func (s *Session) EndFrameRead() error {
	return s.EndRead()
}

// BeginPointCloudRead is BeginRead without frames.
func (s *Session) BeginPointCloudRead(pc *PointCloud) error {
	return s.BeginRead(nil, pc)
}

// EndPointCloudRead ends a BeginPointCloudRead.
func (s *Session) EndPointCloudRead() error {
	return s.EndRead()
}

// Working reports whether the worker is still running. It turns false after
// Close or once the worker stopped on a fatal error; see Err.
func (s *Session) Working() bool {
	return !s.closed.Load() && s.orch.Working()
}

// Err returns the fatal error that stopped the worker, or nil.
func (s *Session) Err() error {
	return s.orch.Err()
}

// Stats returns the worker counters.
func (s *Session) Stats() orchestrator.Stats {
	return s.orch.Stats()
}

// ExchangeStats returns the publish and read counters.
func (s *Session) ExchangeStats() exchange.Stats {
	return s.ex.Stats()
}
