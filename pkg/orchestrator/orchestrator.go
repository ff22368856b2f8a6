// Package orchestrator runs the background worker that turns decoded frames
// into point clouds and hands them to the exchange.
package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/user/pointstream/pkg/depth"
	"github.com/user/pointstream/pkg/exchange"
	"github.com/user/pointstream/pkg/media"
	"github.com/user/pointstream/pkg/ports"
)

// ErrFatal wraps the cause that stopped the worker.
var ErrFatal = errors.New("orchestrator: worker stopped")

// NoAudio disables audio forwarding when used as Config.AudioChannel.
const NoAudio = -1

// Config contains the channel layout the worker serves.
type Config struct {
	Decoders     int // decoder channels; channel 0 is depth, channel 1 the optional texture
	Auxes        int // aux channels following the decoder channels
	AudioChannel int // aux channel forwarded to the audio sink, or NoAudio
}

// DefaultConfig returns a Config for a single depth channel.
func DefaultConfig() Config {
	return Config{
		Decoders:     1,
		AudioChannel: 0,
	}
}

// Stats is a snapshot of the worker counters.
type Stats struct {
	Iterations   uint64
	Timeouts     uint64
	Frames       uint64 // decoded frames published
	Clouds       uint64 // point clouds published
	AudioWritten uint64 // samples accepted by the sink
	AudioDropped uint64 // samples the sink could not take
}

// Orchestrator owns the worker goroutine.
type Orchestrator struct {
	src    ports.FrameSource
	ex     *exchange.Exchange
	unproj *depth.Unprojector
	aux    ports.AuxDecoder
	sink   ports.AudioSink
	log    ports.Logger
	cfg    Config

	frames []*media.Frame
	auxBuf [][]byte
	cloud  *media.PointCloud

	keepWorking atomic.Bool
	working     atomic.Bool
	started     atomic.Bool
	closed      atomic.Bool
	done        chan struct{}
	closeOnce   sync.Once

	mu  sync.Mutex
	err error

	iterations   atomic.Uint64
	timeouts     atomic.Uint64
	framesOut    atomic.Uint64
	clouds       atomic.Uint64
	audioWritten atomic.Uint64
	audioDropped atomic.Uint64
}

// New creates an Orchestrator. unproj may be nil to publish frames only;
// aux and sink may be nil to skip audio.
func New(src ports.FrameSource, ex *exchange.Exchange, unproj *depth.Unprojector, aux ports.AuxDecoder, sink ports.AudioSink, log ports.Logger, cfg Config) *Orchestrator {
	if cfg.Decoders < 1 {
		cfg.Decoders = 1
	}
	if cfg.AudioChannel >= cfg.Auxes {
		cfg.AudioChannel = NoAudio
	}
	return &Orchestrator{
		src:    src,
		ex:     ex,
		unproj: unproj,
		aux:    aux,
		sink:   sink,
		log:    log.WithComponent("worker"),
		cfg:    cfg,
		frames: make([]*media.Frame, cfg.Decoders),
		auxBuf: make([][]byte, cfg.Auxes),
		cloud:  &media.PointCloud{},
		done:   make(chan struct{}),
	}
}

// Start launches the worker. Calling it again, or after Close, has no effect.
func (o *Orchestrator) Start() {
	if o.closed.Load() || !o.started.CompareAndSwap(false, true) {
		return
	}
	o.keepWorking.Store(true)
	o.working.Store(true)
	go o.run()
}

// Close stops the worker and waits for it to return.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		o.keepWorking.Store(false)
		if o.started.Load() {
			<-o.done
		}
	})
}

// Working reports whether the worker is running.
func (o *Orchestrator) Working() bool {
	return o.working.Load()
}

// Err returns the cause that stopped the worker, wrapped in ErrFatal, or nil.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Stats returns a snapshot of the worker counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Iterations:   o.iterations.Load(),
		Timeouts:     o.timeouts.Load(),
		Frames:       o.framesOut.Load(),
		Clouds:       o.clouds.Load(),
		AudioWritten: o.audioWritten.Load(),
		AudioDropped: o.audioDropped.Load(),
	}
}

func (o *Orchestrator) run() {
	defer close(o.done)
	defer o.working.Store(false)

	o.log.Info("Worker started")
	for o.keepWorking.Load() {
		o.iterations.Add(1)

		err := o.src.ReceiveAll(o.frames, o.auxBuf)
		if errors.Is(err, ports.ErrTimeout) {
			o.timeouts.Add(1)
			continue
		}
		if err != nil {
			o.fail(err)
			return
		}
		if err := o.step(); err != nil {
			o.fail(err)
			return
		}
	}
	o.log.Info("Worker stopped")
}

// step unprojects, forwards audio and publishes one iteration of output.
func (o *Orchestrator) step() error {
	var cloud *media.PointCloud
	if o.unproj != nil && o.frames[0] != nil {
		var texture *media.Frame
		if len(o.frames) > 1 {
			texture = o.frames[1]
		}
		if err := depth.Validate(o.frames[0], texture); err != nil {
			return err
		}
		o.unproj.Unproject(depth.NewView(o.frames[0], texture), o.cloud)
		cloud = o.cloud
	}

	o.forwardAudio()

	for _, f := range o.frames {
		if f != nil {
			o.framesOut.Add(1)
		}
	}
	if next := o.ex.Publish(o.frames, cloud, o.auxBuf); next != nil {
		o.cloud = next
	}
	if cloud != nil {
		o.clouds.Add(1)
	}
	return nil
}

func (o *Orchestrator) forwardAudio() {
	if o.cfg.AudioChannel == NoAudio || o.aux == nil || o.sink == nil {
		return
	}
	data := o.auxBuf[o.cfg.AudioChannel]
	if len(data) == 0 {
		return
	}
	samples, err := o.aux.Decode(data)
	if err != nil {
		o.log.Warn("Aux channel %d decode failed: %v", o.cfg.AudioChannel, err)
		return
	}
	n, err := o.sink.Write(samples)
	o.audioWritten.Add(uint64(n))
	o.audioDropped.Add(uint64(len(samples) - n))
	if err != nil {
		o.log.Warn("Audio write failed: %v", err)
	}
}

func (o *Orchestrator) fail(cause error) {
	err := fmt.Errorf("%w: %w", ErrFatal, cause)
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
	o.log.Error("Worker stopped on error: %v", cause)
}
