package orchestrator

import (
	"encoding/binary"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/pointstream/pkg/depth"
	"github.com/user/pointstream/pkg/exchange"
	"github.com/user/pointstream/pkg/media"
	"github.com/user/pointstream/pkg/mocks"
	"github.com/user/pointstream/pkg/ports"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func depthFrame(t *testing.T, format media.PixelFormat, w, h int, value uint16) *media.Frame {
	t.Helper()
	f, err := media.NewFrame(format, w, h)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	for i := 0; i+1 < len(f.Planes[0]); i += 2 {
		binary.LittleEndian.PutUint16(f.Planes[0][i:], value)
	}
	return f
}

func newUnprojector(t *testing.T) *depth.Unprojector {
	t.Helper()
	u, err := depth.New(depth.Config{PPX: 2, PPY: 2, FX: 1, FY: 1, DepthUnit: 0.001})
	if err != nil {
		t.Fatalf("depth.New: %v", err)
	}
	return u
}

// frameSource delivers frame on the first n calls and times out afterwards.
func frameSource(frame *media.Frame, aux []byte, n int) *mocks.FrameSource {
	var calls atomic.Int32
	return &mocks.FrameSource{
		ReceiveAllFunc: func(frames []*media.Frame, auxBuf [][]byte) error {
			if int(calls.Add(1)) > n {
				time.Sleep(time.Millisecond)
				return ports.ErrTimeout
			}
			frames[0] = frame
			if len(auxBuf) > 0 && aux != nil {
				auxBuf[0] = append([]byte(nil), aux...)
			}
			return nil
		},
	}
}

func TestRun_PublishesPointCloud(t *testing.T) {
	frame := depthFrame(t, media.FormatGray16LE, 4, 4, 1000)
	ex := exchange.New(1, 0)
	o := New(frameSource(frame, nil, 3), ex, newUnprojector(t), nil, nil, mocks.NewLogger(), DefaultConfig())
	o.Start()
	defer o.Close()

	waitFor(t, "three clouds", func() bool { return o.Stats().Clouds == 3 })

	var pc exchange.PointCloudView
	views := make([]exchange.FrameView, 1)
	if err := ex.BeginRead(views, &pc); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if pc.Used != 16 || pc.Size != 16 {
		t.Errorf("expected 16 used of 16, got %d of %d", pc.Used, pc.Size)
	}
	// Pixel (r=0, c=0) at 1 m with principal point (2, 2) and unit focal length.
	if got := pc.Positions[0]; got != [3]float32{-2, 2, 1} {
		t.Errorf("unexpected first position %v", got)
	}
	if views[0].Width != 4 || views[0].Format != media.FormatGray16LE {
		t.Errorf("unexpected frame view %+v", views[0])
	}
	if err := ex.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}

	stats := o.Stats()
	if stats.Frames != 3 {
		t.Errorf("expected 3 frames published, got %d", stats.Frames)
	}
	if !o.Working() {
		t.Error("expected worker to keep running through timeouts")
	}
}

func TestRun_FramesOnlyWithoutUnprojector(t *testing.T) {
	frame := depthFrame(t, media.FormatGray16LE, 2, 2, 7)
	ex := exchange.New(1, 0)
	o := New(frameSource(frame, nil, 1), ex, nil, nil, nil, mocks.NewLogger(), DefaultConfig())
	o.Start()
	defer o.Close()

	waitFor(t, "one frame", func() bool { return o.Stats().Frames == 1 })
	if o.Stats().Clouds != 0 {
		t.Errorf("expected no clouds without unprojector, got %d", o.Stats().Clouds)
	}
	var pc exchange.PointCloudView
	if err := ex.BeginRead(make([]exchange.FrameView, 1), &pc); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if pc.Used != 0 {
		t.Errorf("expected empty cloud, got %d points", pc.Used)
	}
	ex.EndRead()
}

func TestRun_TimeoutsContinue(t *testing.T) {
	src := &mocks.FrameSource{}
	o := New(src, exchange.New(1, 0), nil, nil, nil, mocks.NewLogger(), DefaultConfig())
	o.Start()

	waitFor(t, "timeouts", func() bool { return o.Stats().Timeouts >= 3 })
	if !o.Working() {
		t.Error("expected worker to be running")
	}
	o.Close()
	if o.Working() {
		t.Error("expected worker stopped after Close")
	}
	if err := o.Err(); err != nil {
		t.Errorf("expected no error after Close, got %v", err)
	}
	if stats := o.Stats(); stats.Iterations < stats.Timeouts {
		t.Errorf("iterations %d below timeouts %d", stats.Iterations, stats.Timeouts)
	}
}

func TestRun_TransportErrorIsFatal(t *testing.T) {
	boom := errors.New("connection reset")
	src := &mocks.FrameSource{
		ReceiveAllFunc: func([]*media.Frame, [][]byte) error { return boom },
	}
	log := mocks.NewLogger()
	o := New(src, exchange.New(1, 0), nil, nil, nil, log, DefaultConfig())
	o.Start()
	defer o.Close()

	waitFor(t, "worker to stop", func() bool { return !o.Working() })
	err := o.Err()
	if !errors.Is(err, ErrFatal) || !errors.Is(err, boom) {
		t.Errorf("expected ErrFatal wrapping cause, got %v", err)
	}
	if len(log.Entries(ports.LevelError)) != 1 {
		t.Errorf("expected one error log entry, got %v", log.Entries(ports.LevelError))
	}
	if src.Calls() != 1 {
		t.Errorf("expected the loop to stop after one call, got %d", src.Calls())
	}
}

func TestRun_UnsupportedDepthFormatIsFatal(t *testing.T) {
	frame, err := media.NewFrame(media.FormatNV12, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	o := New(frameSource(frame, nil, 1), exchange.New(1, 0), newUnprojector(t), nil, nil, mocks.NewLogger(), DefaultConfig())
	o.Start()
	defer o.Close()

	waitFor(t, "worker to stop", func() bool { return !o.Working() })
	if err := o.Err(); !errors.Is(err, depth.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestRun_ForwardsAudio(t *testing.T) {
	frame := depthFrame(t, media.FormatGray16LE, 2, 2, 1)
	sink := &mocks.AudioSink{
		WriteFunc: func(samples []int16) (int, error) {
			return len(samples) - 1, errors.New("buffer full")
		},
	}
	log := mocks.NewLogger()
	cfg := Config{Decoders: 1, Auxes: 1, AudioChannel: 0}
	o := New(frameSource(frame, []byte{1, 2, 3, 4}, 2), exchange.New(1, 1), nil, &mocks.AuxDecoder{}, sink, log, cfg)
	o.Start()
	defer o.Close()

	waitFor(t, "two warnings", func() bool { return len(log.Entries(ports.LevelWarn)) == 2 })
	stats := o.Stats()
	if stats.AudioWritten != 6 || stats.AudioDropped != 2 {
		t.Errorf("expected 6 written and 2 dropped, got %d and %d", stats.AudioWritten, stats.AudioDropped)
	}
	if warns := log.Entries(ports.LevelWarn); !strings.Contains(warns[0].Message, "buffer full") {
		t.Errorf("expected write failure in warning, got %q", warns[0].Message)
	}
	if sink.Writes() != 2 {
		t.Errorf("expected 2 sink writes, got %d", sink.Writes())
	}
	if !o.Working() {
		t.Error("audio errors must not stop the worker")
	}
}

func TestRun_AuxDecodeFailure(t *testing.T) {
	frame := depthFrame(t, media.FormatGray16LE, 2, 2, 1)
	sink := &mocks.AudioSink{}
	aux := &mocks.AuxDecoder{
		DecodeFunc: func([]byte) ([]int16, error) { return nil, errors.New("bad packet") },
	}
	cfg := Config{Decoders: 1, Auxes: 1}
	o := New(frameSource(frame, []byte{9}, 1), exchange.New(1, 1), nil, aux, sink, mocks.NewLogger(), cfg)
	o.Start()
	defer o.Close()

	waitFor(t, "one frame", func() bool { return o.Stats().Frames == 1 })
	if sink.Writes() != 0 {
		t.Errorf("expected no sink writes, got %d", sink.Writes())
	}
}

func TestNew_AudioChannelOutOfRange(t *testing.T) {
	o := New(&mocks.FrameSource{}, exchange.New(1, 1), nil, nil, nil, mocks.NewLogger(), Config{Auxes: 1, AudioChannel: 3})
	if o.cfg.AudioChannel != NoAudio {
		t.Errorf("expected audio disabled, got channel %d", o.cfg.AudioChannel)
	}
	if o.cfg.Decoders != 1 {
		t.Errorf("expected at least one decoder channel, got %d", o.cfg.Decoders)
	}
}

func TestStartClose(t *testing.T) {
	src := &mocks.FrameSource{}
	o := New(src, exchange.New(1, 0), nil, nil, nil, mocks.NewLogger(), DefaultConfig())

	// Close before Start must not block, and Start afterwards does nothing.
	o.Close()
	o.Start()
	if o.Working() {
		t.Error("expected Start after Close to be ignored")
	}

	o2 := New(src, exchange.New(1, 0), nil, nil, nil, mocks.NewLogger(), DefaultConfig())
	o2.Start()
	o2.Start()
	o2.Close()
	o2.Close()
	if o2.Working() {
		t.Error("expected worker stopped")
	}
}
