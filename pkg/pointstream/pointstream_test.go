package pointstream

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/pointstream/pkg/adapters/logger"
	"github.com/user/pointstream/pkg/config"
	"github.com/user/pointstream/pkg/decoder"
	"github.com/user/pointstream/pkg/exchange"
	"github.com/user/pointstream/pkg/media"
	"github.com/user/pointstream/pkg/mocks"
	"github.com/user/pointstream/pkg/ports"
)

func gray16(w, h int, value uint16) []byte {
	b := make([]byte, 2*w*h)
	for i := 0; i < len(b); i += 2 {
		binary.LittleEndian.PutUint16(b[i:], value)
	}
	return b
}

func rawDepthConfig(w, h int) config.Config {
	cfg := config.Defaults()
	cfg.Decoders = []config.DecoderConfig{
		{Codec: "rawvideo", PixelFormat: "gray16le", Width: w, Height: h},
	}
	cfg.Depth = &config.DepthConfig{PPX: 1.5, PPY: 1.5, FX: 2, FY: 2, DepthUnit: 0.001}
	cfg.Audio.Sink = config.SinkNone
	return cfg
}

func TestInit_EndToEnd(t *testing.T) {
	src := &mocks.PacketSource{}
	for i := 0; i < 10; i++ {
		src.Packets = append(src.Packets, [][]byte{gray16(4, 4, 1000)})
	}

	s, err := Init(rawDepthConfig(4, 4), WithPacketSource(src), WithLogger(mocks.NewLogger()))
	require.NoError(t, err)
	defer s.Close()

	_, err = uuid.Parse(s.ID())
	assert.NoError(t, err)

	require.Eventually(t, func() bool { return s.Stats().Clouds == 10 }, 2*time.Second, time.Millisecond)
	assert.True(t, s.Working())

	var pc PointCloud
	require.NoError(t, s.BeginPointCloudRead(&pc))
	assert.Equal(t, 16, pc.Used)
	assert.Equal(t, 16, pc.Size)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			want := [3]float32{(float32(c) - 1.5) / 2, -(float32(r) - 1.5) / 2, 1}
			assert.Equal(t, want, pc.Positions[r*4+c], "pixel r=%d c=%d", r, c)
			assert.Equal(t, uint32(0xFFFFFFFF), pc.Colors[r*4+c])
		}
	}
	require.NoError(t, s.EndPointCloudRead())

	assert.ErrorIs(t, s.BeginPointCloudRead(&pc), ErrNoData)
	assert.Equal(t, uint64(10), s.Stats().Frames)

	ex := s.ExchangeStats()
	assert.Equal(t, uint64(10), ex.Publishes)
	assert.Equal(t, uint64(1), ex.Reads)
	assert.Equal(t, uint64(9), ex.FrameDrops, "nine depth frames were replaced before the read")
}

func TestInit_DepthWithTexture(t *testing.T) {
	cfg := rawDepthConfig(3, 3)
	cfg.Depth = &config.DepthConfig{PPX: 1, PPY: 1, FX: 1, FY: 1, DepthUnit: 0.001}
	cfg.Decoders = append(cfg.Decoders, config.DecoderConfig{
		Codec: "rawvideo", PixelFormat: "nv12", Width: 3, Height: 3,
	})

	// Y=81 U=90 V=240 is pure red in BT.601 limited range.
	texture := make([]byte, 0, 9+8)
	for i := 0; i < 9; i++ {
		texture = append(texture, 81)
	}
	for i := 0; i < 4; i++ {
		texture = append(texture, 90, 240)
	}
	src := &mocks.PacketSource{Packets: [][][]byte{
		{gray16(3, 3, 2000), texture},
	}}

	s, err := Init(cfg, WithPacketSource(src), WithLogger(mocks.NewLogger()))
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool { return s.Stats().Clouds == 1 }, 2*time.Second, time.Millisecond)
	require.True(t, s.Working(), "worker stopped: %v", s.Err())

	frames := make([]Frame, 2)
	var pc PointCloud
	require.NoError(t, s.BeginRead(frames, &pc))
	defer s.EndRead()

	assert.Equal(t, media.FormatGray16LE, frames[0].Format)
	assert.Equal(t, media.FormatNV12, frames[1].Format)
	assert.Equal(t, 3, frames[1].Width)

	require.Equal(t, 9, pc.Used)
	assert.Equal(t, [3]float32{-2, 2, 2}, pc.Positions[0])
	assert.Equal(t, [3]float32{0, 0, 2}, pc.Positions[4])
	for i, c := range pc.Colors[:pc.Used] {
		assert.Equal(t, uint32(0xFF0000FF), c, "point %d", i)
	}
}

func TestSession_NewReader(t *testing.T) {
	src := &mocks.PacketSource{Packets: [][][]byte{{gray16(2, 2, 100)}}}
	s, err := Init(rawDepthConfig(2, 2), WithPacketSource(src), WithLogger(mocks.NewLogger()))
	require.NoError(t, err)
	defer s.Close()
	require.Eventually(t, func() bool { return s.Stats().Clouds == 1 }, 2*time.Second, time.Millisecond)

	a := s.NewReader()
	b := s.NewReader()
	var pc PointCloud
	require.NoError(t, a.BeginRead(nil, &pc))
	assert.Equal(t, 4, pc.Used)

	assert.ErrorIs(t, b.EndRead(), exchange.ErrNotReading)
	assert.ErrorIs(t, s.EndRead(), exchange.ErrNotReading)
	require.NoError(t, a.EndRead())

	require.NoError(t, s.Close())
	assert.ErrorIs(t, a.BeginRead(nil, &pc), ErrClosed)
}

func TestInit_AuxAudio(t *testing.T) {
	cfg := rawDepthConfig(2, 2)
	cfg.Aux = config.AuxConfig{Channels: 1, Codec: "pcm"}
	cfg.Audio.Sink = config.SinkDiscard

	src := &mocks.PacketSource{Packets: [][][]byte{
		{gray16(2, 2, 500), {1, 0, 2, 0}},
	}}
	sink := &mocks.AudioSink{}
	s, err := Init(cfg, WithPacketSource(src), WithAudioSink(sink), WithLogger(mocks.NewLogger()))
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool { return s.Stats().Clouds == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []int16{1, 2}, sink.Samples())
	assert.Equal(t, uint64(2), s.Stats().AudioWritten)

	frames := make([]Frame, MaxDecoders+MaxAuxChannels)
	require.NoError(t, s.BeginFrameRead(frames))
	assert.Equal(t, 2, frames[0].Width)
	assert.Equal(t, []byte{1, 0, 2, 0}, frames[1].Planes[0])
	assert.Equal(t, 4, frames[1].Strides[0])
	assert.Nil(t, frames[2].Planes[0])
	require.NoError(t, s.EndFrameRead())
}

func TestInit_InvalidConfig(t *testing.T) {
	cfg := rawDepthConfig(4, 4)
	cfg.Network.Transport = "tcp"
	src := &mocks.PacketSource{}
	sink := &mocks.AudioSink{}

	s, err := Init(cfg, WithPacketSource(src), WithAudioSink(sink))
	assert.Nil(t, s)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.True(t, src.CloseCalled)
	assert.True(t, sink.CloseCalled)
}

func TestInit_UnknownCodecUnwinds(t *testing.T) {
	cfg := rawDepthConfig(4, 4)
	cfg.Decoders = append(cfg.Decoders, config.DecoderConfig{Codec: "theora"})
	src := &mocks.PacketSource{}
	log := mocks.NewLogger()

	s, err := Init(cfg, WithPacketSource(src), WithLogger(log))
	assert.Nil(t, s)
	assert.ErrorIs(t, err, decoder.ErrNotFound)
	assert.True(t, src.CloseCalled)
	assert.NotEmpty(t, log.Entries(ports.LevelError))
}

func TestInit_CustomRegistry(t *testing.T) {
	codec := &mocks.VideoCodec{}
	reg := decoder.NewRegistry()
	reg.Register([]string{"fake"}, func() ports.VideoCodec { return codec })

	cfg := rawDepthConfig(4, 4)
	cfg.Decoders[0].Codec = "fake"
	s, err := Init(cfg, WithPacketSource(&mocks.PacketSource{}), WithRegistry(reg), WithLogger(mocks.NewLogger()))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, 1, codec.CloseCalls)
}

func TestSession_Close(t *testing.T) {
	src := &mocks.PacketSource{}
	sink := &mocks.AudioSink{}
	s, err := Init(rawDepthConfig(4, 4), WithPacketSource(src), WithAudioSink(sink), WithLogger(mocks.NewLogger()))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.Working())
	assert.NoError(t, s.Err())
	assert.True(t, src.CloseCalled)
	assert.True(t, sink.CloseCalled)

	var pc PointCloud
	assert.ErrorIs(t, s.BeginRead(nil, &pc), ErrClosed)
	assert.ErrorIs(t, s.BeginFrameRead(nil), ErrClosed)
}

func TestSession_FatalTransportError(t *testing.T) {
	boom := errors.New("socket closed")
	src := &mocks.PacketSource{
		ReceivePacketsFunc: func() ([][]byte, error) { return nil, boom },
	}
	s, err := Init(rawDepthConfig(4, 4), WithPacketSource(src), WithLogger(mocks.NewLogger()))
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool { return !s.Working() }, 2*time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Err(), boom)
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry("")
	assert.Contains(t, reg.Codecs(), "rawvideo")
	assert.Contains(t, reg.Codecs(), "h264")

	_, err := reg.Lookup("hevc", "vaapi")
	assert.NoError(t, err)
	_, err = reg.Lookup("rawvideo", "cuda")
	assert.ErrorIs(t, err, decoder.ErrNotFound)
}

func TestNewLogger(t *testing.T) {
	assert.IsType(t, &logger.StructuredLogger{}, NewLogger(config.LogConfig{Level: "debug", Format: "json"}))
	assert.IsType(t, &logger.ConsoleLogger{}, NewLogger(config.LogConfig{Level: "info"}))
}

func TestOpenSink(t *testing.T) {
	sink, err := openSink(config.AudioConfig{Sink: config.SinkNone})
	require.NoError(t, err)
	assert.Nil(t, sink)

	sink, err = openSink(config.AudioConfig{Sink: config.SinkDiscard})
	require.NoError(t, err)
	assert.NotNil(t, sink)

	_, err = openSink(config.AudioConfig{Sink: config.SinkCommand, Command: " "})
	assert.Error(t, err)
}
