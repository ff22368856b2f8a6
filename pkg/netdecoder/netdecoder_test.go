package netdecoder

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/pointstream/pkg/adapters/rawdecoder"
	"github.com/user/pointstream/pkg/decoder"
	"github.com/user/pointstream/pkg/media"
	"github.com/user/pointstream/pkg/mocks"
	"github.com/user/pointstream/pkg/ports"
)

func session(t *testing.T, codec ports.VideoCodec, cfg decoder.Config) *decoder.Session {
	t.Helper()
	reg := decoder.NewRegistry()
	reg.Register([]string{"test"}, func() ports.VideoCodec { return codec })
	reg.Register(rawdecoder.Names, rawdecoder.Factory)
	if cfg.Codec == "" {
		cfg.Codec = "test"
	}
	s, err := decoder.New(cfg, reg, mocks.NewLogger())
	require.NoError(t, err)
	return s
}

// eventLog records the order of codec calls.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func TestReceiveAll_AgainDrainsThenResubmits(t *testing.T) {
	var log eventLog
	busy := true
	frame, err := media.NewFrame(media.FormatGray16LE, 2, 2)
	require.NoError(t, err)

	codec := &mocks.VideoCodec{
		SendPacketFunc: func(pkt []byte) error {
			if busy {
				log.add("send:again")
				return ports.ErrAgain
			}
			log.add("send:ok")
			return nil
		},
		ReceiveFrameFunc: func() (*media.Frame, error) {
			if busy {
				busy = false
				log.add("receive:drain")
				return nil, ports.ErrAgain
			}
			log.add("receive:frame")
			return frame, nil
		},
	}
	pkt := []byte{0, 0, 0, 1, 0x65}
	src := &mocks.PacketSource{Packets: [][][]byte{{pkt}}}
	nd := New(src, []*decoder.Session{session(t, codec, decoder.Config{})}, 0, mocks.NewLogger())
	defer nd.Close()

	frames := make([]*media.Frame, 1)
	require.NoError(t, nd.ReceiveAll(frames, nil))

	assert.Same(t, frame, frames[0])
	assert.Equal(t, []string{"send:again", "receive:drain", "send:ok", "receive:frame"}, log.events)

	sent := codec.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0], sent[1], "the same packet is resubmitted")
}

func TestReceiveAll_TimeoutFlushes(t *testing.T) {
	codec := &mocks.VideoCodec{
		ReceiveFrameFunc: func() (*media.Frame, error) { return nil, io.EOF },
	}
	src := &mocks.PacketSource{}
	nd := New(src, []*decoder.Session{session(t, codec, decoder.Config{})}, 0, mocks.NewLogger())
	defer nd.Close()

	frames := make([]*media.Frame, 1)
	err := nd.ReceiveAll(frames, nil)
	require.ErrorIs(t, err, ports.ErrTimeout)

	sent := codec.Sent()
	require.Len(t, sent, 1)
	assert.Nil(t, sent[0], "timeout sends a flush packet")
	assert.Equal(t, 1, codec.ResetCalls, "end of stream resets the codec")
	assert.Nil(t, frames[0])
}

func TestReceiveAll_SkipsEmptyChannelsAndCopiesAux(t *testing.T) {
	a := &mocks.VideoCodec{}
	b := &mocks.VideoCodec{}
	audio := []byte{1, 2, 3, 4}
	src := &mocks.PacketSource{Packets: [][][]byte{{{}, {9}, audio, nil}}}

	nd := New(src, []*decoder.Session{
		session(t, a, decoder.Config{}),
		session(t, b, decoder.Config{}),
	}, 2, mocks.NewLogger())
	defer nd.Close()

	frames := make([]*media.Frame, 2)
	aux := [][]byte{{0xAA}, {0xBB}}
	require.NoError(t, nd.ReceiveAll(frames, aux))

	assert.Empty(t, a.Sent(), "empty packet is not submitted")
	assert.Len(t, b.Sent(), 1)
	assert.Equal(t, audio, aux[0])
	assert.Nil(t, aux[1], "stale aux slot is cleared")

	audio[0] = 0xFF
	assert.Equal(t, byte(1), aux[0][0], "aux payload is copied")
}

func TestReceiveAll_DecoderError(t *testing.T) {
	codec := &mocks.VideoCodec{
		SendPacketFunc: func(pkt []byte) error { return errors.New("device lost") },
	}
	src := &mocks.PacketSource{Packets: [][][]byte{{{1}}}}
	nd := New(src, []*decoder.Session{session(t, codec, decoder.Config{})}, 0, mocks.NewLogger())
	defer nd.Close()

	err := nd.ReceiveAll(make([]*media.Frame, 1), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrTimeout)
}

func TestReceiveAll_TransportError(t *testing.T) {
	boom := errors.New("socket closed")
	src := &mocks.PacketSource{
		ReceivePacketsFunc: func() ([][]byte, error) { return nil, boom },
	}
	nd := New(src, nil, 0, mocks.NewLogger())

	assert.ErrorIs(t, nd.ReceiveAll(nil, nil), boom)
	require.NoError(t, nd.Close())
	assert.True(t, src.CloseCalled)
}

func TestReceiveAll_RawDepthStream(t *testing.T) {
	s := session(t, nil, decoder.Config{Codec: "rawvideo", PixelFormat: "gray16le", Width: 4, Height: 4})

	var packets [][][]byte
	for i := 0; i < 10; i++ {
		pkt := make([]byte, 32)
		for j := range pkt {
			pkt[j] = byte(i)
		}
		packets = append(packets, [][]byte{pkt})
	}
	nd := New(&mocks.PacketSource{Packets: packets}, []*decoder.Session{s}, 0, mocks.NewLogger())
	defer nd.Close()

	frames := make([]*media.Frame, 1)
	for i := 0; i < 10; i++ {
		require.NoError(t, nd.ReceiveAll(frames, nil))
		require.NotNil(t, frames[0], "packet %d", i)
		assert.Equal(t, byte(i), frames[0].Planes[0][0])
		assert.Equal(t, int64(i), frames[0].PTS)
	}
	assert.ErrorIs(t, nd.ReceiveAll(frames, nil), ports.ErrTimeout)
}
