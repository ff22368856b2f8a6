package mp4source

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/pointstream/pkg/adapters/logger"
	"github.com/user/pointstream/pkg/ports"
)

// 1280x720 High profile SPS and a matching PPS.
var (
	testSPS = []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}
	testPPS = []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}
)

func avcc(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, byte(len(n)>>24), byte(len(n)>>16), byte(len(n)>>8), byte(len(n)))
		out = append(out, n...)
	}
	return out
}

// fragmentedMP4 builds an init segment and one fragment with three samples,
// the first of them sync.
func fragmentedMP4(t *testing.T) []byte {
	t.Helper()
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(90000, "video", "und")
	require.NoError(t, init.Moov.Trak.SetAVCDescriptor("avc1", [][]byte{testSPS}, [][]byte{testPPS}, true))

	frag, err := mp4.CreateFragment(1, mp4.DefaultTrakID)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		flags := uint32(mp4.NonSyncSampleFlags)
		if i == 0 {
			flags = mp4.SyncSampleFlags
		}
		data := avcc([]byte{0x41, byte(i)})
		frag.AddFullSample(mp4.FullSample{
			Sample:     mp4.Sample{Flags: flags, Dur: 3000, Size: uint32(len(data))},
			DecodeTime: uint64(i) * 3000,
			Data:       data,
		})
	}

	var buf bytes.Buffer
	require.NoError(t, init.Encode(&buf))
	require.NoError(t, frag.Encode(&buf))
	return buf.Bytes()
}

func TestReadTrack_Fragmented(t *testing.T) {
	track, err := ReadTrack(bytes.NewReader(fragmentedMP4(t)))
	require.NoError(t, err)

	assert.Equal(t, "h264", track.Codec)
	assert.Equal(t, 1280, track.Width)
	assert.Equal(t, 720, track.Height)
	assert.Equal(t, uint32(90000), track.Timescale)
	assert.True(t, track.Fragmented)
	require.Len(t, track.Samples, 3)
	assert.Equal(t, 100*time.Millisecond, track.Duration())

	first := track.Samples[0]
	assert.True(t, first.Sync)
	want := append([]byte{0, 0, 0, 1}, testSPS...)
	want = append(want, 0, 0, 0, 1)
	want = append(want, testPPS...)
	want = append(want, 0, 0, 0, 1, 0x41, 0x00)
	assert.Equal(t, want, first.Data)

	assert.False(t, track.Samples[1].Sync)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x41, 0x01}, track.Samples[1].Data)
	assert.Equal(t, uint64(6000), track.Samples[2].DecodeTime)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depth.mp4")
	require.NoError(t, os.WriteFile(path, fragmentedMP4(t), 0o644))

	track, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, track.Samples, 3)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.mp4"))
	assert.Error(t, err)

	src, err := Open(Config{Files: []string{path}}, logger.NewNoop())
	require.NoError(t, err)
	defer src.Close()
	pkts, err := src.ReceivePackets()
	require.NoError(t, err)
	assert.Equal(t, track.Samples[0].Data, pkts[0])
}

func TestOpen_NoFiles(t *testing.T) {
	_, err := Open(Config{}, logger.NewNoop())
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestAVCCToAnnexB(t *testing.T) {
	in := avcc([]byte{0x65, 1, 2}, []byte{0x41})
	assert.Equal(t, []byte{0, 0, 0, 1, 0x65, 1, 2, 0, 0, 0, 1, 0x41}, avccToAnnexB(in))

	// A truncated trailing unit is dropped.
	assert.Equal(t, []byte{0, 0, 0, 1, 0x41}, avccToAnnexB(append(avcc([]byte{0x41}), 0, 0, 0, 9, 1)))
	assert.Empty(t, avccToAnnexB([]byte{0, 0}))
}

func TestCodecName(t *testing.T) {
	assert.Equal(t, "h264", codecName("avc3"))
	assert.Equal(t, "hevc", codecName("hvc1"))
	assert.Equal(t, "av1", codecName("av01"))
	assert.Equal(t, "mp4v", codecName("mp4v"))
}

func testTracks() []*Track {
	mk := func(n int) *Track {
		t := &Track{Codec: "h264", Timescale: 1000}
		for i := 0; i < n; i++ {
			t.Samples = append(t.Samples, Sample{Data: []byte{byte(i)}, DecodeTime: uint64(i) * 40, Dur: 40})
		}
		return t
	}
	return []*Track{mk(3), mk(2)}
}

func TestSource_ReplayAndFlush(t *testing.T) {
	src := New(testTracks(), Config{Auxes: 1}, logger.NewNoop())

	for i := 0; i < 3; i++ {
		pkts, err := src.ReceivePackets()
		require.NoError(t, err)
		require.Len(t, pkts, 3)
		assert.Equal(t, []byte{byte(i)}, pkts[0])
		if i < 2 {
			assert.Equal(t, []byte{byte(i)}, pkts[1])
		} else {
			assert.Empty(t, pkts[1], "shorter track is exhausted")
		}
		assert.Empty(t, pkts[2])
	}

	_, err := src.ReceivePackets()
	assert.ErrorIs(t, err, ports.ErrTimeout)
	_, err = src.ReceivePackets()
	assert.ErrorIs(t, err, io.EOF)
	_, err = src.ReceivePackets()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSource_Loop(t *testing.T) {
	src := New(testTracks(), Config{Loop: true}, logger.NewNoop())

	var got []byte
	var timeouts int
	for i := 0; i < 8; i++ {
		pkts, err := src.ReceivePackets()
		if err == ports.ErrTimeout {
			timeouts++
			continue
		}
		require.NoError(t, err)
		got = append(got, pkts[0]...)
	}
	assert.Equal(t, 2, timeouts)
	assert.Equal(t, []byte{0, 1, 2, 0, 1, 2}, got)
}

func TestSource_Realtime(t *testing.T) {
	src := New(testTracks(), Config{Realtime: true}, logger.NewNoop())

	clock := time.Unix(1000, 0)
	var slept []time.Duration
	src.now = func() time.Time { return clock }
	src.sleep = func(d time.Duration) {
		slept = append(slept, d)
		clock = clock.Add(d)
	}

	for i := 0; i < 3; i++ {
		_, err := src.ReceivePackets()
		require.NoError(t, err)
	}
	assert.Equal(t, []time.Duration{40 * time.Millisecond, 40 * time.Millisecond}, slept)
}
