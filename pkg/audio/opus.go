package audio

import (
	"errors"
	"fmt"

	"github.com/pion/opus"

	"github.com/user/pointstream/pkg/ports"
)

// ErrMalformedPacket is returned for an Opus packet without a valid TOC.
var ErrMalformedPacket = errors.New("audio: malformed opus packet")

// maxPacketBytes is 120 ms of 48 kHz stereo S16LE, the largest Opus packet.
const maxPacketBytes = 120 * 48 * 2 * 2

// frameDurations maps the TOC configuration to the frame length in tenths
// of a millisecond (SILK, Hybrid, then CELT configurations).
var frameDurations = [32]int{
	100, 200, 400, 600, 100, 200, 400, 600, 100, 200, 400, 600,
	100, 200, 100, 200,
	25, 50, 100, 200, 25, 50, 100, 200, 25, 50, 100, 200, 25, 50, 100, 200,
}

// OpusDecoder decodes Opus packets to mono PCM with pion/opus. Stereo
// packets are downmixed. It is not safe for concurrent use.
type OpusDecoder struct {
	dec opus.Decoder
	buf []byte

	// SampleRate is the rate of the last decoded packet.
	SampleRate int
}

// NewOpusDecoder creates a decoder.
func NewOpusDecoder() *OpusDecoder {
	return &OpusDecoder{dec: opus.NewDecoder(), buf: make([]byte, maxPacketBytes)}
}

// Decode decodes one Opus packet.
func (d *OpusDecoder) Decode(data []byte) ([]int16, error) {
	frames, duration, err := packetShape(data)
	if err != nil {
		return nil, err
	}

	clear(d.buf)
	bandwidth, stereo, err := d.dec.Decode(data, d.buf)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	d.SampleRate = int(bandwidth.SampleRate())

	channels := 1
	if stereo {
		channels = 2
	}
	n := frames * duration * d.SampleRate / 10000
	if limit := len(d.buf) / (2 * channels); n > limit {
		n = limit
	}

	out := make([]int16, n)
	for i := range out {
		off := 2 * channels * i
		s := int32(int16(d.buf[off]) | int16(d.buf[off+1])<<8)
		if stereo {
			s = (s + int32(int16(d.buf[off+2])|int16(d.buf[off+3])<<8)) / 2
		}
		out[i] = int16(s)
	}
	return out, nil
}

// packetShape returns the frame count and per-frame duration (in 0.1 ms)
// described by an Opus packet's TOC byte.
func packetShape(data []byte) (frames, duration int, err error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: empty packet", ErrMalformedPacket)
	}
	toc := data[0]
	duration = frameDurations[toc>>3]

	switch toc & 0x3 {
	case 0:
		frames = 1
	case 1, 2:
		frames = 2
	default:
		if len(data) < 2 {
			return 0, 0, fmt.Errorf("%w: missing frame count", ErrMalformedPacket)
		}
		frames = int(data[1] & 0x3F)
		if frames == 0 {
			return 0, 0, fmt.Errorf("%w: zero frames", ErrMalformedPacket)
		}
	}
	if frames*duration > 1200 {
		return 0, 0, fmt.Errorf("%w: %d frames exceed 120 ms", ErrMalformedPacket, frames)
	}
	return frames, duration, nil
}

var _ ports.AuxDecoder = (*OpusDecoder)(nil)
