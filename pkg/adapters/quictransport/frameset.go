package quictransport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxChannels bounds the channels one frame set may carry.
	MaxChannels = 16

	// MaxChannelBytes bounds a single channel payload.
	MaxChannelBytes = 16 << 20
)

// ErrMalformedFrameSet is returned for a stream that does not hold a valid frame set.
var ErrMalformedFrameSet = errors.New("quictransport: malformed frame set")

// WriteFrameSet writes channels as a u8 count followed by a little-endian u32
// length and the bytes of each channel.
func WriteFrameSet(w io.Writer, channels [][]byte) error {
	if len(channels) == 0 || len(channels) > MaxChannels {
		return fmt.Errorf("%w: %d channels", ErrMalformedFrameSet, len(channels))
	}
	if _, err := w.Write([]byte{byte(len(channels))}); err != nil {
		return err
	}
	var size [4]byte
	for _, data := range channels {
		if len(data) > MaxChannelBytes {
			return fmt.Errorf("%w: channel of %d bytes", ErrMalformedFrameSet, len(data))
		}
		binary.LittleEndian.PutUint32(size[:], uint32(len(data)))
		if _, err := w.Write(size[:]); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrameSet reads one frame set written by WriteFrameSet.
func ReadFrameSet(r io.Reader) ([][]byte, error) {
	var count [1]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrameSet, err)
	}
	n := int(count[0])
	if n == 0 || n > MaxChannels {
		return nil, fmt.Errorf("%w: %d channels", ErrMalformedFrameSet, n)
	}

	channels := make([][]byte, n)
	var size [4]byte
	for i := range channels {
		if _, err := io.ReadFull(r, size[:]); err != nil {
			return nil, fmt.Errorf("%w: channel %d length: %v", ErrMalformedFrameSet, i, err)
		}
		length := binary.LittleEndian.Uint32(size[:])
		if length > MaxChannelBytes {
			return nil, fmt.Errorf("%w: channel %d of %d bytes", ErrMalformedFrameSet, i, length)
		}
		channels[i] = make([]byte, length)
		if _, err := io.ReadFull(r, channels[i]); err != nil {
			return nil, fmt.Errorf("%w: channel %d payload: %v", ErrMalformedFrameSet, i, err)
		}
	}
	return channels, nil
}
