// Package audio converts aux channel payloads to PCM samples.
package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/user/pointstream/pkg/ports"
)

// ErrUnknownCodec is returned by NewDecoder for an unsupported codec name.
var ErrUnknownCodec = errors.New("audio: unknown codec")

// NewDecoder returns the aux decoder for codec: "pcm" (or "s16le", or empty)
// for raw little-endian 16-bit samples, or "opus".
func NewDecoder(codec string) (ports.AuxDecoder, error) {
	switch strings.ToLower(codec) {
	case "", "pcm", "s16le":
		return PCMDecoder{}, nil
	case "opus":
		return NewOpusDecoder(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
}

// PCMDecoder reinterprets S16LE bytes as samples. A trailing odd byte is dropped.
type PCMDecoder struct{}

// Decode converts data to samples.
func (PCMDecoder) Decode(data []byte) ([]int16, error) {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
	}
	return out, nil
}

var _ ports.AuxDecoder = PCMDecoder{}
