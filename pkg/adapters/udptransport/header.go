package udptransport

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the length of the datagram header in bytes.
	HeaderSize = 12

	// DefaultMaxPayload is the payload carried by a full datagram.
	DefaultMaxPayload = 1400

	// MaxSubframes bounds the channels one frame may carry.
	MaxSubframes = 16

	// MaxSubframeBytes bounds the size of one reassembled subframe.
	MaxSubframeBytes = 16 << 20
)

// ErrMalformedHeader is returned for a datagram whose header is inconsistent.
var ErrMalformedHeader = errors.New("udptransport: malformed header")

// Header describes the position of one datagram within a frame.
//
// A frame is split into subframes, one per channel, and each subframe into
// packets of at most MaxPayload bytes. Size is the total length of the
// subframe the packet belongs to.
type Header struct {
	Frame     uint16
	Subframes uint8
	Subframe  uint8
	Packets   uint16
	Packet    uint16
	Size      uint32
}

// Put writes h into b in little-endian order. b must hold HeaderSize bytes.
func (h Header) Put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:], h.Frame)
	b[2] = h.Subframes
	b[3] = h.Subframe
	binary.LittleEndian.PutUint16(b[4:], h.Packets)
	binary.LittleEndian.PutUint16(b[6:], h.Packet)
	binary.LittleEndian.PutUint32(b[8:], h.Size)
}

// ParseHeader decodes and checks the header at the start of datagram.
func ParseHeader(datagram []byte, maxPayload int) (Header, error) {
	if len(datagram) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(datagram))
	}
	h := Header{
		Frame:     binary.LittleEndian.Uint16(datagram[0:]),
		Subframes: datagram[2],
		Subframe:  datagram[3],
		Packets:   binary.LittleEndian.Uint16(datagram[4:]),
		Packet:    binary.LittleEndian.Uint16(datagram[6:]),
		Size:      binary.LittleEndian.Uint32(datagram[8:]),
	}
	switch {
	case h.Subframes == 0 || h.Subframes > MaxSubframes:
		return h, fmt.Errorf("%w: %d subframes", ErrMalformedHeader, h.Subframes)
	case h.Subframe >= h.Subframes:
		return h, fmt.Errorf("%w: subframe %d of %d", ErrMalformedHeader, h.Subframe, h.Subframes)
	case h.Size > MaxSubframeBytes:
		return h, fmt.Errorf("%w: subframe of %d bytes", ErrMalformedHeader, h.Size)
	case h.Packet >= h.Packets && h.Packets > 0:
		return h, fmt.Errorf("%w: packet %d of %d", ErrMalformedHeader, h.Packet, h.Packets)
	case int(h.Packets) != packetsFor(int(h.Size), maxPayload):
		return h, fmt.Errorf("%w: %d packets for %d bytes", ErrMalformedHeader, h.Packets, h.Size)
	}
	payload := len(datagram) - HeaderSize
	if h.Packets > 0 && int(h.Packet)*maxPayload+payload > int(h.Size) {
		return h, fmt.Errorf("%w: payload overruns subframe", ErrMalformedHeader)
	}
	return h, nil
}

// packetsFor returns how many datagrams carry size bytes.
func packetsFor(size, maxPayload int) int {
	return (size + maxPayload - 1) / maxPayload
}
