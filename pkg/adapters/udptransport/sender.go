package udptransport

import (
	"errors"
	"fmt"
	"math"
	"net"
)

var (
	// ErrTooManySubframes is returned by Send for more than MaxSubframes channels.
	ErrTooManySubframes = errors.New("udptransport: too many subframes")

	// ErrSubframeTooLarge is returned by Send for a channel a receiver would reject.
	ErrSubframeTooLarge = errors.New("udptransport: subframe too large")
)

// Sender splits frames into datagrams for a Receiver.
type Sender struct {
	conn       net.Conn
	maxPayload int
	frame      uint16
	buf        []byte
}

// Dial connects a Sender to a receiver address such as "127.0.0.1:9766".
func Dial(address string, maxPayload int) (*Sender, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	conn, err := net.Dial("udp", address)
	if err != nil {
		return nil, fmt.Errorf("udptransport: dial: %w", err)
	}
	return &Sender{
		conn:       conn,
		maxPayload: maxPayload,
		buf:        make([]byte, HeaderSize+maxPayload),
	}, nil
}

// Send writes one frame, one subframe per channel. Empty channels still get
// a header-only datagram so the receiver can complete the frame.
func (s *Sender) Send(channels [][]byte) error {
	if len(channels) == 0 || len(channels) > MaxSubframes {
		return fmt.Errorf("%w: %d", ErrTooManySubframes, len(channels))
	}
	for i, data := range channels {
		packets := packetsFor(len(data), s.maxPayload)
		if len(data) > MaxSubframeBytes || packets > math.MaxUint16 {
			return fmt.Errorf("%w: channel %d has %d bytes", ErrSubframeTooLarge, i, len(data))
		}
		h := Header{
			Frame:     s.frame,
			Subframes: uint8(len(channels)),
			Subframe:  uint8(i),
			Packets:   uint16(packets),
			Size:      uint32(len(data)),
		}
		if packets == 0 {
			h.Put(s.buf)
			if _, err := s.conn.Write(s.buf[:HeaderSize]); err != nil {
				return fmt.Errorf("udptransport: write: %w", err)
			}
			continue
		}
		for p := 0; p < packets; p++ {
			h.Packet = uint16(p)
			h.Put(s.buf)
			chunk := data[p*s.maxPayload:]
			if len(chunk) > s.maxPayload {
				chunk = chunk[:s.maxPayload]
			}
			n := copy(s.buf[HeaderSize:], chunk)
			if _, err := s.conn.Write(s.buf[:HeaderSize+n]); err != nil {
				return fmt.Errorf("udptransport: write: %w", err)
			}
		}
	}
	s.frame++
	return nil
}

// Close closes the socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
