// Package udptransport carries per-channel packets over UDP datagrams.
package udptransport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/user/pointstream/pkg/ports"
)

// DefaultTimeout bounds a single ReceivePackets call.
const DefaultTimeout = 500 * time.Millisecond

// maxDatagram is the largest datagram the receiver reads.
const maxDatagram = 65535

// Config configures a Receiver.
type Config struct {
	Address    string        // listen address; empty for all interfaces
	Port       int           // listen port; 0 picks a free port
	Timeout    time.Duration // receive bound; 0 uses DefaultTimeout
	MaxPayload int           // payload bytes per datagram; 0 uses DefaultMaxPayload
	Channels   int           // expected channels; 0 accepts any count
}

// subframe collects the packets of one channel.
type subframe struct {
	data     []byte
	received []bool
	missing  int
}

// Receiver reassembles frames from datagrams and implements ports.PacketSource.
type Receiver struct {
	conn *net.UDPConn
	cfg  Config
	log  ports.Logger
	buf  []byte

	frame     uint16
	active    bool
	seen      bool
	subframes []subframe
	pending   int
	out       [][]byte
}

// Listen opens a UDP socket for receiving frames.
func Listen(cfg Config, log ports.Logger) (*Receiver, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultMaxPayload
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("udptransport: resolve: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udptransport: listen: %w", err)
	}
	return &Receiver{
		conn: conn,
		cfg:  cfg,
		log:  log.WithComponent("udp"),
		buf:  make([]byte, maxDatagram),
	}, nil
}

// Addr returns the bound local address.
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// ReceivePackets blocks until a complete frame arrives or the timeout passes.
// The returned slices are reused by the next call.
func (r *Receiver) ReceivePackets() ([][]byte, error) {
	deadline := time.Now().Add(r.cfg.Timeout)
	if err := r.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("udptransport: deadline: %w", err)
	}
	for {
		n, err := r.conn.Read(r.buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				r.active = false
				r.seen = false
				return nil, ports.ErrTimeout
			}
			return nil, fmt.Errorf("udptransport: read: %w", err)
		}
		if r.collect(r.buf[:n]) {
			return r.complete(), nil
		}
	}
}

// collect adds one datagram to the frame under assembly and reports whether
// the frame is complete.
func (r *Receiver) collect(datagram []byte) bool {
	h, err := ParseHeader(datagram, r.cfg.MaxPayload)
	if err != nil {
		r.log.Debug("Ignored datagram: %v", err)
		return false
	}
	if r.cfg.Channels > 0 && int(h.Subframes) != r.cfg.Channels {
		r.log.Debug("Ignored datagram: %v", fmt.Errorf("%w: %d subframes, want %d", ErrMalformedHeader, h.Subframes, r.cfg.Channels))
		return false
	}

	if !r.active || h.Frame != r.frame {
		// Late datagrams of a finished or abandoned frame.
		if r.seen && !older(r.frame, h.Frame) {
			return false
		}
		if r.active {
			r.log.Debug("Discarded incomplete frame %d for frame %d", r.frame, h.Frame)
		}
		r.start(h)
	}
	if int(h.Subframes) != len(r.subframes) {
		return false
	}

	sf := &r.subframes[h.Subframe]
	if sf.missing == -1 {
		r.initSubframe(sf, h)
	} else if len(sf.data) != int(h.Size) {
		return false
	}
	if h.Packets == 0 || sf.received[h.Packet] {
		return r.pending == 0
	}
	copy(sf.data[int(h.Packet)*r.cfg.MaxPayload:], datagram[HeaderSize:])
	sf.received[h.Packet] = true
	sf.missing--
	if sf.missing == 0 {
		r.pending--
	}
	return r.pending == 0
}

// start resets the assembly state for frame h.Frame.
func (r *Receiver) start(h Header) {
	r.frame = h.Frame
	r.active = true
	r.seen = true
	if cap(r.subframes) < int(h.Subframes) {
		r.subframes = make([]subframe, h.Subframes)
	}
	r.subframes = r.subframes[:h.Subframes]
	for i := range r.subframes {
		r.subframes[i].missing = -1
		r.subframes[i].data = r.subframes[i].data[:0]
	}
	r.pending = int(h.Subframes)
}

func (r *Receiver) initSubframe(sf *subframe, h Header) {
	if cap(sf.data) < int(h.Size) {
		sf.data = make([]byte, h.Size)
	}
	sf.data = sf.data[:h.Size]
	if cap(sf.received) < int(h.Packets) {
		sf.received = make([]bool, h.Packets)
	}
	sf.received = sf.received[:h.Packets]
	for i := range sf.received {
		sf.received[i] = false
	}
	sf.missing = int(h.Packets)
	if sf.missing == 0 {
		r.pending--
	}
}

func (r *Receiver) complete() [][]byte {
	r.active = false
	r.out = r.out[:0]
	for i := range r.subframes {
		r.out = append(r.out, r.subframes[i].data)
	}
	return r.out
}

// Close closes the socket.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

// older reports whether frame a precedes b in 16-bit wrapping order.
func older(a, b uint16) bool {
	return int16(a-b) < 0
}

var _ ports.PacketSource = (*Receiver)(nil)
