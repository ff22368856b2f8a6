// Package netdecoder pulls per-channel packets from a transport and decodes
// them with one decoder session per video channel.
package netdecoder

import (
	"errors"
	"fmt"

	"github.com/user/pointstream/pkg/decoder"
	"github.com/user/pointstream/pkg/media"
	"github.com/user/pointstream/pkg/ports"
)

// maxDrain bounds the frames pulled from one decoder while draining.
const maxDrain = 64

// Decoder implements ports.FrameSource over a ports.PacketSource.
type Decoder struct {
	src      ports.PacketSource
	sessions []*decoder.Session
	auxes    int
	log      ports.Logger
}

// New wires sessions, in channel order, to src. Channels past the sessions
// are passed through as aux payloads. The decoder takes ownership of both.
func New(src ports.PacketSource, sessions []*decoder.Session, auxes int, log ports.Logger) *Decoder {
	return &Decoder{
		src:      src,
		sessions: sessions,
		auxes:    auxes,
		log:      log.WithComponent("netdecoder"),
	}
}

// ReceiveAll fills one frame per decoder channel and one payload per aux
// channel. Slots without new data are set to nil. On a transport timeout
// every decoder is flushed and ports.ErrTimeout is returned.
//
// Frames stay owned by their session until the next call. Aux payloads are
// copies owned by the caller.
func (d *Decoder) ReceiveAll(frames []*media.Frame, aux [][]byte) error {
	clear(frames)
	clear(aux)

	pkts, err := d.src.ReceivePackets()
	if errors.Is(err, ports.ErrTimeout) {
		d.flush()
		return ports.ErrTimeout
	}
	if err != nil {
		return fmt.Errorf("netdecoder: receive packets: %w", err)
	}

	for i, s := range d.sessions {
		if i >= len(pkts) || len(pkts[i]) == 0 {
			continue
		}
		f, err := d.decode(i, s, pkts[i])
		if err != nil {
			return err
		}
		if i < len(frames) {
			frames[i] = f
		}
	}

	for j := 0; j < d.auxes && j < len(aux); j++ {
		k := len(d.sessions) + j
		if k < len(pkts) && len(pkts[k]) > 0 {
			aux[j] = append([]byte(nil), pkts[k]...)
		}
	}
	return nil
}

func (d *Decoder) decode(ch int, s *decoder.Session, pkt []byte) (*media.Frame, error) {
	status, err := s.SendPacket(pkt)
	if status == decoder.StatusAgain {
		d.log.Debug("Channel %d decoder busy, draining before resubmit", ch)
		if err := d.drain(ch, s); err != nil {
			return nil, err
		}
		status, err = s.SendPacket(pkt)
	}
	switch status {
	case decoder.StatusError:
		return nil, fmt.Errorf("netdecoder: channel %d: %w", ch, err)
	case decoder.StatusAgain:
		d.log.Warn("Channel %d dropped packet of %d bytes after drain", ch, len(pkt))
		return nil, nil
	}

	f, status, err := s.ReceiveFrame()
	if status == decoder.StatusError {
		return nil, fmt.Errorf("netdecoder: channel %d: %w", ch, err)
	}
	return f, nil
}

// drain pulls frames until the decoder reports it needs input.
func (d *Decoder) drain(ch int, s *decoder.Session) error {
	for i := 0; i < maxDrain; i++ {
		f, status, err := s.ReceiveFrame()
		if status == decoder.StatusError {
			return fmt.Errorf("netdecoder: channel %d: drain: %w", ch, err)
		}
		if f == nil {
			return nil
		}
	}
	return nil
}

// flush ends the stream on every decoder and discards the remaining frames.
func (d *Decoder) flush() {
	for i, s := range d.sessions {
		if status, err := s.SendPacket(nil); status == decoder.StatusError {
			d.log.Warn("Channel %d flush failed: %v", i, err)
			continue
		}
		if err := d.drain(i, s); err != nil {
			d.log.Warn("Channel %d flush failed: %v", i, err)
		}
	}
}

// Close closes every session and the packet source.
func (d *Decoder) Close() error {
	var errs []error
	for _, s := range d.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.src.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var _ ports.FrameSource = (*Decoder)(nil)
