package ports

import (
	"errors"

	"github.com/user/pointstream/pkg/media"
)

// ErrTimeout is returned when no data arrived within the configured bound.
var ErrTimeout = errors.New("transport: timeout")

// PacketSource delivers one set of encoded packets per call, one entry per
// channel: decoder channels first, then auxiliary channels. A channel with
// nothing to deliver has an empty entry. The returned slices stay valid until
// the next call.
type PacketSource interface {
	ReceivePackets() ([][]byte, error)
	Close() error
}

// FrameSource fills per-channel decoded frames and auxiliary byte buffers.
// Slots for channels without output are set to nil. Frames remain owned by
// the source and are valid until the next call; aux buffers are handed over.
type FrameSource interface {
	ReceiveAll(frames []*media.Frame, aux [][]byte) error
	Close() error
}
