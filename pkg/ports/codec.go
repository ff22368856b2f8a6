package ports

import (
	"errors"

	"github.com/user/pointstream/pkg/media"
)

var (
	// ErrAgain means the codec cannot take input (SendPacket) or has no
	// output yet (ReceiveFrame). It is a retry signal, not a failure.
	ErrAgain = errors.New("codec: resource temporarily unavailable")

	// ErrInvalidData is returned for a corrupt or malformed packet.
	ErrInvalidData = errors.New("codec: invalid data")

	// ErrIO is returned for an I/O failure on a single packet.
	ErrIO = errors.New("codec: i/o error")

	// ErrNoMemory is returned when a codec cannot allocate its state.
	ErrNoMemory = errors.New("codec: out of memory")
)

// CodecConfig configures a codec instance.
type CodecConfig struct {
	Codec       string            // codec name, e.g. "h264", "hevc", "rawvideo"
	Hardware    string            // hardware backend, e.g. "vaapi"; empty for software
	Device      string            // device path, e.g. "/dev/dri/renderD128"
	PixelFormat media.PixelFormat // negotiated output format
	Width       int               // 0 when unknown
	Height      int               // 0 when unknown
	Profile     int               // 0 to leave unspecified
	QueueDepth  int               // bounded input/output queue length
}

// VideoCodec is a decoder backend with send/receive semantics.
//
// SendPacket takes one compressed packet; a nil packet requests a flush.
// ReceiveFrame returns one decoded frame holding a reference owned by the
// caller, ErrAgain when more input is needed, or io.EOF once a flush has
// completed. Reset prepares the codec for a new stream after io.EOF.
type VideoCodec interface {
	Open(cfg CodecConfig) error
	SendPacket(pkt []byte) error
	ReceiveFrame() (*media.Frame, error)
	Reset()
	Close() error
}

// CodecFactory creates an unopened codec.
type CodecFactory func() VideoCodec
