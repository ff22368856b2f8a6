package ffmpegdecoder

import (
	"encoding/binary"
	"io"
)

const (
	ivfHeaderSize      = 32
	ivfFrameHeaderSize = 12
)

// framer writes packets to the ffmpeg input pipe, wrapping them in an IVF
// container for codecs without an elementary stream demuxer.
type framer struct {
	fourcc string
	width  int
	height int
	pts    uint64
	opened bool
}

func (f *framer) write(w io.Writer, pkt []byte) error {
	if f.fourcc == "" {
		_, err := w.Write(pkt)
		return err
	}

	if !f.opened {
		var hdr [ivfHeaderSize]byte
		copy(hdr[0:4], "DKIF")
		binary.LittleEndian.PutUint16(hdr[4:], 0)
		binary.LittleEndian.PutUint16(hdr[6:], ivfHeaderSize)
		copy(hdr[8:12], f.fourcc)
		binary.LittleEndian.PutUint16(hdr[12:], uint16(f.width))
		binary.LittleEndian.PutUint16(hdr[14:], uint16(f.height))
		binary.LittleEndian.PutUint32(hdr[16:], 30) // time base denominator
		binary.LittleEndian.PutUint32(hdr[20:], 1)  // time base numerator
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		f.opened = true
	}

	var fh [ivfFrameHeaderSize]byte
	binary.LittleEndian.PutUint32(fh[0:], uint32(len(pkt)))
	binary.LittleEndian.PutUint64(fh[4:], f.pts)
	f.pts++
	if _, err := w.Write(fh[:]); err != nil {
		return err
	}
	_, err := w.Write(pkt)
	return err
}
