// Package mp4source replays the video tracks of MP4 files as a packet
// source, one file per decoder channel.
package mp4source

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/user/pointstream/pkg/ports"
)

// ErrNoFiles is returned by Open without any input file.
var ErrNoFiles = errors.New("mp4source: no input files")

// Config configures a Source.
type Config struct {
	Files    []string
	Auxes    int  // empty auxiliary channels appended to every packet set
	Loop     bool // restart at end of file instead of returning io.EOF
	Realtime bool // pace packets by sample duration
}

// Source implements ports.PacketSource over preloaded tracks.
type Source struct {
	tracks   []*Track
	auxes    int
	loop     bool
	realtime bool
	log      ports.Logger

	pos     int
	flushed bool
	started time.Time
	sleep   func(time.Duration)
	now     func() time.Time
	out     [][]byte
}

// Open loads every file in cfg.Files.
func Open(cfg Config, log ports.Logger) (*Source, error) {
	if len(cfg.Files) == 0 {
		return nil, ErrNoFiles
	}
	tracks := make([]*Track, 0, len(cfg.Files))
	for _, path := range cfg.Files {
		t, err := ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		tracks = append(tracks, t)
	}
	return New(tracks, cfg, log), nil
}

// New creates a Source from loaded tracks. cfg.Files is ignored.
func New(tracks []*Track, cfg Config, log ports.Logger) *Source {
	s := &Source{
		tracks:   tracks,
		auxes:    cfg.Auxes,
		loop:     cfg.Loop,
		realtime: cfg.Realtime,
		log:      log.WithComponent("mp4"),
		sleep:    time.Sleep,
		now:      time.Now,
		out:      make([][]byte, len(tracks)+cfg.Auxes),
	}
	for i, t := range tracks {
		s.log.Info("Loaded %s track %d: %dx%d, %d samples, %s", t.Codec, i, t.Width, t.Height, len(t.Samples), t.Duration())
	}
	return s
}

// ReceivePackets returns the next sample of every track. After the last
// sample it returns ports.ErrTimeout once so decoders flush, then either
// restarts or returns io.EOF.
func (s *Source) ReceivePackets() ([][]byte, error) {
	if s.pos >= s.length() {
		if !s.flushed {
			s.flushed = true
			return nil, ports.ErrTimeout
		}
		if !s.loop {
			return nil, io.EOF
		}
		s.log.Debug("Restarting replay")
		s.pos = 0
		s.flushed = false
		s.started = time.Time{}
	}

	if s.realtime {
		s.pace()
	}
	for ch, t := range s.tracks {
		s.out[ch] = nil
		if s.pos < len(t.Samples) {
			s.out[ch] = t.Samples[s.pos].Data
		}
	}
	for i := len(s.tracks); i < len(s.out); i++ {
		s.out[i] = nil
	}
	s.pos++
	return s.out, nil
}

// pace waits until the decode time of the next sample of the first track.
func (s *Source) pace() {
	t := s.tracks[0]
	if s.pos >= len(t.Samples) {
		return
	}
	if s.started.IsZero() {
		s.started = s.now()
	}
	offset := t.ToDuration(t.Samples[s.pos].DecodeTime - t.Samples[0].DecodeTime)
	if wait := s.started.Add(offset).Sub(s.now()); wait > 0 {
		s.sleep(wait)
	}
}

// length is the sample count of the longest track.
func (s *Source) length() int {
	n := 0
	for _, t := range s.tracks {
		if len(t.Samples) > n {
			n = len(t.Samples)
		}
	}
	return n
}

// Close releases the loaded tracks.
func (s *Source) Close() error {
	s.tracks = nil
	s.pos = 0
	return nil
}

var _ ports.PacketSource = (*Source)(nil)
