package mp4source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

var (
	// ErrNoVideoTrack is returned for a file without a video track.
	ErrNoVideoTrack = errors.New("mp4source: no video track found")

	// ErrUnsupportedCodec is returned for a video track that is not AVC.
	ErrUnsupportedCodec = errors.New("mp4source: unsupported codec")
)

// Sample is one access unit in Annex B form. Sync samples carry the
// parameter sets in front of the picture data.
type Sample struct {
	Data       []byte
	DecodeTime uint64
	Dur        uint32
	Sync       bool
}

// Track is the video track of an MP4 file, fully loaded.
type Track struct {
	Codec      string // "h264", "hevc", "av1" or the sample entry type
	Width      int
	Height     int
	Timescale  uint32
	Fragmented bool
	Samples    []Sample
}

// Duration returns the presentation length of the track.
func (t *Track) Duration() time.Duration {
	if len(t.Samples) == 0 || t.Timescale == 0 {
		return 0
	}
	last := t.Samples[len(t.Samples)-1]
	return t.ToDuration(last.DecodeTime + uint64(last.Dur))
}

// ToDuration converts track ticks to a time.Duration.
func (t *Track) ToDuration(ticks uint64) time.Duration {
	if t.Timescale == 0 {
		return 0
	}
	return time.Duration(ticks * uint64(time.Second) / uint64(t.Timescale))
}

// ReadFile loads the video track of the MP4 file at path.
func ReadFile(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mp4source: open file: %w", err)
	}
	defer f.Close()
	return ReadTrack(f)
}

// ReadTrack loads the video track from an io.ReadSeeker.
func ReadTrack(r io.ReadSeeker) (*Track, error) {
	file, err := mp4.DecodeFile(r)
	if err != nil {
		return nil, fmt.Errorf("mp4source: decode mp4: %w", err)
	}

	moov := file.Moov
	if file.IsFragmented() && file.Init != nil {
		moov = file.Init.Moov
	}
	if moov == nil {
		return nil, fmt.Errorf("mp4source: no moov box found")
	}
	trak := videoTrak(moov)
	if trak == nil {
		return nil, ErrNoVideoTrack
	}

	t := &Track{Timescale: 1000, Fragmented: file.IsFragmented()}
	if trak.Mdia.Mdhd != nil {
		t.Timescale = trak.Mdia.Mdhd.Timescale
	}
	entry := sampleEntry(trak)
	if entry == nil {
		return nil, ErrNoVideoTrack
	}
	t.Codec = codecName(entry.Type())
	t.Width, t.Height = int(entry.Width), int(entry.Height)
	if t.Codec != "h264" {
		return t, fmt.Errorf("%w: %s", ErrUnsupportedCodec, t.Codec)
	}
	paramSets := parameterSets(entry.AvcC)

	if t.Fragmented {
		err = t.readFragmented(file, trak.Tkhd.TrackID, paramSets)
	} else {
		err = t.readProgressive(trak, r, paramSets)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func videoTrak(moov *mp4.MoovBox) *mp4.TrakBox {
	for _, trak := range moov.Traks {
		if trak.Mdia != nil && trak.Mdia.Hdlr != nil && trak.Mdia.Hdlr.HandlerType == "vide" {
			return trak
		}
	}
	return nil
}

func sampleEntry(trak *mp4.TrakBox) *mp4.VisualSampleEntryBox {
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return nil
	}
	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		if entry, ok := child.(*mp4.VisualSampleEntryBox); ok {
			return entry
		}
	}
	return nil
}

func codecName(entryType string) string {
	switch entryType {
	case "avc1", "avc3":
		return "h264"
	case "hvc1", "hev1":
		return "hevc"
	case "av01":
		return "av1"
	case "vp08":
		return "vp8"
	case "vp09":
		return "vp9"
	default:
		return entryType
	}
}

// parameterSets returns the SPS and PPS of avcC in Annex B form.
func parameterSets(avcC *mp4.AvcCBox) []byte {
	if avcC == nil {
		return nil
	}
	var out []byte
	for _, sps := range avcC.SPSnalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, sps...)
	}
	for _, pps := range avcC.PPSnalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, pps...)
	}
	return out
}

func (t *Track) add(avcc []byte, decodeTime uint64, dur uint32, sync bool, paramSets []byte) {
	annexB := avccToAnnexB(avcc)
	data := annexB
	if sync {
		data = make([]byte, len(paramSets)+len(annexB))
		copy(data, paramSets)
		copy(data[len(paramSets):], annexB)
	}
	t.Samples = append(t.Samples, Sample{Data: data, DecodeTime: decodeTime, Dur: dur, Sync: sync})
}

func (t *Track) readFragmented(file *mp4.File, trackID uint32, paramSets []byte) error {
	var trex *mp4.TrexBox
	if file.Init.Moov.Mvex != nil {
		for _, tr := range file.Init.Moov.Mvex.Trexs {
			if tr.TrackID == trackID {
				trex = tr
				break
			}
		}
	}

	for _, seg := range file.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != trackID {
					continue
				}
				samples, err := frag.GetFullSamples(trex)
				if err != nil {
					return fmt.Errorf("mp4source: get samples: %w", err)
				}
				for _, s := range samples {
					sync := s.Flags == mp4.SyncSampleFlags || len(t.Samples) == 0
					t.add(s.Data, s.DecodeTime, s.Dur, sync, paramSets)
				}
			}
		}
	}
	return nil
}

func (t *Track) readProgressive(trak *mp4.TrakBox, r io.ReadSeeker, paramSets []byte) error {
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil {
		return fmt.Errorf("mp4source: no stsz box found")
	}

	syncSamples := make(map[uint32]bool)
	if stbl.Stss != nil {
		for _, nr := range stbl.Stss.SampleNumber {
			syncSamples[nr] = true
		}
	}

	for nr := uint32(1); nr <= stbl.Stsz.SampleNumber; nr++ {
		data, err := sampleData(stbl, r, nr)
		if err != nil {
			return err
		}
		var decodeTime uint64
		var dur uint32
		if stbl.Stts != nil {
			decodeTime, dur = stbl.Stts.GetDecodeTime(nr)
		}
		t.add(data, decodeTime, dur, syncSamples[nr] || len(syncSamples) == 0, paramSets)
	}
	return nil
}

// sampleData reads one sample of a progressive file.
func sampleData(stbl *mp4.StblBox, r io.ReadSeeker, nr uint32) ([]byte, error) {
	if stbl.Stsc == nil {
		return nil, fmt.Errorf("mp4source: no stsc box found")
	}
	chunkNr, firstInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
	if err != nil {
		return nil, fmt.Errorf("mp4source: sample %d chunk: %w", nr, err)
	}

	var offset uint64
	switch {
	case stbl.Stco != nil:
		if offset, err = stbl.Stco.GetOffset(chunkNr); err != nil {
			return nil, fmt.Errorf("mp4source: sample %d offset: %w", nr, err)
		}
	case stbl.Co64 != nil:
		if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
			return nil, fmt.Errorf("mp4source: sample %d chunk out of range", nr)
		}
		offset = stbl.Co64.ChunkOffset[chunkNr-1]
	default:
		return nil, fmt.Errorf("mp4source: no stco or co64 box")
	}
	for s := uint32(firstInChunk); s < nr; s++ {
		offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
	}

	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("mp4source: seek sample %d: %w", nr, err)
	}
	data := make([]byte, stbl.Stsz.GetSampleSize(int(nr)))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("mp4source: read sample %d: %w", nr, err)
	}
	return data, nil
}

// avccToAnnexB converts length-prefixed NAL units to start-code prefixed ones.
func avccToAnnexB(data []byte) []byte {
	var out []byte
	for offset := 0; offset+4 <= len(data); {
		n := int(data[offset])<<24 | int(data[offset+1])<<16 | int(data[offset+2])<<8 | int(data[offset+3])
		offset += 4
		if offset+n > len(data) {
			break
		}
		out = append(out, 0, 0, 0, 1)
		out = append(out, data[offset:offset+n]...)
		offset += n
	}
	return out
}
