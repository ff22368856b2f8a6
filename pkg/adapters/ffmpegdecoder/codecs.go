package ffmpegdecoder

import (
	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/hevc"
)

type codecInfo struct {
	demuxer string
	fourcc  string // IVF fourcc; empty for elementary stream input
	probe   func(data []byte) (width, height int, ok bool)
}

var codecs = map[string]codecInfo{
	"h264":  {demuxer: "h264", probe: probeAVC},
	"hevc":  {demuxer: "hevc", probe: probeHEVC},
	"h265":  {demuxer: "hevc", probe: probeHEVC},
	"vp8":   {demuxer: "ivf", fourcc: "VP80"},
	"vp9":   {demuxer: "ivf", fourcc: "VP90"},
	"av1":   {demuxer: "ivf", fourcc: "AV01"},
	"mjpeg": {demuxer: "mjpeg"},
}

// hwaccels maps hardware backend names to ffmpeg -hwaccel values.
var hwaccels = map[string]string{
	"vaapi":        "vaapi",
	"cuda":         "cuda",
	"qsv":          "qsv",
	"videotoolbox": "videotoolbox",
	"mediacodec":   "mediacodec",
}

// probeAVC returns the coded picture size from the first SPS in an Annex B
// H.264 access unit.
func probeAVC(data []byte) (int, int, bool) {
	for _, nalu := range avc.ExtractNalusFromByteStream(data) {
		if len(nalu) == 0 || avc.GetNaluType(nalu[0]) != avc.NALU_SPS {
			continue
		}
		sps, err := avc.ParseSPSNALUnit(nalu, false)
		if err != nil {
			continue
		}
		return int(sps.Width), int(sps.Height), true
	}
	return 0, 0, false
}

// probeHEVC is probeAVC for H.265 access units.
func probeHEVC(data []byte) (int, int, bool) {
	for _, nalu := range avc.ExtractNalusFromByteStream(data) {
		if len(nalu) < 2 || hevc.GetNaluType(nalu[0]) != hevc.NALU_SPS {
			continue
		}
		sps, err := hevc.ParseSPSNALUnit(nalu)
		if err != nil {
			continue
		}
		w, h := sps.ImageSize()
		return int(w), int(h), true
	}
	return 0, 0, false
}
