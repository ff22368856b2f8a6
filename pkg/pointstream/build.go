package pointstream

import (
	"os"

	"github.com/user/pointstream/pkg/adapters/audiosink"
	"github.com/user/pointstream/pkg/adapters/ffmpegdecoder"
	"github.com/user/pointstream/pkg/adapters/logger"
	"github.com/user/pointstream/pkg/adapters/mp4source"
	"github.com/user/pointstream/pkg/adapters/quictransport"
	"github.com/user/pointstream/pkg/adapters/rawdecoder"
	"github.com/user/pointstream/pkg/adapters/udptransport"
	"github.com/user/pointstream/pkg/config"
	"github.com/user/pointstream/pkg/decoder"
	"github.com/user/pointstream/pkg/ports"
)

// DefaultRegistry returns a registry with the raw video decoder and the
// ffmpeg decoder, the latter using the ffmpeg binary found from ffmpegPath.
func DefaultRegistry(ffmpegPath string) *decoder.Registry {
	reg := decoder.NewRegistry()
	reg.Register(rawdecoder.Names, rawdecoder.Factory)
	reg.Register(ffmpegdecoder.Names, ffmpegdecoder.Factory(ffmpegdecoder.Options{FFmpegPath: ffmpegPath}), ffmpegdecoder.HardwareBackends...)
	return reg
}

// NewLogger builds the logger selected by the log section: the console
// logger by default, logrus for the text and json formats.
func NewLogger(cfg config.LogConfig) ports.Logger {
	level := ports.ParseLogLevel(cfg.Level)
	switch cfg.Format {
	case "text", "json":
		return logger.NewStructured(level, cfg.Format, os.Stderr)
	default:
		return logger.NewConsole(level)
	}
}

// openTransport creates the packet source named by cfg.Network.Transport.
func openTransport(cfg config.Config, log ports.Logger) (ports.PacketSource, error) {
	channels := len(cfg.Decoders) + cfg.Aux.Channels
	switch cfg.Network.Transport {
	case config.TransportQUIC:
		r, err := quictransport.Listen(quictransport.Config{
			Address:  cfg.Network.Address,
			Port:     cfg.Network.Port,
			Timeout:  cfg.Timeout(),
			Channels: channels,
		}, log)
		if err != nil {
			return nil, err
		}
		log.Info("Listening for QUIC on %s (certificate %s)", r.Addr(), r.Certificate().FingerprintHex())
		return r, nil
	case config.TransportMP4:
		s, err := mp4source.Open(mp4source.Config{
			Files:    cfg.Network.Files,
			Auxes:    cfg.Aux.Channels,
			Loop:     cfg.Network.Loop,
			Realtime: cfg.Network.Realtime,
		}, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		r, err := udptransport.Listen(udptransport.Config{
			Address:  cfg.Network.Address,
			Port:     cfg.Network.Port,
			Timeout:  cfg.Timeout(),
			Channels: channels,
		}, log)
		if err != nil {
			return nil, err
		}
		log.Info("Listening for UDP on %s", r.Addr())
		return r, nil
	}
}

// openSink creates the audio sink named by cfg.Sink. It returns nil for none.
func openSink(cfg config.AudioConfig) (ports.AudioSink, error) {
	switch cfg.Sink {
	case config.SinkNone:
		return nil, nil
	case config.SinkCommand:
		p, err := audiosink.NewCommand(cfg.Command, cfg.SampleRate, cfg.Channels, cfg.Buffer)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return audiosink.NewDiscard(), nil
	}
}
