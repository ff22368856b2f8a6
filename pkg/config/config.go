// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/pointstream/pkg/audio"
	"github.com/user/pointstream/pkg/decoder"
	"github.com/user/pointstream/pkg/depth"
	"github.com/user/pointstream/pkg/media"
	"github.com/user/pointstream/pkg/orchestrator"
)

const (
	// MaxDecoders is the maximum number of decoder channels.
	MaxDecoders = 3

	// MaxAuxChannels is the maximum number of auxiliary channels.
	MaxAuxChannels = 4
)

// Transport names.
const (
	TransportUDP  = "udp"
	TransportQUIC = "quic"
	TransportMP4  = "mp4"
)

// Audio sink names.
const (
	SinkNone    = "none"
	SinkDiscard = "discard"
	SinkCommand = "command"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid configuration")

// Config represents the full configuration for a pointstream session.
type Config struct {
	Network    NetworkConfig   `yaml:"network"`
	Decoders   []DecoderConfig `yaml:"decoders"`
	Aux        AuxConfig       `yaml:"aux"`
	Depth      *DepthConfig    `yaml:"depth"`
	Audio      AudioConfig     `yaml:"audio"`
	Log        LogConfig       `yaml:"log"`
	FFmpegPath string          `yaml:"ffmpeg_path"`
}

// NetworkConfig selects and configures the packet transport.
type NetworkConfig struct {
	Transport string   `yaml:"transport"`
	Address   string   `yaml:"address"`
	Port      int      `yaml:"port"`
	TimeoutMs int      `yaml:"timeout_ms"`
	Files     []string `yaml:"files"`    // mp4 only, one per decoder
	Loop      bool     `yaml:"loop"`     // mp4 only
	Realtime  bool     `yaml:"realtime"` // mp4 only
}

// DecoderConfig configures one decoder channel.
type DecoderConfig struct {
	Hardware    string `yaml:"hardware"`
	Codec       string `yaml:"codec"`
	Device      string `yaml:"device"`
	PixelFormat string `yaml:"pixel_format"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	Profile     int    `yaml:"profile"`
	QueueDepth  int    `yaml:"queue_depth"`
}

// AuxConfig configures the auxiliary channels that follow the decoders.
type AuxConfig struct {
	Channels     int    `yaml:"channels"`
	Codec        string `yaml:"codec"`
	AudioChannel int    `yaml:"audio_channel"`
}

// DepthConfig holds camera intrinsics. Without it no point cloud is produced.
type DepthConfig struct {
	PPX       float32 `yaml:"ppx"`
	PPY       float32 `yaml:"ppy"`
	FX        float32 `yaml:"fx"`
	FY        float32 `yaml:"fy"`
	DepthUnit float32 `yaml:"depth_unit"`
	MinMargin float32 `yaml:"min_margin"`
	MaxMargin float32 `yaml:"max_margin"`
	Scale     float32 `yaml:"scale"`
	Filter    bool    `yaml:"filter"`
}

// AudioConfig configures the audio sink fed from the aux audio channel.
type AudioConfig struct {
	Sink       string `yaml:"sink"`
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	Buffer     int    `yaml:"buffer"` // samples queued before dropping
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console, text or json
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Network: NetworkConfig{
			Transport: TransportUDP,
			Port:      9766,
			TimeoutMs: 500,
		},
		Decoders: []DecoderConfig{
			{Codec: "h264", PixelFormat: media.FormatP010LE.String()},
		},
		Aux: AuxConfig{
			Codec: "pcm",
		},
		Audio: AudioConfig{
			Sink:       SinkDiscard,
			SampleRate: 24000,
			Channels:   1,
			Buffer:     24000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Timeout returns the transport receive bound.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Network.TimeoutMs) * time.Millisecond
}

// Validate checks the configuration and reports every problem found.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	switch c.Network.Transport {
	case TransportUDP, TransportQUIC:
		if c.Network.Port < 0 || c.Network.Port > 65535 {
			bad("network.port %d out of range", c.Network.Port)
		}
	case TransportMP4:
		if len(c.Network.Files) != len(c.Decoders) {
			bad("network.files has %d entries for %d decoders", len(c.Network.Files), len(c.Decoders))
		}
	default:
		bad("network.transport %q is not one of udp, quic, mp4", c.Network.Transport)
	}
	if c.Network.TimeoutMs <= 0 {
		bad("network.timeout_ms must be positive, got %d", c.Network.TimeoutMs)
	}

	if len(c.Decoders) == 0 || len(c.Decoders) > MaxDecoders {
		bad("decoders must have 1 to %d entries, got %d", MaxDecoders, len(c.Decoders))
	}
	for i, d := range c.Decoders {
		if d.Codec == "" {
			bad("decoders[%d].codec is required", i)
		}
		if _, err := media.ParsePixelFormat(d.PixelFormat); err != nil {
			bad("decoders[%d].pixel_format: %v", i, err)
		}
		if d.Width < 0 || d.Height < 0 {
			bad("decoders[%d] size %dx%d is negative", i, d.Width, d.Height)
		}
		if d.QueueDepth < 0 {
			bad("decoders[%d].queue_depth must not be negative", i)
		}
	}

	if c.Aux.Channels < 0 || c.Aux.Channels > MaxAuxChannels {
		bad("aux.channels must be 0 to %d, got %d", MaxAuxChannels, c.Aux.Channels)
	}
	if c.Aux.Channels > 0 {
		if _, err := audio.NewDecoder(c.Aux.Codec); err != nil {
			bad("aux.codec: %v", err)
		}
		if c.Aux.AudioChannel < 0 || c.Aux.AudioChannel >= c.Aux.Channels {
			bad("aux.audio_channel %d outside 0..%d", c.Aux.AudioChannel, c.Aux.Channels-1)
		}
	}

	if c.Depth != nil {
		if _, err := depth.New(c.ToDepthConfig()); err != nil {
			bad("depth: %v", err)
		}
	}

	switch c.Audio.Sink {
	case "", SinkNone, SinkDiscard:
	case SinkCommand:
		if strings.TrimSpace(c.Audio.Command) == "" {
			bad("audio.command is required for the command sink")
		}
	default:
		bad("audio.sink %q is not one of none, discard, command", c.Audio.Sink)
	}
	if c.Audio.SampleRate <= 0 {
		bad("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		bad("audio.channels must be 1 or 2, got %d", c.Audio.Channels)
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error", "quiet":
	default:
		bad("log.level %q is not recognized", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "console", "text", "json":
	default:
		bad("log.format %q is not one of console, text, json", c.Log.Format)
	}

	return errors.Join(errs...)
}

// ToDecoderConfigs converts the decoder sections to decoder.Config values.
func (c Config) ToDecoderConfigs() []decoder.Config {
	out := make([]decoder.Config, len(c.Decoders))
	for i, d := range c.Decoders {
		out[i] = decoder.Config{
			Codec:       d.Codec,
			Hardware:    d.Hardware,
			Device:      d.Device,
			PixelFormat: d.PixelFormat,
			Width:       d.Width,
			Height:      d.Height,
			Profile:     d.Profile,
			QueueDepth:  d.QueueDepth,
		}
	}
	return out
}

// ToDepthConfig converts the depth section. It returns the zero Config when
// the section is absent.
func (c Config) ToDepthConfig() depth.Config {
	if c.Depth == nil {
		return depth.Config{}
	}
	return depth.Config{
		PPX:       c.Depth.PPX,
		PPY:       c.Depth.PPY,
		FX:        c.Depth.FX,
		FY:        c.Depth.FY,
		DepthUnit: c.Depth.DepthUnit,
		MinMargin: c.Depth.MinMargin,
		MaxMargin: c.Depth.MaxMargin,
		Scale:     c.Depth.Scale,
		Filter:    c.Depth.Filter,
	}
}

// ToOrchestratorConfig converts Config to orchestrator.Config.
func (c Config) ToOrchestratorConfig() orchestrator.Config {
	audioChannel := c.Aux.AudioChannel
	if c.Aux.Channels == 0 || c.Audio.Sink == SinkNone {
		audioChannel = orchestrator.NoAudio
	}
	return orchestrator.Config{
		Decoders:     len(c.Decoders),
		Auxes:        c.Aux.Channels,
		AudioChannel: audioChannel,
	}
}
