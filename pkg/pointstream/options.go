package pointstream

import (
	"github.com/user/pointstream/pkg/decoder"
	"github.com/user/pointstream/pkg/ports"
)

// Option customizes Init.
type Option func(*options)

type options struct {
	src      ports.PacketSource
	sink     ports.AudioSink
	log      ports.Logger
	registry *decoder.Registry
}

// WithPacketSource replaces the configured transport. The session takes
// ownership of src and closes it.
func WithPacketSource(src ports.PacketSource) Option {
	return func(o *options) { o.src = src }
}

// WithAudioSink replaces the configured audio sink. The session closes it.
func WithAudioSink(sink ports.AudioSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithLogger replaces the logger built from the log section.
func WithLogger(log ports.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithRegistry replaces the default decoder registry.
func WithRegistry(reg *decoder.Registry) Option {
	return func(o *options) { o.registry = reg }
}
