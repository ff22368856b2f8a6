// Package audiosink provides ports.AudioSink implementations.
package audiosink

import (
	"sync/atomic"

	"github.com/user/pointstream/pkg/ports"
)

// Discard accepts and drops every sample.
type Discard struct {
	samples atomic.Uint64
}

// NewDiscard creates a discarding sink.
func NewDiscard() *Discard {
	return &Discard{}
}

// Write accepts all samples.
func (s *Discard) Write(samples []int16) (int, error) {
	s.samples.Add(uint64(len(samples)))
	return len(samples), nil
}

// Samples returns the number of samples accepted so far.
func (s *Discard) Samples() uint64 {
	return s.samples.Load()
}

// Close does nothing.
func (s *Discard) Close() error {
	return nil
}

var _ ports.AudioSink = (*Discard)(nil)
