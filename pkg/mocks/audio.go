package mocks

import (
	"sync"

	"github.com/user/pointstream/pkg/ports"
)

// AudioSink is a mock implementation of ports.AudioSink that records samples.
type AudioSink struct {
	WriteFunc func(samples []int16) (int, error)
	CloseFunc func() error

	mu          sync.Mutex
	samples     []int16
	writes      int
	CloseCalled bool
}

func (m *AudioSink) Write(samples []int16) (int, error) {
	m.mu.Lock()
	m.writes++
	m.mu.Unlock()
	if m.WriteFunc != nil {
		return m.WriteFunc(samples)
	}
	m.mu.Lock()
	m.samples = append(m.samples, samples...)
	m.mu.Unlock()
	return len(samples), nil
}

func (m *AudioSink) Close() error {
	m.mu.Lock()
	m.CloseCalled = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Samples returns a copy of every sample written so far.
func (m *AudioSink) Samples() []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int16(nil), m.samples...)
}

// Writes returns the number of Write calls.
func (m *AudioSink) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

var _ ports.AudioSink = (*AudioSink)(nil)

// AuxDecoder is a mock implementation of ports.AuxDecoder.
type AuxDecoder struct {
	DecodeFunc func(data []byte) ([]int16, error)
}

func (m *AuxDecoder) Decode(data []byte) ([]int16, error) {
	if m.DecodeFunc != nil {
		return m.DecodeFunc(data)
	}
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = int16(b)
	}
	return out, nil
}

var _ ports.AuxDecoder = (*AuxDecoder)(nil)
