// Package mocks provides mock implementations for testing.
package mocks

import (
	"sync"

	"github.com/user/pointstream/pkg/media"
	"github.com/user/pointstream/pkg/ports"
)

// VideoCodec is a mock implementation of ports.VideoCodec.
type VideoCodec struct {
	OpenFunc         func(cfg ports.CodecConfig) error
	SendPacketFunc   func(pkt []byte) error
	ReceiveFrameFunc func() (*media.Frame, error)
	ResetFunc        func()
	CloseFunc        func() error

	mu sync.Mutex

	// Recorded calls for verification
	OpenConfig   ports.CodecConfig
	SentPackets  [][]byte
	ReceiveCalls int
	ResetCalls   int
	CloseCalls   int
}

func (m *VideoCodec) Open(cfg ports.CodecConfig) error {
	m.mu.Lock()
	m.OpenConfig = cfg
	m.mu.Unlock()
	if m.OpenFunc != nil {
		return m.OpenFunc(cfg)
	}
	return nil
}

func (m *VideoCodec) SendPacket(pkt []byte) error {
	m.mu.Lock()
	m.SentPackets = append(m.SentPackets, pkt)
	m.mu.Unlock()
	if m.SendPacketFunc != nil {
		return m.SendPacketFunc(pkt)
	}
	return nil
}

func (m *VideoCodec) ReceiveFrame() (*media.Frame, error) {
	m.mu.Lock()
	m.ReceiveCalls++
	m.mu.Unlock()
	if m.ReceiveFrameFunc != nil {
		return m.ReceiveFrameFunc()
	}
	return nil, ports.ErrAgain
}

func (m *VideoCodec) Reset() {
	m.mu.Lock()
	m.ResetCalls++
	m.mu.Unlock()
	if m.ResetFunc != nil {
		m.ResetFunc()
	}
}

func (m *VideoCodec) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Sent returns a copy of the recorded packets.
func (m *VideoCodec) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.SentPackets...)
}

var _ ports.VideoCodec = (*VideoCodec)(nil)
