package mocks

import (
	"sync"

	"github.com/user/pointstream/pkg/media"
	"github.com/user/pointstream/pkg/ports"
)

// PacketSource is a mock implementation of ports.PacketSource.
// Without ReceivePacketsFunc it replays Packets in order and then times out.
type PacketSource struct {
	ReceivePacketsFunc func() ([][]byte, error)
	CloseFunc          func() error

	Packets [][][]byte

	mu           sync.Mutex
	next         int
	ReceiveCalls int
	CloseCalled  bool
}

func (m *PacketSource) ReceivePackets() ([][]byte, error) {
	m.mu.Lock()
	m.ReceiveCalls++
	if m.ReceivePacketsFunc == nil {
		defer m.mu.Unlock()
		if m.next >= len(m.Packets) {
			return nil, ports.ErrTimeout
		}
		p := m.Packets[m.next]
		m.next++
		return p, nil
	}
	m.mu.Unlock()
	return m.ReceivePacketsFunc()
}

func (m *PacketSource) Close() error {
	m.mu.Lock()
	m.CloseCalled = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

var _ ports.PacketSource = (*PacketSource)(nil)

// FrameSource is a mock implementation of ports.FrameSource.
type FrameSource struct {
	ReceiveAllFunc func(frames []*media.Frame, aux [][]byte) error
	CloseFunc      func() error

	mu           sync.Mutex
	ReceiveCalls int
	CloseCalled  bool
}

func (m *FrameSource) ReceiveAll(frames []*media.Frame, aux [][]byte) error {
	m.mu.Lock()
	m.ReceiveCalls++
	m.mu.Unlock()
	if m.ReceiveAllFunc != nil {
		return m.ReceiveAllFunc(frames, aux)
	}
	return ports.ErrTimeout
}

func (m *FrameSource) Close() error {
	m.mu.Lock()
	m.CloseCalled = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns the number of ReceiveAll calls so far.
func (m *FrameSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReceiveCalls
}

var _ ports.FrameSource = (*FrameSource)(nil)
