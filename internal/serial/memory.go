package serial

import (
	"bytes"
	"io"
	"sync"
)

// MemoryPort is an in-process Port fed by the caller. It backs tests and
// simulated links.
type MemoryPort struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool

	// ReadErr, when set, is returned by the next Read.
	ReadErr error
	// ReadCalls counts Read invocations.
	ReadCalls int
}

// NewMemoryPort returns an empty port.
func NewMemoryPort() *MemoryPort {
	return &MemoryPort{}
}

// Feed queues bytes for subsequent reads.
func (m *MemoryPort) Feed(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf.Write(p)
}

func (m *MemoryPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadCalls++
	if m.closed {
		return 0, io.ErrClosedPipe
	}
	if m.ReadErr != nil {
		err := m.ReadErr
		m.ReadErr = nil
		return 0, err
	}
	if m.buf.Len() == 0 {
		return 0, nil
	}
	return m.buf.Read(p)
}

func (m *MemoryPort) Buffered() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, io.ErrClosedPipe
	}
	return m.buf.Len(), nil
}

func (m *MemoryPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MemoryPort) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
