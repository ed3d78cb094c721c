package network

import (
	"net"
	"sync"
	"time"
)

// UDPSocket is the part of *net.UDPConn the listener uses.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory opens sockets for the listener.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory opens real sockets with net.ListenUDP.
type RealUDPSocketFactory struct{}

// ListenUDP creates a new UDP socket.
func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPSocket replays queued datagrams and then reports read timeouts
// until closed. It is safe for use from the listener goroutine and a test
// goroutine at the same time.
type MockUDPSocket struct {
	mu sync.Mutex

	datagrams [][]byte
	from      *net.UDPAddr
	readErrs  []error

	ReadBufferSize int
	Deadlines      int
	Closed         bool
	LocalAddress   *net.UDPAddr

	// SetReadBufferError is returned by SetReadBuffer if set.
	SetReadBufferError error
}

// NewMockUDPSocket queues datagrams as if sent from a sensor on the usual
// Velodyne data port.
func NewMockUDPSocket(datagrams ...[]byte) *MockUDPSocket {
	return &MockUDPSocket{
		datagrams:    datagrams,
		from:         &net.UDPAddr{IP: net.IPv4(192, 168, 1, 201), Port: 2368},
		LocalAddress: &net.UDPAddr{IP: net.IPv4zero, Port: 2368},
	}
}

// Push queues another datagram.
func (m *MockUDPSocket) Push(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datagrams = append(m.datagrams, data)
}

// FailNextRead makes the next read return err instead of a datagram.
func (m *MockUDPSocket) FailNextRead(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErrs = append(m.readErrs, err)
}

// ReadFromUDP returns the next queued datagram, a timeout when the queue is
// empty, or net.ErrClosed after Close.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return 0, nil, net.ErrClosed
	}
	if len(m.readErrs) > 0 {
		err := m.readErrs[0]
		m.readErrs = m.readErrs[1:]
		return 0, nil, err
	}
	if len(m.datagrams) == 0 {
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	n := copy(b, m.datagrams[0])
	m.datagrams = m.datagrams[1:]
	return n, m.from, nil
}

// SetReadBuffer records the buffer size.
func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetReadBufferError != nil {
		return m.SetReadBufferError
	}
	m.ReadBufferSize = bytes
	return nil
}

// SetReadDeadline counts deadline updates.
func (m *MockUDPSocket) SetReadDeadline(time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deadlines++
	return nil
}

// Close marks the socket as closed.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (m *MockUDPSocket) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}

// LocalAddr returns the mock local address.
func (m *MockUDPSocket) LocalAddr() net.Addr {
	return m.LocalAddress
}

// MockUDPSocketFactory hands out one socket and records the listen address.
type MockUDPSocketFactory struct {
	Socket *MockUDPSocket
	Error  error

	mu      sync.Mutex
	Network string
	Addr    *net.UDPAddr
}

// ListenUDP returns the configured mock socket.
func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Network, f.Addr = network, laddr
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Socket, nil
}

// timeoutError implements net.Error for timeout simulation.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
