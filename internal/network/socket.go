package network

import (
	"net"
	"sync"
	"time"
)

// UDPSocket is the subset of *net.UDPConn the listener uses, so tests can
// drive it without a real socket.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// ListenUDP opens a real socket on address.
func ListenUDP(address string) (UDPSocket, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPPacket is one datagram queued on a MockUDPSocket.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// MockUDPSocket replays queued datagrams and records replies. Reads past
// the end of the queue time out, like an idle socket.
type MockUDPSocket struct {
	mu        sync.Mutex
	packets   []MockUDPPacket
	replies   []MockUDPPacket
	closed    bool
	rcvBuf    int
	ReadError error
}

func NewMockUDPSocket(packets ...MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{packets: packets}
}

func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, nil, net.ErrClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		m.mu.Unlock()
		return 0, nil, err
	}
	if len(m.packets) == 0 {
		m.mu.Unlock()
		// Stand-in for the read deadline expiring.
		time.Sleep(time.Millisecond)
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	pkt := m.packets[0]
	m.packets = m.packets[1:]
	m.mu.Unlock()
	return copy(b, pkt.Data), pkt.Addr, nil
}

func (m *MockUDPSocket) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, net.ErrClosed
	}
	m.replies = append(m.replies, MockUDPPacket{Data: append([]byte(nil), b...), Addr: addr})
	return len(b), nil
}

func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rcvBuf = bytes
	return nil
}

func (m *MockUDPSocket) SetReadDeadline(time.Time) error { return nil }

func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockUDPSocket) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4567}
}

// Replies returns a copy of everything written so far.
func (m *MockUDPSocket) Replies() []MockUDPPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockUDPPacket(nil), m.replies...)
}

// Pending reports how many queued datagrams have not been read.
func (m *MockUDPSocket) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packets)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
