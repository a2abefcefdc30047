package transport

import (
	"errors"
	"net"
	"time"
)

// MinConnPoll is the shortest read wait on a net.Conn. An already
// expired deadline fails the read before looking at the socket, so a
// zero timeout would never see any data.
const MinConnPoll = time.Millisecond

type connPort struct {
	net.Conn
	timeout time.Duration
}

// ConnPort adapts a deadline based connection (TCP, WebSocket) to a Port.
func ConnPort(conn net.Conn) Port {
	return &connPort{Conn: conn, timeout: -1}
}

// SetReadTimeout implements Port. A negative timeout blocks forever.
func (p *connPort) SetReadTimeout(timeout time.Duration) error {
	p.timeout = timeout
	return nil
}

// Read implements Port.
func (p *connPort) Read(b []byte) (int, error) {
	var deadline time.Time
	if p.timeout >= 0 {
		wait := p.timeout
		if wait < MinConnPoll {
			wait = MinConnPoll
		}
		deadline = time.Now().Add(wait)
	}
	if err := p.Conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	n, err := p.Conn.Read(b)
	var netErr net.Error
	if err != nil && errors.As(err, &netErr) && netErr.Timeout() {
		return n, nil
	}
	return n, err
}

// Dial opens a TCP connection to a serial-over-network adapter.
func Dial(address string) (*Stream, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, &Error{Op: "dial", Err: err}
	}
	return NewStream(ConnPort(conn)), nil
}
