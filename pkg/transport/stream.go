package transport

import (
	"io"
	"time"
)

// Stream implements Transport over a Port.
type Stream struct {
	// InterByteGap is how long ReadAvailable waits for more bytes before
	// it considers none currently available. Zero means no waiting.
	InterByteGap time.Duration

	port       Port
	buf        []byte
	pending    []byte
	timeout    time.Duration
	timeoutSet bool
	closed     bool
}

const readChunkSize = 256

// NewStream creates a Stream over port.
func NewStream(port Port) *Stream {
	return &Stream{port: port, buf: make([]byte, readChunkSize)}
}

// Port returns the underlying port.
func (s *Stream) Port() Port {
	return s.port
}

// BytesAvailable implements Transport.
func (s *Stream) BytesAvailable() (int, error) {
	if s.closed {
		return 0, &Error{Op: "poll", Err: ErrClosed}
	}
	if len(s.pending) == 0 {
		if _, err := s.fill(0); err != nil {
			return 0, opError("poll", err)
		}
	}
	return len(s.pending), nil
}

// ReadAvailable implements Transport.
func (s *Stream) ReadAvailable(budget time.Duration) ([]byte, error) {
	if s.closed {
		return nil, &Error{Op: "read", Err: ErrClosed}
	}
	deadline := time.Now().Add(budget)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := s.InterByteGap
		if wait > remaining {
			wait = remaining
		}
		n, err := s.fill(wait)
		if err != nil {
			return nil, opError("read", err)
		}
		if n == 0 {
			break
		}
	}
	data := s.pending
	s.pending = nil
	return data, nil
}

// Write implements Transport.
func (s *Stream) Write(data []byte) error {
	if s.closed {
		return &Error{Op: "write", Err: ErrClosed}
	}
	for len(data) > 0 {
		n, err := s.port.Write(data)
		if err != nil {
			return opError("write", err)
		}
		if n == 0 {
			return &Error{Op: "write", Err: io.ErrShortWrite}
		}
		data = data[n:]
	}
	return nil
}

// Close implements Transport.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	return opError("close", s.port.Close())
}

// fill reads once, waiting up to wait for data, and buffers what arrived.
func (s *Stream) fill(wait time.Duration) (int, error) {
	if !s.timeoutSet || s.timeout != wait {
		if err := s.port.SetReadTimeout(wait); err != nil {
			return 0, err
		}
		s.timeout, s.timeoutSet = wait, true
	}
	n, err := s.port.Read(s.buf)
	if n > 0 {
		s.pending = append(s.pending, s.buf[:n]...)
	}
	return n, err
}
