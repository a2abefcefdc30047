package transport

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Transport is the byte level I/O endpoint to the device.
type Transport interface {
	// BytesAvailable returns the number of bytes readable without blocking.
	BytesAvailable() (int, error)
	// ReadAvailable reads arriving bytes until none is currently available
	// or budget elapses, whichever comes first.
	ReadAvailable(budget time.Duration) ([]byte, error)
	// Write writes the whole buffer, blocking until done.
	Write([]byte) error

	io.Closer
}

// Port is the raw byte stream underneath a Stream.
// go.bug.st/serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
	// SetReadTimeout bounds how long the next Read waits for data.
	// A Read timing out returns 0 bytes and no error.
	SetReadTimeout(time.Duration) error
}

var (
	// ErrClosed indicates the transport has been closed.
	ErrClosed = errors.New("transport closed")
	// ErrNoDevice indicates no device matched during discovery.
	ErrNoDevice = errors.New("no device found")
)

// Error is the failure of a transport operation.
type Error struct {
	Op  string
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransportError tells if err is caused by a transport failure.
func IsTransportError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Op: op, Err: err}
}
