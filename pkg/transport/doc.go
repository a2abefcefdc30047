// Package transport provides the byte level link to the embedded device.
package transport

// A Transport is polled, never pushed: the scheduler asks how many bytes
// are pending and then collects a burst within a time budget. There is no
// framing at this level, a burst is expected to carry exactly one frame.
//
// Any failure is reported as *Error and is fatal to the owner; nothing is
// retried here.
