// Package task defines the logical request/response channels multiplexed
// over a single byte stream to an embedded peripheral.
package task

// Each task owns a single-byte ID which tags every frame on the wire.
//
// Rx tasks are serviced by the host: the device sends a frame tagged with
// the task ID, the payload is decoded into the task message and the task
// callback runs. Tx tasks are requests from the host: they are queued,
// transmitted one at a time and retransmitted until the device echoes the
// task ID back.
//
// The package holds no I/O. Tasks are bound to an Owner (the scheduler)
// which performs queuing and transmission.
