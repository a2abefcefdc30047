// Package scheduler drives task traffic between the host and the device.
package scheduler

// Wire format: every frame is one task ID byte followed by the encoded
// task message. There is no length, delimiter or checksum; the receiver
// takes whatever arrives within the channel-open budget as one frame and
// relies on the payload decoder to consume exactly its schema.
//
// Outbound, only the head of the queue is ever on the wire. A new head is
// sent right away; an unacknowledged head is resent every retry interval
// until the device answers with a frame carrying the same ID.
//
// Inbound frames for a registered Rx task are decoded, handed to the task
// callback and answered with a completion frame.
