// Package msgs provides task message buffers.
package msgs

// Proto carries protocol buffer messages, the encoding the device firmware
// uses (nanopb on the device side). Raw carries opaque bytes and is mostly
// used for debugging.
