package scheduler

import (
	"fmt"

	"github.com/robotalks/taskbridge/pkg/task"
)

// PayloadDecodeError indicates an inbound payload didn't match the
// schema of its target task.
type PayloadDecodeError struct {
	ID      task.ID
	Payload []byte
	Err     error
}

// Error implements error.
func (e *PayloadDecodeError) Error() string {
	return fmt.Sprintf("task %d: decode %d byte payload: %v", e.ID, len(e.Payload), e.Err)
}

// Unwrap returns the decoder error.
func (e *PayloadDecodeError) Unwrap() error {
	return e.Err
}

// PayloadEncodeError indicates a task message failed to encode for
// transmission.
type PayloadEncodeError struct {
	ID  task.ID
	Err error
}

// Error implements error.
func (e *PayloadEncodeError) Error() string {
	return fmt.Sprintf("task %d: encode payload: %v", e.ID, e.Err)
}

// Unwrap returns the encoder error.
func (e *PayloadEncodeError) Unwrap() error {
	return e.Err
}
