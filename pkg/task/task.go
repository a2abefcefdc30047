package task

import "fmt"

// ID is the single-byte channel tag of a task.
type ID byte

// Direction tells who services a task.
type Direction int

const (
	// Rx tasks are requested by the device and handled by a host callback.
	Rx Direction = iota
	// Tx tasks are requested by the host and handled by the device.
	Tx
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Rx:
		return "rx"
	case Tx:
		return "tx"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Message is the reusable payload buffer of a task.
// The encoding is up to the implementation.
type Message interface {
	// Marshal encodes current contents.
	Marshal() ([]byte, error)
	// Unmarshal replaces current contents with decoded data.
	Unmarshal([]byte) error
	// Reset clears all fields.
	Reset()
}

// Callback is invoked by the owner when a task is handled.
type Callback func()

// Owner queues and transmits tasks.
type Owner interface {
	// Register claims the task ID. Rx tasks become routable.
	Register(*Task) error
	// Schedule appends a Tx task to the outbound queue if absent.
	Schedule(*Task) bool
	// SendCompletion transmits the task frame immediately, bypassing the queue.
	SendCompletion(*Task) error
	// IsQueued tells if the task is waiting in the outbound queue.
	IsQueued(*Task) bool
}

// Task is a logical request/response channel.
type Task struct {
	id        ID
	direction Direction
	msg       Message
	callback  Callback
	owner     Owner
}

// NewRx creates an Rx task and registers it with the owner.
// Rx tasks must have a callback.
func NewRx(owner Owner, id ID, msg Message, cb Callback) (*Task, error) {
	return newTask(owner, id, Rx, msg, cb)
}

// NewTx creates a Tx task. cb is optional and refreshes msg before
// every transmission.
func NewTx(owner Owner, id ID, msg Message, cb Callback) (*Task, error) {
	return newTask(owner, id, Tx, msg, cb)
}

func newTask(owner Owner, id ID, dir Direction, msg Message, cb Callback) (*Task, error) {
	if msg == nil {
		return nil, &ConfigurationError{ID: id, Reason: "message is required"}
	}
	if dir == Rx && cb == nil {
		return nil, &ConfigurationError{ID: id, Reason: "rx task requires a callback"}
	}
	t := &Task{id: id, direction: dir, msg: msg, callback: cb, owner: owner}
	if err := owner.Register(t); err != nil {
		return nil, err
	}
	return t, nil
}

// ID returns the task ID.
func (t *Task) ID() ID {
	return t.id
}

// Direction returns the task direction.
func (t *Task) Direction() Direction {
	return t.direction
}

// Message returns the payload buffer.
func (t *Task) Message() Message {
	return t.msg
}

// Callback returns the current callback, may be nil for Tx tasks.
func (t *Task) Callback() Callback {
	return t.callback
}

// SetCallback replaces the callback.
func (t *Task) SetCallback(cb Callback) error {
	if t.direction == Rx && cb == nil {
		return &ConfigurationError{ID: t.id, Reason: "rx task requires a callback"}
	}
	t.callback = cb
	return nil
}

// Schedule queues the task for transmission. It returns false if
// the task is already queued.
func (t *Task) Schedule() bool {
	return t.owner.Schedule(t)
}

// NotifyPeerOfCompletion sends the task ID and current message to the
// device right away, outside of the queue.
func (t *Task) NotifyPeerOfCompletion() error {
	return t.owner.SendCompletion(t)
}

// IsPending tells if the task is queued and not yet acknowledged.
func (t *Task) IsPending() bool {
	return t.owner.IsQueued(t)
}

// String implements fmt.Stringer.
func (t *Task) String() string {
	return fmt.Sprintf("Task %d(%s)", t.id, t.direction)
}

// Frame encodes the task as it goes on the wire: ID followed by the
// marshalled message.
func (t *Task) Frame() ([]byte, error) {
	payload, err := t.msg.Marshal()
	if err != nil {
		return nil, err
	}
	frame := make([]byte, len(payload)+1)
	frame[0] = byte(t.id)
	copy(frame[1:], payload)
	return frame, nil
}
