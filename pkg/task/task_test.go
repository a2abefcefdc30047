package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type bytesMsg struct {
	data []byte
}

func (m *bytesMsg) Marshal() ([]byte, error) { return m.data, nil }
func (m *bytesMsg) Unmarshal(b []byte) error { m.data = append([]byte(nil), b...); return nil }
func (m *bytesMsg) Reset()                   { m.data = nil }

// testOwner mirrors the bookkeeping of the scheduler without any I/O.
type testOwner struct {
	registry  *Registry
	queue     *Queue
	txIDs     map[ID]bool
	completed []ID
}

func newTestOwner() *testOwner {
	return &testOwner{registry: NewRegistry(), queue: NewQueue(), txIDs: make(map[ID]bool)}
}

func (o *testOwner) Register(t *Task) error {
	if o.txIDs[t.ID()] {
		return &DuplicateTaskError{ID: t.ID()}
	}
	if t.Direction() == Tx {
		if o.registry.IsRegistered(t.ID()) {
			return &DuplicateTaskError{ID: t.ID()}
		}
		o.txIDs[t.ID()] = true
		return nil
	}
	return o.registry.Register(t)
}

func (o *testOwner) Schedule(t *Task) bool { return o.queue.Enqueue(t) }
func (o *testOwner) IsQueued(t *Task) bool { return o.queue.Contains(t) }

func (o *testOwner) SendCompletion(t *Task) error {
	o.completed = append(o.completed, t.ID())
	return nil
}

func TestRxTaskRequiresCallback(t *testing.T) {
	owner := newTestOwner()
	task, err := NewRx(owner, 3, &bytesMsg{}, nil)
	require.Nil(t, task)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, ID(3), cfgErr.ID)
	require.False(t, owner.registry.IsRegistered(3))
	require.Equal(t, 0, owner.registry.Len())
}

func TestTaskRequiresMessage(t *testing.T) {
	owner := newTestOwner()
	_, err := NewTx(owner, 3, nil, nil)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

func TestDuplicateRxTask(t *testing.T) {
	owner := newTestOwner()
	first, err := NewRx(owner, 5, &bytesMsg{}, func() {})
	require.NoError(t, err)
	second, err := NewRx(owner, 5, &bytesMsg{}, func() {})
	require.Nil(t, second)
	var dupErr *DuplicateTaskError
	require.True(t, errors.As(err, &dupErr))
	require.Equal(t, ID(5), dupErr.ID)
	require.True(t, owner.registry.Lookup(5) == first)
	require.Equal(t, 1, owner.registry.Len())
}

func TestTxTaskIsNotRoutable(t *testing.T) {
	owner := newTestOwner()
	_, err := NewTx(owner, 9, &bytesMsg{}, nil)
	require.NoError(t, err)
	require.False(t, owner.registry.IsRegistered(9))
	require.Nil(t, owner.registry.Lookup(9))
}

func TestScheduleIsIdempotent(t *testing.T) {
	owner := newTestOwner()
	task, err := NewTx(owner, 7, &bytesMsg{}, nil)
	require.NoError(t, err)
	require.False(t, task.IsPending())
	require.True(t, task.Schedule())
	require.False(t, task.Schedule())
	require.Equal(t, 1, owner.queue.Len())
	require.True(t, task.IsPending())
}

func TestNotifyPeerOfCompletion(t *testing.T) {
	owner := newTestOwner()
	task, err := NewRx(owner, 2, &bytesMsg{}, func() {})
	require.NoError(t, err)
	require.NoError(t, task.NotifyPeerOfCompletion())
	require.Equal(t, []ID{2}, owner.completed)
}

func TestSetCallback(t *testing.T) {
	owner := newTestOwner()
	rx, err := NewRx(owner, 1, &bytesMsg{}, func() {})
	require.NoError(t, err)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(rx.SetCallback(nil), &cfgErr))
	require.NotNil(t, rx.Callback())

	tx, err := NewTx(owner, 2, &bytesMsg{}, nil)
	require.NoError(t, err)
	require.Nil(t, tx.Callback())
	called := false
	require.NoError(t, tx.SetCallback(func() { called = true }))
	tx.Callback()()
	require.True(t, called)
	require.NoError(t, tx.SetCallback(nil))
	require.Nil(t, tx.Callback())
}

func TestFrame(t *testing.T) {
	owner := newTestOwner()
	task, err := NewTx(owner, 0xab, &bytesMsg{data: []byte{1, 2, 3}}, nil)
	require.NoError(t, err)
	frame, err := task.Frame()
	require.NoError(t, err)
	require.Equal(t, []byte{0xab, 1, 2, 3}, frame)

	task.Message().Reset()
	frame, err = task.Frame()
	require.NoError(t, err)
	require.Equal(t, []byte{0xab}, frame)
}

func TestDirectionString(t *testing.T) {
	require.Equal(t, "rx", Rx.String())
	require.Equal(t, "tx", Tx.String())
	require.Equal(t, "Direction(5)", Direction(5).String())
}
