package sh

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/taskbridge/pkg/framework"
	"github.com/robotalks/taskbridge/pkg/scheduler"
	"github.com/robotalks/taskbridge/pkg/task"
)

type testTransport struct {
	bursts [][]byte
	writes [][]byte
	closed bool
}

func (t *testTransport) BytesAvailable() (int, error) {
	if len(t.bursts) == 0 {
		return 0, nil
	}
	return len(t.bursts[0]), nil
}

func (t *testTransport) ReadAvailable(time.Duration) ([]byte, error) {
	if len(t.bursts) == 0 {
		return nil, nil
	}
	data := t.bursts[0]
	t.bursts = t.bursts[1:]
	return data, nil
}

func (t *testTransport) Write(data []byte) error {
	t.writes = append(t.writes, append([]byte(nil), data...))
	return nil
}

func (t *testTransport) Close() error {
	t.closed = true
	return nil
}

func newTestSession(tr *testTransport) *Session {
	loop := fx.NewLoop()
	loop.Interval = time.Millisecond
	return NewSession("test", scheduler.New(tr), loop)
}

func TestParseID(t *testing.T) {
	id, err := ParseID("7")
	require.NoError(t, err)
	require.Equal(t, task.ID(7), id)
	id, err = ParseID("0xff")
	require.NoError(t, err)
	require.Equal(t, task.ID(255), id)
	_, err = ParseID("256")
	require.Error(t, err)
	_, err = ParseID("x")
	require.Error(t, err)
}

func TestSessionSendAndCancel(t *testing.T) {
	tr := &testTransport{}
	s := newTestSession(tr)

	queued, err := s.Send(7, []byte{1, 2})
	require.NoError(t, err)
	require.True(t, queued)
	queued, err = s.Send(7, []byte{3})
	require.NoError(t, err)
	require.False(t, queued)
	require.Equal(t, []PendingItem{{ID: 7, Payload: "03"}}, s.Pending())

	require.NoError(t, s.Sched.Tick())
	require.Equal(t, [][]byte{{7, 3}}, tr.writes)

	ok, err := s.Cancel(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, s.Pending())
	ok, err = s.Cancel(7)
	require.NoError(t, err)
	require.False(t, ok)
	_, err = s.Cancel(9)
	require.Error(t, err)
}

func TestSessionListen(t *testing.T) {
	tr := &testTransport{}
	s := newTestSession(tr)
	var got []byte
	s.Output = func(id task.ID, payload []byte) {
		require.Equal(t, task.ID(4), id)
		got = payload
	}
	require.NoError(t, s.Listen(4))
	var dupErr *task.DuplicateTaskError
	require.True(t, errors.As(s.Listen(4), &dupErr))
	_, err := s.Send(4, nil)
	require.True(t, errors.As(err, &dupErr))

	tr.bursts = append(tr.bursts, []byte{4, 0xde, 0xad})
	require.NoError(t, s.Sched.Tick())
	require.Equal(t, []byte{0xde, 0xad}, got)
	require.Equal(t, [][]byte{{4}}, tr.writes)
}

func TestSessionDo(t *testing.T) {
	tr := &testTransport{}
	s := newTestSession(tr)
	s.Start()

	val, err := s.Do(func(s *Session) (interface{}, error) {
		return s.Send(5, []byte{0xaa})
	}, 5*time.Second)
	require.NoError(t, err)
	require.True(t, val.(bool))

	var writes [][]byte
	for i := 0; i < 100 && len(writes) == 0; i++ {
		val, err = s.Do(func(s *Session) (interface{}, error) {
			return append([][]byte(nil), tr.writes...), nil
		}, 5*time.Second)
		require.NoError(t, err)
		writes = val.([][]byte)
	}
	require.Equal(t, [][]byte{{5, 0xaa}}, writes)

	require.NoError(t, s.Stop())
	require.True(t, tr.closed)
	_, err = s.Do(func(*Session) (interface{}, error) { return nil, nil }, 10*time.Millisecond)
	require.Error(t, err)
}
