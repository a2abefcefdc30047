package mqtt

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/protobuf/ptypes/wrappers"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/taskbridge/pkg/framework"
	"github.com/robotalks/taskbridge/pkg/msgs"
	"github.com/robotalks/taskbridge/pkg/scheduler"
	"github.com/robotalks/taskbridge/pkg/task"
)

type testPubSub struct {
	lock      sync.Mutex
	subs      map[string]Handler
	closed    []string
	published map[string][]string
	subCh     chan string
}

func newTestPubSub() *testPubSub {
	return &testPubSub{
		subs:      make(map[string]Handler),
		published: make(map[string][]string),
		subCh:     make(chan string, 16),
	}
}

type testSub struct {
	ps    *testPubSub
	topic string
}

func (s *testSub) Close() error {
	s.ps.lock.Lock()
	defer s.ps.lock.Unlock()
	s.ps.closed = append(s.ps.closed, s.topic)
	return nil
}

func (p *testPubSub) Subscribe(topic string, handler Handler) io.Closer {
	p.lock.Lock()
	p.subs[topic] = handler
	p.lock.Unlock()
	p.subCh <- topic
	return &testSub{ps: p, topic: topic}
}

func (p *testPubSub) Publish(topic string, payload []byte) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.published[topic] = append(p.published[topic], string(payload))
}

type testTransport struct {
	bursts [][]byte
	writes [][]byte
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

func (t *testTransport) Close() error { return nil }

var testBindings = []Binding{
	{ID: 3, Direction: "tx", Topic: "thrusters", Type: "google.protobuf.Int32Value"},
	{ID: 4, Direction: "rx", Topic: "depth", Type: "google.protobuf.Int32Value"},
}

func TestLoadBindings(t *testing.T) {
	bindings, err := LoadBindings(strings.NewReader(`[
		{"id": 3, "direction": "tx", "topic": "thrusters", "type": "google.protobuf.Int32Value"},
		{"id": 4, "direction": "rx", "topic": "depth", "type": "google.protobuf.Int32Value"}
	]`))
	require.NoError(t, err)
	require.Equal(t, testBindings, bindings)

	_, err = LoadBindings(strings.NewReader(`[{"id": 3, "direction": "up", "topic": "a", "type": "b"}]`))
	require.Error(t, err)
	_, err = LoadBindings(strings.NewReader(`[{"id": 3, "direction": "rx", "type": "b"}]`))
	require.Error(t, err)
	_, err = LoadBindings(strings.NewReader(`[{"id": 300, "direction": "rx", "topic": "a", "type": "b"}]`))
	require.Error(t, err)
}

func TestBridgeUnknownType(t *testing.T) {
	sched := scheduler.New(&testTransport{})
	_, err := New(sched, newTestPubSub(), []Binding{{ID: 1, Direction: "rx", Topic: "a", Type: "no.such.Type"}})
	require.Error(t, err)
}

func TestBridgeDuplicateID(t *testing.T) {
	sched := scheduler.New(&testTransport{})
	bindings := append([]Binding(nil), testBindings...)
	bindings = append(bindings, Binding{ID: 4, Direction: "tx", Topic: "x", Type: "google.protobuf.Int32Value"})
	_, err := New(sched, newTestPubSub(), bindings)
	var dupErr *task.DuplicateTaskError
	require.True(t, errors.As(err, &dupErr))
}

func TestBridgeTxTopic(t *testing.T) {
	tr := &testTransport{}
	sched := scheduler.New(tr)
	ps := newTestPubSub()
	b, err := New(sched, ps, testBindings)
	require.NoError(t, err)
	require.Len(t, b.Tasks(), 2)

	loop := fx.NewLoop()
	loop.Add(b, sched)

	recv := b.receiver(b.txs[0], loop)
	recv("thrusters", []byte(`5`))
	recv("thrusters", []byte(`{"value": 5}`))
	recv("thrusters", []byte(`not json`))
	require.NoError(t, loop.RunOnce(context.Background()))
	require.Equal(t, [][]byte{{3, 0x08, 0x05}}, tr.writes)
	require.True(t, b.txs[0].task.IsPending())

	// Retransmissions carry the latest value.
	recv("thrusters", []byte(`6`))
	require.NoError(t, loop.RunOnce(context.Background()))
	require.Len(t, tr.writes, 1)

	tr.bursts = append(tr.bursts, []byte{3})
	require.NoError(t, loop.RunOnce(context.Background()))
	require.False(t, b.txs[0].task.IsPending())
	require.Len(t, tr.writes, 1)

	recv("thrusters", []byte(`7`))
	require.NoError(t, loop.RunOnce(context.Background()))
	require.Equal(t, [][]byte{{3, 0x08, 0x05}, {3, 0x08, 0x07}}, tr.writes)
}

func TestBridgeRxPublishes(t *testing.T) {
	tr := &testTransport{}
	sched := scheduler.New(tr)
	ps := newTestPubSub()
	_, err := New(sched, ps, testBindings)
	require.NoError(t, err)

	tr.bursts = append(tr.bursts, []byte{4, 0x08, 0x2a})
	require.NoError(t, sched.Tick())
	require.Equal(t, []string{`42`}, ps.published["depth"])
	require.Equal(t, [][]byte{{4}}, tr.writes)
}

func TestBridgeRunSubscribes(t *testing.T) {
	sched := scheduler.New(&testTransport{})
	ps := newTestPubSub()
	b, err := New(sched, ps, testBindings)
	require.NoError(t, err)

	loop := fx.NewLoop()
	loop.Interval = time.Millisecond
	loop.Add(b)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case topic := <-ps.subCh:
		require.Equal(t, "thrusters", topic)
	case <-time.After(5 * time.Second):
		t.Fatal("not subscribed")
	}
	cancel()
	require.True(t, errors.Is(<-done, context.Canceled))
	require.Equal(t, []string{"thrusters"}, ps.closed)
	require.Empty(t, ps.subCh)
}

func TestBridgeTxCallbackWithoutValue(t *testing.T) {
	tr := &testTransport{}
	sched := scheduler.New(tr)
	b, err := New(sched, newTestPubSub(), testBindings[:1])
	require.NoError(t, err)
	tk := b.Tasks()[0]
	require.Equal(t, task.Tx, tk.Direction())
	tk.Schedule()
	require.NoError(t, sched.Tick())
	require.Equal(t, [][]byte{{3}}, tr.writes)
	require.Equal(t, int32(0), tk.Message().(*msgs.Proto).Proto().(*wrappers.Int32Value).Value)
}
