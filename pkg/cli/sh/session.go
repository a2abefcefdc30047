package sh

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	fx "github.com/robotalks/taskbridge/pkg/framework"
	"github.com/robotalks/taskbridge/pkg/msgs"
	"github.com/robotalks/taskbridge/pkg/scheduler"
	"github.com/robotalks/taskbridge/pkg/task"
)

// DefaultCommandTimeout limits how long a shell command waits for the loop.
const DefaultCommandTimeout = time.Second

// Session is a running loop driving a Scheduler for the shell.
type Session struct {
	Device string
	Loop   *fx.Loop
	Sched  *scheduler.Scheduler

	// Output receives frames of listened tasks. It's called on the loop goroutine.
	Output func(id task.ID, payload []byte)

	cancel  func()
	doneCh  chan struct{}
	err     error
	senders map[task.ID]*sender
}

type sender struct {
	task   *task.Task
	msg    *msgs.Raw
	latest []byte
}

// request runs fn on the loop goroutine.
type request struct {
	fn    func(*Session) (interface{}, error)
	resCh chan result
}

type result struct {
	val interface{}
	err error
}

// NewSession creates a Session over sched. Call Start to run it.
func NewSession(device string, sched *scheduler.Scheduler, loop *fx.Loop) *Session {
	s := &Session{
		Device:  device,
		Loop:    loop,
		Sched:   sched,
		senders: make(map[task.ID]*sender),
	}
	loop.AddController(fx.PrLvIntake, s)
	loop.Add(sched)
	return s
}

// Start runs the loop in background.
func (s *Session) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel, s.doneCh = cancel, make(chan struct{})
	go func() {
		s.err = s.Loop.Run(ctx)
		close(s.doneCh)
	}()
}

// Stop stops the loop and closes the transport.
func (s *Session) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.doneCh
		s.cancel = nil
	}
	return s.Sched.Close()
}

// Done is closed when the loop stops, e.g. the device is unplugged.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// Err returns the error which stopped the loop, valid after Done is closed.
func (s *Session) Err() error {
	return s.err
}

// Do runs fn on the loop goroutine and waits for its result.
func (s *Session) Do(fn func(*Session) (interface{}, error), timeout time.Duration) (interface{}, error) {
	req := &request{fn: fn, resCh: make(chan result, 1)}
	s.Loop.PostMessage(req)
	s.Loop.TriggerNext()
	select {
	case res := <-req.resCh:
		return res.val, res.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("command timeout")
	}
}

// Control implements framework.Controller.
func (s *Session) Control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		if req, ok := mc.CurrentMessage().(*request); ok {
			mc.MessageTaken()
			val, err := req.fn(s)
			req.resCh <- result{val: val, err: err}
		}
	}))
	return nil
}

// Send schedules a Tx task carrying data. The task is created on first use
// and every retransmission carries the latest data.
func (s *Session) Send(id task.ID, data []byte) (bool, error) {
	snd := s.senders[id]
	if snd == nil {
		snd = &sender{msg: msgs.NewRaw(nil)}
		t, err := task.NewTx(s.Sched, id, snd.msg, func() {
			snd.msg.Set(snd.latest)
		})
		if err != nil {
			return false, err
		}
		snd.task = t
		s.senders[id] = snd
	}
	snd.latest = data
	return snd.task.Schedule(), nil
}

// Listen registers an Rx task forwarding frames to Output.
func (s *Session) Listen(id task.ID) error {
	msg := msgs.NewRaw(nil)
	_, err := task.NewRx(s.Sched, id, msg, func() {
		if s.Output != nil {
			s.Output(id, msg.Bytes())
		}
	})
	return err
}

// Cancel drops the pending Tx task with id.
func (s *Session) Cancel(id task.ID) (bool, error) {
	t := s.Sched.TxTask(id)
	if t == nil {
		return false, fmt.Errorf("task %d is not a tx task", id)
	}
	return s.Sched.Cancel(t), nil
}

// PendingItem describes a queued task.
type PendingItem struct {
	ID      task.ID `json:"id"`
	Payload string  `json:"payload"`
}

// Pending lists queued tasks, head first.
func (s *Session) Pending() []PendingItem {
	tasks := s.Sched.Pending()
	items := make([]PendingItem, 0, len(tasks))
	for _, t := range tasks {
		item := PendingItem{ID: t.ID()}
		if snd := s.senders[t.ID()]; snd != nil {
			item.Payload = hex.EncodeToString(snd.latest)
		}
		items = append(items, item)
	}
	return items
}
