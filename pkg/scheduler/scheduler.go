package scheduler

import (
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/taskbridge/pkg/framework"
	"github.com/robotalks/taskbridge/pkg/task"
	"github.com/robotalks/taskbridge/pkg/transport"
)

// Defaults for Config.
const (
	DefaultChannelOpenBudget = 200 * time.Millisecond
	DefaultRetryInterval     = time.Second
)

// Config defines the timing of the scheduler.
type Config struct {
	// ChannelOpenBudget is the longest time spent collecting one inbound frame.
	ChannelOpenBudget time.Duration
	// RetryInterval is the minimum time between transmissions of an
	// unacknowledged task.
	RetryInterval time.Duration
}

// DefaultConfig returns the default timing.
func DefaultConfig() Config {
	return Config{
		ChannelOpenBudget: DefaultChannelOpenBudget,
		RetryInterval:     DefaultRetryInterval,
	}
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithConfig overrides timing. Zero fields keep their defaults.
func WithConfig(conf Config) Option {
	return func(s *Scheduler) {
		if conf.ChannelOpenBudget > 0 {
			s.config.ChannelOpenBudget = conf.ChannelOpenBudget
		}
		if conf.RetryInterval > 0 {
			s.config.RetryInterval = conf.RetryInterval
		}
	}
}

// WithClock replaces the wall clock used for retransmission.
func WithClock(clock fx.TimeSource) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// Scheduler owns the transport, the Rx task registry and the Tx task
// queue. It is not safe for concurrent use: a single goroutine calls Tick
// and everything else.
type Scheduler struct {
	config    Config
	clock     fx.TimeSource
	transport transport.Transport
	registry  *task.Registry
	queue     *task.Queue
	txTasks   map[task.ID]*task.Task

	lastActed *task.Task
	lastReset time.Time
}

// New creates a Scheduler over tr.
func New(tr transport.Transport, opts ...Option) *Scheduler {
	s := &Scheduler{
		config:    DefaultConfig(),
		clock:     fx.SystemTime,
		transport: tr,
		registry:  task.NewRegistry(),
		queue:     task.NewQueue(),
		txTasks:   make(map[task.ID]*task.Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastReset = s.clock.Time()
	return s
}

// Config returns the effective timing.
func (s *Scheduler) Config() Config {
	return s.config
}

// Registry returns the Rx task registry.
func (s *Scheduler) Registry() *task.Registry {
	return s.registry
}

// Pending returns queued Tx tasks, head first.
func (s *Scheduler) Pending() []*task.Task {
	return s.queue.Tasks()
}

// TxTask returns the Tx task with id, or nil.
func (s *Scheduler) TxTask(id task.ID) *task.Task {
	return s.txTasks[id]
}

// Register implements task.Owner. IDs are unique across Rx and Tx tasks.
func (s *Scheduler) Register(t *task.Task) error {
	id := t.ID()
	if _, exists := s.txTasks[id]; exists {
		return &task.DuplicateTaskError{ID: id}
	}
	if t.Direction() == task.Tx {
		if s.registry.IsRegistered(id) {
			return &task.DuplicateTaskError{ID: id}
		}
		s.txTasks[id] = t
		return nil
	}
	return s.registry.Register(t)
}

// Schedule implements task.Owner.
func (s *Scheduler) Schedule(t *task.Task) bool {
	if t.Direction() != task.Tx {
		glog.Warningf("%v can't be scheduled", t)
		return false
	}
	return s.queue.Enqueue(t)
}

// IsQueued implements task.Owner.
func (s *Scheduler) IsQueued(t *task.Task) bool {
	return s.queue.Contains(t)
}

// SendCompletion implements task.Owner.
func (s *Scheduler) SendCompletion(t *task.Task) error {
	frame, err := t.Frame()
	if err != nil {
		return &PayloadEncodeError{ID: t.ID(), Err: err}
	}
	glog.V(2).Infof("complete %v: % x", t, frame)
	return s.transport.Write(frame)
}

// Cancel drops a queued task without waiting for acknowledgement.
func (s *Scheduler) Cancel(t *task.Task) bool {
	if !s.queue.Remove(t) {
		return false
	}
	if s.lastActed == t {
		s.lastActed = nil
	}
	return true
}

// Tick runs one scheduling step: inbound traffic first, then the queue
// head. Transport failures are returned immediately and are fatal.
// Payload errors are returned after the step completes.
func (s *Scheduler) Tick() error {
	var errs fx.AggregatedError
	n, err := s.transport.BytesAvailable()
	if err != nil {
		return err
	}
	if n > 0 {
		if err := s.handleInbound(); err != nil {
			if transport.IsTransportError(err) {
				return err
			}
			errs.Add(err)
		}
	}
	if s.queue.Len() > 0 {
		if err := s.handleOutbound(); err != nil {
			if transport.IsTransportError(err) {
				return err
			}
			errs.Add(err)
		}
	}
	return errs.Aggregate()
}

// Close closes the transport.
func (s *Scheduler) Close() error {
	return s.transport.Close()
}

// Control implements framework.Controller.
func (s *Scheduler) Control(cc fx.ControlContext) error {
	err := s.Tick()
	if err == nil {
		return nil
	}
	if transport.IsTransportError(err) {
		return fx.Fatal(err)
	}
	glog.Warningf("scheduler: %v", err)
	return nil
}

// AddToLoop implements framework.LoopAdder.
func (s *Scheduler) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvDispatch, s)
}

func (s *Scheduler) handleInbound() error {
	data, err := s.transport.ReadAvailable(s.config.ChannelOpenBudget)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	id, payload := task.ID(data[0]), data[1:]
	if t := s.registry.Lookup(id); t != nil {
		return s.dispatchInbound(t, payload)
	}
	if head := s.queue.Head(); head != nil && head.ID() == id {
		s.queue.PopHead()
		if s.lastActed == head {
			s.lastActed = nil
		}
		glog.V(2).Infof("%v acknowledged", head)
		return nil
	}
	glog.V(2).Infof("unroutable frame dropped: % x", data)
	return nil
}

func (s *Scheduler) dispatchInbound(t *task.Task, payload []byte) error {
	msg := t.Message()
	if err := msg.Unmarshal(payload); err != nil {
		msg.Reset()
		return &PayloadDecodeError{ID: t.ID(), Payload: payload, Err: err}
	}
	glog.V(2).Infof("recv %v: % x", t, payload)
	if cb := t.Callback(); cb != nil {
		cb()
	}
	msg.Reset()
	return s.SendCompletion(t)
}

func (s *Scheduler) handleOutbound() error {
	head := s.queue.Head()
	now := s.clock.Time()
	isRepeat := head == s.lastActed
	expired := now.Sub(s.lastReset) > s.config.RetryInterval
	if expired {
		s.lastReset = now
	}
	if isRepeat && !expired {
		return nil
	}
	if isRepeat {
		glog.V(2).Infof("%v not acknowledged, resend", head)
	}
	err := s.transmit(head)
	if transport.IsTransportError(err) {
		// Not on the wire, the next tick tries again right away.
		s.lastActed = nil
		return err
	}
	s.lastActed = head
	return err
}

func (s *Scheduler) transmit(t *task.Task) error {
	if cb := t.Callback(); cb != nil {
		cb()
	}
	msg := t.Message()
	frame, err := t.Frame()
	if err != nil {
		msg.Reset()
		return &PayloadEncodeError{ID: t.ID(), Err: err}
	}
	glog.V(2).Infof("send %v: % x", t, frame)
	if err := s.transport.Write(frame); err != nil {
		return err
	}
	msg.Reset()
	return nil
}
