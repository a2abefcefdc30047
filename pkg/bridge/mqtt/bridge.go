package mqtt

import (
	"context"
	"io"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/taskbridge/pkg/framework"
	"github.com/robotalks/taskbridge/pkg/msgs"
	"github.com/robotalks/taskbridge/pkg/task"
)

// PubSub is the messaging surface used by Bridge. Queue implements it.
type PubSub interface {
	Subscribe(topic string, handler Handler) io.Closer
	Publish(topic string, payload []byte)
}

// Bridge exposes tasks as MQTT topics.
// A message on a Tx topic updates the value and schedules the task.
// Every frame received for an Rx task is published as JSON.
type Bridge struct {
	pubsub PubSub
	txs    []*txBinding
	rxs    []*task.Task
}

type txBinding struct {
	Binding
	task   *task.Task
	latest proto.Message
}

// txUpdate is posted from the MQTT goroutine into the loop.
type txUpdate struct {
	binding *txBinding
	value   proto.Message
}

// New creates tasks for bindings against owner.
func New(owner task.Owner, pubsub PubSub, bindings []Binding) (*Bridge, error) {
	b := &Bridge{pubsub: pubsub}
	for i := range bindings {
		binding := bindings[i]
		if err := binding.Validate(); err != nil {
			return nil, err
		}
		msg, err := msgs.NewProtoByName(binding.Type)
		if err != nil {
			return nil, err
		}
		dir, _ := binding.TaskDirection()
		if dir == task.Rx {
			t, err := task.NewRx(owner, binding.ID, msg, b.publisher(binding.Topic, msg))
			if err != nil {
				return nil, err
			}
			b.rxs = append(b.rxs, t)
			continue
		}
		tx := &txBinding{Binding: binding}
		t, err := task.NewTx(owner, binding.ID, msg, func() {
			if tx.latest != nil {
				msg.Set(tx.latest)
			}
		})
		if err != nil {
			return nil, err
		}
		tx.task = t
		b.txs = append(b.txs, tx)
	}
	return b, nil
}

// Tasks returns all tasks created by the bridge.
func (b *Bridge) Tasks() []*task.Task {
	tasks := append([]*task.Task(nil), b.rxs...)
	for _, tx := range b.txs {
		tasks = append(tasks, tx.task)
	}
	return tasks
}

// AddToLoop implements framework.LoopAdder.
// The loop also runs b as a Runnable, see Run.
func (b *Bridge) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvIntake, b)
}

// Run implements framework.Runnable. It subscribes Tx topics until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	ctl := fx.LoopCtlFrom(ctx)
	subs := make([]io.Closer, 0, len(b.txs))
	for _, tx := range b.txs {
		subs = append(subs, b.pubsub.Subscribe(tx.Topic, b.receiver(tx, ctl)))
	}
	<-ctx.Done()
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			glog.Warningf("unsubscribe error: %v", err)
		}
	}
	return ctx.Err()
}

// Control implements framework.Controller.
func (b *Bridge) Control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		update, ok := mc.CurrentMessage().(*txUpdate)
		if !ok {
			return
		}
		mc.MessageTaken()
		update.binding.latest = update.value
		if update.binding.task.Schedule() {
			glog.V(2).Infof("%v scheduled from %q", update.binding.task, update.binding.Topic)
		}
	}))
	return nil
}

func (b *Bridge) receiver(tx *txBinding, ctl fx.LoopControl) Handler {
	return func(topic string, payload []byte) {
		value, err := msgs.NewProtoByName(tx.Type)
		if err == nil {
			err = value.UnmarshalJSON(payload)
		}
		if err != nil {
			glog.Warningf("drop message on %q: %v", topic, err)
			return
		}
		ctl.PostMessage(&txUpdate{binding: tx, value: value.Proto()})
		ctl.TriggerNext()
	}
}

func (b *Bridge) publisher(topic string, msg *msgs.Proto) task.Callback {
	return func() {
		data, err := msg.MarshalJSON()
		if err != nil {
			glog.Warningf("encode %q error: %v", topic, err)
			return
		}
		b.pubsub.Publish(topic, data)
	}
}
