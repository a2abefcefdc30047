package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingCtl struct {
	name  string
	trace *[]string
	err   error
}

func (c *recordingCtl) Control(cc ControlContext) error {
	*c.trace = append(*c.trace, c.name)
	return c.err
}

func TestLoopPriorityOrder(t *testing.T) {
	var trace []string
	loop := NewLoop()
	loop.AddController(PrLvLow, &recordingCtl{name: "low", trace: &trace})
	loop.AddController(PrLvDispatch, &recordingCtl{name: "dispatch", trace: &trace})
	loop.AddController(PrLvIntake, &recordingCtl{name: "intake", trace: &trace})
	loop.AddController(PrLvIntake, &recordingCtl{name: "intake2", trace: &trace})
	require.NoError(t, loop.RunOnce(context.Background()))
	require.Equal(t, []string{"intake", "intake2", "dispatch", "low"}, trace)
}

func TestLoopNonFatalErrorsContinue(t *testing.T) {
	var trace []string
	loop := NewLoop()
	loop.AddController(PrLvHigh, &recordingCtl{name: "a", trace: &trace, err: errors.New("oops")})
	loop.AddController(PrLvLow, &recordingCtl{name: "b", trace: &trace})
	require.NoError(t, loop.RunOnce(context.Background()))
	require.Equal(t, []string{"a", "b"}, trace)
}

func TestLoopFatalErrorStops(t *testing.T) {
	var trace []string
	cause := errors.New("broken")
	loop := NewLoop()
	loop.AddController(PrLvHigh, &recordingCtl{name: "a", trace: &trace, err: Fatal(cause)})
	loop.AddController(PrLvLow, &recordingCtl{name: "b", trace: &trace})
	err := loop.RunOnce(context.Background())
	require.True(t, IsFatal(err))
	require.True(t, errors.Is(err, cause))
	require.Equal(t, []string{"a"}, trace)

	loop.Interval = time.Millisecond
	err = loop.Run(context.Background())
	require.True(t, IsFatal(err))
}

func TestLoopMessages(t *testing.T) {
	loop := NewLoop()
	var taken, seen []Message
	loop.AddController(PrLvIntake, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			if n, ok := mc.CurrentMessage().(int); ok {
				taken = append(taken, n)
				mc.MessageTaken()
			}
		}))
		return nil
	}))
	loop.AddController(PrLvLow, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			seen = append(seen, mc.CurrentMessage())
		}))
		return nil
	}))

	loop.PostMessage(1)
	loop.PostMessage("x")
	loop.PostMessage(2)
	require.NoError(t, loop.RunOnce(context.Background()))
	require.Equal(t, []Message{1, 2}, taken)
	require.Equal(t, []Message{"x"}, seen)

	// Messages not taken are not carried over.
	seen = nil
	require.NoError(t, loop.RunOnce(context.Background()))
	require.Empty(t, seen)
}

func TestLoopClock(t *testing.T) {
	now := time.Unix(42, 0)
	loop := NewLoop()
	loop.Clock = TimeFunc(func() time.Time { return now })
	var got time.Time
	var level int
	loop.AddController(PrLvDispatch, ControlFunc(func(cc ControlContext) error {
		got, level = cc.Time(), cc.PriorityLevel()
		return nil
	}))
	require.NoError(t, loop.RunOnce(context.Background()))
	require.Equal(t, now, got)
	require.Equal(t, PrLvDispatch, level)
}

func TestLoopRunnables(t *testing.T) {
	loop := NewLoop()
	loop.Interval = time.Millisecond
	received := make(chan Message, 1)
	loop.AddController(PrLvIntake, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			mc.MessageTaken()
			select {
			case received <- mc.CurrentMessage():
			default:
			}
		}))
		return nil
	}))
	loop.AddRunnable(RunFunc(func(ctx context.Context) error {
		ctl := LoopCtlFrom(ctx)
		ctl.PostMessage("hello")
		ctl.TriggerNext()
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	select {
	case msg := <-received:
		require.Equal(t, "hello", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
	cancel()
	require.True(t, errors.Is(<-done, context.Canceled))
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Aggregate())
	e1 := errors.New("e1")
	errs.Add(nil, e1)
	require.True(t, errs.Aggregate() == e1)
	errs.Add(errors.New("e2"))
	require.Equal(t, "Multiple errors:\ne1\ne2", errs.Aggregate().Error())
	require.NoError(t, Fatal(nil))
	require.False(t, IsFatal(e1))
}
