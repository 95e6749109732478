package fiber

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFiberSuspendOnFuture(t *testing.T) {
	d := NewDispatcher("test")
	go d.Run()
	defer d.Stop()

	g := d.NewGroup("g1")
	fut := NewFuture()

	results := make(chan interface{}, 1)
	g.Go("waiter", KindNormal, func(c *Ctx) FrameResult {
		return Suspend(fut, 0, func(v interface{}, err error) FrameResult {
			require.NoError(t, err)
			return Return(v)
		})
	}).OnDone(func(v interface{}, err error) {
		require.NoError(t, err)
		results <- v
	})

	time.Sleep(10 * time.Millisecond)
	fut.Complete("hello", nil)

	select {
	case v := <-results:
		require.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("fiber never resumed")
	}
}

func TestFiberSleep(t *testing.T) {
	d := NewDispatcher("test")
	go d.Run()
	defer d.Stop()

	g := d.NewGroup("g1")
	start := time.Now()
	done := make(chan struct{})

	g.Go("sleeper", KindNormal, func(c *Ctx) FrameResult {
		return Sleep(nowNanos()+int64(30*time.Millisecond), func(v interface{}, err error) FrameResult {
			return Return(nil)
		})
	}).OnDone(func(interface{}, error) { close(done) })

	select {
	case <-done:
		require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("sleeper never woke up")
	}
}

func TestFiberCallChain(t *testing.T) {
	d := NewDispatcher("test")
	go d.Run()
	defer d.Stop()

	g := d.NewGroup("g1")
	child := &Frame{
		Name: "child",
		Execute: func(c *Ctx) FrameResult {
			return Return(41)
		},
	}

	done := make(chan interface{}, 1)
	g.Go("parent", KindNormal, func(c *Ctx) FrameResult {
		return Call(child, func(v interface{}, err error) FrameResult {
			return Return(v.(int) + 1)
		})
	}).OnDone(func(v interface{}, err error) {
		require.NoError(t, err)
		done <- v
	})

	select {
	case v := <-done:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("call chain never completed")
	}
}

func TestGroupStopInterruptsNormalFibers(t *testing.T) {
	d := NewDispatcher("test")
	go d.Run()
	defer d.Stop()

	g := d.NewGroup("g1")
	block := NewCondition()
	done := make(chan error, 1)

	g.Go("blocked", KindNormal, func(c *Ctx) FrameResult {
		return Suspend(block, 0, func(v interface{}, err error) FrameResult {
			return Fail(err)
		})
	}).OnDone(func(v interface{}, err error) { done <- err })

	time.Sleep(10 * time.Millisecond)
	g.RequestStop("shutdown")

	select {
	case err := <-done:
		require.Error(t, err)
		var ce *CancelError
		require.ErrorAs(t, err, &ce)
	case <-time.After(time.Second):
		t.Fatal("fiber never observed shutdown")
	}

	select {
	case <-g.Stopped():
	case <-time.After(time.Second):
		t.Fatal("group never finished")
	}
}
