// Package fiber implements the cooperative task scheduler the Raft group
// engine and log store run on: a single dispatcher thread multiplexes many
// FiberGroups, each group running many Fibers, each fiber a stack of
// suspendable Frames. See spec.md §4.1.
//
// Frames are written in continuation-passing style: Execute runs once,
// when the frame is first pushed, and returns a FrameResult describing
// what happens next (return to the caller, call a child frame, suspend on
// a WaitSource, or sleep). ResultCall and ResultSuspend/ResultSleep carry
// an explicit "After" continuation that the scheduler invokes once the
// child frame returns, or the wait/sleep completes — Go has no native
// coroutines, so the continuation has to be handed to the scheduler
// explicitly rather than resumed via a stack unwind.
package fiber

import "fmt"

// FrameResultKind is the verdict a Frame's continuation hands back to the
// scheduler.
type FrameResultKind uint8

const (
	// ResultReturn pops the current frame and delivers Value to the
	// caller frame's After continuation (or completes the fiber if it was
	// the last frame).
	ResultReturn FrameResultKind = iota
	// ResultCall pushes Next on top of the fiber's stack; once Next
	// returns, After is invoked with its value/error.
	ResultCall
	// ResultSuspend blocks the fiber on Wait, optionally until Deadline;
	// After is invoked once Wait completes or the deadline elapses.
	ResultSuspend
	// ResultSleep blocks the fiber until SleepUntil; After is invoked
	// once that time is reached.
	ResultSleep
	// ResultFail terminates the current frame with an error; it is
	// offered to the frame's own Handle before propagating to the
	// caller, mirroring an exception unwind.
	ResultFail
)

// FrameResult is returned by a frame's Execute or by a continuation.
type FrameResult struct {
	Kind FrameResultKind

	// ResultReturn
	Value interface{}

	// ResultCall
	Next *Frame

	// ResultSuspend
	Wait     WaitSource
	Deadline int64 // unix nanos, 0 = no deadline

	// ResultSleep
	SleepUntil int64 // unix nanos

	// ResultFail
	Err error

	// After is the continuation invoked once a Call/Suspend/Sleep
	// resolves. For ResultCall it receives the child frame's
	// (value, error) from a return or an unhandled error. For
	// ResultSuspend/ResultSleep it receives the wait source's result, or
	// *TimeoutError if the deadline elapsed first.
	After func(v interface{}, err error) FrameResult
}

// Return is a convenience constructor for ResultReturn.
func Return(v interface{}) FrameResult { return FrameResult{Kind: ResultReturn, Value: v} }

// Call is a convenience constructor for ResultCall.
func Call(next *Frame, after func(v interface{}, err error) FrameResult) FrameResult {
	return FrameResult{Kind: ResultCall, Next: next, After: after}
}

// Suspend is a convenience constructor for ResultSuspend.
func Suspend(w WaitSource, deadline int64, after func(v interface{}, err error) FrameResult) FrameResult {
	return FrameResult{Kind: ResultSuspend, Wait: w, Deadline: deadline, After: after}
}

// Sleep is a convenience constructor for ResultSleep.
func Sleep(until int64, after func(v interface{}, err error) FrameResult) FrameResult {
	return FrameResult{Kind: ResultSleep, SleepUntil: until, After: after}
}

// Fail is a convenience constructor for ResultFail.
func Fail(err error) FrameResult { return FrameResult{Kind: ResultFail, Err: err} }

// Frame is one suspendable execution unit within a fiber's call stack.
type Frame struct {
	Name      string
	Execute   func(c *Ctx) FrameResult
	Handle    func(c *Ctx, err error) FrameResult
	DoFinally func(c *Ctx)

	// cont is the current continuation: Execute until the frame has run
	// once, then whatever After closure its last Call/Suspend/Sleep
	// supplied. nil while the frame is waiting on an external event
	// (Suspend/Sleep own the wakeup instead).
	cont func(v interface{}, err error) FrameResult
	// handled guards against Handle being invoked more than once for the
	// same frame; an error raised while already inside a Handle call
	// propagates past this frame instead of looping.
	handled bool
}

// Ctx is handed to a frame's Handle/DoFinally callbacks.
type Ctx struct {
	Fiber *Fiber
}

// InterruptError is posted by Fiber.Interrupt; it wakes a suspended fiber
// and is terminal unless a frame's Handle recovers it.
type InterruptError struct{ Reason string }

func (e *InterruptError) Error() string { return fmt.Sprintf("fiber: interrupted: %s", e.Reason) }

// CancelError denotes voluntary cancellation (group shutdown), as opposed
// to InterruptError which can also originate from unrelated causes.
type CancelError struct{ Reason string }

func (e *CancelError) Error() string { return fmt.Sprintf("fiber: cancelled: %s", e.Reason) }

// TimeoutError is delivered to a suspended frame whose deadline elapsed
// before its WaitSource completed. The underlying I/O, if any, is not
// cancelled — its result is simply discarded on arrival (spec.md §5).
type TimeoutError struct{}

func (e *TimeoutError) Error() string { return "fiber: deadline exceeded" }

// Kind classifies a fiber for group-liveness accounting: a FiberGroup is
// finished once it has been told to stop and has no more normal fibers
// running; daemon fibers never keep a group alive.
type Kind uint8

const (
	KindNormal Kind = iota
	KindDaemon
)

// Fiber is a single cooperatively scheduled task: a stack of frames plus
// the bookkeeping the Dispatcher needs to round-robin and wake it.
type Fiber struct {
	Name  string
	Kind  Kind
	Group *FiberGroup

	stack  []*Frame
	done   bool
	result interface{}
	err    error
	onDone []func(interface{}, error)

	interrupted     bool
	interruptReason string

	pendingTimer *timerEntry // armed when suspended with a deadline
}

func newFiber(name string, kind Kind, group *FiberGroup, entry *Frame) *Fiber {
	f := &Fiber{Name: name, Kind: kind, Group: group}
	entry.cont = func(interface{}, error) FrameResult { return entry.Execute(&Ctx{Fiber: f}) }
	f.stack = []*Frame{entry}
	return f
}

// Interrupt posts an interrupt flag; the fiber wakes with an
// *InterruptError the next time it is scheduled or resumed, or with a
// *CancelError if its group has been asked to stop.
func (f *Fiber) Interrupt(reason string) {
	f.interrupted = true
	f.interruptReason = reason
}

// OnDone registers a callback invoked once, with the fiber's final result
// or error, when its last frame returns or a terminal error propagates
// past the bottom of the stack.
func (f *Fiber) OnDone(fn func(interface{}, error)) {
	if f.done {
		fn(f.result, f.err)
		return
	}
	f.onDone = append(f.onDone, fn)
}

func (f *Fiber) top() *Frame { return f.stack[len(f.stack)-1] }

func (f *Fiber) push(fr *Frame) {
	fr.cont = func(interface{}, error) FrameResult { return fr.Execute(&Ctx{Fiber: f}) }
	f.stack = append(f.stack, fr)
}

func (f *Fiber) pop() *Frame {
	n := len(f.stack)
	top := f.stack[n-1]
	f.stack = f.stack[:n-1]
	if top.DoFinally != nil {
		top.DoFinally(&Ctx{Fiber: f})
	}
	return top
}

func (f *Fiber) finish(result interface{}, err error) {
	f.done = true
	f.result = result
	f.err = err
	cbs := f.onDone
	f.onDone = nil
	for _, cb := range cbs {
		cb(result, err)
	}
}
