package fiber

import (
	"sync"
	"time"

	"github.com/flowraft/raftcore/internal/log"
)

// Dispatcher drives every FiberGroup registered with it from a single OS
// thread (a single goroutine pinned to one loop). Group-local state never
// needs a lock because only this loop ever touches it. Functions handed to
// Post from other goroutines go through shareQueue; fiber wakeups (future
// completion) go through the owning FiberGroup's ready queue.
type Dispatcher struct {
	name string

	mu         sync.Mutex
	shareQueue []func()
	groups     map[*FiberGroup]struct{}

	readyMu sync.Mutex
	ready   []*FiberGroup

	timers timerWheel
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// NewDispatcher creates a dispatcher; callers must call Run in a
// dedicated goroutine before registering groups that expect to make
// progress.
func NewDispatcher(name string) *Dispatcher {
	return &Dispatcher{
		name:   name,
		groups: make(map[*FiberGroup]struct{}),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Post schedules fn to run on the dispatcher goroutine. Safe to call from
// any goroutine, including the dispatcher's own.
func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	d.shareQueue = append(d.shareQueue, fn)
	d.mu.Unlock()
	d.signal()
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) drainShareQueue() {
	d.mu.Lock()
	q := d.shareQueue
	d.shareQueue = nil
	d.mu.Unlock()
	for _, fn := range q {
		fn()
	}
}

// NewGroup registers and returns a new FiberGroup on this dispatcher.
func (d *Dispatcher) NewGroup(name string) *FiberGroup {
	g := newFiberGroup(name, d)
	d.mu.Lock()
	d.groups[g] = struct{}{}
	d.mu.Unlock()
	return g
}

func (d *Dispatcher) forgetGroup(g *FiberGroup) {
	d.mu.Lock()
	delete(d.groups, g)
	d.mu.Unlock()
}

// scheduleTimer registers a deadline-based callback and returns a handle
// that can cancel it. Must only be called from the dispatcher goroutine.
func (d *Dispatcher) scheduleTimer(deadline int64, fire func()) *timerEntry {
	return d.timers.schedule(deadline, fire)
}

func (d *Dispatcher) cancelTimer(e *timerEntry) {
	d.timers.cancel(e)
}

// groupReady enqueues g onto the ready queue if it is not already queued.
func (d *Dispatcher) groupReady(g *FiberGroup) {
	d.readyMu.Lock()
	if !g.queued {
		g.queued = true
		d.ready = append(d.ready, g)
	}
	d.readyMu.Unlock()
	d.signal()
}

func (d *Dispatcher) popReadyGroup() *FiberGroup {
	d.readyMu.Lock()
	defer d.readyMu.Unlock()
	if len(d.ready) == 0 {
		return nil
	}
	g := d.ready[0]
	d.ready = d.ready[1:]
	g.queued = false
	return g
}

// Run is the dispatcher's scheduling loop (spec.md §4.1): drain the
// cross-thread queue, advance timers, pop one ready group and round-robin
// its ready fibers, repeat. It blocks until Stop is called.
func (d *Dispatcher) Run() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		default:
		}

		d.drainShareQueue()
		d.timers.advance(nowNanos())

		if g := d.popReadyGroup(); g != nil {
			d.runGroupTurn(g)
			continue
		}

		var timeout <-chan time.Time
		if deadline, ok := d.timers.nextDeadline(); ok {
			d := time.Until(time.Unix(0, deadline))
			if d < 0 {
				d = 0
			}
			timeout = time.After(d)
		}

		select {
		case <-d.stop:
			return
		case <-d.wake:
		case <-timeout:
		}
	}
}

// Stop asks the dispatcher loop to exit after its current turn and waits
// for it to do so.
func (d *Dispatcher) Stop() {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	d.signal()
	<-d.done
}

func (d *Dispatcher) runGroupTurn(g *FiberGroup) {
	batch := g.drainReady()
	for _, item := range batch {
		if item.f.done {
			continue
		}
		if stepFiber(item.f, item.val, item.err) {
			g.onFiberDone(item.f)
		}
	}
	if g.isFinished() {
		log.Debugf("fiber: group %q finished", g.Name)
		g.close()
	}
}
