package fiber

import "sync"

// FiberGroup is a bucket of fibers that all run on the same dispatcher
// thread; state owned by a group needs no locking because only the
// dispatcher goroutine ever mutates it. Multiple groups may share one
// Dispatcher (spec.md §4.1).
type FiberGroup struct {
	Name       string
	dispatcher *Dispatcher

	mu          sync.Mutex // guards the fields below; only contended at start/stop
	fibers      map[*Fiber]struct{}
	normalCount int
	shouldStop  bool
	stopped     chan struct{}

	readyMu sync.Mutex
	readyQ  []readyItem
	queued  bool
}

// readyItem is one pending resumption: f should be stepped with (val,
// err) as the outcome of whatever it last suspended or slept on.
type readyItem struct {
	f   *Fiber
	val interface{}
	err error
}

func newFiberGroup(name string, d *Dispatcher) *FiberGroup {
	return &FiberGroup{
		Name:       name,
		dispatcher: d,
		fibers:     make(map[*Fiber]struct{}),
		stopped:    make(chan struct{}),
	}
}

// Go spawns a new fiber in this group running entry to completion.
func (g *FiberGroup) Go(name string, kind Kind, entry func(c *Ctx) FrameResult) *Fiber {
	f := newFiber(name, kind, g, &Frame{Name: name, Execute: entry})

	g.mu.Lock()
	g.fibers[f] = struct{}{}
	if kind == KindNormal {
		g.normalCount++
	}
	g.mu.Unlock()

	g.markReady(f)
	return f
}

// Daemon spawns a daemon fiber: it never keeps the group alive past
// shouldStop, used by the engine's election-timer and replicator loops.
func (g *FiberGroup) Daemon(name string, entry func(c *Ctx) FrameResult) *Fiber {
	return g.Go(name, KindDaemon, entry)
}

func (g *FiberGroup) markReady(f *Fiber) { g.resume(f, nil, nil) }

// resume schedules f to be stepped with (val, err) the next time this
// group gets a dispatcher turn. Safe to call from any goroutine.
func (g *FiberGroup) resume(f *Fiber, val interface{}, err error) {
	g.readyMu.Lock()
	g.readyQ = append(g.readyQ, readyItem{f: f, val: val, err: err})
	g.readyMu.Unlock()
	g.dispatcher.groupReady(g)
}

func (g *FiberGroup) drainReady() []readyItem {
	g.readyMu.Lock()
	batch := g.readyQ
	g.readyQ = nil
	g.readyMu.Unlock()
	return batch
}

func (g *FiberGroup) onFiberDone(f *Fiber) {
	g.mu.Lock()
	delete(g.fibers, f)
	if f.Kind == KindNormal {
		g.normalCount--
	}
	g.mu.Unlock()
}

// RequestStop flips shouldStop and interrupts every non-daemon fiber with
// a CancelError; daemon fibers are left to notice shouldStop on their own
// (typically on their next sleep/suspend) and exit voluntarily.
func (g *FiberGroup) RequestStop(reason string) {
	g.mu.Lock()
	g.shouldStop = true
	fibers := make([]*Fiber, 0, len(g.fibers))
	for f := range g.fibers {
		if f.Kind == KindNormal {
			fibers = append(fibers, f)
		}
	}
	g.mu.Unlock()

	for _, f := range fibers {
		f.Interrupt(reason)
		g.markReady(f)
	}
}

// ShouldStop reports whether RequestStop has been called.
func (g *FiberGroup) ShouldStop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shouldStop
}

// isFinished reports whether the group has been told to stop and has no
// more normal fibers running (daemons do not keep a group alive).
func (g *FiberGroup) isFinished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shouldStop && g.normalCount == 0
}

func (g *FiberGroup) close() {
	g.dispatcher.forgetGroup(g)
	select {
	case <-g.stopped:
	default:
		close(g.stopped)
	}
}

// Stopped is closed once the group has fully drained its normal fibers
// after RequestStop.
func (g *FiberGroup) Stopped() <-chan struct{} { return g.stopped }

// Dispatcher returns the dispatcher this group is scheduled on.
func (g *FiberGroup) Dispatcher() *Dispatcher { return g.dispatcher }
