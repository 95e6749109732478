package fiber

import "sync"

// waiterEntry is a WaitSource's subscriber: cb fires once, guarded by
// active so a cancelled subscription (e.g. superseded by a timeout) is a
// no-op instead of requiring slice surgery.
type waiterEntry struct {
	cb     func(v interface{}, err error)
	active *bool
}

func newWaiter(cb func(v interface{}, err error)) (waiterEntry, func()) {
	active := new(bool)
	*active = true
	return waiterEntry{cb: cb, active: active}, func() { *active = false }
}

// Future is a single-fire result cell. It may be completed from any
// goroutine — the dispatcher goroutine included — which is how blocking
// I/O performed on the ioExecutor pool hands its result back to the fiber
// that issued it (spec.md §4.1, §5).
type Future struct {
	mu      sync.Mutex
	done    bool
	val     interface{}
	err     error
	waiters []waiterEntry
}

func NewFuture() *Future { return &Future{} }

// Complete resolves the future exactly once; later calls are ignored.
func (f *Future) Complete(val interface{}, err error) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return
	}
	f.done = true
	f.val, f.err = val, err
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()

	for _, w := range waiters {
		if *w.active {
			w.cb(val, err)
		}
	}
}

// IsDone reports whether Complete has already run.
func (f *Future) IsDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *Future) subscribe(cb func(v interface{}, err error)) func() {
	f.mu.Lock()
	if f.done {
		val, err := f.val, f.err
		f.mu.Unlock()
		cb(val, err)
		return func() {}
	}
	w, cancel := newWaiter(cb)
	f.waiters = append(f.waiters, w)
	f.mu.Unlock()
	return cancel
}
