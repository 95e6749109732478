package fiber

import "sync"

// Condition is a multi-waiter signal: any number of fibers may suspend on
// it, and Signal/Broadcast wake one or all of them respectively. Unlike
// Future it is not single-fire — a fiber that wants to wait again after
// being woken must call Suspend on it again.
type Condition struct {
	mu      sync.Mutex
	waiters []waiterEntry
}

func NewCondition() *Condition { return &Condition{} }

// Signal wakes at most one waiting fiber.
func (c *Condition) Signal() {
	c.mu.Lock()
	for len(c.waiters) > 0 {
		w := c.waiters[0]
		c.waiters = c.waiters[1:]
		if *w.active {
			c.mu.Unlock()
			w.cb(nil, nil)
			return
		}
	}
	c.mu.Unlock()
}

// Broadcast wakes every waiting fiber.
func (c *Condition) Broadcast() {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()
	for _, w := range waiters {
		if *w.active {
			w.cb(nil, nil)
		}
	}
}

func (c *Condition) subscribe(cb func(v interface{}, err error)) func() {
	c.mu.Lock()
	w, cancel := newWaiter(cb)
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return cancel
}
