package fiber

import "sync"

// Channel is an unbounded FIFO message queue a fiber can suspend-receive
// from; Send never blocks. It lets components hand work between fibers
// (spec.md §4.1).
type Channel struct {
	mu      sync.Mutex
	queue   []interface{}
	waiters []waiterEntry
}

func NewChannel() *Channel { return &Channel{} }

// Send enqueues v, waking the oldest pending receiver if any.
func (c *Channel) Send(v interface{}) {
	c.mu.Lock()
	for len(c.waiters) > 0 {
		w := c.waiters[0]
		c.waiters = c.waiters[1:]
		if *w.active {
			c.mu.Unlock()
			w.cb(v, nil)
			return
		}
	}
	c.queue = append(c.queue, v)
	c.mu.Unlock()
}

// Len reports the number of buffered, not-yet-received messages.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Channel) subscribe(cb func(v interface{}, err error)) func() {
	c.mu.Lock()
	if len(c.queue) > 0 {
		v := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		cb(v, nil)
		return func() {}
	}
	w, cancel := newWaiter(cb)
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return cancel
}
