package fiber

// IoExecutor runs blocking work (file reads/writes, fsync, channel
// allocation) off the dispatcher thread and reports the result back
// through a Future, which is safe to complete from any goroutine
// (spec.md §5: "No operation inside a frame may perform blocking
// syscalls directly").
type IoExecutor struct {
	sem chan struct{}
}

// NewIoExecutor creates a pool that runs at most concurrency blocking
// jobs at once; excess submissions queue on the semaphore.
func NewIoExecutor(concurrency int) *IoExecutor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &IoExecutor{sem: make(chan struct{}, concurrency)}
}

// Submit runs fn on a pool goroutine and returns a Future completed with
// fn's result once it returns.
func (e *IoExecutor) Submit(fn func() (interface{}, error)) *Future {
	fut := NewFuture()
	e.sem <- struct{}{}
	go func() {
		defer func() { <-e.sem }()
		v, err := fn()
		fut.Complete(v, err)
	}()
	return fut
}
