package fiber

import "time"

// NewIoRetryFrame wraps a future-producing operation (typically a
// blocking call submitted to an I/O executor pool) with a bounded retry
// backoff. On failure other than *InterruptError, *CancelError, or the
// owning group having been asked to stop, it sleeps intervals[i] and
// retries; once intervals is exhausted the last error is rethrown via
// ResultFail. intervals must be monotonically non-decreasing (spec.md
// §4.1, §7).
func NewIoRetryFrame(name string, intervals []time.Duration, op func() *Future) *Frame {
	fr := &Frame{Name: name}
	attempts := 0

	var attempt func(c *Ctx) FrameResult
	attempt = func(c *Ctx) FrameResult {
		if c.Fiber.Group.ShouldStop() {
			return Fail(&CancelError{Reason: "group stopping"})
		}
		fut := op()
		return Suspend(fut, 0, func(v interface{}, err error) FrameResult {
			if err == nil {
				return Return(v)
			}
			if isTerminal(err) || c.Fiber.Group.ShouldStop() {
				return Fail(err)
			}
			if attempts >= len(intervals) {
				return Fail(err)
			}
			d := intervals[attempts]
			attempts++
			until := nowNanos() + d.Nanoseconds()
			return Sleep(until, func(interface{}, error) FrameResult {
				return attempt(c)
			})
		})
	}

	fr.Execute = attempt
	return fr
}

func isTerminal(err error) bool {
	switch err.(type) {
	case *InterruptError, *CancelError:
		return true
	default:
		return false
	}
}
