package fiber

// stepFiber runs f until its current frame suspends/sleeps or the whole
// fiber returns/fails past its bottom frame. (val, err) are the arguments
// delivered to the fiber's current top frame for this turn: nil/nil for a
// freshly scheduled fiber, or the outcome of whatever it was last waiting
// on. Returns true once the fiber is fully done.
func stepFiber(f *Fiber, val interface{}, err error) bool {
	isErr := err != nil
	for {
		cur := f.top()

		if f.interrupted {
			f.interrupted = false
			if f.Group.ShouldStop() {
				err = &CancelError{Reason: f.interruptReason}
			} else {
				err = &InterruptError{Reason: f.interruptReason}
			}
			isErr = true
		}

		var res FrameResult
		if isErr {
			if cur.Handle != nil && !cur.handled {
				cur.handled = true
				res = cur.Handle(&Ctx{Fiber: f}, err)
				isErr = false
			} else {
				f.pop()
				if len(f.stack) == 0 {
					f.finish(nil, err)
					return true
				}
				continue // propagate err to the new top frame
			}
		} else {
			cont := cur.cont
			cur.cont = nil
			res = cont(val, nil)
		}

		switch res.Kind {
		case ResultFail:
			err = res.Err
			isErr = true
			continue
		case ResultReturn:
			f.pop()
			if len(f.stack) == 0 {
				f.finish(res.Value, nil)
				return true
			}
			val, isErr = res.Value, false
			continue
		case ResultCall:
			cur.cont = res.After
			f.push(res.Next)
			val, isErr = nil, false
			continue
		case ResultSuspend:
			armSuspend(f, cur, res)
			return false
		case ResultSleep:
			armSleep(f, cur, res)
			return false
		default:
			panic("fiber: unknown FrameResultKind")
		}
	}
}

// armSuspend wires res.Wait up so that, once it completes (or res.Deadline
// elapses first), the fiber is rescheduled with the outcome.
func armSuspend(f *Fiber, cur *Frame, res FrameResult) {
	cur.cont = res.After
	fired := false
	var timer *timerEntry

	deliver := func(v interface{}, err error) {
		if fired {
			return
		}
		fired = true
		if timer != nil {
			f.Group.dispatcher.cancelTimer(timer)
		}
		f.Group.resume(f, v, err)
	}

	cancel := res.Wait.subscribe(deliver)

	if res.Deadline > 0 {
		timer = f.Group.dispatcher.scheduleTimer(res.Deadline, func() {
			if fired {
				return
			}
			cancel()
			deliver(nil, &TimeoutError{})
		})
	}
}

// armSleep wires a timer that resumes the fiber once res.SleepUntil is
// reached.
func armSleep(f *Fiber, cur *Frame, res FrameResult) {
	cur.cont = res.After
	f.Group.dispatcher.scheduleTimer(res.SleepUntil, func() {
		f.Group.resume(f, nil, nil)
	})
}
