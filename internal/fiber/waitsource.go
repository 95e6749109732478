package fiber

// WaitSource is anything a frame can suspend on: FiberFuture, FiberCondition
// and FiberChannel all implement it (spec.md §4.1).
type WaitSource interface {
	// subscribe registers cb to fire exactly once when the source
	// completes. If the source has already completed, cb fires
	// synchronously, before subscribe returns. The returned cancel func
	// is safe to call even after cb has already fired.
	subscribe(cb func(v interface{}, err error)) (cancel func())
}
