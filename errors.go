package raft

import "github.com/flowraft/raftcore/internal/engine"

// Sentinel errors per spec.md §7. Re-exported so callers never need to
// import internal/engine directly to do errors.Is/As against them.
var (
	ErrNotLeader          = engine.ErrNotLeader
	ErrStaleTerm          = engine.ErrStaleTerm
	ErrBackpressureReject = engine.ErrBackpressureReject
	ErrTimeout            = engine.ErrTimeout
	ErrStateMachineError  = engine.ErrStateMachineError
	ErrGroupStopped       = engine.ErrGroupStopped
)
