package engine

import (
	"errors"
	"fmt"
)

// Error taxonomy per spec.md §7. These are re-exported as the root
// package's sentinels (see errors.go at the module root) so callers never
// need to import internal/engine directly to do errors.Is/As on them.

var (
	// ErrNotLeader is returned when an operation that requires leadership
	// (Propose, linearizable read) is attempted on a non-leader.
	ErrNotLeader = errors.New("engine: not the leader")

	// ErrStaleTerm is returned when an incoming RPC carries a term older
	// than the local currentTerm.
	ErrStaleTerm = errors.New("engine: stale term")

	// ErrBackpressureReject is returned when an admission-control limit
	// (pendingWrites/pendingWriteBytes) is exceeded.
	ErrBackpressureReject = errors.New("engine: write rejected by backpressure")

	// ErrTimeout is returned when a proposal or linearizable read does not
	// complete before its deadline.
	ErrTimeout = errors.New("engine: operation timed out")

	// ErrStateMachineError wraps a fatal error returned by the user state
	// machine's exec/installSnapshot; it marks the group's RaftStatus.error
	// and halts further apply.
	ErrStateMachineError = errors.New("engine: state machine error")

	// ErrGroupStopped is returned by operations attempted after the group
	// has been asked to shut down.
	ErrGroupStopped = errors.New("engine: group stopped")
)

// WrapStateMachineError marks err as the fatal, group-halting kind.
func WrapStateMachineError(err error) error {
	return fmt.Errorf("%w: %v", ErrStateMachineError, err)
}
