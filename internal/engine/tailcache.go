package engine

import (
	"sync"

	"github.com/flowraft/raftcore/internal/fiber"
)

// TailCache maps a leader's in-flight proposal logIndex to the
// fiber.Future a client's submitTask frame is suspended on, so
// ApplyManager can complete it once the entry is applied (spec.md §3).
// It also tracks the "first commit after becoming leader" future the
// linearizable read path waits on before trusting lastApplied.
type TailCache struct {
	mu      sync.Mutex
	pending map[uint64]*fiber.Future

	firstCommitFuture *fiber.Future
	firstCommitDone   bool
}

func NewTailCache() *TailCache {
	return &TailCache{
		pending:           make(map[uint64]*fiber.Future),
		firstCommitFuture: fiber.NewFuture(),
	}
}

// Register creates (or returns the existing) future for index. Propose
// calls this right after RaftLog.Append succeeds, before suspending the
// submitting fiber on the returned future.
func (tc *TailCache) Register(index uint64) *fiber.Future {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if f, ok := tc.pending[index]; ok {
		return f
	}
	f := fiber.NewFuture()
	tc.pending[index] = f
	return f
}

// Complete resolves the future registered for index, if any (an entry
// appended as a no-op or as a replicated write that originated on a
// different node never had one registered here). Always removes the
// entry so the map never grows past the number of outstanding
// proposals.
func (tc *TailCache) Complete(index uint64, result interface{}, err error) {
	tc.mu.Lock()
	f, ok := tc.pending[index]
	if ok {
		delete(tc.pending, index)
	}
	tc.mu.Unlock()
	if ok {
		f.Complete(result, err)
	}
}

// FailAll completes every still-pending future with err — used when the
// group steps down from leader or shuts down, since those proposals will
// never be applied under this term.
func (tc *TailCache) FailAll(err error) {
	tc.mu.Lock()
	pending := tc.pending
	tc.pending = make(map[uint64]*fiber.Future)
	tc.mu.Unlock()
	for _, f := range pending {
		f.Complete(nil, err)
	}
}

// Len reports the number of outstanding proposals, consulted by
// admission control (spec.md §4.4's pendingWrites counter).
func (tc *TailCache) Len() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.pending)
}

// MarkFirstCommit resolves the first-commit-of-applied future exactly
// once, the first time apply advances past a new leader's no-op entry.
func (tc *TailCache) MarkFirstCommit() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.firstCommitDone {
		return
	}
	tc.firstCommitDone = true
	tc.firstCommitFuture.Complete(nil, nil)
}

// ResetFirstCommit re-arms the first-commit gate, called when a node
// becomes leader in a new term (spec.md §4.3's linearizable read path
// requires a fresh no-op commit under each new leadership term).
func (tc *TailCache) ResetFirstCommit() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.firstCommitDone = false
	tc.firstCommitFuture = fiber.NewFuture()
}

func (tc *TailCache) FirstCommitOfApplied() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.firstCommitDone
}

func (tc *TailCache) FirstCommitFuture() *fiber.Future {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.firstCommitFuture
}
