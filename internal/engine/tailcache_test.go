package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTailCacheRegisterAndComplete(t *testing.T) {
	tc := NewTailCache()
	f := tc.Register(5)
	require.Equal(t, 1, tc.Len())

	tc.Complete(5, []byte("ok"), nil)
	require.True(t, f.IsDone())
	require.Equal(t, 0, tc.Len())
}

func TestTailCacheRegisterIsIdempotent(t *testing.T) {
	tc := NewTailCache()
	f1 := tc.Register(5)
	f2 := tc.Register(5)
	require.Same(t, f1, f2)
}

func TestTailCacheCompleteWithoutRegisterIsNoop(t *testing.T) {
	tc := NewTailCache()
	require.NotPanics(t, func() { tc.Complete(99, nil, nil) })
}

func TestTailCacheFailAllResolvesEveryPending(t *testing.T) {
	tc := NewTailCache()
	f1 := tc.Register(1)
	f2 := tc.Register(2)

	tc.FailAll(ErrNotLeader)

	require.True(t, f1.IsDone())
	require.True(t, f2.IsDone())
	require.Equal(t, 0, tc.Len())
}

func TestTailCacheFirstCommitGate(t *testing.T) {
	tc := NewTailCache()
	require.False(t, tc.FirstCommitOfApplied())

	fut := tc.FirstCommitFuture()
	tc.MarkFirstCommit()
	require.True(t, tc.FirstCommitOfApplied())
	require.True(t, fut.IsDone())

	tc.MarkFirstCommit() // second call is a no-op
	require.True(t, tc.FirstCommitOfApplied())

	tc.ResetFirstCommit()
	require.False(t, tc.FirstCommitOfApplied())
	require.False(t, tc.FirstCommitFuture().IsDone())
}
