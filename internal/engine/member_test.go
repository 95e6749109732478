package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemberManagerPeersExcludesLocal(t *testing.T) {
	mm := NewMemberManager(1, map[uint64]string{1: "a", 2: "b", 3: "c"})
	peers := mm.Peers()
	require.Len(t, peers, 2)
	for _, p := range peers {
		require.NotEqual(t, uint64(1), p.NodeID)
	}
}

func TestMemberManagerResetForNewTerm(t *testing.T) {
	mm := NewMemberManager(1, map[uint64]string{1: "a", 2: "b"})
	mm.Get(2).MatchIndex = 7
	mm.Get(2).InstallSnapshot = true

	mm.ResetForNewTerm(20)

	require.Equal(t, uint64(0), mm.Get(2).MatchIndex)
	require.Equal(t, uint64(21), mm.Get(2).NextIndex)
	require.False(t, mm.Get(2).InstallSnapshot)
	require.Equal(t, uint64(20), mm.Get(1).MatchIndex) // self tracked at leader's own last index
}

func TestMemberManagerOnAppendEntriesSuccessIsMonotonic(t *testing.T) {
	mm := NewMemberManager(1, map[uint64]string{1: "a", 2: "b"})
	mm.Get(2).MatchIndex = 5

	mm.OnAppendEntriesSuccess(2, 3, 1000) // lower reqLastIndex must not regress matchIndex
	require.Equal(t, uint64(5), mm.Get(2).MatchIndex)

	mm.OnAppendEntriesSuccess(2, 9, 2000)
	require.Equal(t, uint64(9), mm.Get(2).MatchIndex)
	require.Equal(t, uint64(10), mm.Get(2).NextIndex)
	require.True(t, mm.Get(2).Ready)
}

func TestMemberManagerOnAppendEntriesFailureRetreatsNextIndex(t *testing.T) {
	mm := NewMemberManager(1, map[uint64]string{1: "a", 2: "b"})
	mm.Get(2).NextIndex = 50

	mm.OnAppendEntriesFailure(2, 12)
	require.Equal(t, uint64(12), mm.Get(2).NextIndex)

	mm.OnAppendEntriesFailure(2, 0)
	require.Equal(t, uint64(1), mm.Get(2).NextIndex) // floored at 1
}

func TestMemberManagerLiveCount(t *testing.T) {
	mm := NewMemberManager(1, map[uint64]string{1: "a", 2: "b", 3: "c"})
	base := int64(10 * time.Second)
	mm.OnAppendEntriesSuccess(2, 1, base)
	// member 3 never confirmed: LastConfirmTime stays 0, far outside staleAfter of "now".

	live := mm.LiveCount(base+int64(100*time.Millisecond), 500*time.Millisecond)
	require.Equal(t, 2, live) // local + member 2
}
