package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitManagerAdvancesToQuorumCeiling(t *testing.T) {
	members := NewMemberManager(1, map[uint64]string{1: "a", 2: "b", 3: "c"})
	members.Get(1).MatchIndex = 10
	members.Get(2).MatchIndex = 7
	members.Get(3).MatchIndex = 5

	cm := NewCommitManager(members)
	termAt := func(n uint64) (uint32, error) { return 2, nil }

	n, err := cm.Advance(0, 2, termAt)
	require.NoError(t, err)
	require.Equal(t, uint64(7), n) // quorum=2, second-highest matchIndex is 7
}

func TestCommitManagerRefusesPriorTermEntries(t *testing.T) {
	members := NewMemberManager(1, map[uint64]string{1: "a", 2: "b", 3: "c"})
	members.Get(1).MatchIndex = 10
	members.Get(2).MatchIndex = 9
	members.Get(3).MatchIndex = 1

	cm := NewCommitManager(members)
	// Only index 10 is from the current term; 9 and below are from an
	// earlier term and must not be committed directly (leader-completeness).
	termAt := func(n uint64) (uint32, error) {
		if n == 10 {
			return 3, nil
		}
		return 2, nil
	}

	n, err := cm.Advance(0, 3, termAt)
	require.NoError(t, err)
	require.Equal(t, uint64(0), n) // ceiling (9) is not current-term, walk finds nothing above current=0
}

func TestCommitManagerNeverRegresses(t *testing.T) {
	members := NewMemberManager(1, map[uint64]string{1: "a", 2: "b"})
	members.Get(1).MatchIndex = 3
	members.Get(2).MatchIndex = 3

	cm := NewCommitManager(members)
	termAt := func(n uint64) (uint32, error) { return 1, nil }

	n, err := cm.Advance(5, 1, termAt)
	require.NoError(t, err)
	require.Equal(t, uint64(5), n)
}

func TestCommitManagerNoQuorumYet(t *testing.T) {
	members := NewMemberManager(1, map[uint64]string{1: "a", 2: "b", 3: "c", 4: "d", 5: "e"})
	members.Get(1).MatchIndex = 10
	// everyone else at 0

	cm := NewCommitManager(members)
	termAt := func(n uint64) (uint32, error) { return 1, nil }

	n, err := cm.Advance(0, 1, termAt)
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)
}
