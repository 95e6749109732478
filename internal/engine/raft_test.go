package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowraft/raftcore/internal/api"
	"github.com/flowraft/raftcore/internal/raftlog"
)

func newTestRaft(t *testing.T, memberCount int) (*Raft, *RaftStatus, *raftlog.RaftLog, *MemberManager) {
	t.Helper()
	rl, err := raftlog.Open(t.TempDir(), 4096)
	require.NoError(t, err)
	t.Cleanup(func() { rl.Close() })

	addrs := map[uint64]string{1: "local"}
	for i := 2; i <= memberCount; i++ {
		addrs[uint64(i)] = fmt.Sprintf("peer-%d", i)
	}
	members := NewMemberManager(1, addrs)
	status := NewRaftStatus(1, memberCount, int64(1e8))
	votes := NewVoteManager(members)
	commit := NewCommitManager(members)
	sm := &fakeStateMachine{}
	apply := NewApplyManager(rl, status, sm)
	snap := NewSnapshotManager(rl, status, sm)
	r := NewRaft(status, rl, members, votes, commit, apply, snap)
	return r, status, rl, members
}

func TestRaftBecomeLeaderAppendsNoOpAndSetsLease(t *testing.T) {
	r, status, rl, _ := newTestRaft(t, 1)
	status.CurrentTerm = 1
	status.Role = RoleCandidate

	item, err := r.BecomeLeader(1000)
	require.NoError(t, err)
	require.Equal(t, api.EntryNoOp, item.Type)
	require.Equal(t, RoleLeader, status.Role)
	require.Equal(t, uint64(1), status.LastLogIndex)
	require.Greater(t, status.LeaseEndNanos, int64(1000))
	require.Equal(t, uint64(1), rl.LastIndex())
}

func TestRaftProposeRequiresLeader(t *testing.T) {
	r, status, _, _ := newTestRaft(t, 1)
	status.Role = RoleFollower

	_, err := r.Propose(1, []byte("x"))
	require.ErrorIs(t, err, ErrNotLeader)
}

func TestRaftProposeRegistersTailCacheFuture(t *testing.T) {
	r, status, _, _ := newTestRaft(t, 1)
	status.Role = RoleLeader
	status.CurrentTerm = 1

	item, err := r.Propose(7, []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), item.Index)
	require.Equal(t, 1, status.TailCache.Len())
}

func TestRaftHandleAppendEntriesFollowerAppendsAndAdvancesCommit(t *testing.T) {
	r, status, _, _ := newTestRaft(t, 1)
	status.Role = RoleFollower

	req := AppendEntriesRequest{
		Term:         1,
		LeaderID:     2,
		PrevLogIndex: 0,
		PrevLogTerm:  0,
		LeaderCommit: 1,
		Entries: []*api.LogItem{
			{Index: 1, Term: 1, Type: api.EntryNormal, Body: []byte("a")},
		},
	}
	resp := r.HandleAppendEntries(req, 1000)
	require.True(t, resp.Success)
	require.Equal(t, uint64(1), status.LastLogIndex)
	require.Equal(t, uint64(1), status.CommitIndex)
	require.Equal(t, uint64(2), status.CurrentLeader)
}

func TestRaftHandleAppendEntriesRejectsStaleTerm(t *testing.T) {
	r, status, _, _ := newTestRaft(t, 1)
	status.CurrentTerm = 5

	resp := r.HandleAppendEntries(AppendEntriesRequest{Term: 3, LeaderID: 2}, 0)
	require.False(t, resp.Success)
	require.Equal(t, uint32(5), resp.Term)
}

func TestRaftHandleAppendEntriesLogMismatchSuggestsRetreat(t *testing.T) {
	r, status, _, _ := newTestRaft(t, 1)
	status.Role = RoleFollower
	status.CurrentTerm = 1

	// PrevLogIndex 5 doesn't exist in an empty log: mismatch.
	resp := r.HandleAppendEntries(AppendEntriesRequest{Term: 1, LeaderID: 2, PrevLogIndex: 5, PrevLogTerm: 1}, 0)
	require.False(t, resp.Success)
	require.LessOrEqual(t, resp.SuggestedNextIndex, uint64(5))
}

func TestRaftHandleAppendEntriesTruncatesOnConflict(t *testing.T) {
	r, status, rl, _ := newTestRaft(t, 1)
	status.Role = RoleLeader
	status.CurrentTerm = 1
	for i := 0; i < 3; i++ {
		_, err := rl.Append(1, api.EntryNormal, 0, nil, []byte("old"))
		require.NoError(t, err)
	}
	status.LastLogIndex = 3
	status.LastLogTerm = 1
	status.Role = RoleFollower

	// A new leader at term 2 overwrites entry 2 onward.
	req := AppendEntriesRequest{
		Term:         2,
		LeaderID:     3,
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		Entries: []*api.LogItem{
			{Index: 2, Term: 2, Type: api.EntryNormal, Body: []byte("new")},
		},
	}
	resp := r.HandleAppendEntries(req, 1000)
	require.True(t, resp.Success)
	require.Equal(t, uint64(2), rl.LastIndex())

	item, err := rl.Get(2)
	require.NoError(t, err)
	require.Equal(t, "new", string(item.Body))
	require.Equal(t, uint32(2), item.Term)
}

func TestRaftHandleAppendEntriesResponseAdvancesCommitOnQuorum(t *testing.T) {
	r, status, rl, members := newTestRaft(t, 3)
	status.Role = RoleLeader
	status.CurrentTerm = 1
	for i := 0; i < 3; i++ {
		_, err := rl.Append(1, api.EntryNormal, 0, nil, []byte("v"))
		require.NoError(t, err)
	}
	status.LastLogIndex = 3
	members.ResetForNewTerm(3)
	require.Equal(t, 2, status.ElectQuorum) // 3 members: self + 1 more suffices

	// The leader's own matchIndex (set by ResetForNewTerm) already counts
	// toward quorum, so a single peer ack is enough to commit index 3.
	require.NoError(t, r.HandleAppendEntriesResponse(2, 3, AppendEntriesResponse{Term: 1, Success: true}, 1000))
	require.Equal(t, uint64(3), status.CommitIndex)
}

func TestRaftHandleAppendEntriesResponseStepsDownOnHigherTerm(t *testing.T) {
	r, status, _, _ := newTestRaft(t, 2)
	status.Role = RoleLeader
	status.CurrentTerm = 1

	require.NoError(t, r.HandleAppendEntriesResponse(2, 0, AppendEntriesResponse{Term: 5, Success: false}, 1000))
	require.Equal(t, RoleFollower, status.Role)
	require.Equal(t, uint32(5), status.CurrentTerm)
}

func TestRaftOnVoteResponseReachesQuorum(t *testing.T) {
	r, status, _, _ := newTestRaft(t, 3)
	round, _ := r.StartVote(1000)

	won := r.OnVoteResponse(round, 2, VoteResponse{Term: status.CurrentTerm, VoteGranted: true}, 1000)
	require.True(t, won) // self + node 2 == electQuorum(3) == 2
}

func TestRaftOnVoteResponseIgnoresStaleRound(t *testing.T) {
	r, status, _, _ := newTestRaft(t, 3)
	round, _ := r.StartVote(1000)
	_, _ = r.StartVote(1000) // supersedes round with a new one

	won := r.OnVoteResponse(round, 2, VoteResponse{Term: status.CurrentTerm, VoteGranted: true}, 1000)
	require.False(t, won)
}

func TestRaftMaintainLeaseExpiresWithoutQuorumAck(t *testing.T) {
	r, status, _, _ := newTestRaft(t, 1)
	status.Role = RoleLeader
	status.LeaseEndNanos = 500

	r.MaintainLease(1000, false)
	require.Equal(t, RoleFollower, status.Role)
}

func TestRaftMaintainLeaseExtendsOnQuorumAck(t *testing.T) {
	r, status, _, _ := newTestRaft(t, 1)
	status.Role = RoleLeader
	status.ElectTimeoutNanos = 100

	r.MaintainLease(1000, true)
	require.Equal(t, RoleLeader, status.Role)
	require.Equal(t, int64(1100), status.LeaseEndNanos)
}
