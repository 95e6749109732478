package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStatus(memberCount int) *RaftStatus {
	return NewRaftStatus(1, memberCount, int64(100*1e6)) // 100ms
}

func TestVoteManagerPreVoteGateDeniesWhenLeaderRecentlyHeard(t *testing.T) {
	members := NewMemberManager(1, map[uint64]string{1: "a", 2: "b"})
	vm := NewVoteManager(members)
	status := newTestStatus(2)
	status.HeartbeatTime = 1000
	status.LastLogIndex = 5

	resp := vm.HandleRequest(status, VoteRequest{Term: status.CurrentTerm, CandidateID: 2, PreVote: true, LastLogIndex: 5}, 1000+50*1e6)
	require.False(t, resp.VoteGranted)
}

func TestVoteManagerPreVoteGateGrantsAfterTimeout(t *testing.T) {
	members := NewMemberManager(1, map[uint64]string{1: "a", 2: "b"})
	vm := NewVoteManager(members)
	status := newTestStatus(2)
	status.HeartbeatTime = 0
	status.LastLogIndex = 5
	status.LastLogTerm = 1

	resp := vm.HandleRequest(status, VoteRequest{Term: status.CurrentTerm, CandidateID: 2, PreVote: true, LastLogIndex: 5, LastLogTerm: 1}, int64(200*1e6))
	require.True(t, resp.VoteGranted)
}

func TestVoteManagerRealVoteTermBumpAndGrant(t *testing.T) {
	members := NewMemberManager(1, map[uint64]string{1: "a", 2: "b"})
	vm := NewVoteManager(members)
	status := newTestStatus(2)
	status.CurrentTerm = 3

	resp := vm.HandleRequest(status, VoteRequest{Term: 5, CandidateID: 2, LastLogIndex: 0, LastLogTerm: 0}, 0)
	require.True(t, resp.VoteGranted)
	require.Equal(t, uint32(5), status.CurrentTerm)
	require.Equal(t, "2", status.VotedFor)
}

func TestVoteManagerRealVoteDeniesSecondCandidateSameTerm(t *testing.T) {
	members := NewMemberManager(1, map[uint64]string{1: "a", 2: "b", 3: "c"})
	vm := NewVoteManager(members)
	status := newTestStatus(3)

	resp1 := vm.HandleRequest(status, VoteRequest{Term: 1, CandidateID: 2}, 0)
	require.True(t, resp1.VoteGranted)

	resp2 := vm.HandleRequest(status, VoteRequest{Term: 1, CandidateID: 3}, 0)
	require.False(t, resp2.VoteGranted)
}

func TestVoteManagerDeniesStaleTerm(t *testing.T) {
	members := NewMemberManager(1, map[uint64]string{1: "a", 2: "b"})
	vm := NewVoteManager(members)
	status := newTestStatus(2)
	status.CurrentTerm = 5

	resp := vm.HandleRequest(status, VoteRequest{Term: 3, CandidateID: 2}, 0)
	require.False(t, resp.VoteGranted)
	require.Equal(t, uint32(5), resp.Term)
}

func TestVoteManagerDeniesOutOfDateLog(t *testing.T) {
	members := NewMemberManager(1, map[uint64]string{1: "a", 2: "b"})
	vm := NewVoteManager(members)
	status := newTestStatus(2)
	status.LastLogIndex = 10
	status.LastLogTerm = 2

	resp := vm.HandleRequest(status, VoteRequest{Term: 1, CandidateID: 2, LastLogIndex: 3, LastLogTerm: 1}, 0)
	require.False(t, resp.VoteGranted)
}

func TestVoteRoundGrantCount(t *testing.T) {
	members := NewMemberManager(1, map[uint64]string{1: "a", 2: "b", 3: "c"})
	vm := NewVoteManager(members)
	round := vm.NewRound(false, 1)
	require.Equal(t, 1, round.GrantCount()) // self-granted

	round.Grant(2)
	require.Equal(t, 2, round.GrantCount())
	round.Grant(2) // idempotent
	require.Equal(t, 2, round.GrantCount())
}
