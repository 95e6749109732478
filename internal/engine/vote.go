package engine

import (
	"fmt"
	"math/rand"
)

// VoteRequest/VoteResponse mirror the RAFT_REQUEST_VOTE RPC body
// (spec.md §6).
type VoteRequest struct {
	GroupID      uint64
	Term         uint32
	CandidateID  uint64
	LastLogIndex uint64
	LastLogTerm  uint32
	PreVote      bool
}

type VoteResponse struct {
	Term        uint32
	VoteGranted bool
}

// VoteRound is one in-flight election round (pre-vote or real vote),
// identified by a monotonic VoteID so stale responses from a superseded
// round are dropped on arrival (spec.md §4.3).
type VoteRound struct {
	VoteID  uint64
	PreVote bool
	Term    uint32
	grants  map[uint64]bool
}

func (r *VoteRound) Grant(nodeID uint64) {
	if r.grants == nil {
		r.grants = make(map[uint64]bool)
	}
	r.grants[nodeID] = true
}

func (r *VoteRound) GrantCount() int { return len(r.grants) }

// VoteManager implements the responder side of pre-vote/vote (spec.md
// §4.3) and hands out monotonic VoteIDs for the candidate side.
type VoteManager struct {
	members *MemberManager
	voteID  uint64
}

func NewVoteManager(members *MemberManager) *VoteManager {
	return &VoteManager{members: members}
}

// NewRound starts a fresh election round with the next VoteID, always
// self-granted (a candidate implicitly votes for itself).
func (vm *VoteManager) NewRound(preVote bool, term uint32) *VoteRound {
	vm.voteID++
	r := &VoteRound{VoteID: vm.voteID, PreVote: preVote, Term: term}
	r.Grant(vm.members.LocalID())
	return r
}

// ElectionJitterNanos returns a small randomized addition to the base
// election timeout, per spec.md §4.3's "randomised jitter ∈ [0, 200ns]":
// a value in [0, 200) nanoseconds, which the election timer adds unscaled
// to its poll interval.
func ElectionJitterNanos() int64 {
	return rand.Int63n(200)
}

// HandleRequest decides whether to grant req, mutating status as the
// real-vote path requires (term bump, votedFor). nowNanos and
// heartbeatTime together implement the pre-vote gate: "responders grant
// pre-vote iff they have not heard from a leader within electTimeout."
func (vm *VoteManager) HandleRequest(status *RaftStatus, req VoteRequest, nowNanos int64) VoteResponse {
	if req.Term < status.CurrentTerm {
		return VoteResponse{Term: status.CurrentTerm, VoteGranted: false}
	}

	if req.PreVote {
		heardRecently := nowNanos-status.HeartbeatTime < status.ElectTimeoutNanos
		if heardRecently {
			return VoteResponse{Term: status.CurrentTerm, VoteGranted: false}
		}
		granted := logAtLeastAsUpToDate(req.LastLogTerm, req.LastLogIndex, status.LastLogTerm, status.LastLogIndex)
		return VoteResponse{Term: status.CurrentTerm, VoteGranted: granted}
	}

	if req.Term > status.CurrentTerm {
		status.CurrentTerm = req.Term
		status.VotedFor = ""
		if status.Role != RoleObserver {
			status.Role = RoleFollower
		}
	}

	candidate := fmt.Sprintf("%d", req.CandidateID)
	if status.VotedFor != "" && status.VotedFor != candidate {
		return VoteResponse{Term: status.CurrentTerm, VoteGranted: false}
	}
	if !logAtLeastAsUpToDate(req.LastLogTerm, req.LastLogIndex, status.LastLogTerm, status.LastLogIndex) {
		return VoteResponse{Term: status.CurrentTerm, VoteGranted: false}
	}

	status.VotedFor = candidate
	status.LastElectTime = nowNanos
	return VoteResponse{Term: status.CurrentTerm, VoteGranted: true}
}

// logAtLeastAsUpToDate is the standard Raft log-comparison rule: higher
// term wins outright, equal term falls back to longer log.
func logAtLeastAsUpToDate(candTerm uint32, candIndex uint64, selfTerm uint32, selfIndex uint64) bool {
	if candTerm != selfTerm {
		return candTerm > selfTerm
	}
	return candIndex >= selfIndex
}
