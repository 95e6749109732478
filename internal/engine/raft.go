package engine

import (
	"fmt"

	"github.com/flowraft/raftcore/internal/api"
	"github.com/flowraft/raftcore/internal/log"
	"github.com/flowraft/raftcore/internal/raftlog"
)

// Raft is the per-group role state machine and the log-matching logic
// for AppendEntries (spec.md §4.3). It owns no goroutines of its own —
// the group's fiber loop (see group.go) drives ticks and RPC handling
// and is the only caller, so every method here assumes single-threaded
// access.
type Raft struct {
	status  *RaftStatus
	log     *raftlog.RaftLog
	members *MemberManager
	votes   *VoteManager
	commit  *CommitManager
	apply   *ApplyManager
	snap    *SnapshotManager

	round *VoteRound // current in-flight election round, nil if none
}

func NewRaft(status *RaftStatus, rlog *raftlog.RaftLog, members *MemberManager, votes *VoteManager, commit *CommitManager, apply *ApplyManager, snap *SnapshotManager) *Raft {
	return &Raft{status: status, log: rlog, members: members, votes: votes, commit: commit, apply: apply, snap: snap}
}

// BecomeFollower steps down (if currently candidate/leader) to follower
// under term, recording the new leader hint if known.
func (r *Raft) BecomeFollower(term uint32, leaderID uint64, nowNanos int64) {
	wasLeader := r.status.Role == RoleLeader
	r.status.Role = RoleFollower
	r.status.CurrentTerm = term
	r.status.CurrentLeader = leaderID
	r.status.HeartbeatTime = nowNanos
	r.round = nil
	if wasLeader {
		r.status.TailCache.FailAll(ErrNotLeader)
	}
	r.status.PublishShare()
}

// StartPreVote begins a pre-vote round without mutating currentTerm or
// votedFor (spec.md §4.3: "Pre-vote reuses the vote RPC but sets
// preVote=true and term currentTerm+1 without incrementing local term").
func (r *Raft) StartPreVote(nowNanos int64) (*VoteRound, VoteRequest) {
	r.status.LastElectTime = nowNanos + int64(1e9) // "advanced by 1s" to avoid thrash
	round := r.votes.NewRound(true, r.status.CurrentTerm+1)
	r.round = round
	req := VoteRequest{
		Term:         round.Term,
		CandidateID:  r.members.LocalID(),
		LastLogIndex: r.status.LastLogIndex,
		LastLogTerm:  r.status.LastLogTerm,
		PreVote:      true,
	}
	return round, req
}

// StartVote promotes a successful pre-vote into a real election:
// increments currentTerm, votes for self, becomes candidate.
func (r *Raft) StartVote(nowNanos int64) (*VoteRound, VoteRequest) {
	r.status.CurrentTerm++
	r.status.VotedFor = fmt.Sprintf("%d", r.members.LocalID())
	r.status.Role = RoleCandidate
	r.status.LastElectTime = nowNanos
	round := r.votes.NewRound(false, r.status.CurrentTerm)
	r.round = round
	req := VoteRequest{
		Term:         round.Term,
		CandidateID:  r.members.LocalID(),
		LastLogIndex: r.status.LastLogIndex,
		LastLogTerm:  r.status.LastLogTerm,
		PreVote:      false,
	}
	return round, req
}

// CurrentRound is the in-flight election round, or nil.
func (r *Raft) CurrentRound() *VoteRound { return r.round }

// OnVoteResponse records a grant if the response belongs to the current
// round, and reports whether electQuorum has now been reached.
func (r *Raft) OnVoteResponse(round *VoteRound, peerID uint64, resp VoteResponse, nowNanos int64) bool {
	if r.round != round || round.VoteID != r.round.VoteID {
		return false // stale response from a superseded round
	}
	if resp.Term > r.status.CurrentTerm {
		r.BecomeFollower(resp.Term, 0, nowNanos)
		return false
	}
	if resp.VoteGranted {
		round.Grant(peerID)
	}
	return round.GrantCount() >= r.status.ElectQuorum
}

// BecomeLeader transitions to leader after a real vote wins quorum: a
// no-op entry is appended immediately so the commit-manager and
// linearizable read path have a current-term entry to anchor on
// (spec.md §4.3's leader-completeness rule).
func (r *Raft) BecomeLeader(nowNanos int64) (*api.LogItem, error) {
	r.status.Role = RoleLeader
	r.status.CurrentLeader = r.members.LocalID()
	r.status.LeaseEndNanos = nowNanos + r.status.ElectTimeoutNanos
	r.status.HeartbeatTime = nowNanos
	r.members.ResetForNewTerm(r.status.LastLogIndex)
	r.status.TailCache.ResetFirstCommit()
	r.round = nil
	r.status.PublishShare()

	item, err := r.log.Append(r.status.CurrentTerm, api.EntryNoOp, 0, nil, nil)
	if err != nil {
		return nil, err
	}
	r.status.LastLogIndex = item.Index
	r.status.LastLogTerm = item.Term
	return item, nil
}

// Propose appends a client entry at the leader and registers its
// TailCache future. Callers must check r.status.Role == RoleLeader
// first (or rely on the ErrNotLeader this returns when it isn't).
func (r *Raft) Propose(bizType uint32, body []byte) (*api.LogItem, error) {
	if r.status.Role != RoleLeader {
		return nil, ErrNotLeader
	}
	item, err := r.log.Append(r.status.CurrentTerm, api.EntryNormal, bizType, nil, body)
	if err != nil {
		return nil, err
	}
	r.status.LastLogIndex = item.Index
	r.status.LastLogTerm = item.Term
	r.status.TailCache.Register(item.Index)
	return item, nil
}

// HandleAppendEntries is the follower/candidate-side RPC handler
// (spec.md §4.3). A higher term always steps the local node down first.
func (r *Raft) HandleAppendEntries(req AppendEntriesRequest, nowNanos int64) AppendEntriesResponse {
	if req.Term < r.status.CurrentTerm {
		return AppendEntriesResponse{Term: r.status.CurrentTerm, Success: false}
	}
	if req.Term > r.status.CurrentTerm || r.status.Role == RoleCandidate {
		r.BecomeFollower(req.Term, req.LeaderID, nowNanos)
	} else {
		r.status.CurrentLeader = req.LeaderID
		r.status.HeartbeatTime = nowNanos
	}

	if req.PrevLogIndex > 0 {
		term, err := r.log.TermAt(req.PrevLogIndex)
		if err != nil || term != req.PrevLogTerm {
			suggested := r.status.LastLogIndex + 1
			if req.PrevLogIndex < suggested {
				suggested = req.PrevLogIndex
			}
			return AppendEntriesResponse{Term: r.status.CurrentTerm, Success: false, SuggestedNextIndex: suggested}
		}
	}

	nextIndex := req.PrevLogIndex
	for _, entry := range req.Entries {
		existingTerm, err := r.log.TermAt(entry.Index)
		if err == nil && existingTerm != entry.Term {
			if err := r.log.TruncateFrom(entry.Index); err != nil {
				log.Errorf("raftlog truncate on conflict: %v", err)
				return AppendEntriesResponse{Term: r.status.CurrentTerm, Success: false}
			}
		}
		if err != nil || existingTerm != entry.Term {
			if _, err := r.log.Append(entry.Term, entry.Type, entry.BizType, entry.Header, entry.Body); err != nil {
				log.Errorf("raftlog append: %v", err)
				return AppendEntriesResponse{Term: r.status.CurrentTerm, Success: false}
			}
		}
		nextIndex = entry.Index
	}
	if nextIndex > r.status.LastLogIndex {
		r.status.LastLogIndex = nextIndex
		r.status.LastLogTerm, _ = r.log.TermAt(nextIndex)
	}

	if req.LeaderCommit > r.status.CommitIndex {
		ci := req.LeaderCommit
		if ci > r.status.LastLogIndex {
			ci = r.status.LastLogIndex
		}
		r.status.CommitIndex = ci
	}

	return AppendEntriesResponse{Term: r.status.CurrentTerm, Success: true, SuggestedNextIndex: r.status.LastLogIndex + 1}
}

// HandleAppendEntriesResponse is the leader-side reaction to a peer's
// reply: advance its matchIndex/nextIndex on success, retreat nextIndex
// on a log-mismatch failure, and try to advance commitIndex either way.
func (r *Raft) HandleAppendEntriesResponse(peerID uint64, reqLastIndex uint64, resp AppendEntriesResponse, nowNanos int64) error {
	if resp.Term > r.status.CurrentTerm {
		r.BecomeFollower(resp.Term, 0, nowNanos)
		return nil
	}
	if r.status.Role != RoleLeader {
		return nil
	}
	if resp.Success {
		r.members.OnAppendEntriesSuccess(peerID, reqLastIndex, nowNanos)
	} else {
		r.members.OnAppendEntriesFailure(peerID, resp.SuggestedNextIndex)
		return nil
	}

	newCommit, err := r.commit.Advance(r.status.CommitIndex, r.status.CurrentTerm, r.log.TermAt)
	if err != nil {
		return err
	}
	if newCommit > r.status.CommitIndex {
		r.status.CommitIndex = newCommit
	}
	return nil
}

// HandlePing answers a liveness probe.
func (r *Raft) HandlePing(req PingRequest) PingResponse {
	return PingResponse{Term: r.status.CurrentTerm, Alive: !r.status.Stopped}
}

// HandleInstallSnapshot is the follower-side RPC handler, delegating the
// chunk bookkeeping to SnapshotManager.
func (r *Raft) HandleInstallSnapshot(req InstallSnapshotRequest, nowNanos int64) (InstallSnapshotResponse, error) {
	if req.Term < r.status.CurrentTerm {
		return InstallSnapshotResponse{Term: r.status.CurrentTerm, Success: false}, nil
	}
	if req.Term > r.status.CurrentTerm {
		r.BecomeFollower(req.Term, req.LeaderID, nowNanos)
	}
	err := r.snap.InstallChunk(req.LastIncludedIndex, req.LastIncludedTerm, req.Offset, req.Done, req.Data)
	if err != nil {
		return InstallSnapshotResponse{Term: r.status.CurrentTerm, Success: false}, err
	}
	return InstallSnapshotResponse{Term: r.status.CurrentTerm, Success: true}, nil
}

// MaintainLease extends the leader's lease on a quorum-acknowledged
// heartbeat round, and expires leadership if the lease has lapsed
// without one.
func (r *Raft) MaintainLease(nowNanos int64, quorumAckedThisRound bool) {
	if r.status.Role != RoleLeader {
		return
	}
	if quorumAckedThisRound {
		r.status.LeaseEndNanos = nowNanos + r.status.ElectTimeoutNanos
		r.status.PublishShare()
		return
	}
	if nowNanos >= r.status.LeaseEndNanos {
		r.BecomeFollower(r.status.CurrentTerm, 0, nowNanos)
	}
}
