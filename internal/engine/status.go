package engine

import (
	"sync/atomic"
)

// Role is one of the four roles a group's local node can hold
// (spec.md §3, §4.3).
type Role uint8

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
	RoleObserver
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	case RoleObserver:
		return "observer"
	default:
		return "unknown"
	}
}

// ShareStatus is the frozen, lock-free-published snapshot external
// reader threads consult for linearizable reads without touching the
// group's dispatcher (spec.md §3, §4.3, §5).
type ShareStatus struct {
	Role                 Role
	CurrentLeader        uint64
	LeaseEndNanos        int64
	LastApplied          uint64
	FirstCommitOfApplied bool
}

// shareStatusBox publishes ShareStatus via atomic.Value so readers never
// block on the owning group's mutex.
type shareStatusBox struct {
	v atomic.Value // ShareStatus
}

func (b *shareStatusBox) Publish(s ShareStatus) { b.v.Store(s) }

func (b *shareStatusBox) Load() ShareStatus {
	v := b.v.Load()
	if v == nil {
		return ShareStatus{}
	}
	return v.(ShareStatus)
}

// RaftStatus is the per-group state spec.md §3 describes: persistent
// fields are mirrored into raftlog.RaftLog's status record; volatile
// fields live only here and are mutated exclusively by the group's own
// dispatcher fiber. Concurrent external readers use ShareStatus instead.
type RaftStatus struct {
	GroupID uint64

	// Persistent (mirrored to raftlog.RaftLog).
	CurrentTerm uint32
	VotedFor    string
	CommitIndex uint64

	// Volatile.
	Role                Role
	CurrentLeader       uint64
	LastLogIndex        uint64
	LastLogTerm         uint32
	LastApplied         uint64
	LastPersistLogIndex uint64
	LastPersistLogTerm  uint32
	LeaseEndNanos       int64
	LastElectTime       int64
	HeartbeatTime       int64
	ElectTimeoutNanos   int64
	ElectQuorum         int
	RwQuorum            int

	TailCache *TailCache

	Share shareStatusBox

	Stopped bool
	Err     error
}

// NewRaftStatus builds a fresh RaftStatus for a group with memberCount
// voting members (the local node included).
func NewRaftStatus(groupID uint64, memberCount int, electTimeoutNanos int64) *RaftStatus {
	return &RaftStatus{
		GroupID:           groupID,
		Role:              RoleFollower,
		ElectTimeoutNanos: electTimeoutNanos,
		ElectQuorum:       electQuorum(memberCount),
		RwQuorum:          rwQuorum(memberCount),
		TailCache:         NewTailCache(),
	}
}

// electQuorum and rwQuorum implement the spec's quorum math: a strict
// majority of the member set, including the local node.
func electQuorum(memberCount int) int { return memberCount/2 + 1 }
func rwQuorum(memberCount int) int    { return memberCount/2 + 1 }

// PublishShare refreshes the atomically-read snapshot. Must be called by
// the owning dispatcher fiber whenever role, leader, lease or applied
// index changes (spec.md §3: "published atomically ... whenever role,
// leader, lease, or applied changes").
func (s *RaftStatus) PublishShare() {
	s.Share.Publish(ShareStatus{
		Role:                 s.Role,
		CurrentLeader:        s.CurrentLeader,
		LeaseEndNanos:        s.LeaseEndNanos,
		LastApplied:          s.LastApplied,
		FirstCommitOfApplied: s.TailCache.FirstCommitOfApplied(),
	})
}

// IsLeaseValid reports whether nowNanos is still inside the leader's
// lease window.
func (s *RaftStatus) IsLeaseValid(nowNanos int64) bool {
	return s.Role == RoleLeader && nowNanos < s.LeaseEndNanos
}
