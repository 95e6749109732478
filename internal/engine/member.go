package engine

import (
	"sync"
	"time"
)

// PendingStat tracks whether a RAFT_APPEND_ENTRIES (or install-snapshot
// chunk) is currently in flight to this peer, so the replicator never
// pipelines a second request ahead of an unacknowledged one.
type PendingStat struct {
	InFlight  bool
	SentAt    int64
	NextIndex uint64 // the nextIndex value this in-flight request targeted
}

// RaftMember is the leader's per-peer replication bookkeeping
// (spec.md §3).
type RaftMember struct {
	NodeID          uint64
	Address         string
	MatchIndex      uint64
	NextIndex       uint64
	LastConfirmTime int64
	Ready           bool
	InstallSnapshot bool
	Pending         PendingStat
}

// MemberManager owns the group's static member set (spec.md §4.5:
// members are created at NewGroup from static membership and never
// change — no joint consensus). It tracks liveness via LastConfirmTime
// and exposes the readiness/quorum queries the vote and commit managers
// need.
type MemberManager struct {
	mu      sync.RWMutex
	localID uint64
	members map[uint64]*RaftMember
}

// NewMemberManager builds the manager from a static {id: address} map.
// localID must be one of the keys; it is tracked like any other member
// for matchIndex bookkeeping purposes even though the engine never sends
// RPCs to itself.
func NewMemberManager(localID uint64, addrs map[uint64]string) *MemberManager {
	mm := &MemberManager{localID: localID, members: make(map[uint64]*RaftMember, len(addrs))}
	for id, addr := range addrs {
		mm.members[id] = &RaftMember{NodeID: id, Address: addr, Ready: id == localID}
	}
	return mm
}

func (mm *MemberManager) LocalID() uint64 { return mm.localID }

// Count is the total voting member count (local node included), used for
// electQuorum/rwQuorum computation.
func (mm *MemberManager) Count() int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return len(mm.members)
}

// Get returns the member record for id, or nil if id is not a member of
// this group.
func (mm *MemberManager) Get(id uint64) *RaftMember {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.members[id]
}

// Peers returns every member except the local node, in an unspecified
// order — callers fan requests out to all of them independently.
func (mm *MemberManager) Peers() []*RaftMember {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	peers := make([]*RaftMember, 0, len(mm.members)-1)
	for id, m := range mm.members {
		if id != mm.localID {
			peers = append(peers, m)
		}
	}
	return peers
}

// All returns every member including the local node.
func (mm *MemberManager) All() []*RaftMember {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	all := make([]*RaftMember, 0, len(mm.members))
	for _, m := range mm.members {
		all = append(all, m)
	}
	return all
}

// ResetForNewTerm clears per-term replication state (nextIndex reset to
// leaderLastIndex+1, matchIndex to 0 for everyone but self) when the
// local node becomes leader.
func (mm *MemberManager) ResetForNewTerm(leaderLastIndex uint64) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	for id, m := range mm.members {
		if id == mm.localID {
			m.MatchIndex = leaderLastIndex
			m.NextIndex = leaderLastIndex + 1
			continue
		}
		m.MatchIndex = 0
		m.NextIndex = leaderLastIndex + 1
		m.InstallSnapshot = false
		m.Pending = PendingStat{}
	}
}

// OnAppendEntriesSuccess advances matchIndex/nextIndex monotonically
// (spec.md §4.3: "On AppendEntries success, matchIndex = max(matchIndex,
// reqLastIndex); nextIndex = matchIndex + 1").
func (mm *MemberManager) OnAppendEntriesSuccess(id uint64, reqLastIndex uint64, nowNanos int64) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	m, ok := mm.members[id]
	if !ok {
		return
	}
	if reqLastIndex > m.MatchIndex {
		m.MatchIndex = reqLastIndex
	}
	m.NextIndex = m.MatchIndex + 1
	m.LastConfirmTime = nowNanos
	m.Ready = true
	m.Pending = PendingStat{}
}

// OnAppendEntriesFailure lowers nextIndex to the peer's suggested value,
// bounded below by 1 (spec.md §4.3: log-mismatch handling).
func (mm *MemberManager) OnAppendEntriesFailure(id uint64, suggestedNextIndex uint64) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	m, ok := mm.members[id]
	if !ok {
		return
	}
	if suggestedNextIndex < 1 {
		suggestedNextIndex = 1
	}
	m.NextIndex = suggestedNextIndex
	m.Pending = PendingStat{}
}

// MatchIndexes returns every member's matchIndex, for CommitManager's
// quorum computation.
func (mm *MemberManager) MatchIndexes() []uint64 {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	idx := make([]uint64, 0, len(mm.members))
	for _, m := range mm.members {
		idx = append(idx, m.MatchIndex)
	}
	return idx
}

// LiveCount reports how many members have confirmed within staleAfter of
// now, the local node always counting as live.
func (mm *MemberManager) LiveCount(nowNanos int64, staleAfter time.Duration) int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	live := 0
	for id, m := range mm.members {
		if id == mm.localID || nowNanos-m.LastConfirmTime <= staleAfter.Nanoseconds() {
			live++
		}
	}
	return live
}
