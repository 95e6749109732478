package engine

import "sort"

// CommitManager advances a leader's commitIndex from its members'
// matchIndex values (spec.md §4.3: "advances commitIndex to the largest
// index N s.t. matchIndex ≥ N for a rwQuorum AND log[N].term ==
// currentTerm" — the leader-completeness rule, which prevents a leader
// from committing an entry replicated by an old term before its own
// current-term entries cover it).
type CommitManager struct {
	members *MemberManager
}

func NewCommitManager(members *MemberManager) *CommitManager {
	return &CommitManager{members: members}
}

// Advance returns the new commitIndex given the current one, the
// leader's current term, and a termAt lookup (typically
// raftlog.RaftLog.TermAt). It never returns a value below current.
func (cm *CommitManager) Advance(current uint64, currentTerm uint32, termAt func(uint64) (uint32, error)) (uint64, error) {
	matches := cm.members.MatchIndexes()
	if len(matches) == 0 {
		return current, nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })

	quorum := cm.members.Count()/2 + 1
	if quorum > len(matches) {
		return current, nil
	}
	// matches[quorum-1] is the largest N with at least quorum members at
	// matchIndex >= N.
	ceiling := matches[quorum-1]

	for n := ceiling; n > current; n-- {
		term, err := termAt(n)
		if err != nil {
			continue // unreadable (already reclaimed/gap): not a valid commit candidate
		}
		if term == currentTerm {
			return n, nil
		}
	}
	return current, nil
}
