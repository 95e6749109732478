package engine

import (
	"fmt"

	"github.com/flowraft/raftcore/internal/raftlog"
)

// installState tracks an in-progress inbound InstallSnapshot sequence
// (spec.md §4.3's "Snapshot install (follower side)").
type installState struct {
	lastIncludedIndex uint64
	lastIncludedTerm  uint32
	offset            int64
}

// SnapshotManager drives both directions of snapshot transfer: applying
// inbound chunks to the state machine on the follower side, and
// iterating an outbound Snapshot on the leader side.
type SnapshotManager struct {
	groupLog *raftlog.RaftLog
	status   *RaftStatus
	sm       StateMachine

	inbound *installState
}

func NewSnapshotManager(groupLog *raftlog.RaftLog, status *RaftStatus, sm StateMachine) *SnapshotManager {
	return &SnapshotManager{groupLog: groupLog, status: status, sm: sm}
}

// InstallChunk applies one InstallSnapshot RPC chunk. On the final chunk
// (done or an empty body) it commits the snapshot: lastApplied and
// commitIndex advance to lastIncludedIndex and the log is reset to start
// fresh after it (spec.md §4.3).
func (sn *SnapshotManager) InstallChunk(lastIncludedIndex uint64, lastIncludedTerm uint32, offset int64, done bool, chunk []byte) error {
	if sn.inbound == nil {
		sn.inbound = &installState{lastIncludedIndex: lastIncludedIndex, lastIncludedTerm: lastIncludedTerm}
	}
	if sn.inbound.lastIncludedIndex != lastIncludedIndex || sn.inbound.lastIncludedTerm != lastIncludedTerm {
		return fmt.Errorf("engine: install-snapshot chunk for a different snapshot is in progress")
	}
	if offset != sn.inbound.offset {
		return fmt.Errorf("engine: install-snapshot chunk offset %d does not match expected %d", offset, sn.inbound.offset)
	}

	final := done || len(chunk) == 0
	if err := sn.sm.InstallSnapshot(lastIncludedIndex, lastIncludedTerm, offset, final, chunk); err != nil {
		return err
	}
	sn.inbound.offset += int64(len(chunk))

	if !final {
		return nil
	}

	if err := sn.groupLog.ResetToSnapshot(lastIncludedIndex, lastIncludedTerm); err != nil {
		return err
	}
	sn.status.LastApplied = lastIncludedIndex
	if sn.status.CommitIndex < lastIncludedIndex {
		sn.status.CommitIndex = lastIncludedIndex
	}
	sn.status.LastLogIndex = lastIncludedIndex
	sn.status.LastLogTerm = lastIncludedTerm
	sn.status.PublishShare()
	sn.inbound = nil
	return nil
}

// Produce begins an outbound snapshot transfer for the leader side of
// InstallSnapshot, delegating the iteration itself to the state
// machine's Snapshot handle.
func (sn *SnapshotManager) Produce() (Snapshot, error) {
	return sn.sm.TakeSnapshot()
}
