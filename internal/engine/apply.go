package engine

import (
	"github.com/flowraft/raftcore/internal/api"
	"github.com/flowraft/raftcore/internal/log"
	"github.com/flowraft/raftcore/internal/raftlog"
)

// ApplyManager feeds committed entries into the user state machine in
// strict index order (spec.md §4.3: "for each index in (lastApplied,
// commitIndex], load the LogItem, invoke stateMachine.exec(...), set
// lastApplied = index, and complete the tail-cache future"). A state
// machine error is fatal to the group.
type ApplyManager struct {
	groupLog *raftlog.RaftLog
	status   *RaftStatus
	sm       StateMachine
}

func NewApplyManager(groupLog *raftlog.RaftLog, status *RaftStatus, sm StateMachine) *ApplyManager {
	return &ApplyManager{groupLog: groupLog, status: status, sm: sm}
}

// Drain applies every entry in (lastApplied, commitIndex], publishing
// ShareStatus after each one so readers observe progress promptly.
// Returns the fatal error (already recorded on status.Err), if any.
func (am *ApplyManager) Drain() error {
	for am.status.LastApplied < am.status.CommitIndex {
		next := am.status.LastApplied + 1
		item, err := am.groupLog.Get(next)
		if err != nil {
			am.fail(err)
			return err
		}

		output, err := am.apply(item)
		if err != nil {
			am.fail(err)
			return err
		}

		am.status.LastApplied = next
		if item.Type == api.EntryNoOp {
			am.status.TailCache.MarkFirstCommit()
		}
		am.status.TailCache.Complete(next, output, nil)
		am.status.PublishShare()
	}
	return nil
}

func (am *ApplyManager) apply(item *api.LogItem) ([]byte, error) {
	switch item.Type {
	case api.EntryNoOp, api.EntryMember:
		return nil, nil
	default:
		return am.sm.Exec(item.Index, item.Term, item.Body)
	}
}

func (am *ApplyManager) fail(err error) {
	wrapped := WrapStateMachineError(err)
	am.status.Err = wrapped
	am.status.Stopped = true
	am.status.TailCache.FailAll(wrapped)
	log.Bug(am.status.GroupID, "apply failed, halting group: ", wrapped)
}
