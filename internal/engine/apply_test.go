package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowraft/raftcore/internal/api"
	"github.com/flowraft/raftcore/internal/raftlog"
)

// fakeStateMachine is a minimal in-memory StateMachine double for engine
// tests that don't need a real key-value store.
type fakeStateMachine struct {
	execCalls []string
	failAt    uint64 // Exec returns an error once index reaches this value, if non-zero
}

func (f *fakeStateMachine) Exec(index uint64, term uint32, input []byte) ([]byte, error) {
	if f.failAt != 0 && index == f.failAt {
		return nil, fmt.Errorf("simulated state machine fault")
	}
	f.execCalls = append(f.execCalls, string(input))
	return append([]byte("out:"), input...), nil
}

func (f *fakeStateMachine) InstallSnapshot(index uint64, term uint32, offset int64, done bool, chunk []byte) error {
	return nil
}

func (f *fakeStateMachine) TakeSnapshot() (Snapshot, error) { return nil, fmt.Errorf("no snapshot") }
func (f *fakeStateMachine) Close() error                    { return nil }

func TestApplyManagerDrainAppliesInOrderAndCompletesFutures(t *testing.T) {
	rl, err := raftlog.Open(t.TempDir(), 4096)
	require.NoError(t, err)
	defer rl.Close()

	for i := 0; i < 3; i++ {
		_, err := rl.Append(1, api.EntryNormal, 0, nil, []byte(fmt.Sprintf("v%d", i)))
		require.NoError(t, err)
	}

	status := NewRaftStatus(1, 1, int64(1e8))
	status.CommitIndex = 3
	fut := status.TailCache.Register(2)

	sm := &fakeStateMachine{}
	am := NewApplyManager(rl, status, sm)

	require.NoError(t, am.Drain())
	require.Equal(t, uint64(3), status.LastApplied)
	require.Equal(t, []string{"v0", "v1", "v2"}, sm.execCalls)
	require.True(t, fut.IsDone())
}

func TestApplyManagerSkipsNoOpAndMemberEntries(t *testing.T) {
	rl, err := raftlog.Open(t.TempDir(), 4096)
	require.NoError(t, err)
	defer rl.Close()

	_, err = rl.Append(1, api.EntryNoOp, 0, nil, nil)
	require.NoError(t, err)
	_, err = rl.Append(1, api.EntryNormal, 0, nil, []byte("payload"))
	require.NoError(t, err)

	status := NewRaftStatus(1, 1, int64(1e8))
	status.CommitIndex = 2
	sm := &fakeStateMachine{}
	am := NewApplyManager(rl, status, sm)

	require.NoError(t, am.Drain())
	require.Equal(t, []string{"payload"}, sm.execCalls)
	require.True(t, status.TailCache.FirstCommitOfApplied())
}

func TestApplyManagerHaltsGroupOnStateMachineError(t *testing.T) {
	rl, err := raftlog.Open(t.TempDir(), 4096)
	require.NoError(t, err)
	defer rl.Close()

	for i := 0; i < 3; i++ {
		_, err := rl.Append(1, api.EntryNormal, 0, nil, []byte("v"))
		require.NoError(t, err)
	}

	status := NewRaftStatus(1, 1, int64(1e8))
	status.CommitIndex = 3
	fut := status.TailCache.Register(2)

	sm := &fakeStateMachine{failAt: 2}
	am := NewApplyManager(rl, status, sm)

	err = am.Drain()
	require.Error(t, err)
	require.True(t, status.Stopped)
	require.Error(t, status.Err)
	require.Equal(t, uint64(1), status.LastApplied) // only index 1 applied before the fault
	require.True(t, fut.IsDone())
}
