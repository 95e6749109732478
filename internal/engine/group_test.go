package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowraft/raftcore/internal/fiber"
	"github.com/flowraft/raftcore/internal/raftlog"
)

// noopTransport is a Transport that never reaches a peer, used by the
// single-node group test where Peers() is empty and no RPC is ever sent.
type noopTransport struct{}

func (noopTransport) SendVote(context.Context, uint64, VoteRequest) (VoteResponse, error) {
	return VoteResponse{}, ErrGroupStopped
}
func (noopTransport) SendAppendEntries(context.Context, uint64, AppendEntriesRequest) (AppendEntriesResponse, error) {
	return AppendEntriesResponse{}, ErrGroupStopped
}
func (noopTransport) SendInstallSnapshot(context.Context, uint64, InstallSnapshotRequest) (InstallSnapshotResponse, error) {
	return InstallSnapshotResponse{}, ErrGroupStopped
}
func (noopTransport) SendPing(context.Context, uint64, PingRequest) (PingResponse, error) {
	return PingResponse{}, ErrGroupStopped
}

func TestGroupSingleNodeElectsItselfAndAppliesProposals(t *testing.T) {
	rl, err := raftlog.Open(t.TempDir(), 4096)
	require.NoError(t, err)
	defer rl.Close()

	dispatcher := fiber.NewDispatcher("test")
	go dispatcher.Run()
	defer dispatcher.Stop()

	cfg := GroupConfig{
		GroupID:           1,
		LocalID:           1,
		Members:           map[uint64]string{1: "local"},
		ElectTimeout:      40 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
		RPCTimeout:        50 * time.Millisecond,
	}
	sm := &fakeStateMachine{}
	g := NewGroup(cfg, dispatcher, rl, noopTransport{}, sm)
	g.Start()
	defer g.Stop()

	require.Eventually(t, func() bool {
		return g.Status().Role == RoleLeader
	}, 2*time.Second, 5*time.Millisecond, "single node never elected itself leader")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := g.Propose(ctx, 1, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "out:hello", string(out))
}

func TestGroupProposeRejectsWhenNotLeader(t *testing.T) {
	rl, err := raftlog.Open(t.TempDir(), 4096)
	require.NoError(t, err)
	defer rl.Close()

	dispatcher := fiber.NewDispatcher("test")
	go dispatcher.Run()
	defer dispatcher.Stop()

	cfg := GroupConfig{
		GroupID:      1,
		LocalID:      1,
		Members:      map[uint64]string{1: "local", 2: "peer"},
		ElectTimeout: time.Second, // long enough that the test finishes first
	}
	sm := &fakeStateMachine{}
	g := NewGroup(cfg, dispatcher, rl, noopTransport{}, sm)
	g.Start()
	defer g.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = g.Propose(ctx, 1, []byte("x"))
	require.Error(t, err)
}

func TestGroupProposeRejectedAfterStop(t *testing.T) {
	rl, err := raftlog.Open(t.TempDir(), 4096)
	require.NoError(t, err)
	defer rl.Close()

	dispatcher := fiber.NewDispatcher("test")
	go dispatcher.Run()
	defer dispatcher.Stop()

	cfg := GroupConfig{GroupID: 1, LocalID: 1, Members: map[uint64]string{1: "local"}}
	sm := &fakeStateMachine{}
	g := NewGroup(cfg, dispatcher, rl, noopTransport{}, sm)
	g.Start()

	g.Stop()
	_, err = g.Propose(context.Background(), 1, []byte("x"))
	require.ErrorIs(t, err, ErrGroupStopped)
}
