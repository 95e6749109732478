package engine

import (
	"context"

	"github.com/flowraft/raftcore/internal/api"
)

// AppendEntriesRequest/Response mirror RAFT_APPEND_ENTRIES (spec.md §6).
type AppendEntriesRequest struct {
	GroupID      uint64
	Term         uint32
	LeaderID     uint64
	PrevLogIndex uint64
	PrevLogTerm  uint32
	LeaderCommit uint64
	Entries      []*api.LogItem
}

type AppendEntriesResponse struct {
	Term               uint32
	Success            bool
	SuggestedNextIndex uint64
}

// InstallSnapshotRequest/Response mirror RAFT_INSTALL_SNAPSHOT.
type InstallSnapshotRequest struct {
	GroupID           uint64
	Term              uint32
	LeaderID          uint64
	LastIncludedIndex uint64
	LastIncludedTerm  uint32
	Offset            int64
	Data              []byte
	Done              bool
}

type InstallSnapshotResponse struct {
	Term    uint32
	Success bool
}

// PingRequest/Response implement RAFT_PING, a lightweight liveness probe
// distinct from AppendEntries heartbeats (spec.md §6).
type PingRequest struct {
	GroupID uint64
	Term    uint32
	NodeID  uint64
}

type PingResponse struct {
	Term  uint32
	Alive bool
}

// Transport is the engine's view of the wire: send one of the four RPCs
// to peerID and wait for its response. internal/transport/grpcproto
// implements this over gRPC; tests use an in-memory fake.
type Transport interface {
	SendVote(ctx context.Context, peerID uint64, req VoteRequest) (VoteResponse, error)
	SendAppendEntries(ctx context.Context, peerID uint64, req AppendEntriesRequest) (AppendEntriesResponse, error)
	SendInstallSnapshot(ctx context.Context, peerID uint64, req InstallSnapshotRequest) (InstallSnapshotResponse, error)
	SendPing(ctx context.Context, peerID uint64, req PingRequest) (PingResponse, error)
}
