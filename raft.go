// Package raft is the public surface of the consensus engine: GroupHost
// owns one process's Dispatcher, gRPC transport and the map of Groups it
// runs; Group is the per-group handle returned by AddGroup. A process
// hosting several Raft groups shares one Dispatcher and one gRPC
// transport across every internal/engine.Group instance AddGroup starts.
package raft

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"

	"github.com/flowraft/raftcore/internal/engine"
	"github.com/flowraft/raftcore/internal/fiber"
	"github.com/flowraft/raftcore/internal/log"
	"github.com/flowraft/raftcore/internal/metrics"
	"github.com/flowraft/raftcore/internal/raftlog"
	"github.com/flowraft/raftcore/internal/transport/grpcproto"
)

// Logger is an active logging object that generates lines of output.
type Logger = log.Logger

// StateMachine is the pluggable application hook every Group drives. See
// internal/engine.StateMachine for the authoritative doc comments; this
// alias exists so callers outside this module never import internal/engine
// directly.
type StateMachine = engine.StateMachine

// Snapshot is the iterable handle StateMachine.TakeSnapshot returns.
type Snapshot = engine.Snapshot

// Group is one running Raft group. See internal/engine.Group for the
// authoritative doc comments on Propose, Status, TransferLeadership.
type Group = engine.Group

// Role and ShareStatus mirror internal/engine's of the same name.
type Role = engine.Role
type ShareStatus = engine.ShareStatus

const (
	RoleFollower  = engine.RoleFollower
	RoleCandidate = engine.RoleCandidate
	RoleLeader    = engine.RoleLeader
	RoleObserver  = engine.RoleObserver
)

// groupEntry pairs a running Group with the raftlog.RaftLog handle backing
// it, so Close can release the file descriptors AddGroup opened.
type groupEntry struct {
	group *Group
	log   *raftlog.RaftLog
}

// GroupHost is the process-level object owning the Dispatcher, the gRPC
// transport server and client, and every Group running on this node
// (GLOSSARY: GroupHost).
type GroupHost struct {
	localID uint64
	cfg     *hostConfig

	dispatcher *fiber.Dispatcher
	transport  *grpcproto.Client
	grpcServer *grpc.Server
	Metrics    *metrics.Registry

	mu     sync.RWMutex
	groups map[uint64]*groupEntry
}

// NewHost builds a GroupHost for localID with no groups running yet. Call
// AddGroup for each Raft group this node participates in, then Serve (or
// ListenAndServe) to start accepting RPCs from peers.
func NewHost(localID uint64, opts ...Option) *GroupHost {
	cfg := newHostConfig(opts...)
	dispatcher := fiber.NewDispatcher(fmt.Sprintf("host-%d", localID))
	go dispatcher.Run()

	h := &GroupHost{
		localID:    localID,
		cfg:        cfg,
		dispatcher: dispatcher,
		transport:  grpcproto.NewClient(cfg.dialTimeout),
		Metrics:    metrics.NewRegistry(cfg.metricsRegisterer),
		groups:     make(map[uint64]*groupEntry),
	}
	h.grpcServer = grpc.NewServer()
	grpcproto.RegisterRaftTransportServer(h.grpcServer, grpcproto.NewServer(h))
	return h
}

// LocalID returns this host's node id.
func (h *GroupHost) LocalID() uint64 { return h.localID }

// AddGroup opens (or recovers) dataDir's segmented log and starts a new
// Group for groupID with the given static member set — local node
// included (spec.md §4.5). sm is exclusive to this group; it must not be
// shared with another Group on the same or a different host.
func (h *GroupHost) AddGroup(groupID uint64, dataDir string, members map[uint64]string, sm StateMachine, opts ...GroupOption) (*Group, error) {
	if _, ok := members[h.localID]; !ok {
		return nil, fmt.Errorf("raft: group %d member list does not include this host's node id %d", groupID, h.localID)
	}

	gcfg := newGroupConfig(opts...)
	rl, err := raftlog.Open(dataDir, gcfg.segmentBytes)
	if err != nil {
		return nil, fmt.Errorf("raft: open log for group %d: %w", groupID, err)
	}

	for id, addr := range members {
		if id != h.localID {
			h.transport.SetAddress(id, addr)
		}
	}

	ecfg := engine.GroupConfig{
		GroupID:           groupID,
		LocalID:           h.localID,
		Members:           members,
		Observer:          gcfg.observer,
		ElectTimeout:      gcfg.electTimeout,
		HeartbeatInterval: gcfg.heartbeatInterval,
		RPCTimeout:        gcfg.rpcTimeout,
		MaxAppendBatch:    gcfg.maxAppendBatch,
		MaxPendingWrites:  gcfg.maxPendingWrites,
	}
	g := engine.NewGroup(ecfg, h.dispatcher, rl, h.transport, sm)

	h.mu.Lock()
	if _, exists := h.groups[groupID]; exists {
		h.mu.Unlock()
		rl.Close()
		return nil, fmt.Errorf("raft: group %d is already running on this host", groupID)
	}
	h.groups[groupID] = &groupEntry{group: g, log: rl}
	h.mu.Unlock()

	g.Start()
	log.Infof("raft: group %d started (local=%d, members=%d)", groupID, h.localID, len(members))
	return g, nil
}

// Group returns groupID's running Group, implementing
// internal/transport/grpcproto.GroupLookup so the gRPC server can route
// inbound RPCs without depending on GroupHost's concrete type.
func (h *GroupHost) Group(groupID uint64) (*Group, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.groups[groupID]
	if !ok {
		return nil, false
	}
	return e.group, true
}

// Groups returns every group id currently running on this host.
func (h *GroupHost) Groups() []uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]uint64, 0, len(h.groups))
	for id := range h.groups {
		ids = append(ids, id)
	}
	return ids
}

// Serve blocks accepting RPCs from peers on lis until Close is called.
func (h *GroupHost) Serve(lis net.Listener) error {
	return h.grpcServer.Serve(lis)
}

// ListenAndServe binds the host's configured listen address (WithListenAddress)
// and blocks serving RPCs from peers until Close is called.
func (h *GroupHost) ListenAndServe() error {
	lis, err := net.Listen("tcp", h.cfg.listenAddr)
	if err != nil {
		return fmt.Errorf("raft: listen %s: %w", h.cfg.listenAddr, err)
	}
	return h.Serve(lis)
}

// Close stops every group, the transport server and client, and the
// shared Dispatcher. It blocks until every group's fibers have wound down.
func (h *GroupHost) Close() error {
	h.grpcServer.GracefulStop()

	h.mu.Lock()
	entries := make([]*groupEntry, 0, len(h.groups))
	for _, e := range h.groups {
		entries = append(entries, e)
	}
	h.groups = make(map[uint64]*groupEntry)
	h.mu.Unlock()

	for _, e := range entries {
		e.group.Stop()
		e.log.Close()
	}
	h.transport.Close()
	h.dispatcher.Stop()
	return nil
}

// Ping issues a liveness probe to every member of groupID and returns the
// count (including the local node) that answered within ctx, matching
// spec.md §6's RAFT_PING's stated purpose: a lightweight liveness signal
// distinct from replication heartbeats.
func (h *GroupHost) Ping(ctx context.Context, groupID uint64) (int, error) {
	g, ok := h.Group(groupID)
	if !ok {
		return 0, fmt.Errorf("raft: group %d is not running on this host", groupID)
	}
	alive := 1 // local node always counts
	for _, id := range g.PeerIDs() {
		resp, err := h.transport.SendPing(ctx, id, engine.PingRequest{GroupID: groupID, NodeID: h.localID})
		if err == nil && resp.Alive {
			alive++
		}
	}
	return alive, nil
}
