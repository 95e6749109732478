package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowraft/raftcore/internal/api"
	"github.com/flowraft/raftcore/internal/fiber"
	"github.com/flowraft/raftcore/internal/log"
	"github.com/flowraft/raftcore/internal/raftlog"
)

// GroupConfig is everything NewGroup needs to drive one Raft group: the
// static member set and the timing knobs spec.md §4.4 exposes per group
// (electTimeout, heartbeatInterval, rpcTimeout, ioRetryInterval, the
// pending-write admission limits). GroupHost.AddGroup builds one of these
// per group from its GroupOptions.
type GroupConfig struct {
	GroupID uint64
	LocalID uint64
	Members map[uint64]string // nodeID -> address, local node included
	Observer bool

	ElectTimeout      time.Duration
	HeartbeatInterval time.Duration
	RPCTimeout        time.Duration
	IoRetryIntervals  []time.Duration

	MaxPendingWrites      int
	MaxPendingWriteBytes  int64
	MaxAppendBatch        int // entries per AppendEntries RPC
}

func (c GroupConfig) withDefaults() GroupConfig {
	if c.ElectTimeout <= 0 {
		c.ElectTimeout = 1 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = c.ElectTimeout / 5
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = c.ElectTimeout
	}
	if c.MaxPendingWrites <= 0 {
		c.MaxPendingWrites = 4096
	}
	if c.MaxPendingWriteBytes <= 0 {
		c.MaxPendingWriteBytes = 64 << 20
	}
	if c.MaxAppendBatch <= 0 {
		c.MaxAppendBatch = 256
	}
	if len(c.IoRetryIntervals) == 0 {
		c.IoRetryIntervals = []time.Duration{10 * time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond}
	}
	return c
}

// Group is one running Raft group: the role/log engine (Raft) plus the
// fiber loops that drive it — election timeout, heartbeats/replication,
// and applying committed entries — and the public surface a GroupHost
// (or a gRPC service wrapper) calls into (spec.md §4.3, §4.4).
type Group struct {
	cfg GroupConfig

	dispatcher *fiber.Dispatcher
	fg         *fiber.FiberGroup
	ioExec     *fiber.IoExecutor

	transport Transport

	log     *raftlog.RaftLog
	status  *RaftStatus
	members *MemberManager
	votes   *VoteManager
	commit  *CommitManager
	apply   *ApplyManager
	snap    *SnapshotManager
	raft    *Raft

	pendingWriteBytes int64 // atomic

	stopOnce sync.Once
}

// NewGroup wires every internal/engine component for one group. The
// caller owns the Dispatcher (one per host, shared across groups, per
// spec.md §4.1) and hands in an already-open raftlog.RaftLog and the
// transport/state machine implementations.
func NewGroup(cfg GroupConfig, dispatcher *fiber.Dispatcher, rlog *raftlog.RaftLog, transport Transport, sm StateMachine) *Group {
	cfg = cfg.withDefaults()

	members := NewMemberManager(cfg.LocalID, cfg.Members)
	status := NewRaftStatus(cfg.GroupID, members.Count(), cfg.ElectTimeout.Nanoseconds())
	status.CurrentTerm = rlog.CurrentTerm()
	status.VotedFor = rlog.VotedFor()
	status.CommitIndex = rlog.CommitIndex()
	status.LastLogIndex = rlog.LastIndex()
	status.LastLogTerm = rlog.LastTerm()
	status.LastApplied = rlog.OldestIndex()
	if status.LastApplied > 0 {
		status.LastApplied--
	}
	if cfg.Observer {
		status.Role = RoleObserver
	}

	votes := NewVoteManager(members)
	commit := NewCommitManager(members)
	apply := NewApplyManager(rlog, status, sm)
	snap := NewSnapshotManager(rlog, status, sm)
	raft := NewRaft(status, rlog, members, votes, commit, apply, snap)

	g := &Group{
		cfg:        cfg,
		dispatcher: dispatcher,
		fg:         dispatcher.NewGroup(fmt.Sprintf("group-%d", cfg.GroupID)),
		ioExec:     fiber.NewIoExecutor(4),
		transport:  transport,
		log:        rlog,
		status:     status,
		members:    members,
		votes:      votes,
		commit:     commit,
		apply:      apply,
		snap:       snap,
		raft:       raft,
	}
	status.PublishShare()
	return g
}

// Start launches the group's background fibers: one election-timeout
// watchdog and one replicator per peer. Not idempotent: each call spawns
// another set of fibers, so callers must not call it twice on the same
// Group.
func (g *Group) Start() {
	g.fg.Daemon("elect-timer", g.electionTimerFrame)
	if !g.cfg.Observer {
		for _, peer := range g.members.Peers() {
			peerID := peer.NodeID
			g.fg.Daemon(fmt.Sprintf("replicate-%d", peerID), g.replicatorFrame(peerID))
		}
	}
}

// Stop requests every fiber in the group to wind down and blocks until
// they have.
func (g *Group) Stop() {
	g.stopOnce.Do(func() {
		g.fg.RequestStop("group stopped")
		<-g.fg.Stopped()
		g.status.Stopped = true
		g.status.TailCache.FailAll(ErrGroupStopped)
	})
}

// Status returns the lock-free published snapshot, safe to call from any
// goroutine without touching the dispatcher.
func (g *Group) Status() ShareStatus { return g.status.Share.Load() }

// LogStats exposes the segmented log store's size/position counters.
func (g *Group) LogStats() raftlog.Stats { return g.log.Stats() }

// PendingWriteCount is the number of proposals registered in TailCache
// awaiting commit, for internal/metrics' pending-writes gauge.
func (g *Group) PendingWriteCount() int { return g.status.TailCache.Len() }

// PeerIDs returns every other member's node id, in an unspecified order.
func (g *Group) PeerIDs() []uint64 {
	peers := g.members.Peers()
	ids := make([]uint64, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.NodeID)
	}
	return ids
}

// proposeOutcome is what a propose fiber's terminal frame returns.
type proposeOutcome struct {
	body []byte
	err  error
}

// Propose submits a client write to this group's log. Callers may be any
// goroutine (a gRPC handler, for instance) — the actual log append and
// role check run on the group's dispatcher fiber, and this method blocks
// the calling goroutine only, never the dispatcher, until the entry is
// applied or ctx is done (spec.md §4.4's submitTask).
func (g *Group) Propose(ctx context.Context, bizType uint32, body []byte) ([]byte, error) {
	if g.status.Stopped {
		return nil, ErrGroupStopped
	}
	if g.status.TailCache.Len() >= g.cfg.MaxPendingWrites {
		return nil, ErrBackpressureReject
	}
	if atomic.LoadInt64(&g.pendingWriteBytes)+int64(len(body)) > g.cfg.MaxPendingWriteBytes {
		return nil, ErrBackpressureReject
	}

	atomic.AddInt64(&g.pendingWriteBytes, int64(len(body)))
	defer atomic.AddInt64(&g.pendingWriteBytes, -int64(len(body)))

	deadline := int64(0)
	if d, ok := ctx.Deadline(); ok {
		deadline = d.UnixNano()
	}

	resultCh := make(chan proposeOutcome, 1)
	f := g.fg.Go("propose", fiber.KindNormal, func(c *fiber.Ctx) fiber.FrameResult {
		item, err := g.raft.Propose(bizType, body)
		if err != nil {
			return fiber.Fail(err)
		}
		fut := g.status.TailCache.Register(item.Index)
		return fiber.Suspend(fut, deadline, func(v interface{}, err error) fiber.FrameResult {
			if err != nil {
				return fiber.Fail(err)
			}
			out, _ := v.([]byte)
			return fiber.Return(proposeOutcome{body: out})
		})
	})
	f.OnDone(func(v interface{}, err error) {
		if err != nil {
			if _, ok := err.(*fiber.TimeoutError); ok {
				err = ErrTimeout
			}
			resultCh <- proposeOutcome{err: err}
			return
		}
		out, _ := v.(proposeOutcome)
		resultCh <- out
	})

	select {
	case out := <-resultCh:
		return out.body, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TransferLeadership asks the current leader to step down in favour of
// targetID, by starving its own lease (spec.md §4.3's supplemented
// "graceful leadership transfer": the simplest correct mechanism is to
// stop heartbeating and let targetID's election timer fire once it is at
// least as up to date as the current leader).
func (g *Group) TransferLeadership(ctx context.Context, targetID uint64) error {
	if g.status.Role != RoleLeader {
		return ErrNotLeader
	}
	if g.members.Get(targetID) == nil {
		return fmt.Errorf("engine: %d is not a member of group %d", targetID, g.cfg.GroupID)
	}
	done := make(chan error, 1)
	g.dispatcher.Post(func() {
		g.status.LeaseEndNanos = nowNanos()
		g.status.PublishShare()
		done <- nil
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func nowNanos() int64 { return time.Now().UnixNano() }

// electionTimerFrame is the per-group daemon fiber that starts a
// pre-vote round whenever the local node has not heard from a leader
// (HeartbeatTime) within electTimeout (spec.md §4.3). It re-checks every
// electTimeout/4 plus ElectionJitterNanos.
func (g *Group) electionTimerFrame(c *fiber.Ctx) fiber.FrameResult {
	var tick func(c *fiber.Ctx) fiber.FrameResult
	tick = func(c *fiber.Ctx) fiber.FrameResult {
		if g.fg.ShouldStop() || g.status.Stopped {
			return fiber.Return(nil)
		}
		if g.status.Role != RoleLeader && g.status.Role != RoleObserver {
			elapsed := nowNanos() - g.status.HeartbeatTime
			if elapsed >= g.status.ElectTimeoutNanos {
				g.beginElection()
			}
		}
		sleepUntil := nowNanos() + (g.cfg.ElectTimeout / 4).Nanoseconds() + ElectionJitterNanos()
		return fiber.Sleep(sleepUntil, tick)
	}
	return tick(c)
}

// beginElection starts a pre-vote round and fans RAFT_REQUEST_VOTE out to
// every peer concurrently; a granted pre-vote majority immediately
// promotes to a real vote round on the same fan-out path.
func (g *Group) beginElection() {
	round, req := g.raft.StartPreVote(nowNanos())
	g.fanoutVote(round, req, func(won bool) {
		if !won || g.raft.CurrentRound() != round {
			return
		}
		round2, req2 := g.raft.StartVote(nowNanos())
		g.fanoutVote(round2, req2, func(won2 bool) {
			if won2 && g.raft.CurrentRound() == round2 {
				g.becomeLeader()
			}
		})
	})
}

func (g *Group) becomeLeader() {
	if _, err := g.raft.BecomeLeader(nowNanos()); err != nil {
		log.Errorf("group %d: append no-op on election: %v", g.cfg.GroupID, err)
		return
	}
	g.apply.Drain()
}

// fanoutVote sends req to every peer and invokes onQuorum(true) the
// moment electQuorum is reached, or onQuorum(false) once every peer has
// replied (or timed out) without reaching it. Each peer's RPC runs as its
// own transient fiber so a slow/unreachable peer never blocks the others.
func (g *Group) fanoutVote(round *VoteRound, req VoteRequest, onQuorum func(bool)) {
	req.GroupID = g.cfg.GroupID
	peers := g.members.Peers()
	if len(peers) == 0 {
		onQuorum(round.GrantCount() >= g.status.ElectQuorum)
		return
	}

	var mu sync.Mutex
	replied := 0
	settled := false
	deadline := nowNanos() + g.cfg.RPCTimeout.Nanoseconds()

	finish := func(won bool) {
		mu.Lock()
		if settled {
			mu.Unlock()
			return
		}
		settled = true
		mu.Unlock()
		onQuorum(won)
	}

	for _, peer := range peers {
		peerID := peer.NodeID
		g.fg.Go("vote-rpc", fiber.KindNormal, func(c *fiber.Ctx) fiber.FrameResult {
			fut := g.ioExec.Submit(func() (interface{}, error) {
				ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RPCTimeout)
				defer cancel()
				return g.transport.SendVote(ctx, peerID, req)
			})
			return fiber.Suspend(fut, deadline, func(v interface{}, err error) fiber.FrameResult {
				mu.Lock()
				replied++
				n := replied
				mu.Unlock()

				if err == nil {
					resp := v.(VoteResponse)
					if g.raft.OnVoteResponse(round, peerID, resp, nowNanos()) {
						finish(true)
					}
				}
				if n == len(peers) {
					finish(round.GrantCount() >= g.status.ElectQuorum)
				}
				return fiber.Return(nil)
			})
		})
	}
}

// replicatorFrame builds the steady-state daemon loop for one peer: while
// this node is leader, send it an AppendEntries (heartbeat if it has
// nothing new to catch up on) every heartbeatInterval; otherwise idle.
func (g *Group) replicatorFrame(peerID uint64) func(c *fiber.Ctx) fiber.FrameResult {
	var tick func(c *fiber.Ctx) fiber.FrameResult
	tick = func(c *fiber.Ctx) fiber.FrameResult {
		if g.fg.ShouldStop() || g.status.Stopped {
			return fiber.Return(nil)
		}
		if g.status.Role != RoleLeader {
			return fiber.Sleep(nowNanos()+g.cfg.HeartbeatInterval.Nanoseconds(), tick)
		}

		member := g.members.Get(peerID)
		if member == nil || member.Pending.InFlight {
			return fiber.Sleep(nowNanos()+g.cfg.HeartbeatInterval.Nanoseconds(), tick)
		}

		if member.InstallSnapshot {
			return g.sendSnapshotChunk(peerID, tick)
		}

		req, ok := g.buildAppendEntries(peerID)
		if !ok {
			member.InstallSnapshot = true
			return g.sendSnapshotChunk(peerID, tick)
		}

		member.Pending = PendingStat{InFlight: true, SentAt: nowNanos(), NextIndex: req.PrevLogIndex + uint64(len(req.Entries)) + 1}
		fut := g.ioExec.Submit(func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RPCTimeout)
			defer cancel()
			return g.transport.SendAppendEntries(ctx, peerID, req)
		})
		deadline := nowNanos() + g.cfg.RPCTimeout.Nanoseconds()
		return fiber.Suspend(fut, deadline, func(v interface{}, err error) fiber.FrameResult {
			reqLast := req.PrevLogIndex + uint64(len(req.Entries))
			if err != nil {
				if m := g.members.Get(peerID); m != nil {
					m.Pending = PendingStat{}
				}
				return fiber.Sleep(nowNanos()+g.cfg.HeartbeatInterval.Nanoseconds(), tick)
			}
			resp := v.(AppendEntriesResponse)
			if rerr := g.raft.HandleAppendEntriesResponse(peerID, reqLast, resp, nowNanos()); rerr != nil {
				log.Errorf("group %d: append-entries response from %d: %v", g.cfg.GroupID, peerID, rerr)
			} else {
				g.apply.Drain()
			}
			next := g.cfg.HeartbeatInterval
			if len(req.Entries) > 0 {
				next = 0 // caught-up peers pace themselves on the heartbeat; lagging ones retry immediately
			}
			return fiber.Sleep(nowNanos()+next.Nanoseconds(), tick)
		})
	}
	return tick
}

// buildAppendEntries assembles the next batch for peer starting at its
// nextIndex. ok is false when nextIndex has already fallen behind the
// group's oldestIndex, meaning the peer needs a snapshot instead.
func (g *Group) buildAppendEntries(peerID uint64) (AppendEntriesRequest, bool) {
	member := g.members.Get(peerID)
	nextIndex := member.NextIndex
	if nextIndex == 0 {
		nextIndex = g.status.LastLogIndex + 1
	}
	if nextIndex > 0 && nextIndex-1 < g.log.OldestIndex() && g.log.OldestIndex() > 0 {
		return AppendEntriesRequest{}, false
	}

	prevIndex := nextIndex - 1
	var prevTerm uint32
	if prevIndex > 0 {
		t, err := g.log.TermAt(prevIndex)
		if err != nil {
			return AppendEntriesRequest{}, false
		}
		prevTerm = t
	}

	entries := make([]*api.LogItem, 0, g.cfg.MaxAppendBatch)
	for idx := nextIndex; idx <= g.status.LastLogIndex && len(entries) < g.cfg.MaxAppendBatch; idx++ {
		item, err := g.log.Get(idx)
		if err != nil {
			return AppendEntriesRequest{}, false
		}
		entries = append(entries, item)
	}

	return AppendEntriesRequest{
		GroupID:      g.cfg.GroupID,
		Term:         g.status.CurrentTerm,
		LeaderID:     g.members.LocalID(),
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		LeaderCommit: g.status.CommitIndex,
		Entries:      entries,
	}, true
}

// snapshotChunkSize is the per-RPC InstallSnapshot payload size.
const snapshotChunkSize = 256 << 10

// sendSnapshotChunk streams one Snapshot's chunks to a lagging peer,
// re-entering the caller's steady-state tick once the last chunk is
// acknowledged (spec.md §4.3's "Snapshot install (leader side)").
func (g *Group) sendSnapshotChunk(peerID uint64, resume func(c *fiber.Ctx) fiber.FrameResult) fiber.FrameResult {
	snap, err := g.snap.Produce()
	if err != nil {
		if m := g.members.Get(peerID); m != nil {
			m.InstallSnapshot = false
		}
		return fiber.Sleep(nowNanos()+g.cfg.HeartbeatInterval.Nanoseconds(), resume)
	}

	var offset int64
	var step func(c *fiber.Ctx) fiber.FrameResult
	step = func(c *fiber.Ctx) fiber.FrameResult {
		chunk, done, rerr := snap.ReadNext()
		if rerr != nil {
			if m := g.members.Get(peerID); m != nil {
				m.InstallSnapshot = false
			}
			return fiber.Sleep(nowNanos()+g.cfg.HeartbeatInterval.Nanoseconds(), resume)
		}
		req := InstallSnapshotRequest{
			GroupID:           g.cfg.GroupID,
			Term:              g.status.CurrentTerm,
			LeaderID:          g.members.LocalID(),
			LastIncludedIndex: snap.LastIncludedIndex(),
			LastIncludedTerm:  snap.LastIncludedTerm(),
			Offset:            offset,
			Data:              chunk,
			Done:              done,
		}
		fut := g.ioExec.Submit(func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RPCTimeout)
			defer cancel()
			return g.transport.SendInstallSnapshot(ctx, peerID, req)
		})
		deadline := nowNanos() + g.cfg.RPCTimeout.Nanoseconds()
		return fiber.Suspend(fut, deadline, func(v interface{}, err error) fiber.FrameResult {
			if err != nil {
				if m := g.members.Get(peerID); m != nil {
					m.InstallSnapshot = false
				}
				return fiber.Sleep(nowNanos()+g.cfg.HeartbeatInterval.Nanoseconds(), resume)
			}
			resp := v.(InstallSnapshotResponse)
			if resp.Term > g.status.CurrentTerm {
				g.raft.BecomeFollower(resp.Term, 0, nowNanos())
				return fiber.Return(nil)
			}
			offset += int64(len(chunk))
			if !done {
				return step(c)
			}
			if m := g.members.Get(peerID); m != nil {
				m.InstallSnapshot = false
				m.MatchIndex = snap.LastIncludedIndex()
				m.NextIndex = snap.LastIncludedIndex() + 1
				m.LastConfirmTime = nowNanos()
			}
			return fiber.Sleep(nowNanos(), resume)
		})
	}
	return step(nil)
}

// HandleAppendEntries, HandleVote, HandlePing and HandleInstallSnapshot
// are the inbound-RPC entry points a transport server calls. They run on
// whatever goroutine the transport hands them, hopping onto the group's
// dispatcher via Post so Raft's single-threaded invariant holds.
func (g *Group) HandleAppendEntries(ctx context.Context, req AppendEntriesRequest) (AppendEntriesResponse, error) {
	v, err := g.onDispatcher(func() (interface{}, error) {
		resp := g.raft.HandleAppendEntries(req, nowNanos())
		g.apply.Drain()
		return resp, nil
	})
	if err != nil {
		return AppendEntriesResponse{}, err
	}
	return v.(AppendEntriesResponse), nil
}

func (g *Group) HandleVote(ctx context.Context, req VoteRequest) (VoteResponse, error) {
	v, err := g.onDispatcher(func() (interface{}, error) {
		return g.votes.HandleRequest(g.status, req, nowNanos()), nil
	})
	if err != nil {
		return VoteResponse{}, err
	}
	return v.(VoteResponse), nil
}

func (g *Group) HandlePing(ctx context.Context, req PingRequest) (PingResponse, error) {
	v, err := g.onDispatcher(func() (interface{}, error) {
		return g.raft.HandlePing(req), nil
	})
	if err != nil {
		return PingResponse{}, err
	}
	return v.(PingResponse), nil
}

func (g *Group) HandleInstallSnapshot(ctx context.Context, req InstallSnapshotRequest) (InstallSnapshotResponse, error) {
	v, err := g.onDispatcher(func() (interface{}, error) {
		resp, err := g.raft.HandleInstallSnapshot(req, nowNanos())
		return resp, err
	})
	if err != nil {
		return InstallSnapshotResponse{}, err
	}
	return v.(InstallSnapshotResponse), nil
}

func (g *Group) onDispatcher(fn func() (interface{}, error)) (interface{}, error) {
	type out struct {
		v   interface{}
		err error
	}
	done := make(chan out, 1)
	g.dispatcher.Post(func() {
		v, err := fn()
		done <- out{v, err}
	})
	o := <-done
	return o.v, o.err
}
