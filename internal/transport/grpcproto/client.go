package grpcproto

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/protobuf/ptypes/wrappers"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/flowraft/raftcore/internal/engine"
)

// Client implements engine.Transport over a pool of lazily-dialed
// grpc.ClientConns, one per peer address. Connections are kept for the
// life of the process and reused across every group that has that peer as
// a member: dial once, reuse for every RPC, with no per-member message
// queue since each RPC here is a blocking unary call issued from its own
// fiber.
type Client struct {
	dialTimeout time.Duration
	dialOpts    []grpc.DialOption

	mu    sync.Mutex
	addrs map[uint64]string
	conns map[string]*grpc.ClientConn
}

var _ engine.Transport = (*Client)(nil)

// NewClient builds a Client with no known peers; GroupHost registers each
// member's address via SetAddress as groups are added.
func NewClient(dialTimeout time.Duration, extraOpts ...grpc.DialOption) *Client {
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, extraOpts...)
	return &Client{
		dialTimeout: dialTimeout,
		dialOpts:    opts,
		addrs:       make(map[uint64]string),
		conns:       make(map[string]*grpc.ClientConn),
	}
}

// SetAddress records the dial address for peerID, overwriting any prior
// value (members are static per spec.md §4.5, but a single Client is
// shared across every group a GroupHost runs, and different groups may
// first learn of a shared peer in any order).
func (c *Client) SetAddress(peerID uint64, addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addrs[peerID] = addr
}

func (c *Client) dial(peerID uint64) (RaftTransportClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.addrs[peerID]
	if !ok {
		return nil, fmt.Errorf("grpcproto: no known address for peer %d", peerID)
	}
	if cc, ok := c.conns[addr]; ok {
		return NewRaftTransportClient(cc), nil
	}
	cc, err := grpc.NewClient(addr, c.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpcproto: dial %s: %w", addr, err)
	}
	c.conns[addr] = cc
	return NewRaftTransportClient(cc), nil
}

// Dial opens a one-off connection to addr, for callers (such as the raftd
// "status" command) that already know the address and don't need the
// peerID-keyed cache Client maintains for steady-state replication.
func Dial(addr string) (RaftTransportClient, func() error, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("grpcproto: dial %s: %w", addr, err)
	}
	return NewRaftTransportClient(cc), cc.Close, nil
}

// PingOnce issues a single Ping RPC against an already-dialed
// RaftTransportClient, for callers (such as the raftd "status" command)
// holding a connection from Dial rather than a peerID-keyed Client.
func PingOnce(ctx context.Context, cli RaftTransportClient, req engine.PingRequest) (engine.PingResponse, error) {
	out, err := cli.Ping(ctx, &wrappers.BytesValue{Value: encodePingRequest(req)})
	if err != nil {
		return engine.PingResponse{}, err
	}
	return decodePingResponse(out.GetValue())
}

// Close tears down every cached connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for addr, cc := range c.conns {
		if err := cc.Close(); err != nil && first == nil {
			first = err
		}
		delete(c.conns, addr)
	}
	return first
}

func (c *Client) SendVote(ctx context.Context, peerID uint64, req engine.VoteRequest) (engine.VoteResponse, error) {
	cli, err := c.dial(peerID)
	if err != nil {
		return engine.VoteResponse{}, err
	}
	out, err := cli.Vote(ctx, &wrappers.BytesValue{Value: encodeVoteRequest(req)})
	if err != nil {
		return engine.VoteResponse{}, err
	}
	return decodeVoteResponse(out.GetValue())
}

func (c *Client) SendAppendEntries(ctx context.Context, peerID uint64, req engine.AppendEntriesRequest) (engine.AppendEntriesResponse, error) {
	cli, err := c.dial(peerID)
	if err != nil {
		return engine.AppendEntriesResponse{}, err
	}
	out, err := cli.AppendEntries(ctx, &wrappers.BytesValue{Value: encodeAppendEntriesRequest(req)})
	if err != nil {
		return engine.AppendEntriesResponse{}, err
	}
	return decodeAppendEntriesResponse(out.GetValue())
}

func (c *Client) SendInstallSnapshot(ctx context.Context, peerID uint64, req engine.InstallSnapshotRequest) (engine.InstallSnapshotResponse, error) {
	cli, err := c.dial(peerID)
	if err != nil {
		return engine.InstallSnapshotResponse{}, err
	}
	out, err := cli.InstallSnapshot(ctx, &wrappers.BytesValue{Value: encodeInstallSnapshotRequest(req)})
	if err != nil {
		return engine.InstallSnapshotResponse{}, err
	}
	return decodeInstallSnapshotResponse(out.GetValue())
}

func (c *Client) SendPing(ctx context.Context, peerID uint64, req engine.PingRequest) (engine.PingResponse, error) {
	cli, err := c.dial(peerID)
	if err != nil {
		return engine.PingResponse{}, err
	}
	out, err := cli.Ping(ctx, &wrappers.BytesValue{Value: encodePingRequest(req)})
	if err != nil {
		return engine.PingResponse{}, err
	}
	return decodePingResponse(out.GetValue())
}
