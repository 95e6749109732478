package grpcproto

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/protobuf/ptypes/wrappers"

	"github.com/flowraft/raftcore/internal/engine"
)

// GroupLookup resolves the inbound GroupID field every RPC body carries to
// the *engine.Group running it. GroupHost registers groups here as they're
// added; the server never owns the groups itself.
type GroupLookup interface {
	Group(id uint64) (*engine.Group, bool)
}

// Server adapts GroupLookup to RaftTransportServer: decode the envelope,
// route by GroupID, call the matching inbound handler, re-encode the
// response. One Server backs every group a GroupHost runs.
type Server struct {
	mu     sync.RWMutex
	groups GroupLookup
}

var _ RaftTransportServer = (*Server)(nil)

// NewServer builds a Server that resolves groups through lookup.
func NewServer(lookup GroupLookup) *Server {
	return &Server{groups: lookup}
}

func (s *Server) group(id uint64) (*engine.Group, error) {
	s.mu.RLock()
	lookup := s.groups
	s.mu.RUnlock()
	g, ok := lookup.Group(id)
	if !ok {
		return nil, fmt.Errorf("grpcproto: group %d is not running on this host", id)
	}
	return g, nil
}

func (s *Server) Vote(ctx context.Context, in *wrappers.BytesValue) (*wrappers.BytesValue, error) {
	req, err := decodeVoteRequest(in.GetValue())
	if err != nil {
		return nil, err
	}
	g, err := s.group(req.GroupID)
	if err != nil {
		return nil, err
	}
	resp, err := g.HandleVote(ctx, req)
	if err != nil {
		return nil, err
	}
	return &wrappers.BytesValue{Value: encodeVoteResponse(resp)}, nil
}

func (s *Server) AppendEntries(ctx context.Context, in *wrappers.BytesValue) (*wrappers.BytesValue, error) {
	req, err := decodeAppendEntriesRequest(in.GetValue())
	if err != nil {
		return nil, err
	}
	g, err := s.group(req.GroupID)
	if err != nil {
		return nil, err
	}
	resp, err := g.HandleAppendEntries(ctx, req)
	if err != nil {
		return nil, err
	}
	return &wrappers.BytesValue{Value: encodeAppendEntriesResponse(resp)}, nil
}

func (s *Server) InstallSnapshot(ctx context.Context, in *wrappers.BytesValue) (*wrappers.BytesValue, error) {
	req, err := decodeInstallSnapshotRequest(in.GetValue())
	if err != nil {
		return nil, err
	}
	g, err := s.group(req.GroupID)
	if err != nil {
		return nil, err
	}
	resp, err := g.HandleInstallSnapshot(ctx, req)
	if err != nil {
		return nil, err
	}
	return &wrappers.BytesValue{Value: encodeInstallSnapshotResponse(resp)}, nil
}

func (s *Server) Ping(ctx context.Context, in *wrappers.BytesValue) (*wrappers.BytesValue, error) {
	req, err := decodePingRequest(in.GetValue())
	if err != nil {
		return nil, err
	}
	g, err := s.group(req.GroupID)
	if err != nil {
		return nil, err
	}
	resp, err := g.HandlePing(ctx, req)
	if err != nil {
		return nil, err
	}
	return &wrappers.BytesValue{Value: encodePingResponse(resp)}, nil
}
