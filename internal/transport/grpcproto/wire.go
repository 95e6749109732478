// Package grpcproto implements internal/engine.Transport over gRPC.
//
// Each of the four RAFT_* commands (spec.md §6) is a unary gRPC method
// whose request/response bodies are the engine's own tag/wire-type records
// (internal/api.Writer/Reader), carried as opaque bytes inside a
// google.golang.org/protobuf wrapper message. This keeps the exact wire
// framing spec.md prescribes for the Raft payload while letting
// google.golang.org/grpc own connection management, keepalive and framing
// for the RPC itself — Raft semantics stay independent of how a request
// reaches its peer.
package grpcproto

import (
	"github.com/flowraft/raftcore/internal/api"
	"github.com/flowraft/raftcore/internal/engine"
)

const (
	fVoteGroupID      = 1
	fVoteTerm         = 2
	fVoteCandidateID  = 3
	fVoteLastLogIndex = 4
	fVoteLastLogTerm  = 5
	fVotePreVote      = 6
)

func encodeVoteRequest(req engine.VoteRequest) []byte {
	w := api.NewWriter()
	w.Varint(fVoteGroupID, req.GroupID)
	w.Varint(fVoteTerm, uint64(req.Term))
	w.Varint(fVoteCandidateID, req.CandidateID)
	w.Varint(fVoteLastLogIndex, req.LastLogIndex)
	w.Varint(fVoteLastLogTerm, uint64(req.LastLogTerm))
	if req.PreVote {
		w.Varint(fVotePreVote, 1)
	}
	return w.Finish()
}

func decodeVoteRequest(buf []byte) (engine.VoteRequest, error) {
	var req engine.VoteRequest
	err := api.NewReader(buf).Each(func(f api.Field) error {
		switch f.Number {
		case fVoteGroupID:
			req.GroupID = f.Varint
		case fVoteTerm:
			req.Term = uint32(f.Varint)
		case fVoteCandidateID:
			req.CandidateID = f.Varint
		case fVoteLastLogIndex:
			req.LastLogIndex = f.Varint
		case fVoteLastLogTerm:
			req.LastLogTerm = uint32(f.Varint)
		case fVotePreVote:
			req.PreVote = f.Varint != 0
		}
		return nil
	})
	return req, err
}

const (
	fVoteRespTerm    = 1
	fVoteRespGranted = 2
)

func encodeVoteResponse(resp engine.VoteResponse) []byte {
	w := api.NewWriter()
	w.Varint(fVoteRespTerm, uint64(resp.Term))
	if resp.VoteGranted {
		w.Varint(fVoteRespGranted, 1)
	}
	return w.Finish()
}

func decodeVoteResponse(buf []byte) (engine.VoteResponse, error) {
	var resp engine.VoteResponse
	err := api.NewReader(buf).Each(func(f api.Field) error {
		switch f.Number {
		case fVoteRespTerm:
			resp.Term = uint32(f.Varint)
		case fVoteRespGranted:
			resp.VoteGranted = f.Varint != 0
		}
		return nil
	})
	return resp, err
}

const (
	fAEGroupID      = 1
	fAETerm         = 2
	fAELeaderID     = 3
	fAEPrevLogIndex = 4
	fAEPrevLogTerm  = 5
	fAELeaderCommit = 6
	fAEEntry        = 7 // repeated: one LogItem.Marshal() per occurrence
)

func encodeAppendEntriesRequest(req engine.AppendEntriesRequest) []byte {
	w := api.NewWriter()
	w.Varint(fAEGroupID, req.GroupID)
	w.Varint(fAETerm, uint64(req.Term))
	w.Varint(fAELeaderID, req.LeaderID)
	w.Varint(fAEPrevLogIndex, req.PrevLogIndex)
	w.Varint(fAEPrevLogTerm, uint64(req.PrevLogTerm))
	w.Varint(fAELeaderCommit, req.LeaderCommit)
	for _, e := range req.Entries {
		w.Bytes(fAEEntry, e.Marshal())
	}
	return w.Finish()
}

func decodeAppendEntriesRequest(buf []byte) (engine.AppendEntriesRequest, error) {
	var req engine.AppendEntriesRequest
	err := api.NewReader(buf).Each(func(f api.Field) error {
		switch f.Number {
		case fAEGroupID:
			req.GroupID = f.Varint
		case fAETerm:
			req.Term = uint32(f.Varint)
		case fAELeaderID:
			req.LeaderID = f.Varint
		case fAEPrevLogIndex:
			req.PrevLogIndex = f.Varint
		case fAEPrevLogTerm:
			req.PrevLogTerm = uint32(f.Varint)
		case fAELeaderCommit:
			req.LeaderCommit = f.Varint
		case fAEEntry:
			item := new(api.LogItem)
			if err := item.Unmarshal(f.Bytes); err != nil {
				return err
			}
			req.Entries = append(req.Entries, item)
		}
		return nil
	})
	return req, err
}

const (
	fAERespTerm               = 1
	fAERespSuccess            = 2
	fAERespSuggestedNextIndex = 3
)

func encodeAppendEntriesResponse(resp engine.AppendEntriesResponse) []byte {
	w := api.NewWriter()
	w.Varint(fAERespTerm, uint64(resp.Term))
	if resp.Success {
		w.Varint(fAERespSuccess, 1)
	}
	w.Varint(fAERespSuggestedNextIndex, resp.SuggestedNextIndex)
	return w.Finish()
}

func decodeAppendEntriesResponse(buf []byte) (engine.AppendEntriesResponse, error) {
	var resp engine.AppendEntriesResponse
	err := api.NewReader(buf).Each(func(f api.Field) error {
		switch f.Number {
		case fAERespTerm:
			resp.Term = uint32(f.Varint)
		case fAERespSuccess:
			resp.Success = f.Varint != 0
		case fAERespSuggestedNextIndex:
			resp.SuggestedNextIndex = f.Varint
		}
		return nil
	})
	return resp, err
}

const (
	fISGroupID           = 1
	fISTerm              = 2
	fISLeaderID          = 3
	fISLastIncludedIndex = 4
	fISLastIncludedTerm  = 5
	fISOffset            = 6
	fISData              = 7
	fISDone              = 8
)

func encodeInstallSnapshotRequest(req engine.InstallSnapshotRequest) []byte {
	w := api.NewWriter()
	w.Varint(fISGroupID, req.GroupID)
	w.Varint(fISTerm, uint64(req.Term))
	w.Varint(fISLeaderID, req.LeaderID)
	w.Varint(fISLastIncludedIndex, req.LastIncludedIndex)
	w.Varint(fISLastIncludedTerm, uint64(req.LastIncludedTerm))
	w.Varint(fISOffset, uint64(req.Offset))
	if len(req.Data) > 0 {
		w.Bytes(fISData, req.Data)
	}
	if req.Done {
		w.Varint(fISDone, 1)
	}
	return w.Finish()
}

func decodeInstallSnapshotRequest(buf []byte) (engine.InstallSnapshotRequest, error) {
	var req engine.InstallSnapshotRequest
	err := api.NewReader(buf).Each(func(f api.Field) error {
		switch f.Number {
		case fISGroupID:
			req.GroupID = f.Varint
		case fISTerm:
			req.Term = uint32(f.Varint)
		case fISLeaderID:
			req.LeaderID = f.Varint
		case fISLastIncludedIndex:
			req.LastIncludedIndex = f.Varint
		case fISLastIncludedTerm:
			req.LastIncludedTerm = uint32(f.Varint)
		case fISOffset:
			req.Offset = int64(f.Varint)
		case fISData:
			req.Data = append([]byte(nil), f.Bytes...)
		case fISDone:
			req.Done = f.Varint != 0
		}
		return nil
	})
	return req, err
}

const (
	fISRespTerm    = 1
	fISRespSuccess = 2
)

func encodeInstallSnapshotResponse(resp engine.InstallSnapshotResponse) []byte {
	w := api.NewWriter()
	w.Varint(fISRespTerm, uint64(resp.Term))
	if resp.Success {
		w.Varint(fISRespSuccess, 1)
	}
	return w.Finish()
}

func decodeInstallSnapshotResponse(buf []byte) (engine.InstallSnapshotResponse, error) {
	var resp engine.InstallSnapshotResponse
	err := api.NewReader(buf).Each(func(f api.Field) error {
		switch f.Number {
		case fISRespTerm:
			resp.Term = uint32(f.Varint)
		case fISRespSuccess:
			resp.Success = f.Varint != 0
		}
		return nil
	})
	return resp, err
}

const (
	fPingGroupID = 1
	fPingTerm    = 2
	fPingNodeID  = 3
)

func encodePingRequest(req engine.PingRequest) []byte {
	w := api.NewWriter()
	w.Varint(fPingGroupID, req.GroupID)
	w.Varint(fPingTerm, uint64(req.Term))
	w.Varint(fPingNodeID, req.NodeID)
	return w.Finish()
}

func decodePingRequest(buf []byte) (engine.PingRequest, error) {
	var req engine.PingRequest
	err := api.NewReader(buf).Each(func(f api.Field) error {
		switch f.Number {
		case fPingGroupID:
			req.GroupID = f.Varint
		case fPingTerm:
			req.Term = uint32(f.Varint)
		case fPingNodeID:
			req.NodeID = f.Varint
		}
		return nil
	})
	return req, err
}

const (
	fPingRespTerm  = 1
	fPingRespAlive = 2
)

func encodePingResponse(resp engine.PingResponse) []byte {
	w := api.NewWriter()
	w.Varint(fPingRespTerm, uint64(resp.Term))
	if resp.Alive {
		w.Varint(fPingRespAlive, 1)
	}
	return w.Finish()
}

func decodePingResponse(buf []byte) (engine.PingResponse, error) {
	var resp engine.PingResponse
	err := api.NewReader(buf).Each(func(f api.Field) error {
		switch f.Number {
		case fPingRespTerm:
			resp.Term = uint32(f.Varint)
		case fPingRespAlive:
			resp.Alive = f.Varint != 0
		}
		return nil
	})
	return resp, err
}
