// Package memkv is a minimal in-memory key/value store implementing
// statemachine.StateMachine, used by cmd/raftd as the concrete "pluggable
// user state machine" spec.md treats as an external collaborator.
package memkv

import (
	"fmt"
	"sync"

	"github.com/flowraft/raftcore/internal/api"
	"github.com/flowraft/raftcore/internal/statemachine"
)

// Op is the command type Exec's input decodes into.
type Op uint8

const (
	OpPut Op = iota
	OpDelete
)

const (
	fOp    = 1
	fKey   = 2
	fValue = 3
)

// EncodePut builds the Exec input for setting key to value.
func EncodePut(key, value []byte) []byte {
	w := api.NewWriter()
	w.Varint(fOp, uint64(OpPut))
	w.Bytes(fKey, key)
	w.Bytes(fValue, value)
	return w.Finish()
}

// EncodeDelete builds the Exec input for removing key.
func EncodeDelete(key []byte) []byte {
	w := api.NewWriter()
	w.Varint(fOp, uint64(OpDelete))
	w.Bytes(fKey, key)
	return w.Finish()
}

func decodeCommand(buf []byte) (op Op, key, value []byte, err error) {
	err = api.NewReader(buf).Each(func(f api.Field) error {
		switch f.Number {
		case fOp:
			op = Op(f.Varint)
		case fKey:
			key = append([]byte(nil), f.Bytes...)
		case fValue:
			value = append([]byte(nil), f.Bytes...)
		}
		return nil
	})
	return
}

// KV is a thread-safe in-memory map driven exclusively through Exec; reads
// outside of Exec (Get) are for read-path callers that have already
// established linearizability via the group's lease (spec.md §4.4).
type KV struct {
	mu        sync.RWMutex
	data      map[string][]byte
	lastIndex uint64
	lastTerm  uint32

	inbound *inboundSnapshot
}

// New returns an empty store.
func New() *KV {
	return &KV{data: make(map[string][]byte)}
}

// Get reads key's current value under the store's read lock.
func (kv *KV) Get(key string) ([]byte, bool) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	v, ok := kv.data[key]
	return v, ok
}

func (kv *KV) Exec(index uint64, term uint32, input []byte) ([]byte, error) {
	op, key, value, err := decodeCommand(input)
	if err != nil {
		return nil, fmt.Errorf("memkv: decode command at index %d: %w", index, err)
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()
	prev := kv.data[string(key)]
	switch op {
	case OpPut:
		kv.data[string(key)] = value
	case OpDelete:
		delete(kv.data, string(key))
	default:
		return nil, fmt.Errorf("memkv: unknown op %d at index %d", op, index)
	}
	kv.lastIndex = index
	kv.lastTerm = term
	return prev, nil
}

const snapshotChunkSize = 256 << 10

// snapshotRecord field numbers, framed the same way as every other wire
// record in this codebase (internal/api.Writer/Reader).
const (
	fSnapKey   = 1
	fSnapValue = 2
)

// outboundSnapshot is the Snapshot handle TakeSnapshot hands the leader's
// replicator loop: a point-in-time copy of the map, pre-serialized into
// one record per key and sliced into fixed-size chunks.
type outboundSnapshot struct {
	lastIndex uint64
	lastTerm  uint32
	encoded   []byte
	offset    int
}

func (s *outboundSnapshot) LastIncludedIndex() uint64 { return s.lastIndex }
func (s *outboundSnapshot) LastIncludedTerm() uint32  { return s.lastTerm }

func (s *outboundSnapshot) ReadNext() ([]byte, bool, error) {
	if s.offset >= len(s.encoded) {
		return nil, true, nil
	}
	end := s.offset + snapshotChunkSize
	if end > len(s.encoded) {
		end = len(s.encoded)
	}
	chunk := s.encoded[s.offset:end]
	s.offset = end
	return chunk, s.offset >= len(s.encoded), nil
}

var _ statemachine.Snapshot = (*outboundSnapshot)(nil)

func (kv *KV) TakeSnapshot() (statemachine.Snapshot, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	w := api.NewWriter()
	for k, v := range kv.data {
		w.Bytes(fSnapKey, []byte(k))
		w.Bytes(fSnapValue, v)
	}
	return &outboundSnapshot{lastIndex: kv.lastIndex, lastTerm: kv.lastTerm, encoded: w.Finish()}, nil
}

// inboundSnapshot buffers InstallSnapshot chunks until the final one
// arrives, then swaps the whole map in at once so a reader never observes
// a partially-installed snapshot.
type inboundSnapshot struct {
	buf []byte
}

func (kv *KV) InstallSnapshot(index uint64, term uint32, offset int64, done bool, chunk []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if kv.inbound == nil {
		kv.inbound = &inboundSnapshot{}
	}
	kv.inbound.buf = append(kv.inbound.buf, chunk...)
	if !done {
		return nil
	}

	fresh := make(map[string][]byte)
	var key []byte
	err := api.NewReader(kv.inbound.buf).Each(func(f api.Field) error {
		switch f.Number {
		case fSnapKey:
			key = append([]byte(nil), f.Bytes...)
		case fSnapValue:
			fresh[string(key)] = append([]byte(nil), f.Bytes...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("memkv: decode inbound snapshot: %w", err)
	}

	kv.data = fresh
	kv.lastIndex = index
	kv.lastTerm = term
	kv.inbound = nil
	return nil
}

func (kv *KV) Close() error { return nil }

var _ statemachine.StateMachine = (*KV)(nil)
