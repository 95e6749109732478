package raftlog

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/flowraft/raftcore/internal/api"
	"github.com/flowraft/raftcore/internal/log"
)

// ErrLogGap is returned when a caller asks for an index below
// OldestIndex (already reclaimed) or above LastIndex (not yet written).
var ErrLogGap = fmt.Errorf("raftlog: requested index outside retained range")

// Stats summarizes the store's shape for metrics/diagnostics.
type Stats struct {
	LastIndex    uint64
	LastTerm     uint32
	OldestIndex  uint64
	CommitIndex  uint64
	LogBytes     int64
	IdxBytes     int64
}

// RaftLog combines the record log, its index, and the persistent status
// record into the single durable store a group's engine drives (spec.md
// §4.2, §6). All methods assume the caller serializes access from the
// group's own fiber (no internal locking beyond what FileQueue provides
// for the I/O executor pool).
type RaftLog struct {
	dir string

	logQ *LogFileQueue
	idxQ *IdxFileQueue
	sm   *StatusManager

	currentTerm   uint32
	votedFor      string
	commitIndex   uint64
	oldestIndex   uint64
	lastTerm      uint32
	lastIndex     uint64
	snapshotIndex uint64
	snapshotTerm  uint32
}

// Open opens (or creates) the log/index/status files under dir and
// replays them to a consistent state. segmentBytes must be a power of
// two and is shared by both the record log and the index queue.
func Open(dir string, segmentBytes int64) (*RaftLog, error) {
	sm, st, err := OpenStatusManager(dir)
	if err != nil {
		return nil, err
	}

	baseIndex := st.OldestIndex
	if baseIndex == 0 {
		baseIndex = 1
	}
	if st.SnapshotIndex+1 > baseIndex {
		baseIndex = st.SnapshotIndex + 1
	}

	startPos := st.CommitIndexPos
	if st.SnapshotIndex >= st.CommitIndex {
		startPos = 0 // everything through SnapshotIndex lives in the snapshot, not the log
	}
	logQ, err := OpenLogFileQueue(filepath.Join(dir, "log"), segmentBytes, startPos)
	if err != nil {
		return nil, err
	}
	idxQ, err := OpenIdxFileQueue(filepath.Join(dir, "idx"), segmentBytes, baseIndex)
	if err != nil {
		return nil, err
	}

	rl := &RaftLog{
		dir:         dir,
		logQ:        logQ,
		idxQ:        idxQ,
		sm:          sm,
		currentTerm: st.CurrentTerm,
		votedFor:    st.VotedFor,
		commitIndex:   st.CommitIndex,
		oldestIndex:   baseIndex,
		snapshotIndex: st.SnapshotIndex,
		snapshotTerm:  st.SnapshotTerm,
	}
	if err := rl.restore(st); err != nil {
		return nil, err
	}
	return rl, nil
}

// restore implements RaftLog.init from spec.md §4.2: scan forward from
// the known commitIndexPos validating CRC and index continuity, stop at
// the first broken or partial record, and truncate both queues there.
func (rl *RaftLog) restore(st Status) error {
	var pos int64
	var expectIndex uint64
	var lastGoodIndex uint64
	var lastGoodTerm uint32

	switch {
	case st.SnapshotIndex >= st.CommitIndex && st.SnapshotIndex > 0:
		// Everything through the snapshot lives in the state machine, not
		// the log; the log (if any) only holds entries appended after it.
		pos = rl.logQ.StartPosition()
		expectIndex = st.SnapshotIndex + 1
		lastGoodIndex = st.SnapshotIndex
		lastGoodTerm = st.SnapshotTerm
	case st.CommitIndex == 0:
		pos = rl.logQ.StartPosition()
		expectIndex = rl.oldestIndex
		lastGoodIndex = expectIndex - 1
	default:
		pos = st.CommitIndexPos
		expectIndex = st.CommitIndex
		lastGoodIndex = expectIndex - 1
	}

	lastGoodPos := pos
	prevTerm := lastGoodTerm // best-effort; only checked after the first record

	first := true
	for {
		item, nextPos, err := rl.logQ.ReadAt(pos)
		if err != nil {
			break // clean EOF, torn tail write, or corruption: stop here either way
		}
		if item.Index != expectIndex {
			log.Warnf("raftlog %s: restore stopped at index gap, want %d got %d", rl.dir, expectIndex, item.Index)
			break
		}
		if !first && item.PrevLogTerm != prevTerm {
			log.Warnf("raftlog %s: restore stopped at term discontinuity at index %d", rl.dir, item.Index)
			break
		}
		if err := rl.idxQ.Append(item.Index, pos); err != nil {
			return err
		}
		lastGoodPos = nextPos
		lastGoodIndex = item.Index
		lastGoodTerm = item.Term
		prevTerm = item.Term
		expectIndex++
		pos = nextPos
		first = false
	}

	if err := rl.logQ.Truncate(lastGoodPos); err != nil {
		return err
	}
	if err := rl.idxQ.Truncate(lastGoodIndex + 1); err != nil {
		return err
	}

	rl.lastIndex = lastGoodIndex
	rl.lastTerm = lastGoodTerm
	if rl.commitIndex > rl.lastIndex {
		rl.commitIndex = rl.lastIndex
	}
	return nil
}

// LastIndex/LastTerm/CommitIndex/CurrentTerm/VotedFor/OldestIndex expose
// the recovered volatile view; the engine owns advancing them further
// and calling PersistStatus to make changes durable.
func (rl *RaftLog) LastIndex() uint64    { return rl.lastIndex }
func (rl *RaftLog) LastTerm() uint32     { return rl.lastTerm }
func (rl *RaftLog) CommitIndex() uint64  { return rl.commitIndex }
func (rl *RaftLog) CurrentTerm() uint32  { return rl.currentTerm }
func (rl *RaftLog) VotedFor() string     { return rl.votedFor }
func (rl *RaftLog) OldestIndex() uint64  { return rl.oldestIndex }

// Append frames and durably queues the next log entry at LastIndex()+1.
// Callers are responsible for calling Sync before acknowledging the
// write externally (the fiber-level write path wraps this in an
// IoRetryFrame and fsyncs once per batch, not per entry).
func (rl *RaftLog) Append(term uint32, typ api.EntryType, bizType uint32, header, body []byte) (*api.LogItem, error) {
	item := &api.LogItem{
		Index:       rl.lastIndex + 1,
		Term:        term,
		PrevLogTerm: rl.lastTerm,
		Timestamp:   uint64(time.Now().UnixNano()),
		Type:        typ,
		BizType:     bizType,
		Header:      header,
		Body:        body,
	}
	pos, err := rl.logQ.Append(item)
	if err != nil {
		return nil, err
	}
	if err := rl.idxQ.Append(item.Index, pos); err != nil {
		return nil, err
	}
	rl.lastIndex = item.Index
	rl.lastTerm = item.Term
	return item, nil
}

// Get returns the entry at index, or ErrLogGap if it has already been
// reclaimed or has not been written yet.
func (rl *RaftLog) Get(index uint64) (*api.LogItem, error) {
	if index < rl.oldestIndex || index > rl.lastIndex {
		return nil, ErrLogGap
	}
	pos, ok := rl.idxQ.Get(index)
	if !ok {
		return nil, ErrLogGap
	}
	item, _, err := rl.logQ.ReadAt(pos)
	return item, err
}

// TermAt returns the term of the entry at index, or 0 if index is 0
// (the conventional "no entry" term used for prevLogTerm comparisons).
func (rl *RaftLog) TermAt(index uint64) (uint32, error) {
	if index == 0 {
		return 0, nil
	}
	item, err := rl.Get(index)
	if err != nil {
		return 0, err
	}
	return item.Term, nil
}

// TruncateFrom drops every entry at or after index — used when a
// follower's log conflicts with the leader's and must be overwritten
// (spec.md §4.3 log-mismatch handling).
func (rl *RaftLog) TruncateFrom(index uint64) error {
	if index > rl.lastIndex {
		return nil
	}
	pos, ok := rl.idxQ.Get(index)
	if !ok {
		return ErrLogGap
	}
	if err := rl.logQ.Truncate(pos); err != nil {
		return err
	}
	if err := rl.idxQ.Truncate(index); err != nil {
		return err
	}
	rl.lastIndex = index - 1
	if rl.lastIndex == 0 {
		rl.lastTerm = 0
	} else {
		t, err := rl.TermAt(rl.lastIndex)
		if err != nil {
			return err
		}
		rl.lastTerm = t
	}
	if rl.commitIndex > rl.lastIndex {
		rl.commitIndex = rl.lastIndex
	}
	return nil
}

// PersistStatus fsyncs currentTerm/votedFor/commitIndex transactionally.
// commitIndex must not regress.
func (rl *RaftLog) PersistStatus(term uint32, votedFor string, commitIndex uint64) error {
	var pos int64
	if commitIndex > rl.snapshotIndex {
		var ok bool
		pos, ok = rl.idxQ.Get(commitIndex)
		if !ok && commitIndex != 0 {
			return ErrLogGap
		}
	}
	st := Status{
		CurrentTerm:    term,
		VotedFor:       votedFor,
		CommitIndex:    commitIndex,
		CommitIndexPos: pos,
		OldestIndex:    rl.oldestIndex,
		SnapshotIndex:  rl.snapshotIndex,
		SnapshotTerm:   rl.snapshotTerm,
	}
	if err := rl.sm.Save(st); err != nil {
		return err
	}
	rl.currentTerm = term
	rl.votedFor = votedFor
	rl.commitIndex = commitIndex
	return nil
}

// Sync fsyncs the log and index segment files; callers batch several
// Appends before calling this once per replication round.
func (rl *RaftLog) Sync() error {
	if err := rl.logQ.Sync(); err != nil {
		return err
	}
	return rl.idxQ.Sync()
}

// MarkTruncateByIndex implements the spec's markTruncateByIndex marker:
// maxIndex is capped at commitIndex-1 so committed-but-unreclaimed
// history never regresses past what apply has already consumed, then
// whole segments below that bound are dropped from both queues.
func (rl *RaftLog) MarkTruncateByIndex(maxIndex uint64) (int, error) {
	if rl.commitIndex == 0 {
		return 0, nil
	}
	if maxIndex > rl.commitIndex-1 {
		maxIndex = rl.commitIndex - 1
	}
	if maxIndex < rl.oldestIndex {
		return 0, nil
	}
	pos, ok := rl.idxQ.Get(maxIndex + 1)
	if !ok {
		return 0, nil
	}
	removed := rl.logQ.TryDeleteHead(func(_, end int64) bool { return end <= pos })
	removed += rl.idxQ.TryDeleteHeadBefore(maxIndex + 1)
	if removed > 0 {
		rl.oldestIndex = maxIndex + 1
	}
	return removed, nil
}

// MarkTruncateByTimestamp implements markTruncateByTimestamp: walks
// forward from oldestIndex while entries' timestamps are <= ts (and
// they remain safely committed), then reclaims through the same path as
// MarkTruncateByIndex.
func (rl *RaftLog) MarkTruncateByTimestamp(ts uint64) (int, error) {
	if rl.commitIndex == 0 {
		return 0, nil
	}
	candidate := rl.oldestIndex
	for candidate < rl.commitIndex {
		item, err := rl.Get(candidate)
		if err != nil {
			break
		}
		if item.Timestamp > ts {
			break
		}
		candidate++
	}
	if candidate == rl.oldestIndex {
		return 0, nil
	}
	return rl.MarkTruncateByIndex(candidate - 1)
}

// ResetToSnapshot discards the entire log and index and fast-forwards
// the store to reflect a just-installed snapshot covering up to
// (index, term) — spec.md §4.3's "log is truncated at the prefix" for
// snapshot install. Subsequent Append calls start at index+1.
func (rl *RaftLog) ResetToSnapshot(index uint64, term uint32) error {
	if err := rl.logQ.Reset(0); err != nil {
		return err
	}
	if err := rl.idxQ.Reset(index + 1); err != nil {
		return err
	}
	rl.lastIndex = index
	rl.lastTerm = term
	rl.oldestIndex = index + 1
	rl.snapshotIndex = index
	rl.snapshotTerm = term
	if rl.commitIndex < index {
		rl.commitIndex = index
	}
	return rl.PersistStatus(rl.currentTerm, rl.votedFor, rl.commitIndex)
}

func (rl *RaftLog) Stats() Stats {
	return Stats{
		LastIndex:   rl.lastIndex,
		LastTerm:    rl.lastTerm,
		OldestIndex: rl.oldestIndex,
		CommitIndex: rl.commitIndex,
		LogBytes:    rl.logQ.BytesOnDisk(),
		IdxBytes:    rl.idxQ.BytesOnDisk(),
	}
}

// Close releases all open segment files.
func (rl *RaftLog) Close() error {
	if err := rl.logQ.Close(); err != nil {
		return err
	}
	return rl.idxQ.Close()
}
