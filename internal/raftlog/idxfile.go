package raftlog

import (
	"encoding/binary"
	"io"
)

// idxEntrySize is the width of one index slot: a single int64 file
// position. The logIndex a slot belongs to is implied by its offset
// (baseIndex + offset/idxEntrySize), so the index file never stores the
// index itself, only the position it maps to.
const idxEntrySize = 8

// IdxFileQueue is the fixed-width logIndex -> file position mapping
// backing random access into the record log, with an in-memory mirror so
// lookups of recently-appended indexes never touch disk (spec.md §4.2).
type IdxFileQueue struct {
	fq        *FileQueue
	baseIndex uint64
	cache     []int64
}

// OpenIdxFileQueue opens the index segment files and loads their content
// into the in-memory cache. baseIndex is the logIndex that position 0 of
// the index stream corresponds to; it is fixed for the lifetime of the
// queue even as head segments are later reclaimed.
func OpenIdxFileQueue(dir string, fileSize int64, baseIndex uint64) (*IdxFileQueue, error) {
	fq, err := OpenFileQueue(dir, fileSize)
	if err != nil {
		return nil, err
	}
	iq := &IdxFileQueue{fq: fq, baseIndex: baseIndex}

	n := (fq.EndPosition() - fq.StartPosition()) / idxEntrySize
	iq.cache = make([]int64, 0, n)
	buf := make([]byte, idxEntrySize)
	for pos := fq.StartPosition(); pos < fq.EndPosition(); pos += idxEntrySize {
		if _, err := fq.ReadAt(pos, buf); err != nil && err != io.EOF {
			return nil, err
		}
		pv := int64(binary.LittleEndian.Uint64(buf))
		if pv == 0 && pos != 0 && allZero(buf) {
			break // untouched pre-allocated tail (only slot 0 may map to log position 0)
		}
		iq.cache = append(iq.cache, pv)
	}
	return iq, nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func (iq *IdxFileQueue) slot(index uint64) int64 { return int64(index - iq.baseIndex) }

// Append records that logIndex maps to filePos, extending the index
// stream. index must equal LastIndex()+1 (or baseIndex if the queue is
// empty); callers never write out of order.
func (iq *IdxFileQueue) Append(index uint64, filePos int64) error {
	slot := iq.slot(index)
	off := slot * idxEntrySize
	if err := iq.fq.EnsureWritePosReady(off + idxEntrySize - 1); err != nil {
		return err
	}
	buf := make([]byte, idxEntrySize)
	binary.LittleEndian.PutUint64(buf, uint64(filePos))
	if err := iq.fq.WriteAt(off, buf); err != nil {
		return err
	}
	if int(slot) == len(iq.cache) {
		iq.cache = append(iq.cache, filePos)
	} else if int(slot) < len(iq.cache) {
		iq.cache[slot] = filePos
	}
	return nil
}

// Get returns the file position logIndex maps to, or ok=false if it has
// never been written (either before baseIndex or past LastIndex).
func (iq *IdxFileQueue) Get(index uint64) (pos int64, ok bool) {
	if index < iq.baseIndex {
		return 0, false
	}
	slot := iq.slot(index)
	if slot < 0 || int(slot) >= len(iq.cache) {
		return 0, false
	}
	return iq.cache[slot], true
}

// LastIndex is the highest logIndex with a recorded position, or
// baseIndex-1 if the index is empty.
func (iq *IdxFileQueue) LastIndex() uint64 {
	if len(iq.cache) == 0 {
		if iq.baseIndex == 0 {
			return 0
		}
		return iq.baseIndex - 1
	}
	return iq.baseIndex + uint64(len(iq.cache)) - 1
}

// BaseIndex is the logIndex position 0 of the index stream corresponds
// to.
func (iq *IdxFileQueue) BaseIndex() uint64 { return iq.baseIndex }

// Truncate drops every mapping for index >= from.
func (iq *IdxFileQueue) Truncate(from uint64) error {
	slot := iq.slot(from)
	if slot < 0 {
		slot = 0
	}
	if int(slot) < len(iq.cache) {
		iq.cache = iq.cache[:slot]
	}
	return iq.fq.TruncateTail(slot * idxEntrySize)
}

// TryDeleteHeadBefore reclaims whole index segments that map entirely to
// logIndexes below minIndex.
func (iq *IdxFileQueue) TryDeleteHeadBefore(minIndex uint64) int {
	return iq.fq.TryDeleteHead(func(_, endPos int64) bool {
		endIndex := iq.baseIndex + uint64(endPos/idxEntrySize)
		return endIndex <= minIndex
	})
}

// Reset discards every mapping and restarts the index stream at
// newBaseIndex — the companion to LogFileQueue.Reset for snapshot
// install, since the log's prefix no longer has backing records to
// index.
func (iq *IdxFileQueue) Reset(newBaseIndex uint64) error {
	if err := iq.fq.ResetEmpty(0); err != nil {
		return err
	}
	iq.baseIndex = newBaseIndex
	iq.cache = iq.cache[:0]
	return nil
}

func (iq *IdxFileQueue) Sync() error        { return iq.fq.Sync() }
func (iq *IdxFileQueue) Close() error       { return iq.fq.Close() }
func (iq *IdxFileQueue) BytesOnDisk() int64 { return iq.fq.BytesOnDisk() }
