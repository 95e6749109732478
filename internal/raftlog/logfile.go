package raftlog

import (
	"errors"
	"fmt"
	"io"

	"github.com/flowraft/raftcore/internal/api"
)

// ErrRecordTooLarge is returned when a single encoded entry would not fit
// within one segment file regardless of alignment.
var ErrRecordTooLarge = errors.New("raftlog: record larger than segment file size")

// LogFileQueue is the record-aware layer over FileQueue: it never lets a
// record straddle two segment files, inserting a padding record (or raw
// zero fill, for the handful of trailing bytes too small to hold a frame
// header) at the tail of a segment instead.
type LogFileQueue struct {
	fq       *FileQueue
	writePos int64
}

// OpenLogFileQueue opens the segment files under dir and scans from the
// last known-good position to find the true write frontier, truncating
// any torn tail write left by an unclean shutdown. fromPos is normally
// the position recorded in the status file (see status.go); pass 0 on a
// brand new log.
func OpenLogFileQueue(dir string, fileSize int64, fromPos int64) (*LogFileQueue, error) {
	fq, err := OpenFileQueue(dir, fileSize)
	if err != nil {
		return nil, err
	}
	lq := &LogFileQueue{fq: fq, writePos: fromPos}
	if fq.StartPosition() == fq.EndPosition() {
		lq.writePos = fq.StartPosition()
		return lq, nil
	}
	if lq.writePos < fq.StartPosition() {
		lq.writePos = fq.StartPosition()
	}
	frontier, err := lq.scanToFrontier(lq.writePos)
	if err != nil {
		return nil, err
	}
	lq.writePos = frontier
	return lq, nil
}

// scanToFrontier reads forward from pos, validating every record, and
// returns the position just past the last valid record. It stops
// cleanly at io.EOF (untouched pre-allocated space) or io.ErrUnexpectedEOF
// (a torn trailing write); any other error is real corruption.
func (lq *LogFileQueue) scanToFrontier(pos int64) (int64, error) {
	for pos < lq.fq.EndPosition() {
		segEnd := pos - pos%lq.fq.FileSize() + lq.fq.FileSize()
		buf := make([]byte, segEnd-pos)
		n, err := lq.fq.ReadAt(pos, buf)
		if err != nil && err != io.EOF {
			return 0, err
		}
		buf = buf[:n]

		off := 0
		for off < len(buf) {
			_, consumed, _, err := DecodeRecord(buf[off:])
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return pos + int64(off), nil
			}
			if err != nil {
				return 0, fmt.Errorf("raftlog: corrupt log at position %d: %w", pos+int64(off), err)
			}
			off += consumed
		}
		pos = segEnd
	}
	return pos, nil
}

// WritePosition is the byte offset the next Append will land at.
func (lq *LogFileQueue) WritePosition() int64 { return lq.writePos }

// Append frames and writes item, returning the byte position it was
// written at. Entries never straddle a segment boundary: if item would
// not fit in the remainder of the current segment, that remainder is
// padded out first.
func (lq *LogFileQueue) Append(item *api.LogItem) (int64, error) {
	enc := EncodeRecord(item)
	if int64(len(enc)) > lq.fq.FileSize() {
		return 0, ErrRecordTooLarge
	}

	for {
		remaining := lq.fq.FileSize() - lq.writePos%lq.fq.FileSize()
		if int64(len(enc)) <= remaining {
			break
		}
		if err := lq.padToSegmentEnd(remaining); err != nil {
			return 0, err
		}
	}

	pos := lq.writePos
	if err := lq.fq.EnsureWritePosReady(pos + int64(len(enc)) - 1); err != nil {
		return 0, err
	}
	if err := lq.fq.WriteAt(pos, enc); err != nil {
		return 0, err
	}
	lq.writePos = pos + int64(len(enc))
	return pos, nil
}

func (lq *LogFileQueue) padToSegmentEnd(remaining int64) error {
	if remaining == 0 {
		return nil
	}
	pos := lq.writePos
	if err := lq.fq.EnsureWritePosReady(pos + remaining - 1); err != nil {
		return err
	}
	if remaining >= frameHeaderLen {
		if err := lq.fq.WriteAt(pos, EncodePadding(int(remaining))); err != nil {
			return err
		}
	}
	// remaining < frameHeaderLen: pre-allocated segments are zero-filled,
	// so those trailing bytes already read as "untouched" to a scanner.
	lq.writePos = pos + remaining
	return nil
}

// ReadAt decodes a single record starting at pos, returning the item and
// the position of the next record.
func (lq *LogFileQueue) ReadAt(pos int64) (*api.LogItem, int64, error) {
	// A record cannot be larger than one segment, so reading the rest of
	// the segment is always enough to decode it.
	segEnd := pos - pos%lq.fq.FileSize() + lq.fq.FileSize()
	buf := make([]byte, segEnd-pos)
	n, err := lq.fq.ReadAt(pos, buf)
	if err != nil && err != io.EOF {
		return nil, 0, err
	}
	buf = buf[:n]

	item, consumed, padding, err := DecodeRecord(buf)
	if err != nil {
		return nil, 0, err
	}
	if padding {
		return lq.ReadAt(pos + int64(consumed))
	}
	return item, pos + int64(consumed), nil
}

// Truncate drops everything at or after pos and resets the write
// frontier there.
func (lq *LogFileQueue) Truncate(pos int64) error {
	if err := lq.fq.TruncateTail(pos); err != nil {
		return err
	}
	lq.writePos = pos
	return nil
}

// Reset discards every record and resets the write frontier to
// startPos, used when a snapshot install supersedes the whole log.
func (lq *LogFileQueue) Reset(startPos int64) error {
	if err := lq.fq.ResetEmpty(startPos); err != nil {
		return err
	}
	lq.writePos = startPos
	return nil
}

// StartPosition/EndPosition/Sync/Close/TryDeleteHead/BytesOnDisk delegate
// to the underlying FileQueue.
func (lq *LogFileQueue) StartPosition() int64 { return lq.fq.StartPosition() }
func (lq *LogFileQueue) Sync() error          { return lq.fq.Sync() }
func (lq *LogFileQueue) Close() error         { return lq.fq.Close() }
func (lq *LogFileQueue) BytesOnDisk() int64   { return lq.fq.BytesOnDisk() }
func (lq *LogFileQueue) TryDeleteHead(predicate func(startPos, endPos int64) bool) int {
	return lq.fq.TryDeleteHead(predicate)
}
