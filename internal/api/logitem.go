package api

import "fmt"

// EntryType distinguishes a normal replicated entry from the housekeeping
// entries the engine appends on its own (no-op on leader election,
// membership bookkeeping).
type EntryType uint8

const (
	EntryNormal EntryType = iota
	EntryNoOp
	EntryMember
)

// LogItem is one replicated entry, see spec.md §3.
//
// Indexes start at 1 and are strictly contiguous within a group; Term is
// monotonic non-decreasing.
type LogItem struct {
	Index       uint64
	Term        uint32
	PrevLogTerm uint32
	Timestamp   uint64
	Type        EntryType
	BizType     uint32
	Header      []byte
	Body        []byte
}

const (
	fLogIndex       = 1
	fLogTerm        = 2
	fLogPrevTerm    = 3
	fLogTimestamp   = 4
	fLogType        = 5
	fLogBizType     = 6
	fLogHeader      = 7
	fLogBody        = 8
)

// Marshal encodes the item's fields using the tag/wire-type scheme; it
// does not include the outer record framing (magic/length/crc), which
// belongs to the log file codec in internal/raftlog.
func (li *LogItem) Marshal() []byte {
	w := NewWriter()
	w.Varint(fLogIndex, li.Index)
	w.Varint(fLogTerm, uint64(li.Term))
	w.Varint(fLogPrevTerm, uint64(li.PrevLogTerm))
	w.Fixed64(fLogTimestamp, li.Timestamp)
	w.Varint(fLogType, uint64(li.Type))
	w.Varint(fLogBizType, uint64(li.BizType))
	if len(li.Header) > 0 {
		w.Bytes(fLogHeader, li.Header)
	}
	if len(li.Body) > 0 {
		w.Bytes(fLogBody, li.Body)
	}
	return w.Finish()
}

// Unmarshal decodes a record previously produced by Marshal. Unknown
// field numbers are ignored so the format can grow.
func (li *LogItem) Unmarshal(buf []byte) error {
	r := NewReader(buf)
	return r.Each(func(f Field) error {
		switch f.Number {
		case fLogIndex:
			li.Index = f.Varint
		case fLogTerm:
			li.Term = uint32(f.Varint)
		case fLogPrevTerm:
			li.PrevLogTerm = uint32(f.Varint)
		case fLogTimestamp:
			li.Timestamp = f.Fixed64
		case fLogType:
			li.Type = EntryType(f.Varint)
		case fLogBizType:
			li.BizType = uint32(f.Varint)
		case fLogHeader:
			li.Header = append([]byte(nil), f.Bytes...)
		case fLogBody:
			li.Body = append([]byte(nil), f.Bytes...)
		}
		return nil
	})
}

func (li LogItem) String() string {
	return fmt.Sprintf("LogItem{index:%d term:%d type:%d bodyLen:%d}", li.Index, li.Term, li.Type, len(li.Body))
}
