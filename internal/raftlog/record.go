package raftlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/flowraft/raftcore/internal/api"
)

// On-disk record framing (spec.md §6):
//
//	magic(4) | totalLen(4) | payload(totalLen-4) | crc32(4)
//
// payload is an api.LogItem.Marshal() blob. totalLen counts the payload
// plus the trailing crc32, so a reader can slice exactly totalLen+8 bytes
// out of the segment without re-parsing the payload first. A record
// whose magic is magicPadding instead marks dead space at the tail of a
// segment (left behind when an entry would otherwise straddle two
// files) and carries no payload or crc.
const (
	magicRecord  uint32 = 0x3b6a27a1
	magicPadding uint32 = 0x1ac8b3fe
	frameHeaderLen       = 8 // magic + totalLen
	crcLen               = 4
)

// EncodeRecord frames one log entry for on-disk storage.
func EncodeRecord(item *api.LogItem) []byte {
	payload := item.Marshal()
	totalLen := len(payload) + crcLen

	buf := make([]byte, frameHeaderLen+totalLen)
	binary.LittleEndian.PutUint32(buf[0:4], magicRecord)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen))
	copy(buf[frameHeaderLen:], payload)

	crc := crc32.ChecksumIEEE(buf[frameHeaderLen : frameHeaderLen+len(payload)])
	binary.LittleEndian.PutUint32(buf[frameHeaderLen+len(payload):], crc)
	return buf
}

// EncodePadding fills exactly n bytes (n must be >= frameHeaderLen) with a
// padding record so a reader scanning the segment can skip it without
// interpreting it as a live entry.
func EncodePadding(n int) []byte {
	if n < frameHeaderLen {
		panic(fmt.Sprintf("raftlog: padding region %d smaller than frame header", n))
	}
	buf := make([]byte, n)
	binary.LittleEndian.PutUint32(buf[0:4], magicPadding)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(n-frameHeaderLen))
	return buf
}

// ErrChecksumFailure indicates a record's stored crc32 does not match its
// payload, meaning the segment was corrupted or truncated mid-write.
var ErrChecksumFailure = fmt.Errorf("raftlog: record checksum failure")

// ErrBadMagic indicates the bytes at a position are not a record or
// padding frame at all (an index pointed at the wrong offset, or the
// segment is corrupt).
var ErrBadMagic = fmt.Errorf("raftlog: bad record magic")

// DecodeRecord reads one record starting at buf[0]. It returns the
// decoded item (nil for a padding record), the number of bytes consumed,
// and whether the record was padding. io.ErrUnexpectedEOF signals buf
// does not yet contain a complete record (the caller should stop
// scanning: this is either the live write frontier or a torn tail write
// from an unclean shutdown).
func DecodeRecord(buf []byte) (item *api.LogItem, consumed int, padding bool, err error) {
	if len(buf) < frameHeaderLen {
		return nil, 0, false, io.ErrUnexpectedEOF
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	totalLen := int(binary.LittleEndian.Uint32(buf[4:8]))
	if totalLen < 0 || frameHeaderLen+totalLen > len(buf) {
		return nil, 0, false, io.ErrUnexpectedEOF
	}

	switch magic {
	case 0:
		if totalLen == 0 {
			// Untouched, pre-allocated space: the write frontier.
			return nil, 0, false, io.EOF
		}
		return nil, 0, false, ErrBadMagic
	case magicPadding:
		return nil, frameHeaderLen + totalLen, true, nil
	case magicRecord:
		if totalLen < crcLen {
			return nil, 0, false, ErrChecksumFailure
		}
		payload := buf[frameHeaderLen : frameHeaderLen+totalLen-crcLen]
		storedCRC := binary.LittleEndian.Uint32(buf[frameHeaderLen+totalLen-crcLen : frameHeaderLen+totalLen])
		if crc32.ChecksumIEEE(payload) != storedCRC {
			return nil, 0, false, ErrChecksumFailure
		}
		li := &api.LogItem{}
		if err := li.Unmarshal(payload); err != nil {
			return nil, 0, false, fmt.Errorf("raftlog: decode payload: %w", err)
		}
		return li, frameHeaderLen + totalLen, false, nil
	default:
		return nil, 0, false, ErrBadMagic
	}
}
