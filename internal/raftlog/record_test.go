package raftlog

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowraft/raftcore/internal/api"
)

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	item := &api.LogItem{
		Index:       7,
		Term:        3,
		PrevLogTerm: 2,
		Timestamp:   123456789,
		Type:        api.EntryNormal,
		BizType:     1,
		Header:      []byte("hdr"),
		Body:        []byte("hello world"),
	}
	enc := EncodeRecord(item)

	got, consumed, padding, err := DecodeRecord(enc)
	require.NoError(t, err)
	require.False(t, padding)
	require.Equal(t, len(enc), consumed)
	require.Equal(t, item.Index, got.Index)
	require.Equal(t, item.Term, got.Term)
	require.Equal(t, item.Body, got.Body)
}

func TestDecodeRecordChecksumFailure(t *testing.T) {
	item := &api.LogItem{Index: 1, Term: 1, Body: []byte("x")}
	enc := EncodeRecord(item)
	enc[len(enc)-1] ^= 0xFF // corrupt the stored crc32

	_, _, _, err := DecodeRecord(enc)
	require.ErrorIs(t, err, ErrChecksumFailure)
}

func TestDecodeRecordPartial(t *testing.T) {
	item := &api.LogItem{Index: 1, Term: 1, Body: []byte("hello")}
	enc := EncodeRecord(item)

	_, _, _, err := DecodeRecord(enc[:len(enc)-2])
	require.Error(t, err)
}

func TestDecodePaddingRecord(t *testing.T) {
	pad := EncodePadding(32)
	item, consumed, padding, err := DecodeRecord(pad)
	require.NoError(t, err)
	require.True(t, padding)
	require.Nil(t, item)
	require.Equal(t, 32, consumed)
}

func TestDecodeRecordUntouchedSpaceIsEOF(t *testing.T) {
	buf := make([]byte, 16)
	_, _, _, err := DecodeRecord(buf)
	require.ErrorIs(t, err, io.EOF)
}
