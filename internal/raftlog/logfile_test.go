package raftlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowraft/raftcore/internal/api"
)

func mkItem(index uint64, term uint32, body string) *api.LogItem {
	return &api.LogItem{Index: index, Term: term, PrevLogTerm: term, Body: []byte(body)}
}

func TestLogFileQueueAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	lq, err := OpenLogFileQueue(dir, 256, 0)
	require.NoError(t, err)
	defer lq.Close()

	pos1, err := lq.Append(mkItem(1, 1, "one"))
	require.NoError(t, err)
	pos2, err := lq.Append(mkItem(2, 1, "two"))
	require.NoError(t, err)
	require.Greater(t, pos2, pos1)

	item, next, err := lq.ReadAt(pos1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), item.Index)
	require.Equal(t, pos2, next)

	item2, _, err := lq.ReadAt(pos2)
	require.NoError(t, err)
	require.Equal(t, "two", string(item2.Body))
}

func TestLogFileQueuePadsAcrossSegmentBoundary(t *testing.T) {
	dir := t.TempDir()
	lq, err := OpenLogFileQueue(dir, 64, 0)
	require.NoError(t, err)
	defer lq.Close()

	_, err = lq.Append(mkItem(1, 1, "x"))
	require.NoError(t, err)

	// This record does not fit in what's left of segment 1, forcing a
	// padding record and a jump to segment 2.
	big := mkItem(2, 1, "012345678901234567890123456789")
	pos, err := lq.Append(big)
	require.NoError(t, err)
	require.GreaterOrEqual(t, pos, int64(64))

	item, _, err := lq.ReadAt(pos)
	require.NoError(t, err)
	require.Equal(t, big.Body, item.Body)
}

func TestLogFileQueueRecoversAfterReopen(t *testing.T) {
	dir := t.TempDir()
	lq, err := OpenLogFileQueue(dir, 256, 0)
	require.NoError(t, err)

	for i := uint64(1); i <= 5; i++ {
		_, err := lq.Append(mkItem(i, 1, "entry"))
		require.NoError(t, err)
	}
	require.NoError(t, lq.Sync())
	frontier := lq.WritePosition()
	require.NoError(t, lq.Close())

	lq2, err := OpenLogFileQueue(dir, 256, 0)
	require.NoError(t, err)
	defer lq2.Close()
	require.Equal(t, frontier, lq2.WritePosition())
}

func TestLogFileQueueTruncate(t *testing.T) {
	dir := t.TempDir()
	lq, err := OpenLogFileQueue(dir, 256, 0)
	require.NoError(t, err)
	defer lq.Close()

	pos2, err := func() (int64, error) {
		_, err := lq.Append(mkItem(1, 1, "one"))
		if err != nil {
			return 0, err
		}
		return lq.Append(mkItem(2, 1, "two"))
	}()
	require.NoError(t, err)

	require.NoError(t, lq.Truncate(pos2))
	require.Equal(t, pos2, lq.WritePosition())
}
