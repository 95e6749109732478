package raftlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileQueueAllocatesAndPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	q, err := OpenFileQueue(dir, 64)
	require.NoError(t, err)

	require.NoError(t, q.EnsureWritePosReady(10))
	require.NoError(t, q.WriteAt(0, []byte("hello")))
	require.NoError(t, q.Sync())
	require.NoError(t, q.Close())

	q2, err := OpenFileQueue(dir, 64)
	require.NoError(t, err)
	defer q2.Close()

	buf := make([]byte, 5)
	_, err = q2.ReadAt(0, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

func TestFileQueueGrowsAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	q, err := OpenFileQueue(dir, 32)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.EnsureWritePosReady(100))
	require.GreaterOrEqual(t, q.EndPosition(), int64(101))
	require.NoError(t, q.WriteAt(96, []byte("z")))
}

func TestFileQueueTryDeleteHead(t *testing.T) {
	dir := t.TempDir()
	q, err := OpenFileQueue(dir, 16)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.EnsureWritePosReady(50)) // several segments
	start := q.StartPosition()

	removed := q.TryDeleteHead(func(startPos, endPos int64) bool { return endPos <= 32 })
	require.Equal(t, 2, removed)
	require.Greater(t, q.StartPosition(), start)
}

func TestFileQueueTruncateTail(t *testing.T) {
	dir := t.TempDir()
	q, err := OpenFileQueue(dir, 16)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.EnsureWritePosReady(50))
	require.NoError(t, q.TruncateTail(20))
	require.LessOrEqual(t, q.EndPosition(), int64(32))
}
