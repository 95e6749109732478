package raftlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdxFileQueueAppendGetLast(t *testing.T) {
	dir := t.TempDir()
	iq, err := OpenIdxFileQueue(dir, 128, 1)
	require.NoError(t, err)
	defer iq.Close()

	require.NoError(t, iq.Append(1, 0))
	require.NoError(t, iq.Append(2, 40))
	require.NoError(t, iq.Append(3, 90))

	pos, ok := iq.Get(2)
	require.True(t, ok)
	require.Equal(t, int64(40), pos)

	require.Equal(t, uint64(3), iq.LastIndex())

	_, ok = iq.Get(4)
	require.False(t, ok)
}

func TestIdxFileQueueRecoversAfterReopen(t *testing.T) {
	dir := t.TempDir()
	iq, err := OpenIdxFileQueue(dir, 128, 1)
	require.NoError(t, err)
	require.NoError(t, iq.Append(1, 10))
	require.NoError(t, iq.Append(2, 20))
	require.NoError(t, iq.Sync())
	require.NoError(t, iq.Close())

	iq2, err := OpenIdxFileQueue(dir, 128, 1)
	require.NoError(t, err)
	defer iq2.Close()

	pos, ok := iq2.Get(2)
	require.True(t, ok)
	require.Equal(t, int64(20), pos)
	require.Equal(t, uint64(2), iq2.LastIndex())
}

func TestIdxFileQueueTruncate(t *testing.T) {
	dir := t.TempDir()
	iq, err := OpenIdxFileQueue(dir, 128, 1)
	require.NoError(t, err)
	defer iq.Close()

	require.NoError(t, iq.Append(1, 0))
	require.NoError(t, iq.Append(2, 10))
	require.NoError(t, iq.Append(3, 20))

	require.NoError(t, iq.Truncate(2))
	require.Equal(t, uint64(1), iq.LastIndex())
	_, ok := iq.Get(2)
	require.False(t, ok)
}
