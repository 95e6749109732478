package raftlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowraft/raftcore/internal/api"
)

func TestRaftLogAppendGetPersist(t *testing.T) {
	dir := t.TempDir()
	rl, err := Open(dir, 4096)
	require.NoError(t, err)
	defer rl.Close()

	for i := 0; i < 5; i++ {
		_, err := rl.Append(1, api.EntryNormal, 0, nil, []byte("v"))
		require.NoError(t, err)
	}
	require.NoError(t, rl.Sync())
	require.Equal(t, uint64(5), rl.LastIndex())

	item, err := rl.Get(3)
	require.NoError(t, err)
	require.Equal(t, uint64(3), item.Index)

	require.NoError(t, rl.PersistStatus(1, "node-a", 5))
	require.Equal(t, uint64(5), rl.CommitIndex())
}

func TestRaftLogRestoreAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	rl, err := Open(dir, 4096)
	require.NoError(t, err)

	var lastTerm uint32 = 1
	for i := 0; i < 10; i++ {
		_, err := rl.Append(lastTerm, api.EntryNormal, 0, nil, []byte("v"))
		require.NoError(t, err)
	}
	require.NoError(t, rl.Sync())
	require.NoError(t, rl.PersistStatus(lastTerm, "node-a", 7))
	require.NoError(t, rl.Close())

	rl2, err := Open(dir, 4096)
	require.NoError(t, err)
	defer rl2.Close()

	require.Equal(t, uint64(10), rl2.LastIndex())
	require.Equal(t, uint64(7), rl2.CommitIndex())
	require.Equal(t, "node-a", rl2.VotedFor())

	item, err := rl2.Get(10)
	require.NoError(t, err)
	require.Equal(t, uint64(10), item.Index)
}

func TestRaftLogTruncateFromOnConflict(t *testing.T) {
	dir := t.TempDir()
	rl, err := Open(dir, 4096)
	require.NoError(t, err)
	defer rl.Close()

	for i := 0; i < 5; i++ {
		_, err := rl.Append(1, api.EntryNormal, 0, nil, []byte("v"))
		require.NoError(t, err)
	}
	require.NoError(t, rl.TruncateFrom(3))
	require.Equal(t, uint64(2), rl.LastIndex())

	_, err = rl.Append(2, api.EntryNormal, 0, nil, []byte("overwrite"))
	require.NoError(t, err)
	require.Equal(t, uint64(3), rl.LastIndex())

	item, err := rl.Get(3)
	require.NoError(t, err)
	require.Equal(t, "overwrite", string(item.Body))
}

func TestRaftLogMarkTruncateByIndex(t *testing.T) {
	dir := t.TempDir()
	rl, err := Open(dir, 512)
	require.NoError(t, err)
	defer rl.Close()

	for i := 0; i < 40; i++ {
		_, err := rl.Append(1, api.EntryNormal, 0, nil, []byte("entry-body-padding"))
		require.NoError(t, err)
	}
	require.NoError(t, rl.PersistStatus(1, "", 35))

	removed, err := rl.MarkTruncateByIndex(30)
	require.NoError(t, err)
	require.GreaterOrEqual(t, removed, 0)

	_, err = rl.Get(1)
	if removed > 0 {
		require.ErrorIs(t, err, ErrLogGap)
	}
}
