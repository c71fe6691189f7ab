package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxdb/internal/frame"
	"boxdb/pkg/boxerr"
	"boxdb/pkg/codec"
)

func tempBase(t *testing.T) string {
	dir := t.TempDir()
	return filepath.Join(dir, "box")
}

func TestBackend_OpenEmptyThenWriteAndReload(t *testing.T) {
	base := tempBase(t)
	reg := codec.NewTypeRegistry(nil)

	b, frames, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	assert.Empty(t, frames)

	written, err := b.WriteFrames([]*frame.Frame{
		frame.NewFrame("a", int64(1)),
		frame.NewFrame("b", int64(2)),
	})
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.Equal(t, int64(0), written[0].Offset)

	require.NoError(t, b.Close())

	b2, frames2, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	defer b2.Close()

	require.Len(t, frames2, 2)
	assert.Equal(t, "a", frames2[0].Key)
	assert.Equal(t, int64(2), frames2[1].Value)
}

func TestBackend_SecondOpenIsLocked(t *testing.T) {
	base := tempBase(t)
	reg := codec.NewTypeRegistry(nil)

	b, _, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	defer b.Close()

	_, _, err = Open(base, reg, nil, false, true)
	assert.ErrorIs(t, err, boxerr.ErrBoxLocked)
}

func TestBackend_RecoversFromTruncatedTail(t *testing.T) {
	base := tempBase(t)
	reg := codec.NewTypeRegistry(nil)

	b, _, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	_, err = b.WriteFrames([]*frame.Frame{
		frame.NewFrame("a", int64(1)),
		frame.NewFrame("b", int64(2)),
	})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	// Simulate a crash mid-write by chopping bytes off the end.
	data, err := os.ReadFile(base + logSuffix)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(base+logSuffix, data[:len(data)-2], 0o644))

	b2, frames, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	defer b2.Close()

	require.Len(t, frames, 1)
	assert.Equal(t, "a", frames[0].Key)
}

func TestBackend_CrashRecoveryDisabledFailsOpenOnTruncatedTail(t *testing.T) {
	base := tempBase(t)
	reg := codec.NewTypeRegistry(nil)

	b, _, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	_, err = b.WriteFrames([]*frame.Frame{
		frame.NewFrame("a", int64(1)),
		frame.NewFrame("b", int64(2)),
	})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	data, err := os.ReadFile(base + logSuffix)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(base+logSuffix, data[:len(data)-2], 0o644))

	_, _, err = Open(base, reg, nil, false, false)
	assert.ErrorIs(t, err, boxerr.ErrCorruptBox)
}

func TestBackend_WriteFramesTruncatesBackOnFailure(t *testing.T) {
	base := tempBase(t)
	reg := codec.NewTypeRegistry(nil)

	b, _, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.WriteFrames([]*frame.Frame{frame.NewFrame("a", int64(1))})
	require.NoError(t, err)
	sizeBefore := b.Size()

	// The second frame's value has no built-in tag and no registry to
	// dispatch to, so its Encode fails after the first frame has already
	// been staged in the batch.
	_, err = b.WriteFrames([]*frame.Frame{
		frame.NewFrame("b", int64(2)),
		frame.NewFrame("c", struct{ X int }{1}),
	})
	require.Error(t, err)
	assert.Equal(t, sizeBefore, b.Size())

	require.NoError(t, b.Close())
	b2, frames, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	defer b2.Close()
	require.Len(t, frames, 1)
	assert.Equal(t, "a", frames[0].Key)
}

func TestBackend_ReadValueFetchesLazyFrame(t *testing.T) {
	base := tempBase(t)
	reg := codec.NewTypeRegistry(nil)

	b, _, err := Open(base, reg, nil, true, true)
	require.NoError(t, err)
	defer b.Close()

	written, err := b.WriteFrames([]*frame.Frame{frame.NewFrame("k", "value")})
	require.NoError(t, err)

	got, err := b.ReadValue(written[0].Offset, written[0].Length)
	require.NoError(t, err)
	assert.Equal(t, "value", got.Value)
}

func TestBackend_CompactEncodeFailureLeavesLogUntouched(t *testing.T) {
	base := tempBase(t)
	reg := codec.NewTypeRegistry(nil)

	b, _, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.WriteFrames([]*frame.Frame{frame.NewFrame("a", int64(1))})
	require.NoError(t, err)
	sizeBefore := b.Size()

	_, err = b.Compact([]*frame.Frame{frame.NewFrame("a", struct{ X int }{1})}, 1)
	require.Error(t, err)
	assert.Equal(t, sizeBefore, b.Size())
	_, err = os.Stat(base + compactionSuffix)
	assert.True(t, os.IsNotExist(err))

	// The backend must still be usable after the failed compaction.
	_, err = b.WriteFrames([]*frame.Frame{frame.NewFrame("b", int64(2))})
	require.NoError(t, err)
}

func TestBackend_CompactDropsDeadFramesAndSurvivesReopen(t *testing.T) {
	base := tempBase(t)
	reg := codec.NewTypeRegistry(nil)

	b, _, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)

	_, err = b.WriteFrames([]*frame.Frame{
		frame.NewFrame("a", int64(1)),
		frame.NewFrame("a", int64(2)),
		frame.NewTombstone("b"),
	})
	require.NoError(t, err)

	live := []*frame.Frame{frame.NewFrame("a", int64(2))}
	rewritten, err := b.Compact(live, 3)
	require.NoError(t, err)
	require.Len(t, rewritten, 1)
	assert.Equal(t, int64(1), b.Stats.Compactions())
	assert.Equal(t, int64(2), b.Stats.FramesDiscarded())

	require.NoError(t, b.Close())

	b2, frames, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	defer b2.Close()
	require.Len(t, frames, 1)
	assert.Equal(t, int64(2), frames[0].Value)
}

func TestBackend_ClearEmptiesLog(t *testing.T) {
	base := tempBase(t)
	reg := codec.NewTypeRegistry(nil)

	b, _, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.WriteFrames([]*frame.Frame{frame.NewFrame("a", int64(1))})
	require.NoError(t, err)
	require.NoError(t, b.Clear())
	assert.Equal(t, int64(0), b.Size())
}

func TestBackend_DeleteFromDiskRemovesAllFiles(t *testing.T) {
	base := tempBase(t)
	reg := codec.NewTypeRegistry(nil)

	b, _, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)

	require.NoError(t, b.DeleteFromDisk())

	_, err = os.Stat(base + logSuffix)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(base + lockSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestBackend_CompactionCrashRecoveryKeepsHiveWhenBothExist(t *testing.T) {
	base := tempBase(t)
	reg := codec.NewTypeRegistry(nil)

	b, _, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	_, err = b.WriteFrames([]*frame.Frame{frame.NewFrame("a", int64(1))})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	// Simulate a compaction that finished writing .hivec but crashed
	// before the rename to .hive completed: both files exist, so the old
	// .hive (value 1) must win and .hivec must be discarded.
	f, err := os.Create(base + compactionSuffix)
	require.NoError(t, err)
	live := frame.NewFrame("a", int64(99))
	data, err := live.Encode(reg, nil)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b2, frames, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	defer b2.Close()

	require.Len(t, frames, 1)
	assert.Equal(t, int64(1), frames[0].Value)
	_, err = os.Stat(base + compactionSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestBackend_CompactionCrashRecoveryPromotesHivecWhenHiveMissing(t *testing.T) {
	base := tempBase(t)
	reg := codec.NewTypeRegistry(nil)

	// Simulate a compaction whose rename had already removed .hive but
	// crashed before the new file landed at that path: only .hivec
	// exists, so it must be promoted (new wins).
	f, err := os.Create(base + compactionSuffix)
	require.NoError(t, err)
	live := frame.NewFrame("a", int64(99))
	data, err := live.Encode(reg, nil)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b, frames, err := Open(base, reg, nil, false, true)
	require.NoError(t, err)
	defer b.Close()

	require.Len(t, frames, 1)
	assert.Equal(t, int64(99), frames[0].Value)
	_, err = os.Stat(base + compactionSuffix)
	assert.True(t, os.IsNotExist(err))
}
