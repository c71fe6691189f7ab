package box

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxdb/pkg/codec"
)

func TestTransaction_CommitAppliesStagedWrites(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	tx := Begin(b)

	_, err := tx.Put("a", int64(1))
	require.NoError(t, err)
	_, err = tx.Put("b", int64(2))
	require.NoError(t, err)

	// Not visible on the box until commit.
	_, ok, err := b.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tx.Commit())

	value, ok, err := b.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), value)
}

func TestTransaction_GetSeesOwnPendingWrites(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	tx := Begin(b)

	_, err := tx.Put("a", int64(9))
	require.NoError(t, err)

	value, ok, err := tx.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(9), value)
}

func TestTransaction_RollbackDiscardsWrites(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	tx := Begin(b)

	_, err := tx.Put("a", int64(1))
	require.NoError(t, err)
	tx.Rollback()

	_, ok, err := b.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransaction_DeleteStagedThenCommit(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	_, err := b.Put("a", int64(1))
	require.NoError(t, err)

	tx := Begin(b)
	removed, err := tx.Delete("a")
	require.NoError(t, err)
	assert.True(t, removed)

	require.NoError(t, tx.Commit())

	_, ok, err := b.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransaction_DeleteUnknownKeyIsNoop(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	tx := Begin(b)

	removed, err := tx.Delete("ghost")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestTransaction_CommitTwiceFails(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	tx := Begin(b)
	_, err := tx.Put("a", 1)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	err = tx.Commit()
	assert.Error(t, err)
}

func TestTransaction_EmptyCommitIsNoop(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	tx := Begin(b)
	require.NoError(t, tx.Commit())
}

func TestTransaction_CommitFailureLeavesBoxUntouched(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	_, err := b.Put("a", int64(1))
	require.NoError(t, err)

	tx := Begin(b)
	_, err = tx.Put("a", int64(2))
	require.NoError(t, err)
	// No adapter is registered for this type, so encoding it during
	// Commit's batched WriteFrames call fails partway through.
	_, err = tx.Put("b", struct{ X int }{1})
	require.NoError(t, err)

	err = tx.Commit()
	require.Error(t, err)

	value, ok, err := b.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), value)

	_, ok, err = b.Get("b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransaction_SurvivesReopenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txbox")
	reg := codec.NewTypeRegistry(nil)
	b, err := Open(path, "txbox", DefaultOptions(), reg)
	require.NoError(t, err)

	tx := Begin(b)
	_, err = tx.Put("a", int64(5))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, b.Close())

	b2, err := Open(path, "txbox", DefaultOptions(), reg)
	require.NoError(t, err)
	defer b2.Close()

	value, ok, err := b2.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), value)
}
