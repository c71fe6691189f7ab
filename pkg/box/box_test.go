package box

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxdb/pkg/boxerr"
	"boxdb/pkg/codec"
)

func openTestBox(t *testing.T, opts Options) *Box {
	path := filepath.Join(t.TempDir(), "orders")
	b, err := Open(path, "orders", opts, codec.NewTypeRegistry(nil))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBox_PutGetRoundTrip(t *testing.T) {
	b := openTestBox(t, DefaultOptions())

	key, err := b.Put("alice", int64(42))
	require.NoError(t, err)
	assert.Equal(t, "alice", key)

	value, ok, err := b.Get("alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), value)
}

func TestBox_PutWithNilKeyAutoGenerates(t *testing.T) {
	b := openTestBox(t, DefaultOptions())

	k1, err := b.Put(nil, "a")
	require.NoError(t, err)
	k2, err := b.Put(nil, "b")
	require.NoError(t, err)

	assert.Equal(t, uint32(0), k1)
	assert.Equal(t, uint32(1), k2)
}

func TestBox_DeleteUnknownKeyIsNoopNoError(t *testing.T) {
	b := openTestBox(t, DefaultOptions())

	removed, err := b.Delete("ghost")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestBox_DeleteKnownKeyRemovesIt(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	_, err := b.Put("a", 1)
	require.NoError(t, err)

	removed, err := b.Delete("a")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err := b.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBox_LazyBoxReadsValueFromDisk(t *testing.T) {
	opts := DefaultOptions()
	opts.Lazy = true
	b := openTestBox(t, opts)

	_, err := b.Put("k", "a long value that is not cached in memory")
	require.NoError(t, err)

	value, ok, err := b.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a long value that is not cached in memory", value)
}

func TestBox_LazyBoxRejectsValuesAndToMap(t *testing.T) {
	opts := DefaultOptions()
	opts.Lazy = true
	b := openTestBox(t, opts)
	_, err := b.Put("k", "v")
	require.NoError(t, err)

	_, err = b.Values()
	assert.ErrorIs(t, err, boxerr.ErrUnsupportedOperation)

	_, err = b.ToMap()
	assert.ErrorIs(t, err, boxerr.ErrUnsupportedOperation)
}

func TestBox_GetAtReturnsKeysInOrder(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	_, err := b.Put("banana", 2)
	require.NoError(t, err)
	_, err = b.Put("apple", 1)
	require.NoError(t, err)

	key, value, ok, err := b.GetAt(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "apple", key)
	assert.Equal(t, 1, value)
}

func TestBox_ClearRemovesEverything(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	_, err := b.Put("a", 1)
	require.NoError(t, err)

	require.NoError(t, b.Clear())
	assert.Equal(t, 0, b.Len())
}

func TestBox_CompactKeepsOnlyLiveValues(t *testing.T) {
	opts := DefaultOptions()
	opts.CompactionStrategy = NeverCompact()
	b := openTestBox(t, opts)

	_, err := b.Put("a", 1)
	require.NoError(t, err)
	_, err = b.Put("a", 2)
	require.NoError(t, err)
	_, err = b.Put("b", 3)
	require.NoError(t, err)
	_, err = b.Delete("b")
	require.NoError(t, err)

	require.NoError(t, b.Compact())

	value, ok, err := b.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, value)

	_, ok, err = b.Get("b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, b.keys.DeletedCount())
}

func TestBox_AutoCompactionTriggersWhenDeletedRatioExceeded(t *testing.T) {
	opts := DefaultOptions()
	opts.CompactionStrategy = DeletedRatioStrategy(0.5)
	b := openTestBox(t, opts)

	_, err := b.Put("a", 1)
	require.NoError(t, err)
	_, err = b.Put("b", 2)
	require.NoError(t, err)
	_, err = b.Delete("b")
	require.NoError(t, err)

	assert.Equal(t, int64(1), b.backend.Stats.Compactions())
}

func TestBox_OperationsAfterCloseFail(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	require.NoError(t, b.Close())

	_, err := b.Put("a", 1)
	assert.ErrorIs(t, err, boxerr.ErrBoxClosed)
}

func TestBox_WatchAfterCloseFails(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	require.NoError(t, b.Close())

	handle, err := b.Watch(nil)
	assert.Nil(t, handle)
	assert.ErrorIs(t, err, boxerr.ErrBoxClosed)
}

func TestBox_WatchReceivesPutAndDeleteEvents(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	handle, err := b.Watch(nil)
	require.NoError(t, err)
	defer handle.Close()

	_, err = b.Put("a", 1)
	require.NoError(t, err)
	_, err = b.Delete("a")
	require.NoError(t, err)

	first := <-handle.Events()
	assert.Equal(t, "a", first.Key)
	assert.False(t, first.Deleted)

	second := <-handle.Events()
	assert.True(t, second.Deleted)
}

func TestBox_WatchFiltersByKey(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	handle, err := b.Watch("a")
	require.NoError(t, err)
	defer handle.Close()

	_, err = b.Put("b", 1)
	require.NoError(t, err)
	_, err = b.Put("a", 2)
	require.NoError(t, err)

	event := <-handle.Events()
	assert.Equal(t, "a", event.Key)
}

func TestBox_PutAllWritesEveryEntryInOneBatch(t *testing.T) {
	b := openTestBox(t, DefaultOptions())

	require.NoError(t, b.PutAll(map[any]any{
		"a": int64(1),
		"b": int64(2),
		"c": int64(3),
	}))

	assert.Equal(t, 3, b.Len())
	value, ok, err := b.Get("b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), value)
}

func TestBox_PutAllAutoGeneratesNilKeys(t *testing.T) {
	b := openTestBox(t, DefaultOptions())

	require.NoError(t, b.PutAll(map[any]any{
		nil: "a",
	}))

	assert.Equal(t, 1, b.Len())
}

func TestBox_DeleteAllRemovesOnlyKeysThatExisted(t *testing.T) {
	b := openTestBox(t, DefaultOptions())
	require.NoError(t, b.PutAll(map[any]any{
		"a": int64(1),
		"b": int64(2),
	}))

	n, err := b.DeleteAll([]any{"a", "b", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, b.Len())
}

func TestBox_DeleteAllWithNothingLiveIsNoop(t *testing.T) {
	b := openTestBox(t, DefaultOptions())

	n, err := b.DeleteAll([]any{"ghost1", "ghost2"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBox_EncryptedRoundTripSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secretbox")
	reg := codec.NewTypeRegistry(nil)
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	opts := DefaultOptions()
	opts.EncryptionKey = key

	b, err := Open(path, "secretbox", opts, reg)
	require.NoError(t, err)
	_, err = b.Put("a", int64(7))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b2, err := Open(path, "secretbox", opts, reg)
	require.NoError(t, err)
	defer b2.Close()

	value, ok, err := b2.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), value)
}

func TestBox_ReopenWithWrongEncryptionKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secretbox2")
	reg := codec.NewTypeRegistry(nil)
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	opts := DefaultOptions()
	opts.EncryptionKey = key

	b, err := Open(path, "secretbox2", opts, reg)
	require.NoError(t, err)
	_, err = b.Put("a", int64(7))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	wrongKey := make([]byte, 32)
	for i := range wrongKey {
		wrongKey[i] = byte(255 - i)
	}
	wrongOpts := DefaultOptions()
	wrongOpts.EncryptionKey = wrongKey
	wrongOpts.CrashRecovery = false

	_, err = Open(path, "secretbox2", wrongOpts, reg)
	assert.ErrorIs(t, err, boxerr.ErrCorruptBox)
}

func TestBox_RecoversKeystoreAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box")
	reg := codec.NewTypeRegistry(nil)

	b, err := Open(path, "box", DefaultOptions(), reg)
	require.NoError(t, err)
	_, err = b.Put("a", 1)
	require.NoError(t, err)
	_, err = b.Put("b", 2)
	require.NoError(t, err)
	_, err = b.Delete("a")
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b2, err := Open(path, "box", DefaultOptions(), reg)
	require.NoError(t, err)
	defer b2.Close()

	assert.Equal(t, 1, b2.Len())
	_, ok, err := b2.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
	value, ok, err := b2.Get("b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), value)
}
