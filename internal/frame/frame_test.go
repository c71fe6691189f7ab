package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxdb/pkg/codec"
)

func TestFrame_RoundTrip_StringKey(t *testing.T) {
	reg := codec.NewTypeRegistry(nil)
	f := NewFrame("hello", "world")

	data, err := f.Encode(reg, nil)
	require.NoError(t, err)

	got, err := Decode(data, 0, reg, nil, false)
	require.NoError(t, err)

	assert.Equal(t, "hello", got.Key)
	assert.Equal(t, "world", got.Value)
	assert.True(t, got.HasValue)
	assert.Equal(t, uint32(len(data)), got.Length)
}

func TestFrame_RoundTrip_UintKey(t *testing.T) {
	reg := codec.NewTypeRegistry(nil)
	f := NewFrame(uint32(7), int64(99))

	data, err := f.Encode(reg, nil)
	require.NoError(t, err)

	got, err := Decode(data, 0, reg, nil, false)
	require.NoError(t, err)

	assert.Equal(t, uint32(7), got.Key)
	assert.Equal(t, int64(99), got.Value)
}

func TestFrame_Tombstone(t *testing.T) {
	reg := codec.NewTypeRegistry(nil)
	f := NewTombstone("deleted")

	data, err := f.Encode(reg, nil)
	require.NoError(t, err)

	got, err := Decode(data, 0, reg, nil, false)
	require.NoError(t, err)

	assert.False(t, got.HasValue)
	assert.Equal(t, "deleted", got.Key)
}

func TestFrame_LazyDecode_SkipsValue(t *testing.T) {
	reg := codec.NewTypeRegistry(nil)
	f := NewFrame("k", []byte{1, 2, 3, 4, 5})

	data, err := f.Encode(reg, nil)
	require.NoError(t, err)

	got, err := Decode(data, 42, reg, nil, true)
	require.NoError(t, err)

	assert.Equal(t, "k", got.Key)
	assert.True(t, got.HasValue)
	assert.False(t, got.ValueLoaded)
	assert.Nil(t, got.Value)
	assert.Equal(t, int64(42), got.Offset)
}

func TestFrame_CRCMismatchIsCorrupt(t *testing.T) {
	reg := codec.NewTypeRegistry(nil)
	f := NewFrame("k", "v")

	data, err := f.Encode(reg, nil)
	require.NoError(t, err)

	data[len(data)-1] ^= 0xFF // flip a CRC byte

	_, err = Decode(data, 0, reg, nil, false)
	assert.Error(t, err)
}

func TestFrame_EncryptedRoundTrip(t *testing.T) {
	reg := codec.NewTypeRegistry(nil)
	key := bytes.Repeat([]byte{0x11}, 32)
	crypto, err := NewCrypto(key)
	require.NoError(t, err)

	f := NewFrame("secret", []int64{1, 2, 3})
	data, err := f.Encode(reg, crypto)
	require.NoError(t, err)

	got, err := Decode(data, 0, reg, crypto, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got.Value)

	// Decrypting with a different key must fail at CRC time.
	wrongKey := bytes.Repeat([]byte{0x22}, 32)
	wrongCrypto, err := NewCrypto(wrongKey)
	require.NoError(t, err)

	_, err = Decode(data, 0, reg, wrongCrypto, false)
	assert.Error(t, err)
}

func TestFrame_StringKeyTooLong(t *testing.T) {
	reg := codec.NewTypeRegistry(nil)
	longKey := string(bytes.Repeat([]byte{'a'}, 256))
	f := NewFrame(longKey, "v")

	_, err := f.Encode(reg, nil)
	assert.Error(t, err)
}
