package frame

import (
	"boxdb/pkg/boxerr"
	"boxdb/pkg/codec"
)

const (
	keyTypeUint32 byte = 0x00
	keyTypeString byte = 0x01

	headerLen = 4 // length prefix
	crcLen    = 4
)

// Frame is a single self-contained record: a key, an optional value (its
// absence is a tombstone), and the length/offset metadata needed to
// re-locate it on disk. Key is either uint32 or string, matching the two
// key types the box API accepts.
type Frame struct {
	Key   any
	Value any

	// HasValue is false for a tombstone frame.
	HasValue bool
	// ValueLoaded is false when Decode ran in lazy mode: the frame's key
	// and tombstone-ness are known, but Value was never parsed off disk.
	ValueLoaded bool

	Offset int64
	Length uint32
}

// NewFrame builds a live (non-tombstone) frame.
func NewFrame(key, value any) *Frame {
	return &Frame{Key: key, Value: value, HasValue: true, ValueLoaded: true}
}

// NewTombstone builds a frame encoding the deletion of key.
func NewTombstone(key any) *Frame {
	return &Frame{Key: key, HasValue: false, ValueLoaded: true}
}

func validateKey(key any) error {
	switch k := key.(type) {
	case uint32:
		return nil
	case string:
		if len(k) < 1 || len(k) > 255 {
			return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "string key must be 1-255 ASCII bytes")
		}
		return nil
	default:
		return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "key must be uint32 or string")
	}
}

// Encode serializes the frame, patching in length and CRC once the body
// is known. When crypto is non-nil the value block is AES-256-CBC
// encrypted (IV-prefixed) and the CRC is seeded with crypto.KeyCRC;
// otherwise the seed is 0.
func (f *Frame) Encode(registry *codec.TypeRegistry, crypto *Crypto) ([]byte, error) {
	if err := validateKey(f.Key); err != nil {
		return nil, err
	}

	buf := make([]byte, headerLen) // length placeholder, patched below

	switch k := f.Key.(type) {
	case uint32:
		buf = append(buf, keyTypeUint32)
		var tmp [4]byte
		putLittleEndianUint32(tmp[:], 0, k)
		buf = append(buf, tmp[:]...)
	case string:
		buf = append(buf, keyTypeString, byte(len(k)))
		buf = append(buf, k...)
	}

	if f.HasValue {
		vw := codec.NewWriter(registry)
		if err := vw.Write(f.Value); err != nil {
			return nil, err
		}
		payload := vw.Bytes()

		if crypto != nil {
			ciphertext, err := crypto.Encrypt(payload)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ciphertext...)
		} else {
			buf = append(buf, payload...)
		}
	}

	buf = append(buf, make([]byte, crcLen)...) // CRC placeholder

	total := len(buf)
	putLittleEndianUint32(buf, 0, uint32(total))

	seed := uint32(0)
	if crypto != nil {
		seed = crypto.KeyCRC
	}
	crc := checksum(seed, buf[:total-crcLen])
	putLittleEndianUint32(buf, total-crcLen, crc)

	return buf, nil
}

// Decode parses one frame out of data (which must contain at least the
// full frame — callers scanning a file supply exactly length bytes, or
// more and rely on the returned Length to know how much was consumed).
// When lazy is true, the value block is left unparsed: Frame.ValueLoaded
// is false and Value is nil, but HasValue (tombstone-ness) is still
// accurate. offset is stamped onto the returned frame for the caller's
// bookkeeping; it does not affect decoding.
func Decode(data []byte, offset int64, registry *codec.TypeRegistry, crypto *Crypto, lazy bool) (*Frame, error) {
	if len(data) < headerLen+crcLen {
		return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "short read for frame header")
	}

	total := littleEndianUint32(data, 0)
	if int(total) > len(data) || total < headerLen+crcLen+1 {
		return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "invalid frame length")
	}

	body := data[:total]
	expectedCRC := littleEndianUint32(body, int(total)-crcLen)

	seed := uint32(0)
	if crypto != nil {
		seed = crypto.KeyCRC
	}
	actualCRC := checksum(seed, body[:total-crcLen])
	if actualCRC != expectedCRC {
		return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "CRC mismatch")
	}

	pos := headerLen
	if pos >= len(body) {
		return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "truncated key block")
	}
	keyType := body[pos]
	pos++

	var key any
	switch keyType {
	case keyTypeUint32:
		if pos+4 > len(body) {
			return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "truncated uint key")
		}
		key = littleEndianUint32(body, pos)
		pos += 4
	case keyTypeString:
		if pos >= len(body) {
			return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "truncated string key length")
		}
		klen := int(body[pos])
		pos++
		if klen == 0 || pos+klen > len(body) {
			return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "truncated string key")
		}
		key = string(body[pos : pos+klen])
		pos += klen
	default:
		return nil, boxerr.Wrap(boxerr.ErrCorruptFrame, "unknown key type tag")
	}

	valueBytes := body[pos : len(body)-crcLen]

	f := &Frame{Key: key, Offset: offset, Length: total}

	if len(valueBytes) == 0 {
		f.HasValue = false
		f.ValueLoaded = true
		return f, nil
	}

	f.HasValue = true
	if lazy {
		f.ValueLoaded = false
		return f, nil
	}

	plaintext := valueBytes
	if crypto != nil {
		var err error
		plaintext, err = crypto.Decrypt(valueBytes)
		if err != nil {
			return nil, err
		}
	}

	vr := codec.NewReader(plaintext, registry)
	value, err := vr.Read()
	if err != nil {
		return nil, err
	}
	f.Value = value
	f.ValueLoaded = true
	return f, nil
}
