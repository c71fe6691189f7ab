// Package frame implements the on-disk frame format: length-prefixed,
// CRC-checked records carrying a key and an optional value, plus the
// whole-file scan used to rebuild a keystore on open.
package frame

import "hash/crc32"

// checksum computes IEEE CRC32 over data, seeded with seed (0 for
// unencrypted boxes, the CRC32 of the encryption key otherwise — this is
// what makes a frame encrypted under the wrong key fail at CRC time rather
// than at decrypt time).
func checksum(seed uint32, data []byte) uint32 {
	// crc32.Update continues a running checksum from a prior state; seed 0
	// is the standard starting state, so this covers both the unencrypted
	// and the key-seeded case with one code path.
	return crc32.Update(seed, crc32.IEEETable, data)
}

// littleEndianUint32 decodes a u32 LE value at the given offset.
func littleEndianUint32(b []byte, offset int) uint32 {
	return uint32(b[offset]) | uint32(b[offset+1])<<8 | uint32(b[offset+2])<<16 | uint32(b[offset+3])<<24
}

// putLittleEndianUint32 encodes v as u32 LE at the given offset.
func putLittleEndianUint32(b []byte, offset int, v uint32) {
	b[offset] = byte(v)
	b[offset+1] = byte(v >> 8)
	b[offset+2] = byte(v >> 16)
	b[offset+3] = byte(v >> 24)
}
