package frame

import (
	"bufio"
	"io"

	"boxdb/pkg/codec"
)

// ScanFile walks a box log sequentially, calling onFrame for each
// successfully decoded frame (tombstones included — callers distinguish
// via Frame.HasValue). It returns the byte offset of the first
// unrecoverable frame so the caller can truncate there, or -1 if the
// entire stream decoded cleanly. lazy controls whether values are parsed
// (framesFromFile, eager boxes) or skipped (keysFromFile, lazy boxes) —
// either way every frame's key and tombstone-ness is reported.
func ScanFile(r io.Reader, registry *codec.TypeRegistry, crypto *Crypto, lazy bool, onFrame func(*Frame)) (recoveryOffset int64, err error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var offset int64

	for {
		header := make([]byte, headerLen)
		n, rerr := io.ReadFull(br, header)
		if rerr == io.EOF && n == 0 {
			return -1, nil
		}
		if rerr != nil {
			// Partial header: the writer was interrupted mid-frame.
			return offset, nil
		}

		total := littleEndianUint32(header, 0)
		if total < headerLen+crcLen+1 {
			return offset, nil
		}

		rest := make([]byte, int(total)-headerLen)
		if _, rerr := io.ReadFull(br, rest); rerr != nil {
			return offset, nil
		}

		full := make([]byte, total)
		copy(full, header)
		copy(full[headerLen:], rest)

		fr, derr := Decode(full, offset, registry, crypto, lazy)
		if derr != nil {
			return offset, nil
		}

		onFrame(fr)
		offset += int64(total)
	}
}
