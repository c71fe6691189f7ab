// Package storage owns a box's files on disk: the append-only log, the
// advisory lock that keeps two processes from opening it at once, and
// the copy-and-rename dance compaction uses to rewrite the log safely.
package storage

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"boxdb/internal/frame"
	"boxdb/pkg/boxerr"
	"boxdb/pkg/codec"
)

const (
	logSuffix        = ".hive"
	compactionSuffix = ".hivec"
	lockSuffix       = ".lock"
)

// Backend is the on-disk half of a box: a single append-only log file,
// guarded by an advisory lock, with enough bookkeeping to serve both
// sequential recovery scans and positional reads for lazy boxes.
type Backend struct {
	basePath string

	registry *codec.TypeRegistry
	crypto   *frame.Crypto

	lockFile *os.File

	writeMu sync.Mutex
	logFile *os.File
	writer  *bufio.Writer
	size    int64

	readMu sync.Mutex

	Stats Stats
}

func (b *Backend) logPath() string        { return b.basePath + logSuffix }
func (b *Backend) compactionPath() string { return b.basePath + compactionSuffix }
func (b *Backend) lockPath() string       { return b.basePath + lockSuffix }

// Open locks and opens the box log rooted at basePath (no extension),
// recovering from a crash if one is detected. It returns the backend and
// every frame in the recovered log, in file order, so the caller can
// rebuild its keystore. lazy controls whether frame values are parsed
// eagerly during this initial scan. crashRecovery controls what happens
// when the scan finds trailing garbage: true truncates it away and opens
// anyway, false fails the open with boxerr.ErrCorruptBox.
func Open(basePath string, registry *codec.TypeRegistry, crypto *frame.Crypto, lazy, crashRecovery bool) (*Backend, []*frame.Frame, error) {
	b := &Backend{basePath: basePath, registry: registry, crypto: crypto}

	lockFile, err := acquireLock(b.lockPath())
	if err != nil {
		return nil, nil, err
	}
	b.lockFile = lockFile

	if err := b.resolveCompactionCrash(); err != nil {
		releaseLock(b.lockFile)
		return nil, nil, err
	}

	logFile, err := os.OpenFile(b.logPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		releaseLock(b.lockFile)
		return nil, nil, boxerr.WrapIO(err)
	}
	b.logFile = logFile

	frames, recoveryOffset, err := b.scan(lazy)
	if err != nil {
		logFile.Close()
		releaseLock(b.lockFile)
		return nil, nil, err
	}

	if recoveryOffset >= 0 {
		if !crashRecovery {
			logFile.Close()
			releaseLock(b.lockFile)
			return nil, nil, boxerr.Wrap(boxerr.ErrCorruptBox, b.logPath())
		}
		log.Printf("boxdb: recovered %s, truncating trailing garbage at offset %d", b.logPath(), recoveryOffset)
		if err := b.logFile.Truncate(recoveryOffset); err != nil {
			logFile.Close()
			releaseLock(b.lockFile)
			return nil, nil, boxerr.WrapIO(err)
		}
		b.size = recoveryOffset
	} else {
		info, err := b.logFile.Stat()
		if err != nil {
			logFile.Close()
			releaseLock(b.lockFile)
			return nil, nil, boxerr.WrapIO(err)
		}
		b.size = info.Size()
	}

	if _, err := b.logFile.Seek(0, io.SeekEnd); err != nil {
		logFile.Close()
		releaseLock(b.lockFile)
		return nil, nil, boxerr.WrapIO(err)
	}
	b.writer = bufio.NewWriter(b.logFile)

	return b, frames, nil
}

// resolveCompactionCrash implements the two-file recovery pivot: if both
// .hive and .hivec exist, compaction crashed after writing .hivec but
// before the rename completed, so the old .hive is the source of truth
// and .hivec is discarded. If only .hivec exists, the rename is what
// crashed partway through (it had already removed .hive), so the new
// .hivec is the source of truth and is promoted in its place.
func (b *Backend) resolveCompactionCrash() error {
	_, compErr := os.Stat(b.compactionPath())
	if compErr != nil {
		if os.IsNotExist(compErr) {
			return nil
		}
		return boxerr.WrapIO(compErr)
	}

	_, hiveErr := os.Stat(b.logPath())
	if hiveErr != nil && !os.IsNotExist(hiveErr) {
		return boxerr.WrapIO(hiveErr)
	}

	if hiveErr == nil {
		log.Printf("boxdb: discarding orphaned compaction file %s, %s is the source of truth", b.compactionPath(), b.logPath())
		return boxerr.WrapIO(os.Remove(b.compactionPath()))
	}

	if err := os.Rename(b.compactionPath(), b.logPath()); err != nil {
		return boxerr.WrapIO(err)
	}
	log.Printf("boxdb: promoted crash-orphaned compaction file %s over %s", b.compactionPath(), b.logPath())
	return nil
}

func (b *Backend) scan(lazy bool) ([]*frame.Frame, int64, error) {
	if _, err := b.logFile.Seek(0, io.SeekStart); err != nil {
		return nil, 0, boxerr.WrapIO(err)
	}
	var frames []*frame.Frame
	recoveryOffset, err := frame.ScanFile(b.logFile, b.registry, b.crypto, lazy, func(f *frame.Frame) {
		frames = append(frames, f)
	})
	if err != nil {
		return nil, 0, boxerr.WrapIO(err)
	}
	return frames, recoveryOffset, nil
}

// WriteFrames appends frames to the log as a single batch, syncing once
// at the end. Each frame's Offset field is stamped with its position in
// the log before it is returned in the result slice, so callers can
// update their keystore with exact offset/length pairs.
func (b *Backend) WriteFrames(frames []*frame.Frame) ([]*frame.Frame, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	startSize := b.size

	written := make([]*frame.Frame, 0, len(frames))
	for _, f := range frames {
		data, err := f.Encode(b.registry, b.crypto)
		if err != nil {
			return nil, b.truncateToOnFailure(startSize, err)
		}
		f.Offset = b.size
		f.Length = uint32(len(data))

		if _, err := b.writer.Write(data); err != nil {
			return nil, b.truncateToOnFailure(startSize, boxerr.WrapIO(err))
		}
		b.size += int64(len(data))
		written = append(written, f)
	}

	if err := b.writer.Flush(); err != nil {
		return nil, b.truncateToOnFailure(startSize, boxerr.WrapIO(err))
	}
	if err := b.logFile.Sync(); err != nil {
		return nil, b.truncateToOnFailure(startSize, boxerr.WrapIO(err))
	}
	return written, nil
}

// truncateToOnFailure rolls the log back to writeOffset after a failed
// write, so a partially-appended frame never lingers in the file, then
// returns the original error (truncation failures are logged, not
// layered on top of the error the caller actually needs to see).
func (b *Backend) truncateToOnFailure(writeOffset int64, cause error) error {
	if err := b.logFile.Truncate(writeOffset); err != nil {
		log.Printf("boxdb: failed to truncate %s back to offset %d after a write error: %v", b.logPath(), writeOffset, err)
	} else if _, err := b.logFile.Seek(writeOffset, io.SeekStart); err != nil {
		log.Printf("boxdb: failed to reseek %s to offset %d after truncation: %v", b.logPath(), writeOffset, err)
	} else {
		b.writer = bufio.NewWriter(b.logFile)
	}
	b.size = writeOffset
	return cause
}

// ReadValue fetches the raw length bytes at offset and decodes them as a
// single frame, used by lazy boxes to resolve a value on demand.
func (b *Backend) ReadValue(offset int64, length uint32) (*frame.Frame, error) {
	b.readMu.Lock()
	defer b.readMu.Unlock()

	buf := make([]byte, length)
	if _, err := b.logFile.ReadAt(buf, offset); err != nil {
		return nil, boxerr.WrapIO(err)
	}
	return frame.Decode(buf, offset, b.registry, b.crypto, false)
}

// Compact rewrites the log to contain exactly liveFrames, in order, via
// write-to-sibling-then-rename so a crash mid-compaction leaves either
// the old log or the new one intact, never a half-written file.
func (b *Backend) Compact(liveFrames []*frame.Frame, framesBefore int) ([]*frame.Frame, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	bytesBefore := b.size

	compFile, err := os.OpenFile(b.compactionPath(), os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, boxerr.WrapIO(err)
	}

	w := bufio.NewWriter(compFile)
	var offset int64
	rewritten := make([]*frame.Frame, 0, len(liveFrames))
	for _, f := range liveFrames {
		live := frame.NewFrame(f.Key, f.Value)
		data, err := live.Encode(b.registry, b.crypto)
		if err != nil {
			compFile.Close()
			os.Remove(b.compactionPath())
			return nil, err
		}
		live.Offset = offset
		live.Length = uint32(len(data))
		if _, err := w.Write(data); err != nil {
			compFile.Close()
			os.Remove(b.compactionPath())
			return nil, boxerr.WrapIO(err)
		}
		offset += int64(len(data))
		rewritten = append(rewritten, live)
	}

	if err := w.Flush(); err != nil {
		compFile.Close()
		os.Remove(b.compactionPath())
		return nil, boxerr.WrapIO(err)
	}
	if err := compFile.Sync(); err != nil {
		compFile.Close()
		os.Remove(b.compactionPath())
		return nil, boxerr.WrapIO(err)
	}
	if err := compFile.Close(); err != nil {
		os.Remove(b.compactionPath())
		return nil, boxerr.WrapIO(err)
	}

	if err := b.logFile.Close(); err != nil {
		return nil, boxerr.WrapIO(err)
	}
	if err := os.Rename(b.compactionPath(), b.logPath()); err != nil {
		// The old .hive is untouched by a failed rename; reopen it so the
		// backend is left exactly as it was before this call, at
		// writeOffset bytesBefore, rather than holding a closed handle.
		if reopenErr := b.reopenLogFile(); reopenErr != nil {
			log.Printf("boxdb: failed to reopen %s after a failed compaction rename: %v", b.logPath(), reopenErr)
		}
		return nil, boxerr.WrapIO(err)
	}

	if err := b.reopenLogFile(); err != nil {
		return nil, boxerr.WrapIO(err)
	}
	b.size = offset

	b.Stats.RecordCompaction(bytesBefore, b.size, framesBefore, len(rewritten))
	log.Printf("boxdb: compacted %s: %d -> %d bytes, %d -> %d frames", b.logPath(), bytesBefore, b.size, framesBefore, len(rewritten))

	return rewritten, nil
}

// reopenLogFile (re)opens .hive for read/write, seeks to its end, and
// installs a fresh buffered writer. Used both on the success path after
// compaction's rename and to restore a usable handle when the rename
// itself fails.
func (b *Backend) reopenLogFile() error {
	logFile, err := os.OpenFile(b.logPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	if _, err := logFile.Seek(0, io.SeekEnd); err != nil {
		logFile.Close()
		return err
	}
	b.logFile = logFile
	b.writer = bufio.NewWriter(b.logFile)
	return nil
}

// Clear truncates the log to empty, used when a box's Clear operation
// drops every key without deleting the box itself.
func (b *Backend) Clear() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.logFile.Truncate(0); err != nil {
		return boxerr.WrapIO(err)
	}
	if _, err := b.logFile.Seek(0, io.SeekStart); err != nil {
		return boxerr.WrapIO(err)
	}
	b.writer = bufio.NewWriter(b.logFile)
	b.size = 0
	return nil
}

// Size reports the current log size in bytes.
func (b *Backend) Size() int64 {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.size
}

// Close flushes and releases the log file and the lock.
func (b *Backend) Close() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.writer.Flush(); err != nil {
		return boxerr.WrapIO(err)
	}
	if err := b.logFile.Close(); err != nil {
		return boxerr.WrapIO(err)
	}
	return releaseLock(b.lockFile)
}

// DeleteFromDisk closes the backend and removes every file belonging to
// this box: the log, a stray compaction file if one exists, and the
// lock.
func (b *Backend) DeleteFromDisk() error {
	if err := b.Close(); err != nil {
		return err
	}
	for _, p := range []string{b.logPath(), b.compactionPath(), b.lockPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return boxerr.WrapIO(fmt.Errorf("remove %s: %w", p, err))
		}
	}
	return nil
}
