// Package box implements the named, file-backed key/value container on
// top of internal/frame (wire format) and pkg/storage (the log file).
package box

import (
	"math/rand"
	"sync"
	"time"

	"boxdb/internal/frame"
	"boxdb/pkg/boxerr"
	"boxdb/pkg/boxmetrics"
	"boxdb/pkg/codec"
	"boxdb/pkg/keystore"
	"boxdb/pkg/storage"
)

// Box is a single named store: an append-only log on disk, an in-memory
// keystore indexing it, and a change notifier broadcasting every
// mutation. Reads and writes are safe for concurrent use.
type Box struct {
	name     string
	opts     Options
	registry *codec.TypeRegistry
	crypto   *frame.Crypto

	mu       sync.RWMutex
	commitMu sync.Mutex
	backend  *storage.Backend
	keys     *keystore.Keystore
	notifier *notifier
	metrics  *boxmetrics.Metrics
	closed   bool

	sinceCompaction int
}

// Open opens (creating if necessary) the box log at path, recovering
// from any crash and rebuilding the keystore from the recovered frames.
func Open(path, name string, opts Options, registry *codec.TypeRegistry) (*Box, error) {
	var crypto *frame.Crypto
	if len(opts.EncryptionKey) > 0 {
		c, err := frame.NewCrypto(opts.EncryptionKey)
		if err != nil {
			return nil, err
		}
		crypto = c
	}

	backend, frames, err := storage.Open(path, registry, crypto, opts.Lazy, opts.CrashRecovery)
	if err != nil {
		return nil, err
	}

	b := &Box{
		name:     name,
		opts:     opts,
		registry: registry,
		crypto:   crypto,
		backend:  backend,
		keys:     keystore.New(rand.New(rand.NewSource(time.Now().UnixNano()))),
		notifier: newNotifier(opts.Metrics, name),
		metrics:  opts.Metrics,
	}

	for _, f := range frames {
		if !f.HasValue {
			b.keys.Delete(f.Key)
			continue
		}
		entry := &keystore.BoxEntry{Offset: f.Offset, Length: f.Length}
		if !opts.Lazy {
			entry.Value = f.Value
		}
		b.keys.Put(f.Key, entry)
	}

	return b, nil
}

func (b *Box) checkOpen() error {
	if b.closed {
		return boxerr.ErrBoxClosed
	}
	return nil
}

// timeOp starts a metrics timer for operation, returning a func to stop
// it and record success/failure based on *err's final value. A no-op
// when the box has no metrics configured.
func (b *Box) timeOp(operation string) func(err *error) {
	if b.metrics == nil {
		return func(*error) {}
	}
	stop := b.metrics.Timer(b.name, operation)
	return func(err *error) { stop(*err == nil) }
}

func normalizeKey(key any) (any, error) {
	switch k := key.(type) {
	case nil:
		return nil, nil
	case uint32:
		return k, nil
	case int:
		if k < 0 {
			return nil, boxerr.Wrap(boxerr.ErrUnsupportedOperation, "integer key must be non-negative")
		}
		return uint32(k), nil
	case int64:
		if k < 0 {
			return nil, boxerr.Wrap(boxerr.ErrUnsupportedOperation, "integer key must be non-negative")
		}
		return uint32(k), nil
	case string:
		if len(k) < 1 || len(k) > 255 {
			return nil, boxerr.Wrap(boxerr.ErrUnsupportedOperation, "string key must be 1-255 bytes")
		}
		return k, nil
	default:
		return nil, boxerr.Wrap(boxerr.ErrUnsupportedOperation, "unsupported key type")
	}
}

// Get returns the value stored for key.
func (b *Box) Get(key any) (value any, ok bool, err error) {
	defer b.timeOp("get")(&err)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err = b.checkOpen(); err != nil {
		return nil, false, err
	}

	nk, err := normalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	return b.resolve(nk)
}

// GetAt returns the index-th (0-based) key/value pair in key order.
func (b *Box) GetAt(index int) (any, any, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return nil, nil, false, err
	}

	key, entry, ok := b.keys.GetAt(index)
	if !ok {
		return nil, nil, false, nil
	}
	value, err := b.resolveEntry(entry)
	if err != nil {
		return nil, nil, false, err
	}
	return key, value, true, nil
}

func (b *Box) resolve(key any) (any, bool, error) {
	entry, ok := b.keys.Get(key)
	if !ok {
		return nil, false, nil
	}
	value, err := b.resolveEntry(entry)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (b *Box) resolveEntry(entry *keystore.BoxEntry) (any, error) {
	if !b.opts.Lazy {
		return entry.Value, nil
	}
	f, err := b.backend.ReadValue(entry.Offset, entry.Length)
	if err != nil {
		return nil, err
	}
	return f.Value, nil
}

// Put stores value under key, auto-generating an integer key if key is
// nil. It returns the key actually used.
func (b *Box) Put(key, value any) (usedKey any, err error) {
	defer b.timeOp("put")(&err)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err = b.checkOpen(); err != nil {
		return nil, err
	}

	nk, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	if nk == nil {
		nk = b.keys.NextAutoKey()
	}

	written, err := b.backend.WriteFrames([]*frame.Frame{frame.NewFrame(nk, value)})
	if err != nil {
		return nil, err
	}

	entry := &keystore.BoxEntry{Offset: written[0].Offset, Length: written[0].Length}
	if !b.opts.Lazy {
		entry.Value = value
	}
	b.keys.Put(nk, entry)
	b.notifier.publish(ChangeEvent{Key: nk, Value: value})
	b.maybeCompactLocked()
	return nk, nil
}

// PutAll stores every key/value pair in entries as a single batched
// write, auto-generating a key for any nil key present.
func (b *Box) PutAll(entries map[any]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}

	frames := make([]*frame.Frame, 0, len(entries))
	keys := make([]any, 0, len(entries))
	values := make([]any, 0, len(entries))
	for key, value := range entries {
		nk, err := normalizeKey(key)
		if err != nil {
			return err
		}
		if nk == nil {
			nk = b.keys.NextAutoKey()
		}
		frames = append(frames, frame.NewFrame(nk, value))
		keys = append(keys, nk)
		values = append(values, value)
	}

	written, err := b.backend.WriteFrames(frames)
	if err != nil {
		return err
	}

	for i, f := range written {
		entry := &keystore.BoxEntry{Offset: f.Offset, Length: f.Length}
		if !b.opts.Lazy {
			entry.Value = values[i]
		}
		b.keys.Put(keys[i], entry)
		b.notifier.publish(ChangeEvent{Key: keys[i], Value: values[i]})
	}
	b.maybeCompactLocked()
	return nil
}

// Delete removes key. Deleting a key that is not present is a no-op: no
// tombstone frame is written and false is returned.
func (b *Box) Delete(key any) (deleted bool, err error) {
	defer b.timeOp("delete")(&err)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err = b.checkOpen(); err != nil {
		return false, err
	}

	nk, err := normalizeKey(key)
	if err != nil {
		return false, err
	}
	if !b.keys.Contains(nk) {
		return false, nil
	}

	if _, err := b.backend.WriteFrames([]*frame.Frame{frame.NewTombstone(nk)}); err != nil {
		return false, err
	}
	b.keys.Delete(nk)
	b.sinceCompaction++
	b.notifier.publish(ChangeEvent{Key: nk, Deleted: true})
	b.maybeCompactLocked()
	return true, nil
}

// DeleteAll removes every key in keys present in the box, as a single
// batched write of tombstones for just the keys that existed.
func (b *Box) DeleteAll(keys []any) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return 0, err
	}

	var frames []*frame.Frame
	var live []any
	for _, key := range keys {
		nk, err := normalizeKey(key)
		if err != nil {
			return 0, err
		}
		if b.keys.Contains(nk) {
			frames = append(frames, frame.NewTombstone(nk))
			live = append(live, nk)
		}
	}
	if len(frames) == 0 {
		return 0, nil
	}

	if _, err := b.backend.WriteFrames(frames); err != nil {
		return 0, err
	}
	for _, nk := range live {
		b.keys.Delete(nk)
		b.sinceCompaction++
		b.notifier.publish(ChangeEvent{Key: nk, Deleted: true})
	}
	b.maybeCompactLocked()
	return len(live), nil
}

// Clear removes every key without deleting the box itself.
func (b *Box) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	if err := b.backend.Clear(); err != nil {
		return err
	}
	b.keys.Clear(rand.New(rand.NewSource(time.Now().UnixNano())))
	b.sinceCompaction = 0
	return nil
}

// Len returns the number of live keys.
func (b *Box) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.keys.Len()
}

// Stats summarizes a box's key count, on-disk size, and compaction
// history, used by diagnostics commands and the metrics exporter.
type Stats struct {
	LiveKeys        int
	DeletedPending  int
	SizeBytes       int64
	Compactions     int64
	BytesReclaimed  int64
	FramesDiscarded int64
}

// Stats snapshots the box's current statistics.
func (b *Box) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		LiveKeys:        b.keys.Len(),
		DeletedPending:  b.keys.DeletedCount(),
		SizeBytes:       b.backend.Size(),
		Compactions:     b.backend.Stats.Compactions(),
		BytesReclaimed:  b.backend.Stats.BytesReclaimed(),
		FramesDiscarded: b.backend.Stats.FramesDiscarded(),
	}
}

// Values returns every live value, in key order. Unsupported on lazy
// boxes, where materializing every value would mean reading the whole
// log off disk on every call.
func (b *Box) Values() ([]any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if b.opts.Lazy {
		return nil, boxerr.Wrap(boxerr.ErrUnsupportedOperation, "Values is unsupported on a lazy box")
	}
	values := make([]any, 0, b.keys.Len())
	b.keys.ForEach(func(_ any, entry *keystore.BoxEntry) bool {
		values = append(values, entry.Value)
		return true
	})
	return values, nil
}

// ToMap snapshots every live key/value pair. Unsupported on lazy boxes
// for the same reason as Values.
func (b *Box) ToMap() (map[any]any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if b.opts.Lazy {
		return nil, boxerr.Wrap(boxerr.ErrUnsupportedOperation, "ToMap is unsupported on a lazy box")
	}
	out := make(map[any]any, b.keys.Len())
	b.keys.ForEach(func(key any, entry *keystore.BoxEntry) bool {
		out[key] = entry.Value
		return true
	})
	return out, nil
}

// Compact rewrites the log to contain only live keys, reclaiming the
// space held by superseded and deleted entries.
func (b *Box) Compact() (err error) {
	defer b.timeOp("compact")(&err)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compactLocked()
}

func (b *Box) compactLocked() error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	liveFrames := make([]*frame.Frame, 0, b.keys.Len())
	var resolveErr error
	b.keys.ForEach(func(key any, entry *keystore.BoxEntry) bool {
		value, err := b.resolveEntry(entry)
		if err != nil {
			resolveErr = err
			return false
		}
		liveFrames = append(liveFrames, frame.NewFrame(key, value))
		return true
	})
	if resolveErr != nil {
		return resolveErr
	}

	framesBefore := b.keys.Len() + b.keys.DeletedCount()
	bytesBefore := b.backend.Size()
	rewritten, err := b.backend.Compact(liveFrames, framesBefore)
	if err != nil {
		return err
	}

	for _, f := range rewritten {
		entry, ok := b.keys.Get(f.Key)
		if !ok {
			continue
		}
		entry.Offset = f.Offset
		entry.Length = f.Length
	}
	b.keys.ResetDeletedCount()
	b.sinceCompaction = 0
	if b.metrics != nil {
		b.metrics.RecordCompaction(b.name, bytesBefore-b.backend.Size())
	}
	return nil
}

func (b *Box) maybeCompactLocked() {
	if b.opts.CompactionStrategy == nil {
		return
	}
	if b.opts.CompactionStrategy(b.keys.Len(), b.keys.DeletedCount()) {
		_ = b.compactLocked()
	}
}

// Watch subscribes to change events. If key is nil, every mutation in
// the box is delivered; otherwise only ones affecting key are. Fails
// with boxerr.ErrBoxClosed once the box has been closed.
func (b *Box) Watch(key any) (*watchHandle, error) {
	return b.notifier.watch(key)
}

// Close flushes and releases the box's resources. It does not delete
// anything on disk.
func (b *Box) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.notifier.close()
	return b.backend.Close()
}

// DeleteFromDisk closes the box and removes every file it owns.
func (b *Box) DeleteFromDisk() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return boxerr.ErrBoxClosed
	}
	b.closed = true
	b.notifier.close()
	return b.backend.DeleteFromDisk()
}
