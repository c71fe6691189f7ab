package box

import (
	"sync"

	"github.com/segmentio/ksuid"

	"boxdb/internal/frame"
	"boxdb/pkg/boxerr"
	"boxdb/pkg/keystore"
)

// shadowEntry is a transaction-local override of a key: either a pending
// write (deleted == false) or a pending delete (deleted == true).
type shadowEntry struct {
	value   any
	deleted bool
}

// Transaction buffers writes against a box and applies them as a single
// batched append on Commit, so a reader never observes a partially
// applied transaction. Overlapping commits against the same box are
// serialized by the box's commit mutex; transactions against different
// boxes never block each other.
type Transaction struct {
	box *Box
	id  ksuid.KSUID

	mu     sync.Mutex
	shadow map[any]*shadowEntry
	order  []any
	done   bool
}

// Begin opens a new transaction against box.
func Begin(b *Box) *Transaction {
	return &Transaction{
		box:    b,
		id:     ksuid.New(),
		shadow: make(map[any]*shadowEntry),
	}
}

// ID returns this transaction's unique, sortable identifier.
func (tx *Transaction) ID() ksuid.KSUID { return tx.id }

func (tx *Transaction) checkOpen() error {
	if tx.done {
		return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "transaction already committed or rolled back")
	}
	return nil
}

// Get reads key, preferring this transaction's own pending writes over
// what is currently committed in the box.
func (tx *Transaction) Get(key any) (any, bool, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return nil, false, err
	}

	nk, err := normalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	if entry, ok := tx.shadow[nk]; ok {
		if entry.deleted {
			return nil, false, nil
		}
		return entry.value, true, nil
	}
	return tx.box.Get(nk)
}

// Put stages a write, visible to this transaction immediately but not
// to the underlying box until Commit.
func (tx *Transaction) Put(key, value any) (any, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}

	nk, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	if nk == nil {
		nk = tx.box.keys.NextAutoKey()
	}
	tx.stage(nk, &shadowEntry{value: value})
	return nk, nil
}

// Delete stages a delete. Deleting a key unknown to both the
// transaction's shadow state and the underlying box is a no-op, same as
// Box.Delete.
func (tx *Transaction) Delete(key any) (bool, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return false, err
	}

	nk, err := normalizeKey(key)
	if err != nil {
		return false, err
	}
	if entry, ok := tx.shadow[nk]; ok {
		if entry.deleted {
			return false, nil
		}
		tx.stage(nk, &shadowEntry{deleted: true})
		return true, nil
	}

	_, existed, err := tx.box.Get(nk)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}
	tx.stage(nk, &shadowEntry{deleted: true})
	return true, nil
}

func (tx *Transaction) stage(key any, entry *shadowEntry) {
	if _, ok := tx.shadow[key]; !ok {
		tx.order = append(tx.order, key)
	}
	tx.shadow[key] = entry
}

// Commit applies every staged write and delete to the underlying box as
// one batch: a single call to the storage backend's WriteFrames, a
// single pass updating the keystore, and one notifier event per key.
func (tx *Transaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.done = true
	if len(tx.order) == 0 {
		return nil
	}

	tx.box.commitMu.Lock()
	defer tx.box.commitMu.Unlock()

	tx.box.mu.Lock()
	defer tx.box.mu.Unlock()
	if err := tx.box.checkOpen(); err != nil {
		return err
	}

	var frames []*frame.Frame
	var deletedKeys []any
	for _, key := range tx.order {
		entry := tx.shadow[key]
		if entry.deleted {
			if !tx.box.keys.Contains(key) {
				continue
			}
			frames = append(frames, frame.NewTombstone(key))
			deletedKeys = append(deletedKeys, key)
			continue
		}
		frames = append(frames, frame.NewFrame(key, entry.value))
	}

	if len(frames) == 0 {
		return nil
	}

	written, err := tx.box.backend.WriteFrames(frames)
	if err != nil {
		return err
	}

	for _, f := range written {
		if !f.HasValue {
			tx.box.keys.Delete(f.Key)
			tx.box.notifier.publish(ChangeEvent{Key: f.Key, Deleted: true})
			continue
		}
		boxEntry := &keystore.BoxEntry{Offset: f.Offset, Length: f.Length}
		if !tx.box.opts.Lazy {
			boxEntry.Value = f.Value
		}
		tx.box.keys.Put(f.Key, boxEntry)
		tx.box.notifier.publish(ChangeEvent{Key: f.Key, Value: f.Value})
	}

	tx.box.maybeCompactLocked()
	return nil
}

// Rollback discards every staged write without touching the box.
func (tx *Transaction) Rollback() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.done = true
	tx.shadow = nil
	tx.order = nil
}
