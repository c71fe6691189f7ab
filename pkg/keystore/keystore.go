package keystore

import (
	"fmt"
	"sync"
)

// BoxEntry is what the keystore holds for a live key: either the value
// itself (eager boxes cache it here) or just enough to fetch it from disk
// (lazy boxes keep Value nil and use Offset/Length).
type BoxEntry struct {
	Value  any
	Offset int64
	Length uint32
}

// CompareKeys orders keys the way a box does: integer keys sort before
// string keys, integers compare numerically, strings compare by Unicode
// codepoint. Keys are restricted to uint32 or string; anything else is a
// programmer error.
func CompareKeys(a, b any) int {
	switch av := a.(type) {
	case uint32:
		switch bv := b.(type) {
		case uint32:
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		case string:
			return -1
		default:
			panic(fmt.Sprintf("keystore: unsupported key type %T", b))
		}
	case string:
		switch bv := b.(type) {
		case uint32:
			return 1
		case string:
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		default:
			panic(fmt.Sprintf("keystore: unsupported key type %T", b))
		}
	default:
		panic(fmt.Sprintf("keystore: unsupported key type %T", a))
	}
}

// Keystore is the in-memory, positionally-indexable directory of a box's
// live keys. It never holds tombstones: Delete removes the key outright,
// and the number of delete operations applied since the keystore was
// built is tracked separately so compaction can decide whether the log
// is worth rewriting.
type Keystore struct {
	mu           sync.RWMutex
	list         *SkipList[any, *BoxEntry]
	deletedCount int
	nextAutoKey  uint32
}

// New creates an empty keystore. rng is forwarded to the underlying skip
// list; pass nil outside of tests.
func New(rng RNG) *Keystore {
	return &Keystore{
		list: NewSkipList[any, *BoxEntry](CompareKeys, true, rng),
	}
}

// Put records (or overwrites) the entry for key.
func (k *Keystore) Put(key any, entry *BoxEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.list.Insert(key, entry)
	k.bumpAutoKey(key)
}

// Get returns the entry for key, if the key is live.
func (k *Keystore) Get(key any) (*BoxEntry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.list.Get(key)
}

// Contains reports whether key is live.
func (k *Keystore) Contains(key any) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.list.Contains(key)
}

// Delete removes key, reporting whether it was present. Only a genuine
// removal increments the deleted-frame counter; deleting a key that is
// not present leaves the counter unchanged.
func (k *Keystore) Delete(key any) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	removed := k.list.Delete(key)
	if removed {
		k.deletedCount++
	}
	return removed
}

// GetAt returns the index-th (0-based) key/entry pair in key order.
func (k *Keystore) GetAt(index int) (any, *BoxEntry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.list.GetAt(index)
}

// Len returns the number of live keys.
func (k *Keystore) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.list.Len()
}

// DeletedCount returns the number of successful deletions recorded since
// the keystore was created or last reset, used by compaction strategies
// that trigger on a dead-entry ratio.
func (k *Keystore) DeletedCount() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.deletedCount
}

// ResetDeletedCount zeroes the deleted-frame counter, called after a
// compaction has rewritten the log and the ratio is no longer meaningful.
func (k *Keystore) ResetDeletedCount() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.deletedCount = 0
}

// NextAutoKey returns the next unused auto-generated integer key and
// reserves it.
func (k *Keystore) NextAutoKey() uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	key := k.nextAutoKey
	k.nextAutoKey++
	return key
}

func (k *Keystore) bumpAutoKey(key any) {
	if ik, ok := key.(uint32); ok && ik >= k.nextAutoKey {
		k.nextAutoKey = ik + 1
	}
}

// ForEach walks live keys in order, stopping early if fn returns false.
func (k *Keystore) ForEach(fn func(key any, entry *BoxEntry) bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	k.list.ForEach(fn)
}

// Keys returns every live key in order.
func (k *Keystore) Keys() []any {
	k.mu.RLock()
	defer k.mu.RUnlock()
	keys := make([]any, 0, k.list.Len())
	k.list.ForEach(func(key any, _ *BoxEntry) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Clear empties the keystore, used when a box is cleared.
func (k *Keystore) Clear(rng RNG) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.list = NewSkipList[any, *BoxEntry](CompareKeys, true, rng)
	k.deletedCount = 0
	k.nextAutoKey = 0
}
