package codec

import (
	"reflect"
	"sync"

	"boxdb/pkg/boxerr"
)

// TypeAdapter is a runtime-registered serializer for a user-defined value
// type. The core never inspects how an adapter is generated; it only needs
// read/write and a type-id to tag frames with.
type TypeAdapter interface {
	Read(r *Reader) (any, error)
	Write(w *Writer, v any) error

	// Matches reports whether this adapter can encode v. Used for the
	// by-value lookup path on write, where the registry has to guess which
	// adapter a plain Go value belongs to.
	Matches(v any) bool
}

type registryEntry struct {
	typeID  byte
	adapter TypeAdapter
}

// TypeRegistry maps an on-disk type-id to the adapter that knows how to
// read and write it. A registry may chain to a parent, consulted on miss
// — this lets a box-local registry fall back to a process-wide default set
// of adapters without copying them.
type TypeRegistry struct {
	mu      sync.RWMutex
	entries map[byte]TypeAdapter
	order   []registryEntry // preserves registration order for by-value scans
	parent  *TypeRegistry
}

// NewTypeRegistry creates an empty registry, optionally chained to parent.
func NewTypeRegistry(parent *TypeRegistry) *TypeRegistry {
	return &TypeRegistry{
		entries: make(map[byte]TypeAdapter),
		parent:  parent,
	}
}

// Register adds an adapter for an external typeId in [0, MaxUserTypeID].
// The id is offset by FirstUserTag internally so it never collides with a
// built-in tag. Registering the same typeId twice fails with
// AlreadyRegistered.
func (t *TypeRegistry) Register(typeID byte, adapter TypeAdapter) error {
	if int(typeID) > MaxUserTypeID {
		return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "typeId out of range [0,223]")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	internal := typeID + FirstUserTag
	if _, exists := t.entries[internal]; exists {
		return boxerr.ErrAlreadyRegistered
	}

	t.entries[internal] = adapter
	t.order = append(t.order, registryEntry{typeID: internal, adapter: adapter})
	return nil
}

// Find looks up the adapter registered for an internal (offset) typeId,
// falling through to the parent registry on miss.
func (t *TypeRegistry) Find(internalTypeID byte) (TypeAdapter, bool) {
	t.mu.RLock()
	adapter, ok := t.entries[internalTypeID]
	t.mu.RUnlock()
	if ok {
		return adapter, true
	}
	if t.parent != nil {
		return t.parent.Find(internalTypeID)
	}
	return nil, false
}

// FindByValue does a linear scan over registered adapters (and the parent
// chain) looking for the first one whose Matches reports true. This is
// O(N) in adapter count, which the specification calls out as fine for the
// expected handful of user types.
func (t *TypeRegistry) FindByValue(v any) (TypeAdapter, byte, bool) {
	t.mu.RLock()
	order := t.order
	t.mu.RUnlock()

	for _, e := range order {
		if e.adapter.Matches(v) {
			return e.adapter, e.typeID, true
		}
	}
	if t.parent != nil {
		return t.parent.FindByValue(v)
	}
	return nil, 0, false
}

// reflectTypeAdapter is a convenience TypeAdapter for generated adapters
// that only need an exact reflect.Type match, sparing callers from writing
// their own Matches method.
type reflectTypeAdapter struct {
	typ     reflect.Type
	readFn  func(r *Reader) (any, error)
	writeFn func(w *Writer, v any) error
}

func (a *reflectTypeAdapter) Read(r *Reader) (any, error)  { return a.readFn(r) }
func (a *reflectTypeAdapter) Write(w *Writer, v any) error { return a.writeFn(w, v) }
func (a *reflectTypeAdapter) Matches(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v) == a.typ
}

// NewReflectAdapter builds a TypeAdapter for exact-type dispatch, the
// common case for generated struct adapters.
func NewReflectAdapter(sample any, readFn func(r *Reader) (any, error), writeFn func(w *Writer, v any) error) TypeAdapter {
	return &reflectTypeAdapter{typ: reflect.TypeOf(sample), readFn: readFn, writeFn: writeFn}
}
