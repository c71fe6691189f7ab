// Package catalog is the local registry of boxes an installation knows
// about: their on-disk paths and bootstrap metadata. It persists across
// restarts and does not track which boxes are currently open.
package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
)

// Entry describes one registered box.
type Entry struct {
	ID       ksuid.KSUID `json:"id"`
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Lazy     bool        `json:"lazy"`
	Encrypt  bool        `json:"encrypt"`
	Created  int64       `json:"created"`
}

// Catalog persists Entry records in a small Pebble instance keyed by a
// ksuid so entries sort chronologically by creation on disk.
type Catalog struct {
	db *pebble.DB
}

// Open opens (creating if necessary) the catalog database rooted at path.
func Open(path string) (*Catalog, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	return &Catalog{db: db}, nil
}

// Register adds a new box entry, minting a fresh ksuid for it.
func (c *Catalog) Register(name, path string, lazy, encrypt bool, createdUnix int64) (ksuid.KSUID, error) {
	id := ksuid.New()
	entry := Entry{ID: id, Name: name, Path: path, Lazy: lazy, Encrypt: encrypt, Created: createdUnix}

	data, err := json.Marshal(entry)
	if err != nil {
		return ksuid.Nil, fmt.Errorf("catalog: marshal entry: %w", err)
	}
	if err := c.db.Set(id.Bytes(), data, pebble.Sync); err != nil {
		return ksuid.Nil, fmt.Errorf("catalog: set %s: %w", id, err)
	}
	return id, nil
}

// Get fetches the entry for id.
func (c *Catalog) Get(id ksuid.KSUID) (Entry, error) {
	data, closer, err := c.db.Get(id.Bytes())
	if err != nil {
		return Entry{}, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	defer closer.Close()

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("catalog: unmarshal %s: %w", id, err)
	}
	return entry, nil
}

// Update overwrites the entry stored for id.
func (c *Catalog) Update(id ksuid.KSUID, entry Entry) error {
	entry.ID = id
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("catalog: marshal entry: %w", err)
	}
	return c.db.Set(id.Bytes(), data, pebble.Sync)
}

// Deregister removes id from the catalog. It does not touch the box's
// files on disk.
func (c *Catalog) Deregister(id ksuid.KSUID) error {
	return c.db.Delete(id.Bytes(), pebble.Sync)
}

// List returns every registered entry, in ksuid (creation) order.
func (c *Catalog) List() ([]Entry, error) {
	iter, err := c.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: new iterator: %w", err)
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var entry Entry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, fmt.Errorf("catalog: unmarshal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, iter.Error()
}

// Close releases the underlying Pebble handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}
