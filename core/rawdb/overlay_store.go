// overlay_store.go provides the null and read-only-overlay KVStore backends:
// NullStore swallows writes and returns empty reads (dry runs, tests);
// OverlayStore layers a mutable in-memory buffer over a base KVStore so the
// buffer can be discarded wholesale without touching the base.
package rawdb

import "sync"

// NullStore silently swallows every write and reports every read as absent.
// Used for dry-run commands and tests that want a KVStore without retaining
// any of its writes.
type NullStore struct{}

// NewNullStore creates a NullStore.
func NewNullStore() *NullStore { return &NullStore{} }

func (NullStore) Get(key []byte) ([]byte, error)  { return nil, ErrKVNotFound }
func (NullStore) Put(key, value []byte) error     { return nil }
func (NullStore) Delete(key []byte) error         { return nil }
func (NullStore) Has(key []byte) (bool, error)    { return false, nil }
func (NullStore) Close() error                    { return nil }

// NewBatch returns a batch whose Write is a no-op: it targets an ephemeral
// backing store that nothing else reads from, so applying it changes nothing
// observable through the NullStore itself.
func (NullStore) NewBatch() *WriteBatch {
	return &WriteBatch{target: NewMemoryKVStore()}
}

// NewKVIterator returns an iterator over no entries.
func (NullStore) NewKVIterator(prefix, start []byte) KVIterator {
	return &kvIterator{pos: -1}
}

// OverlayStore composes a mutable in-memory layer ("temp changes") over a
// base KVStore. Writes land only in the overlay; reads check the overlay
// first and fall through to the base on a miss. ClearTempChanges discards
// the overlay without touching the base, restoring the store to exactly the
// base's contents.
type OverlayStore struct {
	mu      sync.RWMutex
	base    KVStore
	overlay *MemoryKVStore
	deleted map[string]struct{}
}

// NewOverlayStore creates an OverlayStore wrapping base with an empty overlay.
func NewOverlayStore(base KVStore) *OverlayStore {
	return &OverlayStore{
		base:    base,
		overlay: NewMemoryKVStore(),
		deleted: make(map[string]struct{}),
	}
}

// Get returns the overlay's value for key if present, the tombstone miss if
// the key was deleted in the overlay, or else falls through to the base.
func (o *OverlayStore) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if _, gone := o.deleted[string(key)]; gone {
		return nil, ErrKVNotFound
	}
	if v, err := o.overlay.Get(key); err == nil {
		return v, nil
	}
	return o.base.Get(key)
}

// Put writes key/value into the overlay only; the base is untouched.
func (o *OverlayStore) Put(key, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.deleted, string(key))
	return o.overlay.Put(key, value)
}

// Delete records key as removed in the overlay without touching the base.
// A subsequent Get reports ErrKVNotFound even if the base still has the key.
func (o *OverlayStore) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.deleted[string(key)] = struct{}{}
	return o.overlay.Delete(key)
}

// Has reports existence, honoring overlay tombstones and overlay writes
// before falling through to the base.
func (o *OverlayStore) Has(key []byte) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if _, gone := o.deleted[string(key)]; gone {
		return false, nil
	}
	if ok, _ := o.overlay.Has(key); ok {
		return true, nil
	}
	return o.base.Has(key)
}

// Close closes the base store; the overlay is in-memory and needs no closing.
func (o *OverlayStore) Close() error { return o.base.Close() }

// NewBatch returns a batch that buffers into the overlay, never the base.
func (o *OverlayStore) NewBatch() *WriteBatch {
	return o.overlay.NewBatch()
}

// NewKVIterator merges the overlay's matching entries over the base's,
// overlay entries shadowing base entries of the same key and overlay
// tombstones suppressing base entries entirely.
func (o *OverlayStore) NewKVIterator(prefix, start []byte) KVIterator {
	o.mu.RLock()
	defer o.mu.RUnlock()

	merged := make(map[string][]byte)
	baseIt := o.base.NewKVIterator(prefix, start)
	for baseIt.Next() {
		merged[string(baseIt.Key())] = baseIt.Value()
	}
	baseIt.Release()

	overlayIt := o.overlay.NewKVIterator(prefix, start)
	for overlayIt.Next() {
		merged[string(overlayIt.Key())] = overlayIt.Value()
	}
	overlayIt.Release()

	for k := range o.deleted {
		delete(merged, k)
	}

	tmp := NewMemoryKVStore()
	for k, v := range merged {
		tmp.data[k] = v
	}
	return tmp.NewKVIterator(prefix, start)
}

// ClearTempChanges discards the overlay entirely, reverting to the base's
// contents as if no writes had ever been made on top of it.
func (o *OverlayStore) ClearTempChanges() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.overlay = NewMemoryKVStore()
	o.deleted = make(map[string]struct{})
}
