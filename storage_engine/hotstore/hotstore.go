package hotstore

import (
	"fmt"

	"anticachedb/storage_engine/anticache"
)

/*
This file is the main file of the hotstore
It works on LRU based caching mechanism over named entries and holds
access to an anti-cache store for evicting the cold ones out and
reading them back in.

Entries are identified by a caller-chosen key (a table's own row/block
identifier, opaque to this package).
*/

// NewHotStore builds a HotStore of the given capacity, evicting into
// store under the given table name — diagnostic-only context the
// anti-cache attaches to unknown-block errors, not something it
// interprets.
func NewHotStore(table string, capacity int, store *anticache.Store) *HotStore {
	return &HotStore{
		table:    table,
		entries:  make(map[string]*Entry, capacity),
		tombs:    make(map[string]*Tombstone),
		capacity: capacity,
		store:    store,
		access:   make([]string, 0, capacity),
	}
}

// Get retrieves an entry by key, pinning it. If key was evicted to the
// anti-cache, it is read back in, reinserted as a live entry (which may
// itself trigger an eviction), and the tombstone is resolved.
func (hs *HotStore) Get(key string) (*Entry, error) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if e, exists := hs.entries[key]; exists {
		hs.touch(key)
		e.Lock()
		e.PinCount++
		e.Unlock()
		return e, nil
	}

	tomb, exists := hs.tombs[key]
	if !exists {
		return nil, fmt.Errorf("hotstore: key %q not found", key)
	}

	handle, err := hs.store.ReadBlock(hs.table, tomb.BlockID)
	if err != nil {
		return nil, fmt.Errorf("hotstore: unevicting key %q: %w", key, err)
	}
	defer handle.Release()

	data := make([]byte, handle.Len())
	copy(data, handle.Bytes())

	e := &Entry{Key: key, Data: data, PinCount: 1}
	if err := hs.addEntry(e); err != nil {
		return nil, fmt.Errorf("hotstore: reinserting unevicted key %q: %w", key, err)
	}
	delete(hs.tombs, key)

	return e, nil
}

// Put inserts a new live, pinned entry for key, evicting an existing
// unpinned entry first if the store is at capacity.
func (hs *HotStore) Put(key string, data []byte) (*Entry, error) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	e := &Entry{Key: key, Data: data, PinCount: 1}
	if err := hs.addEntry(e); err != nil {
		return nil, fmt.Errorf("hotstore: put key %q: %w", key, err)
	}
	return e, nil
}

// Unpin decrements an entry's pin count, making it eligible for
// eviction again once it reaches zero.
func (hs *HotStore) Unpin(key string) error {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	e, exists := hs.entries[key]
	if !exists {
		return fmt.Errorf("hotstore: key %q not live", key)
	}

	e.Lock()
	if e.PinCount > 0 {
		e.PinCount--
	}
	e.Unlock()

	return nil
}

// addEntry adds e to the pool, evicting if at capacity. Assumes lock held.
func (hs *HotStore) addEntry(e *Entry) error {
	if _, exists := hs.entries[e.Key]; exists {
		hs.touch(e.Key)
		hs.entries[e.Key] = e
		return nil
	}

	if len(hs.entries) >= hs.capacity {
		if err := hs.evictLRU(); err != nil {
			return fmt.Errorf("evicting to make room: %w", err)
		}
	}

	hs.entries[e.Key] = e
	hs.touch(e.Key)
	return nil
}

// evictLRU evicts the least recently used unpinned entry to the
// anti-cache, leaving a Tombstone behind. Assumes lock held. Scans
// access order in order, skipping any entry still pinned, and hands the
// first eligible victim's bytes to anticache.Store.WriteBlock before
// dropping it from the live map.
func (hs *HotStore) evictLRU() error {
	for i := 0; i < len(hs.access); i++ {
		key := hs.access[i]
		e, exists := hs.entries[key]
		if !exists {
			hs.access = append(hs.access[:i], hs.access[i+1:]...)
			i--
			continue
		}

		e.RLock()
		pinned := e.PinCount > 0
		e.RUnlock()
		if pinned {
			continue
		}

		id, err := hs.store.NextID()
		if err != nil {
			return fmt.Errorf("allocating block id for eviction of %q: %w", key, err)
		}
		if err := hs.store.WriteBlock(id, e.Data); err != nil {
			return fmt.Errorf("writing evicted key %q as block %d: %w", key, id, err)
		}
		if err := hs.store.Sync(); err != nil {
			return fmt.Errorf("durably persisting evicted key %q as block %d: %w", key, id, err)
		}

		delete(hs.entries, key)
		hs.tombs[key] = &Tombstone{BlockID: id}
		hs.access = append(hs.access[:i], hs.access[i+1:]...)
		return nil
	}

	return fmt.Errorf("hotstore: all %d live entries are pinned, cannot evict", len(hs.entries))
}

// touch moves key to the most-recently-used end of the access order.
// Assumes lock held.
func (hs *HotStore) touch(key string) {
	for i, k := range hs.access {
		if k == key {
			hs.access = append(hs.access[:i], hs.access[i+1:]...)
			break
		}
	}
	hs.access = append(hs.access, key)
}
