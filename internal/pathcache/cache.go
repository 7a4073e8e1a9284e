// Package pathcache memoizes per-path ASPA validation results keyed by
// path ID, so that the same AS sequence observed on many announcements is
// only walked against the trust store once (spec §4.3).
package pathcache

import (
	"errors"
	"sort"
	"sync"

	"github.com/srx-go/rpki-validator/internal/afi"
	"github.com/srx-go/rpki-validator/internal/aspath"
	"github.com/srx-go/rpki-validator/internal/pathid"
	"github.com/srx-go/rpki-validator/internal/result"
)

// ErrExists is returned by Store when the path ID is already present; the
// reference implementation does not silently accept duplicate storage —
// callers must use ModifyASPAResult instead (spec §4.3, §9 open question).
var ErrExists = errors.New("pathcache: path ID already stored")

// ErrNotFound is returned by operations addressing a path ID that is not
// in the cache.
var ErrNotFound = errors.New("pathcache: path ID not found")

// Entry is one cached AS-path's validation state. The cache owns ASNs
// independently of whatever buffer the caller passed to Store.
type Entry struct {
	PathID    pathid.ID
	ASNs      []uint32
	Kind      aspath.SegmentKind
	Direction aspath.Direction
	Family    afi.Family
	ASPA      result.Outcome
}

// Cache is a Path-ID → Entry store guarded by one read-write lock for the
// whole table (spec §5).
type Cache struct {
	mu      sync.RWMutex
	entries map[pathid.ID]*Entry
}

// New creates an empty AS-path cache.
func New() *Cache {
	return &Cache{entries: make(map[pathid.ID]*Entry)}
}

// Store inserts a new entry, deep-copying asns so the cache owns its data.
// Returns ErrExists if the path ID is already stored.
func (c *Cache) Store(id pathid.ID, asns []uint32, kind aspath.SegmentKind, dir aspath.Direction, family afi.Family, initial result.Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; ok {
		return ErrExists
	}

	owned := make([]uint32, len(asns))
	copy(owned, asns)

	c.entries[id] = &Entry{
		PathID:    id,
		ASNs:      owned,
		Kind:      kind,
		Direction: dir,
		Family:    family,
		ASPA:      initial,
	}
	return nil
}

// Find returns a copy of the entry for id, or ErrNotFound.
func (c *Cache) Find(id pathid.ID) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// Delete removes the entry for id. Returns ErrNotFound if absent.
func (c *Cache) Delete(id pathid.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; !ok {
		return ErrNotFound
	}
	delete(c.entries, id)
	return nil
}

// ModifyASPAResult overwrites the cached ASPA outcome for id.
func (c *Cache) ModifyASPAResult(id pathid.ID, outcome result.Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.ASPA = outcome
	return nil
}

// Count returns the number of entries in the cache.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// IterateSortedByPathID calls fn for every entry, ordered by ascending
// path ID, under the read lock.
func (c *Cache) IterateSortedByPathID(fn func(Entry)) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]pathid.ID, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		fn(*c.entries[id])
	}
}

// Flush removes every entry (used on explicit operator-triggered cache
// resets; entries otherwise live until an explicit flush, spec §3).
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[pathid.ID]*Entry)
}
