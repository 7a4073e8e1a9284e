// Package updatecache holds the per-announcement canonical validation
// state and subscriber set, and fans out change notifications for the
// notifier to pick up (spec §4.4).
package updatecache

import (
	"errors"
	"sync"
	"time"

	"github.com/srx-go/rpki-validator/internal/clientid"
	"github.com/srx-go/rpki-validator/internal/pathid"
	"github.com/srx-go/rpki-validator/internal/prefix"
	"github.com/srx-go/rpki-validator/internal/result"
)

// UpdateID is the client-chosen, opaque announcement identifier (spec §3).
type UpdateID uint32

// ErrNotFound is returned for operations addressing an unknown UpdateID.
var ErrNotFound = errors.New("updatecache: update ID not found")

// ErrTupleMismatch is an invariant violation (spec §4.4, §7): a client
// resubmitted an UpdateID with a different (Prefix, OriginAS, PathID)
// tuple than the one already on file.
var ErrTupleMismatch = errors.New("updatecache: resubmission with a different (prefix, origin-AS, path-ID) tuple")

type entry struct {
	updateID UpdateID
	prefix   prefix.Prefix
	originAS uint32
	pathID   pathid.ID
	def      result.Triple
	current  result.Triple

	subscribers map[clientid.ID]struct{}

	// retentionTimer, when non-nil, is the pending sweep scheduled after
	// the subscriber set emptied. Cancelled if a new subscriber arrives
	// before it fires (spec §3 lifecycle).
	retentionTimer *time.Timer
}

// Cache is the UpdateID → entry table, guarded by one mutex. Reads and
// writes alike take it exclusively; there is no shared read mode. Per-entry
// operations are short and never yield while holding the lock.
type Cache struct {
	mu      sync.Mutex
	entries map[UpdateID]*entry

	notifications chan UpdateID
}

// New creates an empty update cache. notifyBuffer sizes the internal
// notification channel the fan-out notifier drains.
func New(notifyBuffer int) *Cache {
	return &Cache{
		entries:       make(map[UpdateID]*entry),
		notifications: make(chan UpdateID, notifyBuffer),
	}
}

// Notifications returns the channel of UpdateIDs whose state changed and
// need a VERIFY_NOTIFICATION broadcast (spec §4.8).
func (c *Cache) Notifications() <-chan UpdateID {
	return c.notifications
}

func (c *Cache) enqueueNotification(id UpdateID) {
	select {
	case c.notifications <- id:
	default:
		// Notifier is behind; drop rather than block the calling dispatch
		// worker. The cache state itself is already updated, so a dropped
		// notification only delays the push until the next notification
		// for this UpdateID. The drop is not logged or reported.
	}
}

// Submit creates the entry on first sight of updateID, or — if it already
// exists — validates that the tuple matches and adds clientID to the
// subscriber set (spec §4.4). The returned Triple is always the entry's
// current result after the call.
func (c *Cache) Submit(id UpdateID, pfx prefix.Prefix, originAS uint32, path pathid.ID, client clientid.ID, def result.Triple) (existed bool, current result.Triple, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		e = &entry{
			updateID:    id,
			prefix:      pfx,
			originAS:    originAS,
			pathID:      path,
			def:         def,
			subscribers: map[clientid.ID]struct{}{client: {}},
		}
		// Current result starts from the default on every axis that is
		// not DONOTUSE (spec §4.4).
		e.current, _ = result.Triple{}.Merge(def)
		c.entries[id] = e
		return false, e.current, nil
	}

	if !e.prefix.Equal(pfx) || e.originAS != originAS || e.pathID != path {
		return true, e.current, ErrTupleMismatch
	}

	c.cancelRetentionLocked(e)
	e.subscribers[client] = struct{}{}
	return true, e.current, nil
}

// GetResult returns the current and default results and path ID for id.
func (c *Cache) GetResult(id UpdateID) (current, def result.Triple, path pathid.ID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return result.Triple{}, result.Triple{}, 0, ErrNotFound
	}
	return e.current, e.def, e.pathID, nil
}

// GetUpdateData returns the canonical (prefix, origin-AS, path-ID) bundle
// for re-validation.
func (c *Cache) GetUpdateData(id UpdateID) (pfx prefix.Prefix, originAS uint32, path pathid.ID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return prefix.Prefix{}, 0, 0, ErrNotFound
	}
	return e.prefix, e.originAS, e.pathID, nil
}

// ModifyResult overwrites every axis of id's current result where newResult
// is not DoNotUse and differs from the stored value. If any axis changed,
// or force is set, the UpdateID is queued for notification (spec §4.4).
func (c *Cache) ModifyResult(id UpdateID, newResult result.Triple, force bool) error {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}

	merged, changed := e.current.Merge(newResult)
	e.current = merged
	c.mu.Unlock()

	if changed || force {
		c.enqueueNotification(id)
	}
	return nil
}

// DeleteSubscription removes client from id's subscriber set. If the set
// becomes empty, a retention timer is armed for keepWindow; the entry is
// removed when it fires and the set is still empty (spec §4.4, §3).
// Returns false if the client was not subscribed.
func (c *Cache) DeleteSubscription(client clientid.ID, id UpdateID, keepWindow time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return false
	}
	if _, subscribed := e.subscribers[client]; !subscribed {
		return false
	}
	delete(e.subscribers, client)

	if len(e.subscribers) == 0 {
		c.armRetentionLocked(e, keepWindow)
	}
	return true
}

// GetClients returns the subscriber set for id as a slice.
func (c *Cache) GetClients(id UpdateID) []clientid.ID {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil
	}
	out := make([]clientid.ID, 0, len(e.subscribers))
	for cl := range e.subscribers {
		out = append(out, cl)
	}
	return out
}

// Count returns the number of entries currently held.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) armRetentionLocked(e *entry, keepWindow time.Duration) {
	if e.retentionTimer != nil {
		e.retentionTimer.Stop()
	}
	e.retentionTimer = time.AfterFunc(keepWindow, func() {
		c.sweep(e.updateID)
	})
}

func (c *Cache) cancelRetentionLocked(e *entry) {
	if e.retentionTimer != nil {
		e.retentionTimer.Stop()
		e.retentionTimer = nil
	}
}

func (c *Cache) sweep(id UpdateID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return
	}
	if len(e.subscribers) == 0 {
		delete(c.entries, id)
	}
}
