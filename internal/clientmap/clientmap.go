// Package clientmap is the bidirectional proxy-ID ↔ client-ID table, with
// liveness and duplicate-connection arbitration (spec §4.5).
package clientmap

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/srx-go/rpki-validator/internal/clientid"
)

// ErrDuplicateProxyID is returned by AddMapping when the slot is already
// occupied by a different active proxy ID (spec §4.5, §7).
var ErrDuplicateProxyID = errors.New("clientmap: proxy ID already active on another slot")

// ErrTableFull is returned by CreateClientID when every slot 1..Max is in use.
var ErrTableFull = errors.New("clientmap: client table full")

type slot struct {
	proxyID        uint32
	socket         net.Conn
	active         bool
	pendingUpdates int
	// releaseTimer fires keep-window seconds after a clean deactivation,
	// freeing the slot for reuse (spec §3, §4.5).
	releaseTimer *time.Timer
}

// Map is the fixed-size client/proxy table, guarded by one read-write lock
// (spec §5). At most one active slot may reference a given proxy ID at any
// instant (spec §8, "Mapping uniqueness").
type Map struct {
	mu    sync.RWMutex
	slots [clientid.Max + 1]*slot // index 0 unused; 1..Max are valid client IDs
}

// New creates an empty client/proxy map.
func New() *Map {
	return &Map{}
}

// FindClientID returns the client ID currently mapped to proxyID, or
// clientid.None if no slot (active or pending release) holds it.
func (m *Map) FindClientID(proxyID uint32) clientid.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := 1; i <= clientid.Max; i++ {
		if s := m.slots[i]; s != nil && s.proxyID == proxyID {
			return clientid.ID(i)
		}
	}
	return clientid.None
}

// CreateClientID allocates the first free slot (1..Max), or clientid.None
// with ErrTableFull if none remain.
func (m *Map) CreateClientID() (clientid.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 1; i <= clientid.Max; i++ {
		if m.slots[i] == nil {
			m.slots[i] = &slot{}
			return clientid.ID(i), nil
		}
	}
	return clientid.None, ErrTableFull
}

// AddMapping binds proxyID and socket to clientID, marking it active.
// Fails with ErrDuplicateProxyID if the slot is already active for a
// different proxy ID or on a different socket, or if another slot already
// holds proxyID as active.
func (m *Map) AddMapping(proxyID uint32, id clientid.ID, conn net.Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 1; i <= clientid.Max; i++ {
		if o := m.slots[i]; i != int(id) && o != nil && o.active && o.proxyID == proxyID {
			return ErrDuplicateProxyID
		}
	}

	s := m.slots[id]
	if s == nil {
		s = &slot{}
		m.slots[id] = s
	}
	if s.active && (s.proxyID != proxyID || s.socket != conn) {
		return ErrDuplicateProxyID
	}
	if s.releaseTimer != nil {
		s.releaseTimer.Stop()
		s.releaseTimer = nil
	}

	s.proxyID = proxyID
	s.socket = conn
	s.active = true
	return nil
}

// Deactivate marks id inactive. If crashed is false the slot is scheduled
// for reuse after keepWindow elapses; if true, the mapping is retained
// longer so a reconnect can resume subscriptions (spec §4.5) — the caller
// is responsible for re-arming the release on the eventual clean goodbye.
func (m *Map) Deactivate(id clientid.ID, crashed bool, keepWindow time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.slots[id]
	if s == nil {
		return
	}
	s.active = false
	s.socket = nil

	if crashed {
		return
	}
	if s.releaseTimer != nil {
		s.releaseTimer.Stop()
	}
	s.releaseTimer = time.AfterFunc(keepWindow, func() {
		m.release(id)
	})
}

func (m *Map) release(id clientid.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.slots[id]
	if s == nil || s.active {
		return
	}
	m.slots[id] = nil
}

// IncPending / DecPending track the per-client pending-update counter
// (spec §4.6, DELETE_UPDATE handling).
func (m *Map) IncPending(id clientid.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.slots[id]; s != nil {
		s.pendingUpdates++
	}
}

func (m *Map) DecPending(id clientid.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.slots[id]; s != nil && s.pendingUpdates > 0 {
		s.pendingUpdates--
	}
}

// PendingUpdates returns the current pending-update counter for id.
func (m *Map) PendingUpdates(id clientid.ID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s := m.slots[id]; s != nil {
		return s.pendingUpdates
	}
	return 0
}

// Socket returns the active socket for id, or nil if the slot is absent
// or inactive.
func (m *Map) Socket(id clientid.ID) net.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s := m.slots[id]; s != nil && s.active {
		return s.socket
	}
	return nil
}

// FindByConn returns the client ID whose active socket is conn, or
// clientid.None if no active slot references it. Used by the socket layer
// to resolve which client a non-HELLO frame belongs to, since the frame
// itself carries no proxy or client identifier (spec §4.6).
func (m *Map) FindByConn(conn net.Conn) clientid.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := 1; i <= clientid.Max; i++ {
		if s := m.slots[i]; s != nil && s.active && s.socket == conn {
			return clientid.ID(i)
		}
	}
	return clientid.None
}

// BroadcastTargets joins subscriberIDs against the map's active sockets,
// returning one socket per subscriber that is currently active (spec §4.5).
func (m *Map) BroadcastTargets(subscriberIDs []clientid.ID) []net.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]net.Conn, 0, len(subscriberIDs))
	for _, id := range subscriberIDs {
		if s := m.slots[id]; s != nil && s.active && s.socket != nil {
			out = append(out, s.socket)
		}
	}
	return out
}
