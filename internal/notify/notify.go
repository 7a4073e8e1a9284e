// Package notify is the notification fan-out (spec §4.8): it drains the
// update cache's change queue and the trust-data change queue, and for
// each affected UpdateID assembles and broadcasts a VERIFY_NOTIFICATION to
// every subscribed, currently-active client socket.
package notify

import (
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/srx-go/rpki-validator/internal/clientmap"
	"github.com/srx-go/rpki-validator/internal/metrics"
	"github.com/srx-go/rpki-validator/internal/rpki"
	"github.com/srx-go/rpki-validator/internal/updatecache"
	"github.com/srx-go/rpki-validator/internal/wire"
)

// resultMask bits identify which axes are carried in a given
// VERIFY_NOTIFICATION, distinct from a verify-request's own flag bits
// (spec §6's table lists them as the same three bit positions).
const (
	maskROA    uint8 = 1 << 0
	maskBGPsec uint8 = 1 << 1
	maskASPA   uint8 = 1 << 2
)

// Fanout owns the two source channels and the collaborators needed to turn
// an UpdateID into wire sends.
type Fanout struct {
	updates *updatecache.Cache
	clients *clientmap.Map
	trust   rpki.ChangeQueue // nil if no trust-data change feed is wired

	logger *zap.Logger

	wg   sync.WaitGroup
	stop chan struct{}
}

// New builds a Fanout. trust may be nil, in which case only update-cache
// driven notifications are sent.
func New(updates *updatecache.Cache, clients *clientmap.Map, trust rpki.ChangeQueue, logger *zap.Logger) *Fanout {
	return &Fanout{
		updates: updates,
		clients: clients,
		trust:   trust,
		logger:  logger,
		stop:    make(chan struct{}),
	}
}

// Start launches the drain loop(s): one for the update cache's own change
// queue, and — if a trust-data change feed was supplied — a second for it
// (spec §4.8: "triggered by (a) modify_result axis-change and (b)
// trust-data change notifications").
func (f *Fanout) Start() {
	f.wg.Add(1)
	go f.drainUpdates()

	if f.trust != nil {
		f.wg.Add(1)
		go f.drainTrustChanges()
	}
}

// Stop signals both drain loops to exit and waits for them to return.
func (f *Fanout) Stop() {
	close(f.stop)
	f.wg.Wait()
}

func (f *Fanout) drainUpdates() {
	defer f.wg.Done()
	for {
		select {
		case id, ok := <-f.updates.Notifications():
			if !ok {
				return
			}
			f.broadcast(id)
		case <-f.stop:
			return
		}
	}
}

func (f *Fanout) drainTrustChanges() {
	defer f.wg.Done()
	for {
		select {
		case id, ok := <-f.trust.Changes():
			if !ok {
				return
			}
			f.broadcast(id)
		case <-f.stop:
			return
		}
	}
}

// broadcast assembles and sends one VERIFY_NOTIFICATION for id to every
// subscribed, active client (spec §4.8). A missing UpdateID (already swept
// from the cache) is silently skipped.
func (f *Fanout) broadcast(id updatecache.UpdateID) {
	current, _, _, err := f.updates.GetResult(id)
	if err != nil {
		return
	}

	n := wire.VerifyNotification{
		ResultTypeMask: maskROA | maskBGPsec | maskASPA,
		ROA:            current.ROA,
		BGPsec:         current.BGPsec,
		ASPA:           current.ASPA,
		UpdateID:       uint32(id),
	}
	buf := wire.EncodeVerifyNotification(n)

	subscribers := f.updates.GetClients(id)
	targets := f.clients.BroadcastTargets(subscribers)

	delivered := f.sendAll(targets, buf)
	if delivered {
		metrics.NotificationsSentTotal.WithLabelValues("delivered").Inc()
	} else {
		metrics.NotificationsSentTotal.WithLabelValues("failed").Inc()
	}
}

// sendAll writes buf to every socket in targets, logging but not aborting
// on a failed write. Returns true if at least one send succeeded (spec
// §4.8: "the method returns success if any client received the
// notification").
func (f *Fanout) sendAll(targets []net.Conn, buf []byte) bool {
	delivered := false
	for _, conn := range targets {
		if _, err := conn.Write(buf); err != nil {
			f.logger.Warn("notification send failed", zap.Error(err))
			continue
		}
		delivered = true
	}
	return delivered
}
