package notify

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/srx-go/rpki-validator/internal/afi"
	"github.com/srx-go/rpki-validator/internal/clientmap"
	"github.com/srx-go/rpki-validator/internal/pathid"
	"github.com/srx-go/rpki-validator/internal/prefix"
	"github.com/srx-go/rpki-validator/internal/result"
	"github.com/srx-go/rpki-validator/internal/updatecache"
	"github.com/srx-go/rpki-validator/internal/wire"
)

func pipeConn(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func readNotification(t *testing.T, conn net.Conn) wire.VerifyNotification {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("reading notification: %v", err)
	}
	h, err := wire.DecodeHeader(buf[:n])
	if err != nil {
		t.Fatalf("decoding header: %v", err)
	}
	if h.Type != wire.TypeVerifyNotification {
		t.Fatalf("got packet type %v, want VERIFY_NOTIFICATION", h.Type)
	}
	notif, err := wire.DecodeVerifyNotification(buf[wire.HeaderSize:n])
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	return notif
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	clients := clientmap.New()
	idA, _ := clients.CreateClientID()
	idB, _ := clients.CreateClientID()
	connA, remoteA := pipeConn(t)
	connB, remoteB := pipeConn(t)
	clients.AddMapping(0xA, idA, remoteA)
	clients.AddMapping(0xB, idB, remoteB)

	updates := updatecache.New(4)
	pfx, _ := prefix.New(afi.IPv4, []byte{10, 0, 0, 0}, 8)
	def := result.Triple{ROA: result.Undefined, BGPsec: result.DoNotUse, ASPA: result.DoNotUse}
	updates.Submit(updatecache.UpdateID(1), pfx, 100, pathid.Invalid, idA, def)
	updates.Submit(updatecache.UpdateID(1), pfx, 100, pathid.Invalid, idB, def)

	f := New(updates, clients, nil, zap.NewNop())
	f.Start()
	defer f.Stop()

	updates.ModifyResult(updatecache.UpdateID(1), result.Triple{ROA: result.Valid, BGPsec: result.DoNotUse, ASPA: result.DoNotUse}, false)

	notifA := readNotification(t, connA)
	notifB := readNotification(t, connB)

	if notifA.UpdateID != 1 || notifA.ROA != result.Valid {
		t.Fatalf("unexpected notification to A: %+v", notifA)
	}
	if notifB.UpdateID != 1 || notifB.ROA != result.Valid {
		t.Fatalf("unexpected notification to B: %+v", notifB)
	}
}

func TestBroadcastSkipsUnknownUpdateID(t *testing.T) {
	clients := clientmap.New()
	updates := updatecache.New(4)

	f := New(updates, clients, nil, zap.NewNop())
	// An unknown UpdateID (already swept) must be a no-op, not a panic.
	f.broadcast(updatecache.UpdateID(999))
}

func TestBroadcastInactiveClientNotDelivered(t *testing.T) {
	clients := clientmap.New()
	id, _ := clients.CreateClientID()
	_, remote := pipeConn(t)
	clients.AddMapping(0xC, id, remote)
	clients.Deactivate(id, true, time.Hour)

	updates := updatecache.New(4)
	pfx, _ := prefix.New(afi.IPv4, []byte{10, 0, 0, 0}, 8)
	def := result.Triple{ROA: result.Undefined, BGPsec: result.DoNotUse, ASPA: result.DoNotUse}
	updates.Submit(updatecache.UpdateID(2), pfx, 100, pathid.Invalid, id, def)

	f := New(updates, clients, nil, zap.NewNop())
	// The deactivated client has no active socket, so BroadcastTargets
	// returns none; this must not block or panic.
	f.broadcast(updatecache.UpdateID(2))
}
