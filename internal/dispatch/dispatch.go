// Package dispatch is the command-dispatch worker pool: it pops items off
// the command queue and runs the protocol state machine described in spec
// §4.6, mutating the caches and replying over the client's socket.
package dispatch

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/srx-go/rpki-validator/internal/afi"
	"github.com/srx-go/rpki-validator/internal/aspath"
	"github.com/srx-go/rpki-validator/internal/aspatrie"
	"github.com/srx-go/rpki-validator/internal/aspaval"
	"github.com/srx-go/rpki-validator/internal/bgpsec"
	"github.com/srx-go/rpki-validator/internal/clientid"
	"github.com/srx-go/rpki-validator/internal/clientmap"
	"github.com/srx-go/rpki-validator/internal/cmdqueue"
	"github.com/srx-go/rpki-validator/internal/metrics"
	"github.com/srx-go/rpki-validator/internal/pathcache"
	"github.com/srx-go/rpki-validator/internal/pathid"
	"github.com/srx-go/rpki-validator/internal/prefix"
	"github.com/srx-go/rpki-validator/internal/result"
	"github.com/srx-go/rpki-validator/internal/rpki"
	"github.com/srx-go/rpki-validator/internal/updatecache"
	"github.com/srx-go/rpki-validator/internal/wire"
)

// downstreamBit is the header Reserved-byte bit this implementation uses
// to signal the AS-relationship direction on verify requests (spec §6
// names no dedicated field for it; the generic per-packet reserved/flags
// header byte is repurposed here and documented in DESIGN.md).
const downstreamBit = 0x01

// Config holds the dispatch worker pool's tunables (spec §4.6, §5).
type Config struct {
	ProtocolVersion   uint16
	WorkerPoolSize    int
	SyncOnConnect     bool
	DefaultKeepWindow time.Duration
}

// Dispatcher is the shared worker pool: every worker pops from the same
// Queue and mutates the same caches under their own locks (spec §4.6, §5).
type Dispatcher struct {
	cfg Config

	queue   *cmdqueue.Queue
	clients *clientmap.Map
	updates *updatecache.Cache
	paths   *pathcache.Cache
	trust   *aspatrie.Store

	roa    rpki.Validator
	bgpsec bgpsec.Verifier

	logger *zap.Logger
	wg     sync.WaitGroup
}

// New builds a Dispatcher over the given collaborators. None of the
// pointers may be nil.
func New(cfg Config, queue *cmdqueue.Queue, clients *clientmap.Map, updates *updatecache.Cache,
	paths *pathcache.Cache, trust *aspatrie.Store, roa rpki.Validator, verifier bgpsec.Verifier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		queue:   queue,
		clients: clients,
		updates: updates,
		paths:   paths,
		trust:   trust,
		roa:     roa,
		bgpsec:  verifier,
		logger:  logger,
	}
}

// Start launches the fixed-size worker pool (spec §4.6: "Thread-pool size
// is a fixed constant; all workers share the queue").
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.WorkerPoolSize; i++ {
		d.wg.Add(1)
		go d.runWorker(i)
	}
}

// Stop enqueues one Shutdown item per worker and waits for every worker to
// exit, draining whatever real work preceded the sentinels in FIFO order
// (spec §4.6: "Shutdown drains the queue, then enqueues one SHUTDOWN item
// per worker, then joins all workers").
func (d *Dispatcher) Stop() {
	for i := 0; i < d.cfg.WorkerPoolSize; i++ {
		d.queue.Push(cmdqueue.Item{Kind: cmdqueue.Shutdown})
	}
	d.wg.Wait()
}

func (d *Dispatcher) runWorker(id int) {
	defer d.wg.Done()
	log := d.logger.Named("worker").With(zap.Int("worker_id", id))

	for {
		item, ok := d.queue.Pop()
		if !ok || item.Kind == cmdqueue.Shutdown {
			log.Debug("worker exiting")
			return
		}
		metrics.CommandQueueDepth.Set(float64(d.queue.Len()))
		d.handle(item, log)
	}
}

func (d *Dispatcher) handle(item cmdqueue.Item, log *zap.Logger) {
	h, err := wire.DecodeHeader(item.Payload)
	if err != nil {
		log.Warn("dropping item with malformed header", zap.Error(err))
		metrics.ParseErrorsTotal.WithLabelValues("header").Inc()
		return
	}
	payload := item.Payload[wire.HeaderSize:]
	metrics.DispatchMessagesTotal.WithLabelValues(h.Type.String()).Inc()

	// The socket layer only frames bytes; it does not track which client ID
	// a connection was assigned during HELLO. Every non-HELLO frame is
	// resolved back to its client ID by socket identity instead.
	if h.Type != wire.TypeHello && item.Client == clientid.None && item.Conn != nil {
		item.Client = d.clients.FindByConn(item.Conn)
	}

	switch h.Type {
	case wire.TypeHello:
		d.handleHello(item, payload, log)
	case wire.TypeVerifyV4Request, wire.TypeVerifyV6Request:
		d.handleVerify(item, h, payload, log)
	case wire.TypeSignRequest:
		log.Info("SIGN_REQUEST received (not implemented)")
	case wire.TypePeerChange:
		log.Info("PEER_CHANGE received (not implemented)")
	case wire.TypeGoodbye:
		d.handleGoodbye(item, payload, log)
	case wire.TypeDeleteUpdate:
		d.handleDeleteUpdate(item, payload, log)
	default:
		log.Warn("invalid packet type", zap.String("type", h.Type.String()))
		d.failConnection(item, wire.ErrInvalidPacket, log)
	}
}

func (d *Dispatcher) handleHello(item cmdqueue.Item, payload []byte, log *zap.Logger) {
	hello, err := wire.DecodeHello(payload)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues("hello").Inc()
		return
	}

	if hello.Version != d.cfg.ProtocolVersion {
		d.sendError(item.Conn, wire.ErrWrongVersion, log)
		d.send(item.Conn, wire.EncodeGoodbye(wire.Goodbye{}), log)
		return
	}

	id := d.clients.FindClientID(hello.ProxyID)
	if id == clientid.None {
		var createErr error
		id, createErr = d.clients.CreateClientID()
		if createErr != nil {
			d.sendError(item.Conn, wire.ErrInternalError, log)
			d.send(item.Conn, wire.EncodeGoodbye(wire.Goodbye{}), log)
			return
		}
	}

	if err := d.clients.AddMapping(hello.ProxyID, id, item.Conn); err != nil {
		d.sendError(item.Conn, wire.ErrDuplicateProxyID, log)
		d.send(item.Conn, wire.EncodeGoodbye(wire.Goodbye{}), log)
		return
	}

	d.send(item.Conn, wire.EncodeHelloResponse(wire.HelloResponse{ProxyID: hello.ProxyID}), log)
	if d.cfg.SyncOnConnect {
		d.send(item.Conn, wire.EncodeSyncRequest(), log)
	}
}

func (d *Dispatcher) handleVerify(item cmdqueue.Item, h wire.Header, payload []byte, log *zap.Logger) {
	t := wire.TypeVerifyV4Request
	family := afi.IPv4
	if h.Type == wire.TypeVerifyV6Request {
		t = wire.TypeVerifyV6Request
		family = afi.IPv6
	}

	req, err := wire.DecodeVerifyRequest(t, payload)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues(t.String()).Inc()
		return
	}
	if req.Flags == 0 {
		// "A request with none of these set is a protocol error" (spec §6).
		d.sendError(item.Conn, wire.ErrInvalidPacket, log)
		return
	}

	pfx, err := prefix.New(family, req.Addr, req.PrefixLength)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues(t.String()).Inc()
		return
	}

	direction := aspath.Upstream
	if h.Reserved&downstreamBit != 0 {
		direction = aspath.Downstream
	}

	id := pathid.Invalid
	if req.HasPath {
		id = pathid.Compute(req.Path.Flatten())
	}

	// Axes whose flag is set start UNDEFINED (eligible for (re)computation);
	// axes whose flag is clear start DONOTUSE so Submit/ModifyResult leave
	// them untouched (spec §4.4, §4.6). Spec §6's wire table carries no
	// separate "default result" field, so the flags double as that signal.
	def := result.Triple{ROA: result.DoNotUse, BGPsec: result.DoNotUse, ASPA: result.DoNotUse}
	if req.Flags&wire.FlagROA != 0 {
		def = def.Set(result.AxisROA, result.Undefined)
	}
	if req.Flags&wire.FlagBGPsec != 0 {
		def = def.Set(result.AxisBGPsec, result.Undefined)
	}
	if req.Flags&wire.FlagASPA != 0 {
		def = def.Set(result.AxisASPA, result.Undefined)
	}

	_, current, err := d.updates.Submit(updatecache.UpdateID(req.UpdateID), pfx, req.OriginAS, id, item.Client, def)
	if err == updatecache.ErrTupleMismatch {
		log.Error("update ID resubmitted with a different tuple",
			zap.Uint32("update_id", req.UpdateID))
		return
	}

	newResult := result.Triple{ROA: result.DoNotUse, BGPsec: result.DoNotUse, ASPA: result.DoNotUse}
	recomputed := false

	if req.Flags&wire.FlagROA != 0 && current.ROA == result.Undefined {
		outcome := d.roa.Validate(context.Background(), req.Addr, req.PrefixLength, family, req.OriginAS)
		newResult = newResult.Set(result.AxisROA, outcome)
		metrics.ValidatorOutcomesTotal.WithLabelValues("roa", outcome.String()).Inc()
		recomputed = true
	}
	if req.Flags&wire.FlagBGPsec != 0 && current.BGPsec == result.Undefined {
		outcome := d.bgpsec.VerifySignature(req.BGPsecBlob)
		newResult = newResult.Set(result.AxisBGPsec, outcome)
		metrics.ValidatorOutcomesTotal.WithLabelValues("bgpsec", outcome.String()).Inc()
		recomputed = true
	}
	if req.Flags&wire.FlagASPA != 0 && current.ASPA == result.Undefined {
		outcome := d.validateASPA(id, req, direction, family)
		newResult = newResult.Set(result.AxisASPA, outcome)
		metrics.ValidatorOutcomesTotal.WithLabelValues("aspa", outcome.String()).Inc()
		recomputed = true
	}

	if recomputed {
		d.updates.ModifyResult(updatecache.UpdateID(req.UpdateID), newResult, false)
	}
}

// validateASPA memoizes the ASPA walk by path ID in the AS-path cache
// (spec §4.3) so repeated announcements of the same AS sequence are only
// walked against the trust store once.
func (d *Dispatcher) validateASPA(id pathid.ID, req wire.VerifyRequest, dir aspath.Direction, family afi.Family) result.Outcome {
	if !req.HasPath || id == pathid.Invalid {
		return result.Unknown
	}
	if entry, err := d.paths.Find(id); err == nil {
		return entry.ASPA
	}

	asns := req.Path.Flatten()
	outcome := aspaval.Validate(asns, req.Path.Kind(), dir, family, d.trust)
	_ = d.paths.Store(id, asns, req.Path.Kind(), dir, family, outcome) // ErrExists: a racing worker won, its value stands
	return outcome
}

func (d *Dispatcher) handleDeleteUpdate(item cmdqueue.Item, payload []byte, log *zap.Logger) {
	du, err := wire.DecodeDeleteUpdate(payload)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues("delete_update").Inc()
		return
	}

	ok := d.updates.DeleteSubscription(item.Client, updatecache.UpdateID(du.UpdateID), time.Duration(du.KeepWindow)*time.Second)
	if !ok {
		d.sendError(item.Conn, wire.ErrUpdateNotFound, log)
		return
	}
	d.clients.DecPending(item.Client)
}

func (d *Dispatcher) handleGoodbye(item cmdqueue.Item, payload []byte, log *zap.Logger) {
	keepWindow := d.cfg.DefaultKeepWindow
	if gb, err := wire.DecodeGoodbye(payload); err == nil {
		keepWindow = time.Duration(gb.KeepWindow) * time.Second
	}
	d.clients.Deactivate(item.Client, false, keepWindow)
	if item.Conn != nil {
		item.Conn.Close()
	}
}

// failConnection is the "any other type" branch of spec §4.6: send
// INVALID_PACKET, then GOODBYE, then close, then deactivate.
func (d *Dispatcher) failConnection(item cmdqueue.Item, code wire.ErrorCode, log *zap.Logger) {
	d.sendError(item.Conn, code, log)
	d.send(item.Conn, wire.EncodeGoodbye(wire.Goodbye{}), log)
	if item.Conn != nil {
		item.Conn.Close()
	}
	d.clients.Deactivate(item.Client, false, d.cfg.DefaultKeepWindow)
}

func (d *Dispatcher) sendError(conn net.Conn, code wire.ErrorCode, log *zap.Logger) {
	metrics.DispatchErrorsTotal.WithLabelValues(code.String()).Inc()
	d.send(conn, wire.EncodeError(code), log)
}

func (d *Dispatcher) send(conn net.Conn, buf []byte, log *zap.Logger) {
	if conn == nil {
		return
	}
	if _, err := conn.Write(buf); err != nil {
		log.Warn("write failed", zap.Error(err))
	}
}
