package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/srx-go/rpki-validator/internal/clientid"
	"github.com/srx-go/rpki-validator/internal/clientmap"
	"github.com/srx-go/rpki-validator/internal/cmdqueue"
	"github.com/srx-go/rpki-validator/internal/wire"
)

// maxFrameSize bounds a single PDU's total length, guarding against a
// malformed or hostile total-length field asking for an unbounded read.
const maxFrameSize = 1 << 20

// Listener accepts proxy connections and frames each connection's byte
// stream into discrete wire.Header-delimited buffers, pushing one
// cmdqueue.Item per frame (spec §4.6's "external socket layer"). It knows
// nothing about the protocol beyond the common header's total-length
// field — the dispatch worker pool resolves a frame's client ID from the
// socket itself (clientmap.Map.FindByConn) since a frame carries no client
// identifier of its own.
type Listener struct {
	queue   *cmdqueue.Queue
	clients *clientmap.Map
	logger  *zap.Logger

	mu      sync.Mutex
	ln      net.Listener
	wg      sync.WaitGroup
	closing bool
}

// NewListener builds a Listener that pushes framed messages onto queue.
func NewListener(queue *cmdqueue.Queue, clients *clientmap.Map, logger *zap.Logger) *Listener {
	return &Listener{queue: queue, clients: clients, logger: logger}
}

// Serve binds addr and accepts connections until Close is called.
func (l *Listener) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	l.logger.Info("proxy listener started", zap.String("addr", addr))
	go l.acceptLoop(ln)
	return nil
}

func (l *Listener) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			l.mu.Lock()
			closing := l.closing
			l.mu.Unlock()
			if closing {
				return
			}
			l.logger.Error("accept failed", zap.Error(err))
			return
		}
		l.wg.Add(1)
		go l.handleConn(conn)
	}
}

// Close stops accepting new connections. In-flight connections are left to
// drain or error out on their own reads.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.closing = true
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

// Wait blocks until every connection handler goroutine has exited.
func (l *Listener) Wait() {
	l.wg.Wait()
}

func (l *Listener) handleConn(conn net.Conn) {
	defer l.wg.Done()
	log := l.logger.With(zap.String("remote", conn.RemoteAddr().String()))
	log.Debug("connection accepted")

	r := bufio.NewReader(conn)
	for {
		frame, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("connection read error", zap.Error(err))
			}
			l.onDisconnect(conn, log)
			return
		}
		l.queue.Push(cmdqueue.Item{
			Kind:    cmdqueue.ProxyMessage,
			Payload: frame,
			Client:  clientid.None,
			Conn:    conn,
		})
	}
}

// onDisconnect treats an unexpected socket close as a crash (spec §4.5):
// the client's mapping is retained rather than released on a normal
// keep-window timer, so a reconnect within the proxy's own recovery window
// can resume its subscriptions. A clean disconnect instead always arrives
// as a GOODBYE frame, handled by the dispatcher itself.
func (l *Listener) onDisconnect(conn net.Conn, log *zap.Logger) {
	id := l.clients.FindByConn(conn)
	if id == clientid.None {
		return
	}
	log.Info("connection closed unexpectedly, marking client crashed", zap.Int("client_id", int(id)))
	l.clients.Deactivate(id, true, 0)
}

// readFrame reads one header-plus-payload buffer off r, returning the full
// frame including its header.
func readFrame(r *bufio.Reader) ([]byte, error) {
	header := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	h, err := wire.DecodeHeader(header)
	if err != nil {
		return nil, err
	}
	if h.TotalLength > maxFrameSize {
		return nil, errors.New("server: frame exceeds maximum size")
	}

	frame := make([]byte, h.TotalLength)
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[wire.HeaderSize:]); err != nil {
		return nil, err
	}
	return frame, nil
}
