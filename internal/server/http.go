// Package server is the external socket layer: the TCP listener that frames
// a proxy connection's byte stream into discrete command-queue items (spec
// §4.6 collaborator contract), and the HTTP control surface (health,
// readiness, metrics, trust-store debug dump). Adapted from the teacher's
// internal/http/server.go.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/srx-go/rpki-validator/internal/aspatrie"
)

// ConsumerStatus reports whether the trust-feed consumer holds its Kafka
// partition assignment.
type ConsumerStatus interface {
	IsJoined() bool
}

// DBChecker abstracts the Postgres health check for testability.
type DBChecker interface {
	Ping(ctx context.Context) error
}

// HTTPServer is the control-plane HTTP surface.
type HTTPServer struct {
	srv    *http.Server
	db     DBChecker
	feed   ConsumerStatus
	trust  *aspatrie.Store
	logger *zap.Logger
}

// NewHTTPServer builds the control-plane HTTP server. db or feed may be nil,
// in which case the corresponding /readyz check always reports failure.
func NewHTTPServer(addr string, db DBChecker, feed ConsumerStatus, trust *aspatrie.Store, logger *zap.Logger) *HTTPServer {
	s := &HTTPServer{db: db, feed: feed, trust: trust, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/debug/aspa", s.handleDebugASPA)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start binds the listener and serves in the background.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			checks["postgres"] = "error"
			allOK = false
		} else {
			checks["postgres"] = "ok"
		}
	} else {
		checks["postgres"] = "error"
		allOK = false
	}

	if s.feed != nil && s.feed.IsJoined() {
		checks["trust_feed"] = "ok"
	} else {
		checks["trust_feed"] = "not_joined"
		allOK = false
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

// handleDebugASPA dumps the trust store's contents, gzip-compressed, for
// operator inspection (spec §9: "cheap prefix iteration for range debug
// dumps").
func (s *HTTPServer) handleDebugASPA(w http.ResponseWriter, r *http.Request) {
	dump := s.trust.Dump()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Encoding", "gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	gz.Write(dump)
}
