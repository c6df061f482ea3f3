// Package server exposes the lecture session over HTTP: a WebSocket
// endpoint carrying the live session protocol, plus health and metrics
// endpoints for operations.
//
// Each accepted WebSocket connection gets its own [lecture.Controller]
// whose recognition, permission and audio-playback capabilities all live
// in the connected browser, adapted through a [wsbridge.Bridge]. The
// server therefore holds no cross-connection session state; closing the
// connection discards the session.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mzajc/lektor/internal/health"
	"github.com/mzajc/lektor/internal/lecture"
	"github.com/mzajc/lektor/internal/observe"
	"github.com/mzajc/lektor/pkg/persistence"
	"github.com/mzajc/lektor/pkg/provider/recognition"
	"github.com/mzajc/lektor/pkg/provider/synthesis"
)

// shutdownTimeout bounds the graceful drain of in-flight HTTP requests
// when Run's context is cancelled.
const shutdownTimeout = 10 * time.Second

// AudioSink receives encoded synthesized audio. The per-connection bridge's
// SendAudio satisfies it.
type AudioSink func(ctx context.Context, audio []byte) error

// Config configures a [Server]. Store is required; everything else has a
// usable zero value.
type Config struct {
	// ListenAddr is the TCP address to listen on. Default ":8080".
	ListenAddr string

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	// AllowedOrigins are origin patterns accepted for WebSocket upgrades,
	// as understood by [websocket.AcceptOptions]. Empty means same-origin
	// only.
	AllowedOrigins []string

	// Recognition is handed to every engine run the sessions start.
	Recognition recognition.Config

	// Store persists finished lectures. Shared by all sessions.
	Store persistence.Store

	// Metadata proposes titles and subjects for untitled lectures. Optional.
	Metadata lecture.MetadataGenerator

	// Corrector post-processes exported text before persisting. Optional.
	Corrector lecture.TextCorrector

	// NewSynthesis builds a per-connection synthesis provider over the
	// connection's audio sink. Nil disables the speak commands.
	NewSynthesis func(sink AudioSink) (synthesis.Provider, error)

	// Readiness checks are served on /readyz in addition to the defaults.
	Readiness []health.Checker

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server serves the WebSocket session endpoint and the operational
// endpoints. Create one with [New] and drive it with [Server.Run].
type Server struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics
}

// New validates cfg and builds a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: Store must not be nil")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Server{cfg: cfg, log: cfg.Logger, metrics: cfg.Metrics}, nil
}

// Handler assembles the route table:
//
//	GET /ws       — WebSocket session endpoint
//	GET /healthz  — liveness
//	GET /readyz   — readiness (configured checkers)
//	GET /metrics  — Prometheus scrape endpoint
func (s *Server) Handler() http.Handler {
	ops := http.NewServeMux()
	health.New(s.cfg.Readiness...).Register(ops)
	ops.Handle("GET /metrics", promhttp.Handler())

	mux := http.NewServeMux()
	mux.Handle("/", observe.Middleware(s.metrics)(ops))
	// The middleware's response wrapper hides http.Hijacker, which the
	// WebSocket upgrade needs, so /ws bypasses it.
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Run listens on the configured address and serves until ctx is cancelled,
// then drains gracefully. It returns nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("server listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.CertFile != "")
		var err error
		if s.cfg.CertFile != "" {
			err = srv.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen on %s: %w", s.cfg.ListenAddr, err)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// handleWS upgrades the connection and services one lecture session on it.
// The handler does not return until the connection closes, so the session's
// lifetime is exactly the request's.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	s.metrics.ActiveSessions.Add(r.Context(), 1)
	defer s.metrics.ActiveSessions.Add(context.Background(), -1)

	sess, err := s.newSession(conn)
	if err != nil {
		s.log.Error("session setup failed", "error", err)
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	s.log.Info("session opened", "remote", r.RemoteAddr)
	sess.run(r.Context())
	s.log.Info("session closed", "remote", r.RemoteAddr)
	conn.Close(websocket.StatusNormalClosure, "")
}
