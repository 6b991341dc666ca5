// Package httpapi is the HTTP surface bootstrap (§4.9): a net/http.ServeMux
// wired through the trusted-host, CORS, telemetry, auth, rate-limit, and
// cache-control middleware chain, exposing /metrics via promhttp and the
// /api/* routes registerRoutes mounts. Grounded on the teacher's
// gateway.startHTTPServer/stopHTTPServer pattern.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saptiva-copilot/gateway/internal/auth"
	"github.com/saptiva-copilot/gateway/internal/chatpipeline"
	"github.com/saptiva-copilot/gateway/internal/chatresponse"
	"github.com/saptiva-copilot/gateway/internal/config"
	"github.com/saptiva-copilot/gateway/internal/mcp"
	"github.com/saptiva-copilot/gateway/internal/observability"
	"github.com/saptiva-copilot/gateway/internal/ratelimit"
	"github.com/saptiva-copilot/gateway/internal/sessions"
)

// Deps collects every collaborator the HTTP surface dispatches into. All
// fields are required except where noted.
type Deps struct {
	Config      *config.Config
	Auth        *auth.Service
	Chat        *chatpipeline.Chain
	ChatService *chatpipeline.Service
	Standard    *chatpipeline.StandardHandler
	Sessions    *sessions.Service
	Dispatcher  *mcp.Dispatcher
	Registry    *mcp.LazyRegistry
	Tasks       *mcp.TaskManager
	CacheAdmin  *mcp.RedisResultCache
	Limiter     *ratelimit.Limiter
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Server wraps the gateway's http.Server, mirroring the teacher's
// httpServer/httpListener pair so Start/Stop can be called independently of
// the rest of process lifecycle.
type Server struct {
	deps     Deps
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewServer builds the mux, wraps it in the middleware chain, and returns an
// unstarted Server.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handleHealthz)

	registerRoutes(mux, deps)

	handler := chain(mux, deps, logger)

	return &Server{
		deps:   deps,
		logger: logger,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds addr and serves in the background. It returns once the
// listener is open; Serve errors after that are logged, not returned.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", addr)
	return nil
}

// Stop gracefully drains in-flight requests before closing the listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx := ctx
	if shutdownCtx == nil {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
		return err
	}
	return nil
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
