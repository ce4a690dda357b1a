// Package server exposes the pool search and chat relay over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/becomeliminal/dlmm-scout/engine"
	"github.com/becomeliminal/dlmm-scout/guardrails"
	"github.com/becomeliminal/dlmm-scout/logger"
	"github.com/becomeliminal/dlmm-scout/observability"
	"github.com/becomeliminal/dlmm-scout/pools"
	"github.com/becomeliminal/dlmm-scout/solana"
)

// ShutdownTimeout bounds how long Run waits for in-flight requests.
const ShutdownTimeout = 15 * time.Second

// Config holds the server's collaborators. Relay and Limiter are required.
type Config struct {
	Relay    *engine.Relay
	Limiter  *guardrails.Limiter
	Searcher *pools.Searcher         // Optional: enables /api/pools/best
	Balances *solana.BalanceService  // Optional: enables /api/balance/{address}
	Metrics  *observability.Metrics  // Optional: enables /metrics
	Logger   *zap.Logger

	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string

	// Development exposes error details in 500 responses.
	Development bool
}

// Server is the HTTP front end of the service.
type Server struct {
	relay    *engine.Relay
	limiter  *guardrails.Limiter
	searcher *pools.Searcher
	balances *solana.BalanceService
	metrics  *observability.Metrics
	logger   *zap.Logger

	origins     map[string]bool
	anyOrigin   bool
	development bool
	upgrader    websocket.Upgrader
}

// New creates a Server from cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Relay == nil {
		return nil, errors.New("server: relay is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("server: limiter is required")
	}

	s := &Server{
		relay:       cfg.Relay,
		limiter:     cfg.Limiter,
		searcher:    cfg.Searcher,
		balances:    cfg.Balances,
		metrics:     cfg.Metrics,
		logger:      logger.OrNop(cfg.Logger).Named("http"),
		origins:     make(map[string]bool),
		development: cfg.Development,
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			s.anyOrigin = true
		}
		s.origins[o] = true
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Handler returns the root handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat", s.handleChatProbe)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.searcher != nil {
		mux.HandleFunc("GET /api/pools/best", s.handleBestPool)
	}
	if s.balances != nil {
		mux.HandleFunc("GET /api/balance/{address}", s.handleBalance)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return s.withRequestID(s.withLogging(s.withCORS(mux)))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
