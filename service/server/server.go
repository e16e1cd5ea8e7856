package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/mintdash/service/history"
	"github.com/brojonat/mintdash/service/lifecycle"
	"github.com/brojonat/mintdash/service/metrics"
	natspkg "github.com/brojonat/mintdash/service/nats"
	"github.com/brojonat/mintdash/service/notify"
	"github.com/brojonat/mintdash/service/session"
	mintsolana "github.com/brojonat/mintdash/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionStore is the wallet session the dashboard operates on.
type SessionStore interface {
	Connect(ctx context.Context) (session.Session, error)
	Disconnect(ctx context.Context)
	Snapshot() session.Session
	Address() (solana.PublicKey, error)
}

// Operations runs token operations and ledger reads for the session.
type Operations interface {
	Create(ctx context.Context, req lifecycle.CreateRequest) (lifecycle.Result, error)
	Mint(ctx context.Context, req lifecycle.MintRequest) (lifecycle.Result, error)
	Send(ctx context.Context, req lifecycle.SendRequest) (lifecycle.Result, error)
	ListTokenBalances(ctx context.Context) ([]lifecycle.TokenBalanceEntry, error)
	MintInfo(ctx context.Context, address string) (*mintsolana.MintInfo, error)
}

// HistoryReader lists recent transactions for an address.
type HistoryReader interface {
	List(ctx context.Context, address solana.PublicKey) []history.TransactionRecord
}

// RecentMints lists recently used mint addresses.
type RecentMints interface {
	Entries(ctx context.Context) ([]string, error)
}

// Notifications exposes the current notification.
type Notifications interface {
	Current() (notify.Notification, bool)
	Notify(ctx context.Context, kind notify.Kind, operation, message string) notify.Notification
	Dismiss()
}

// Dependencies are the components the server exposes over HTTP.
type Dependencies struct {
	Sessions      SessionStore
	Operations    Operations
	History       HistoryReader
	Recent        RecentMints
	Notifications Notifications

	// Subscriber is optional. When nil the SSE endpoint is not registered.
	Subscriber natspkg.Subscriber
}

// Server represents the HTTP server for the token dashboard.
type Server struct {
	addr    string
	deps    Dependencies
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, the /metrics endpoint won't be available.
func New(addr string, deps Dependencies, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		deps:    deps,
		metrics: m,
		logger:  logger,
	}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Session routes
	route("POST /api/v1/session", "/api/v1/session", handleConnect(s.deps.Sessions, s.deps.Notifications, s.logger))
	route("DELETE /api/v1/session", "/api/v1/session", handleDisconnect(s.deps.Sessions, s.logger))
	route("GET /api/v1/session", "/api/v1/session", handleGetSession(s.deps.Sessions))

	// Token operations
	route("POST /api/v1/mints", "/api/v1/mints", handleCreateMint(s.deps.Operations, s.deps.Notifications, s.logger))
	route("POST /api/v1/mints/{mint}/supply", "/api/v1/mints/{mint}/supply", handleMintSupply(s.deps.Operations, s.deps.Notifications, s.logger))
	route("GET /api/v1/mints/{mint}", "/api/v1/mints/{mint}", handleGetMint(s.deps.Operations, s.logger))
	route("POST /api/v1/transfers", "/api/v1/transfers", handleSend(s.deps.Operations, s.deps.Notifications, s.logger))

	// Reads
	route("GET /api/v1/token-accounts", "/api/v1/token-accounts", handleListTokenAccounts(s.deps.Operations, s.logger))
	route("GET /api/v1/transactions", "/api/v1/transactions", handleListTransactions(s.deps.Sessions, s.deps.History, s.logger))
	route("GET /api/v1/recent-mints", "/api/v1/recent-mints", handleListRecentMints(s.deps.Recent, s.logger))
	route("GET /api/v1/notification", "/api/v1/notification", handleGetNotification(s.deps.Notifications))
	route("DELETE /api/v1/notification", "/api/v1/notification", handleDismissNotification(s.deps.Notifications))

	// SSE streaming endpoint (if a NATS subscriber is configured)
	if s.deps.Subscriber != nil {
		route("GET /api/v1/stream/notifications", "/api/v1/stream/notifications",
			handleStreamNotifications(s.deps.Subscriber, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("NATS subscriber not configured, streaming endpoint disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: operations wait for confirmation and SSE
		// streams stay open.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
