package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/mintdash/service/config"
	"github.com/brojonat/mintdash/service/db"
	"github.com/brojonat/mintdash/service/history"
	"github.com/brojonat/mintdash/service/lifecycle"
	"github.com/brojonat/mintdash/service/metrics"
	natspkg "github.com/brojonat/mintdash/service/nats"
	"github.com/brojonat/mintdash/service/notify"
	"github.com/brojonat/mintdash/service/recent"
	"github.com/brojonat/mintdash/service/server"
	"github.com/brojonat/mintdash/service/session"
	"github.com/brojonat/mintdash/service/solana"
	"github.com/brojonat/mintdash/service/wallet"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"network", cfg.SolanaNetwork,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	solanaRPC := solana.NewRPCClient(cfg.SolanaRPCURL)
	solanaClient := solana.NewClient(solanaRPC, cfg.SolanaNetwork, m, logger,
		solana.WithRateLimit(cfg.RPCRateLimit),
		solana.WithPollInterval(cfg.ConfirmPollInterval),
	)
	logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL)

	// Wallet gateway
	ring, err := wallet.OpenKeyring(wallet.KeyringConfig{
		ServiceName:  cfg.KeyringService,
		FileDir:      cfg.KeyringDir,
		FilePassword: cfg.KeyringPassword,
	})
	if err != nil {
		logger.Error("failed to open keyring", "error", err)
		os.Exit(1)
	}
	gateway := wallet.NewKeyringWallet(ring, cfg.WalletName, approverFor(cfg, logger), logger)

	sessions := session.NewStore(gateway, solanaClient, cfg.BalanceRefreshInterval, m, logger)
	defer sessions.Close()

	// Recent mints: Postgres when configured, otherwise a local JSON file
	var backend recent.Backend
	if cfg.DatabaseURL != "" {
		dbPool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		store := db.NewStore(dbPool, m)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare database schema", "error", err)
			os.Exit(1)
		}
		backend = store.RecentMints(recent.StorageKey)
		logger.Info("connected to database")
	} else {
		backend = recent.NewFileBackend(cfg.RecentMintsPath)
		logger.Info("storing recent mints locally", "path", cfg.RecentMintsPath)
	}
	recents := recent.New(backend, logger)

	// Notifications, fanned out over NATS when configured
	sinkOpts := []notify.Option{
		notify.WithAddress(func() string {
			addr, err := sessions.Address()
			if err != nil {
				return ""
			}
			return addr.String()
		}),
	}
	var subscriber natspkg.Subscriber
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		sinkOpts = append(sinkOpts, notify.WithPublisher(publisher))

		sub, err := natspkg.NewSubscriber(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect NATS subscriber", "error", err)
			os.Exit(1)
		}
		defer sub.Close()
		subscriber = sub
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}
	sink := notify.NewSink(cfg.NotificationTTL, m, logger, sinkOpts...)

	runner := lifecycle.NewRunner(solanaClient, sessions, gateway, sink, m, logger,
		lifecycle.WithConfirmTimeout(cfg.ConfirmTimeout),
		lifecycle.WithRecents(recents),
	)
	reader := history.NewReader(solanaClient, cfg.HistoryLimit, logger)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, server.Dependencies{
		Sessions:      sessions,
		Operations:    runner,
		History:       reader,
		Recent:        recents,
		Notifications: sink,
		Subscriber:    subscriber,
	}, m, logger)

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc", cfg.SolanaRPCURL,
		"wallet", cfg.WalletName,
		"nats_url", cfg.NATSURL,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// approverFor picks how signature requests are decided.
func approverFor(cfg *config.Config, logger *slog.Logger) wallet.Approver {
	switch {
	case cfg.AutoApproveSigning:
		logger.Warn("signature requests are approved automatically")
		return wallet.AutoApprove{}
	case cfg.PromptSigning:
		return wallet.NewPromptApprover(os.Stdin, os.Stderr)
	default:
		logger.Info("signing disabled; set AUTO_APPROVE_SIGNING or PROMPT_SIGNING to allow operations")
		return wallet.DenyAll{}
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
