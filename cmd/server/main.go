package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/ultraswap/service/actions"
	"github.com/brojonat/ultraswap/service/config"
	"github.com/brojonat/ultraswap/service/db"
	"github.com/brojonat/ultraswap/service/dispatch"
	"github.com/brojonat/ultraswap/service/metrics"
	natspkg "github.com/brojonat/ultraswap/service/nats"
	"github.com/brojonat/ultraswap/service/pairs"
	"github.com/brojonat/ultraswap/service/server"
	"github.com/brojonat/ultraswap/service/session"
	"github.com/brojonat/ultraswap/service/solana"
	"github.com/brojonat/ultraswap/service/swap"
	"github.com/brojonat/ultraswap/service/temporal"
	"github.com/brojonat/ultraswap/service/ultra"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	store := db.NewStore(dbPool, metricsCollector)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize Solana RPC client on one of the configured endpoints
	rpcURL, err := solana.SelectRandomEndpoint(cfg.SolanaRPCURLs)
	if err != nil {
		logger.Error("failed to select solana endpoint", "error", err)
		os.Exit(1)
	}
	solanaClient := solana.NewClient(solana.NewRPCClient(rpcURL), solana.EndpointLabel(rpcURL), metricsCollector, logger)
	logger.Info("initialized solana RPC client",
		"endpoint", solana.EndpointLabel(rpcURL),
		"total_endpoints", len(cfg.SolanaRPCURLs),
	)

	ultraClient := ultra.NewClient(cfg.UltraAPIURL, &http.Client{Timeout: cfg.HTTPTimeout}, metricsCollector, logger)

	var taker solanago.PublicKey
	if cfg.TakerAddress != "" {
		taker, err = solanago.PublicKeyFromBase58(cfg.TakerAddress)
		if err != nil {
			logger.Error("invalid TAKER_ADDRESS", "error", err)
			os.Exit(1)
		}
	}

	// Console bus: JetStream when NATS is configured, in-process otherwise
	var bus natspkg.Bus
	if cfg.NATSURL != "" {
		jsBus, err := natspkg.NewJetStreamBus(cfg.NATSURL, "ultraswap-server", metricsCollector, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		bus = jsBus
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	} else {
		bus = natspkg.NewLocalBus(logger)
		logger.Info("NATS not configured, console events stay in-process")
	}
	defer bus.Close()

	// Temporal schedules are optional
	var scheduler temporal.Scheduler
	if cfg.TemporalEnabled {
		temporalClient, err := temporal.NewClient(
			cfg.TemporalHost,
			cfg.TemporalNamespace,
			cfg.TemporalTaskQueue,
			logger,
		)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()
		scheduler = temporalClient
		logger.Info("connected to temporal for balance schedules",
			"host", cfg.TemporalHost,
			"namespace", cfg.TemporalNamespace,
		)
	}

	dispatcher := dispatch.New(cfg.WorkerConcurrency, metricsCollector, logger)

	app, err := actions.New(actions.Config{
		KeyPath:      cfg.PrivateKeyPath,
		Taker:        taker,
		PollInterval: cfg.BalancePollInterval,
		Store:        store,
		Balances:     solanaClient,
		NewSwapper: func(s *session.Session) (actions.Swapper, error) {
			return swap.New(swap.Config{
				Session:        s,
				ExcludeDexes:   cfg.ExcludeDexes,
				ExcludeRouters: cfg.ExcludeRouters,
				ExplorerTxURL:  cfg.ExplorerTxURL,
			}, ultraClient, metricsCollector, logger)
		},
		Dispatcher: dispatcher,
		Publisher:  bus,
		Scheduler:  scheduler,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to create actions", "error", err)
		os.Exit(1)
	}

	loaded, err := app.LoadKey(ctx)
	if err != nil {
		logger.Warn("failed to load private key", "path", cfg.PrivateKeyPath, "error", err)
	}
	if loaded {
		app.SyncSchedules(ctx)
	}

	defaults := pairs.Defaults{
		SlippageBps:         cfg.DefaultSlippageBps,
		PriorityFeeLamports: cfg.DefaultPriorityFeeLamports,
	}
	httpServer := server.New(cfg.ServerAddr, app, bus, defaults, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"key_loaded", loaded,
		"nats_enabled", cfg.NATSURL != "",
		"temporal_enabled", cfg.TemporalEnabled,
		"worker_concurrency", cfg.WorkerConcurrency,
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
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
		}

		// Running swaps see their context cancelled.
		dispatcher.Close()
		logger.Info("server shutdown complete")
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
