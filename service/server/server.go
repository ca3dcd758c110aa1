package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/ultraswap/service/actions"
	"github.com/brojonat/ultraswap/service/db"
	"github.com/brojonat/ultraswap/service/metrics"
	natspkg "github.com/brojonat/ultraswap/service/nats"
	"github.com/brojonat/ultraswap/service/pairs"
	"github.com/brojonat/ultraswap/service/session"
	solanapkg "github.com/brojonat/ultraswap/service/solana"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// App is the set of user operations the API exposes.
type App interface {
	Session() *session.Session
	SetKey(ctx context.Context, encoded string) (*session.Session, error)

	ListPairs(ctx context.Context) ([]*db.Pair, error)
	GetPair(ctx context.Context, id int64) (*db.Pair, error)
	CreatePair(ctx context.Context, params db.PairParams) (*db.Pair, error)
	UpdatePair(ctx context.Context, id int64, params db.PairParams) (*db.Pair, error)
	DeletePair(ctx context.Context, id int64) error
	Import(ctx context.Context, r io.Reader, source string) (*pairs.ImportReport, error)

	Balance(ctx context.Context, mint string) (*solanapkg.Balance, error)
	RefreshBalance(ctx context.Context, pairID int64) (string, error)
	Buy(ctx context.Context, pairID int64) (string, error)
	Sell(ctx context.Context, pairID int64, percent decimal.Decimal) (string, error)
	RunAll(ctx context.Context, percent decimal.Decimal) ([]actions.Dispatch, error)
	ReceivedAmount(ctx context.Context, signature, mint string) (int64, bool, error)
}

// Server represents the HTTP server for the swap tool.
type Server struct {
	addr       string
	app        App
	subscriber natspkg.Subscriber
	defaults   pairs.Defaults
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The subscriber is optional - if nil, the console stream endpoint is not available.
// The metrics is optional - if nil, the metrics endpoint is not available.
func New(addr string, app App, subscriber natspkg.Subscriber, defaults pairs.Defaults, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:       addr,
		app:        app,
		subscriber: subscriber,
		defaults:   defaults,
		metrics:    m,
		logger:     logger,
	}
}

// Handler builds the routed handler, CORS included.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.Handler) {
		if s.metrics != nil {
			h = metrics.HTTPMetricsMiddleware(s.metrics, pattern)(h)
		}
		mux.Handle(pattern, h)
	}

	// Key routes
	route("PUT /api/v1/key", handleSetKey(s.app, s.logger))
	route("GET /api/v1/key", handleGetKey(s.app))

	// Pair routes
	route("GET /api/v1/pairs", handleListPairs(s.app, s.logger))
	route("POST /api/v1/pairs", handleCreatePair(s.app, s.defaults, s.logger))
	route("POST /api/v1/pairs/import", handleImportPairs(s.app, s.logger))
	route("GET /api/v1/pairs/{id}", handleGetPair(s.app, s.logger))
	route("PUT /api/v1/pairs/{id}", handleUpdatePair(s.app, s.defaults, s.logger))
	route("DELETE /api/v1/pairs/{id}", handleDeletePair(s.app, s.logger))

	// Task routes
	route("POST /api/v1/pairs/{id}/balance", handleRefreshBalance(s.app, s.logger))
	route("POST /api/v1/pairs/{id}/buy", handleBuy(s.app, s.logger))
	route("POST /api/v1/pairs/{id}/sell", handleSell(s.app, s.logger))
	route("POST /api/v1/swaps/run-all", handleRunAll(s.app, s.logger))

	// Chain queries
	route("GET /api/v1/balances/{mint}", handleBalance(s.app, s.logger))
	route("GET /api/v1/transactions/{signature}/received", handleReceivedAmount(s.app, s.logger))

	if s.subscriber != nil {
		route("GET /api/v1/stream/console", handleStreamConsole(s.subscriber, s.metrics, s.logger))
		s.logger.Info("console stream endpoint enabled")
	} else {
		s.logger.Warn("console subscriber not configured, streaming endpoint disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server. It blocks until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
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
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
