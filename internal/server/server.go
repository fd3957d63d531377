// Package server wires the HTTP API: routes, middleware chain, and the
// WebSocket endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/coinledger/internal/domain"
	"github.com/alanyoungcy/coinledger/internal/server/handler"
	"github.com/alanyoungcy/coinledger/internal/server/middleware"
	"github.com/alanyoungcy/coinledger/internal/server/ws"
)

// Per-client request budget enforced ahead of auth.
const (
	apiRateLimit  = 60
	apiRateWindow = time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Ledger  *handler.LedgerHandler
	Stakes  *handler.StakeHandler
	Orders  *handler.OrderHandler
	Swaps   *handler.SwapHandler
	History *handler.HistoryHandler
	Friends *handler.FriendHandler
}

// Server is the headless HTTP + WebSocket API server for the ledger.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes on a ServeMux, builds the middleware chain,
// and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required by convention; auth middleware applies
	// uniformly, so deployments wanting an open health probe run keyless).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Accounts, balances, and transfers.
	mux.HandleFunc("POST /api/accounts", handlers.Ledger.EnsureAccount)
	mux.HandleFunc("GET /api/balances/{user}", handlers.Ledger.GetBalances)
	mux.HandleFunc("POST /api/deposits", handlers.Ledger.Deposit)
	mux.HandleFunc("POST /api/transfers", handlers.Ledger.Transfer)

	// Transaction history, live and archived.
	mux.HandleFunc("GET /api/transactions/{user}", handlers.History.GetHistory)
	mux.HandleFunc("GET /api/transactions/archive/{month}", handlers.History.GetArchive)

	// Staking.
	mux.HandleFunc("POST /api/stakes", handlers.Stakes.Stake)
	mux.HandleFunc("GET /api/stakes/{user}", handlers.Stakes.ListStakes)
	mux.HandleFunc("DELETE /api/stakes/{user}/{asset}", handlers.Stakes.Unstake)

	// Orders and matching.
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)
	mux.HandleFunc("GET /api/trades", handlers.Orders.ReplayTrades)

	// Swaps and oracle prices.
	mux.HandleFunc("POST /api/swaps", handlers.Swaps.Swap)
	mux.HandleFunc("GET /api/prices/{asset}", handlers.Swaps.GetPrice)

	// Social graph.
	mux.HandleFunc("POST /api/friends/requests", handlers.Friends.SendRequest)
	mux.HandleFunc("POST /api/friends/requests/respond", handlers.Friends.Respond)
	mux.HandleFunc("GET /api/friends/{user}", handlers.Friends.ListFriends)
	mux.HandleFunc("GET /api/friends/{user}/requests", handlers.Friends.ListPending)
	mux.HandleFunc("POST /api/friends/transfers", handlers.Friends.TransferToFriend)

	// WebSocket event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil {
		h = middleware.RateLimit(limiter, apiRateLimit, apiRateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests up to
// the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
