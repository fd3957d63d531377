package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/coinledger/internal/domain"
	"github.com/alanyoungcy/coinledger/internal/server"
	"github.com/alanyoungcy/coinledger/internal/server/handler"
	"github.com/alanyoungcy/coinledger/internal/server/ws"
	"github.com/alanyoungcy/coinledger/internal/service"
)

// services bundles the constructed service layer shared by the modes.
type services struct {
	ledger   *service.LedgerService
	staking  *service.StakingService
	matching *service.MatchingService
	prices   *service.PriceService
	swaps    *service.SwapService
	history  *service.HistoryService
	friends  *service.FriendService
}

// buildServices constructs the service layer from wired dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	ledger := service.NewLedgerService(
		deps.AccountStore, deps.BalanceStore, deps.TransactionStore,
		deps.LockManager, deps.EventBus, a.logger,
	)
	staking := service.NewStakingService(
		deps.StakeStore, deps.BalanceStore, deps.TransactionStore,
		deps.LockManager, deps.EventBus,
		a.cfg.StakeableAssets(), a.cfg.Staking.DefaultAPY, a.logger,
	)
	matching := service.NewMatchingService(
		deps.OrderStore, deps.BalanceStore, deps.TransactionStore,
		deps.LockManager, deps.RateLimiter, deps.EventBus, a.logger,
	)
	prices := service.NewPriceService(
		deps.PriceCache, deps.PriceSource, a.cfg.Oracle.FiatCurrency, a.logger,
	)
	swaps := service.NewSwapService(
		deps.BalanceStore, deps.TransactionStore, deps.LockManager,
		prices, deps.EventBus, a.logger,
	)
	history := service.NewHistoryService(deps.TransactionStore, deps.ArchiveReader, a.logger)
	friends := service.NewFriendService(
		deps.FriendStore, ledger, deps.EventBus,
		a.cfg.Friends.RequestTTL.Duration, a.cfg.Friends.SweepInterval.Duration,
		a.logger,
	)

	return &services{
		ledger:   ledger,
		staking:  staking,
		matching: matching,
		prices:   prices,
		swaps:    swaps,
		history:  history,
		friends:  friends,
	}
}

// ServeMode runs the HTTP + WebSocket API with the background workers: the
// friend-request sweeper and, when enabled, the transaction-log archiver.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svcs := a.buildServices(deps)

	hub := ws.NewHub(deps.EventBus, a.logger)

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Ledger:  handler.NewLedgerHandler(svcs.ledger, a.logger),
		Stakes:  handler.NewStakeHandler(svcs.staking, a.logger),
		Orders:  handler.NewOrderHandler(svcs.matching, a.logger),
		Swaps:   handler.NewSwapHandler(svcs.swaps, svcs.prices, a.logger),
		History: handler.NewHistoryHandler(svcs.history, a.logger),
		Friends: handler.NewFriendHandler(svcs.friends, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		return svcs.friends.RunSweeper(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps.Archiver)
		})
	}

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runArchiver moves transaction records past the retention window to blob
// storage on a fixed interval.
func (a *App) runArchiver(ctx context.Context, archiver domain.Archiver) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "transaction archiver started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			count, err := archiver.ArchiveTransactions(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "transaction archive run failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "transaction archive run complete",
					slog.Int64("archived", count),
				)
			}
		}
	}
}

// DemoMode seeds two accounts and walks the full operation surface once:
// deposits, a transfer, staking, order matching, a swap, and the friend flow.
// Useful for smoke-testing a fresh deployment end to end.
func (a *App) DemoMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting demo mode")

	svcs := a.buildServices(deps)
	log := a.logger

	const (
		alice = "alice"
		bob   = "bob"
	)

	for _, user := range []string{alice, bob} {
		if err := svcs.ledger.EnsureAccount(ctx, user); err != nil {
			return err
		}
	}

	// Fund both wallets.
	if _, err := svcs.ledger.Deposit(ctx, alice, "ethereum", 2.0); err != nil {
		return err
	}
	if _, err := svcs.ledger.Deposit(ctx, alice, "solana", 50.0); err != nil {
		return err
	}
	if _, err := svcs.ledger.Deposit(ctx, bob, "ethereum", 1.0); err != nil {
		return err
	}

	// Plain transfer.
	if err := svcs.ledger.Transfer(ctx, alice, bob, "ethereum", 0.25); err != nil {
		return err
	}

	// Stake, inspect, and leave the stake accruing.
	if _, err := svcs.staking.Stake(ctx, alice, "solana", 10.0, 0.05); err != nil {
		return err
	}
	stakes, err := svcs.staking.ListStakes(ctx, alice)
	if err != nil {
		return err
	}
	for _, s := range stakes {
		log.InfoContext(ctx, "demo: stake snapshot",
			slog.String("asset", s.Asset),
			slog.Float64("principal", s.Principal),
			slog.Float64("accrued", s.AccruedReward),
		)
	}

	// Cross orders: bob sells, alice buys at bob's price.
	pair := domain.TradingPair{Base: "ethereum", Quote: "solana"}
	sell, err := svcs.matching.PlaceOrder(ctx, bob, domain.OrderSideSell, pair, 0.5, 20.0)
	if err != nil {
		return err
	}
	buy, err := svcs.matching.PlaceOrder(ctx, alice, domain.OrderSideBuy, pair, 0.5, 21.0)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "demo: orders matched",
		slog.String("sell_status", string(sell.Status)),
		slog.String("buy_status", string(buy.Status)),
		slog.Float64("buy_filled", buy.Filled),
	)

	// Swap needs the oracle; tolerate it being unreachable in a demo run.
	if result, err := svcs.swaps.Swap(ctx, alice, "solana", "ethereum", 5.0); err != nil {
		log.WarnContext(ctx, "demo: swap skipped", slog.String("error", err.Error()))
	} else {
		log.InfoContext(ctx, "demo: swap settled",
			slog.Float64("received", result.Received),
			slog.Float64("rate", result.Rate),
		)
	}

	// Friend flow: request, accept, transfer.
	if _, err := svcs.friends.SendRequest(ctx, alice, bob); err != nil {
		return err
	}
	if err := svcs.friends.Respond(ctx, alice, bob, true); err != nil {
		return err
	}
	if err := svcs.friends.TransferToFriend(ctx, bob, alice, "ethereum", 0.1); err != nil {
		return err
	}

	// Classified history for both participants.
	for _, user := range []string{alice, bob} {
		entries, err := svcs.history.History(ctx, user, 20)
		if err != nil {
			return err
		}
		for _, e := range entries {
			log.InfoContext(ctx, "demo: history entry",
				slog.String("user", user),
				slog.String("kind", string(e.Record.Kind)),
				slog.String("direction", string(e.Direction)),
				slog.String("asset", e.Record.Asset),
				slog.Float64("amount", e.Record.Amount),
			)
		}
	}

	log.InfoContext(ctx, "demo complete")
	return nil
}
