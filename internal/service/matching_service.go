package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// Order placement rate limit per user.
const (
	orderRateLimit  = 10
	orderRateWindow = time.Second
)

// tradeStream is the durable Redis stream carrying executed trades; clients
// replay it to catch up after a dropped WebSocket connection.
const tradeStream = "trades"

// maxTradeReplay bounds a single replay read.
const maxTradeReplay = 100

// pairLockKey names the serialization domain of one trading pair's book.
func pairLockKey(pair domain.TradingPair) string {
	return "pair:" + pair.String()
}

// MatchingService runs the price/time-priority matching engine. All book
// mutation for a pair happens under that pair's serialization lock, so
// placement, matching, and cancellation of one book never interleave.
//
// Sell orders escrow their base amount at placement; trades settle
// symmetrically, the buyer paying tradeAmount x price of the quote asset to
// the seller and receiving the base from the seller's escrow. A trade always
// executes at the resting order's price.
type MatchingService struct {
	orders   domain.OrderStore
	balances domain.BalanceStore
	txns     domain.TransactionStore
	locks    domain.LockManager
	limiter  domain.RateLimiter
	bus      domain.EventBus
	logger   *slog.Logger

	now func() time.Time
}

// NewMatchingService creates a MatchingService with all required dependencies.
func NewMatchingService(
	orders domain.OrderStore,
	balances domain.BalanceStore,
	txns domain.TransactionStore,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	bus domain.EventBus,
	logger *slog.Logger,
) *MatchingService {
	return &MatchingService{
		orders:   orders,
		balances: balances,
		txns:     txns,
		locks:    locks,
		limiter:  limiter,
		bus:      bus,
		logger:   logger.With(slog.String("component", "matching")),
		now:      time.Now,
	}
}

// PlaceOrder validates, escrows, persists, and immediately matches a new
// limit order. The returned order reflects any fills that happened during
// placement.
func (s *MatchingService) PlaceOrder(ctx context.Context, userID string, side domain.OrderSide, pair domain.TradingPair, amount, price float64) (domain.Order, error) {
	if amount <= 0 || price <= 0 {
		return domain.Order{}, fmt.Errorf("matching_service: place order %v @ %v: %w", amount, price, domain.ErrInvalidAmount)
	}
	if pair.Base == pair.Quote {
		return domain.Order{}, fmt.Errorf("matching_service: place order %s: %w", pair, domain.ErrSameAsset)
	}

	allowed, err := s.limiter.Allow(ctx, "orders:"+userID, orderRateLimit, orderRateWindow)
	if err != nil {
		return domain.Order{}, fmt.Errorf("matching_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Order{}, fmt.Errorf("matching_service: place order for %q: %w", userID, domain.ErrRateLimited)
	}

	unlock, err := s.locks.AcquireWait(ctx, pairLockKey(pair), lockTTL)
	if err != nil {
		return domain.Order{}, fmt.Errorf("matching_service: pair lock %s: %w", pair, err)
	}
	defer unlock()

	// A sell order escrows its base amount up front so the funds cannot be
	// spent out from under the resting order.
	if side == domain.OrderSideSell {
		if err := s.balances.Lock(ctx, userID, pair.Base, amount); err != nil {
			return domain.Order{}, fmt.Errorf("matching_service: escrow %v %s for %q: %w", amount, pair.Base, userID, err)
		}
	}

	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Side:      side,
		Pair:      pair,
		Amount:    amount,
		Price:     price,
		Status:    domain.OrderStatusOpen,
		CreatedAt: s.now().UTC(),
	}

	if err := s.orders.Create(ctx, order); err != nil {
		if side == domain.OrderSideSell {
			if unlockErr := s.balances.Unlock(ctx, userID, pair.Base, amount); unlockErr != nil {
				s.logger.ErrorContext(ctx, "escrow refund failed after create error",
					slog.String("user", userID),
					slog.String("asset", pair.Base),
					slog.String("error", unlockErr.Error()),
				)
			}
		}
		return domain.Order{}, fmt.Errorf("matching_service: create order: %w", err)
	}

	if err := s.match(ctx, &order); err != nil {
		return order, fmt.Errorf("matching_service: match order %s: %w", order.ID, err)
	}

	s.publishOrderEvent(ctx, "order_placed", order)

	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("user", userID),
		slog.String("side", string(side)),
		slog.String("pair", pair.String()),
		slog.Float64("amount", amount),
		slog.Float64("price", price),
		slog.String("status", string(order.Status)),
	)

	return order, nil
}

// match walks the opposite side of the book, best price first, filling the
// incoming order until it is exhausted or no resting order crosses its limit.
// Each fill settles both legs and appends a trade record before the next
// candidate is considered.
func (s *MatchingService) match(ctx context.Context, order *domain.Order) error {
	candidates, err := s.orders.ListCrossing(ctx, order.Pair, order.Side.Opposite(), order.Price)
	if err != nil {
		return fmt.Errorf("list crossing: %w", err)
	}

walk:
	for i := range candidates {
		if order.Remaining() <= 0 {
			break
		}
		cand := &candidates[i]

		tradeAmount := order.Remaining()
		if cand.Remaining() < tradeAmount {
			tradeAmount = cand.Remaining()
		}
		tradePrice := cand.Price

		buyer, seller := order, cand
		if order.Side == domain.OrderSideSell {
			buyer, seller = cand, order
		}

		err := s.settle(ctx, buyer, seller, order.Pair, tradeAmount, tradePrice)
		switch {
		case errors.Is(err, domain.ErrInsufficientFunds):
			if buyer == order {
				// The incoming buyer cannot fund this price level; deeper
				// levels are no cheaper.
				break walk
			}
			// An underfunded resting buyer is skipped, not cancelled.
			continue
		case err != nil:
			return err
		}

		order.Filled += tradeAmount
		order.Status = order.FillStatus()
		cand.Filled += tradeAmount
		cand.Status = cand.FillStatus()

		if err := s.orders.UpdateFill(ctx, cand.ID, cand.Filled, cand.Status); err != nil {
			return fmt.Errorf("update resting fill %s: %w", cand.ID, err)
		}
		if err := s.orders.UpdateFill(ctx, order.ID, order.Filled, order.Status); err != nil {
			return fmt.Errorf("update incoming fill %s: %w", order.ID, err)
		}

		s.recordTrade(ctx, buyer, seller, order.Pair, tradeAmount, tradePrice)
	}

	return nil
}

// settle moves both legs of one fill: the buyer pays tradeAmount x price of
// the quote asset to the seller, and receives tradeAmount of the base asset
// out of the seller's escrow. A leg failure unwinds the legs already applied
// so a fill never half-settles.
func (s *MatchingService) settle(ctx context.Context, buyer, seller *domain.Order, pair domain.TradingPair, tradeAmount, tradePrice float64) error {
	quoteAmount := tradeAmount * tradePrice

	if _, err := s.balances.Adjust(ctx, buyer.UserID, pair.Quote, -quoteAmount); err != nil {
		return fmt.Errorf("buyer quote debit: %w", err)
	}

	if _, err := s.balances.Adjust(ctx, seller.UserID, pair.Quote, quoteAmount); err != nil {
		s.compensateSettlement(ctx, buyer.UserID, pair.Quote, quoteAmount, "seller quote credit failed")
		return fmt.Errorf("seller quote credit: %w", err)
	}

	if err := s.balances.SpendLocked(ctx, seller.UserID, pair.Base, tradeAmount); err != nil {
		s.compensateSettlement(ctx, seller.UserID, pair.Quote, -quoteAmount, "escrow spend failed")
		s.compensateSettlement(ctx, buyer.UserID, pair.Quote, quoteAmount, "escrow spend failed")
		return fmt.Errorf("seller escrow spend: %w", err)
	}

	if _, err := s.balances.Adjust(ctx, buyer.UserID, pair.Base, tradeAmount); err != nil {
		// The base left escrow but cannot reach the buyer. It must go back
		// into the seller's escrow, not their available balance: the sell
		// order still carries its unfilled remainder, and a later fill or
		// cancel refund draws on locked funds.
		s.restoreEscrow(ctx, seller.UserID, pair.Base, tradeAmount, "buyer base credit failed")
		s.compensateSettlement(ctx, seller.UserID, pair.Quote, -quoteAmount, "buyer base credit failed")
		s.compensateSettlement(ctx, buyer.UserID, pair.Quote, quoteAmount, "buyer base credit failed")
		return fmt.Errorf("buyer base credit: %w", err)
	}

	return nil
}

// CancelOrder marks an open or partially filled order cancelled and refunds
// a sell order's unfilled escrow. Terminal orders and orders owned by someone
// else surface as ErrNoSuchOrder.
func (s *MatchingService) CancelOrder(ctx context.Context, orderID, userID string) error {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("matching_service: cancel %s: %w", orderID, domain.ErrNoSuchOrder)
		}
		return fmt.Errorf("matching_service: cancel load %s: %w", orderID, err)
	}
	if order.UserID != userID {
		return fmt.Errorf("matching_service: cancel %s: %w", orderID, domain.ErrNoSuchOrder)
	}

	unlock, err := s.locks.AcquireWait(ctx, pairLockKey(order.Pair), lockTTL)
	if err != nil {
		return fmt.Errorf("matching_service: cancel pair lock %s: %w", order.Pair, err)
	}
	defer unlock()

	// Reload under the lock; a concurrent match may have filled it.
	order, err = s.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("matching_service: cancel reload %s: %w", orderID, err)
	}
	if order.Status != domain.OrderStatusOpen && order.Status != domain.OrderStatusPartial {
		return fmt.Errorf("matching_service: cancel %s in status %s: %w", orderID, order.Status, domain.ErrNoSuchOrder)
	}

	if err := s.orders.UpdateStatus(ctx, orderID, domain.OrderStatusCancelled); err != nil {
		return fmt.Errorf("matching_service: cancel update %s: %w", orderID, err)
	}

	if order.Side == domain.OrderSideSell && order.Remaining() > 0 {
		if err := s.balances.Unlock(ctx, order.UserID, order.Pair.Base, order.Remaining()); err != nil {
			s.logger.ErrorContext(ctx, "cancel escrow refund failed",
				slog.String("order_id", orderID),
				slog.String("user", order.UserID),
				slog.String("asset", order.Pair.Base),
				slog.Float64("amount", order.Remaining()),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("matching_service: cancel refund %s: %w", orderID, err)
		}
	}

	order.Status = domain.OrderStatusCancelled
	s.publishOrderEvent(ctx, "order_cancelled", order)

	s.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_id", orderID),
		slog.String("user", userID),
	)

	return nil
}

// GetOrder retrieves a single order by id.
func (s *MatchingService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("matching_service: get %s: %w", orderID, domain.ErrNoSuchOrder)
		}
		return domain.Order{}, fmt.Errorf("matching_service: get %s: %w", orderID, err)
	}
	return order, nil
}

// ListOpenOrders returns the user's open and partially filled orders.
func (s *MatchingService) ListOpenOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := s.orders.ListOpenByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("matching_service: list open for %q: %w", userID, err)
	}
	return orders, nil
}

// ReplayTrades reads executed trades from the durable stream, starting after
// afterID. An empty afterID replays from the beginning of the retained tail.
func (s *MatchingService) ReplayTrades(ctx context.Context, afterID string, limit int) ([]domain.StreamMessage, error) {
	if afterID == "" {
		afterID = "0"
	}
	if limit <= 0 || limit > maxTradeReplay {
		limit = maxTradeReplay
	}

	msgs, err := s.bus.StreamRead(ctx, tradeStream, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("matching_service: replay trades after %q: %w", afterID, err)
	}
	return msgs, nil
}

// recordTrade appends the trade's transaction record and publishes it on both
// the ephemeral channel and the durable trade stream.
func (s *MatchingService) recordTrade(ctx context.Context, buyer, seller *domain.Order, pair domain.TradingPair, tradeAmount, tradePrice float64) {
	rec := domain.TransactionRecord{
		ID:         uuid.NewString(),
		Kind:       domain.TxKindTrade,
		SenderID:   seller.UserID,
		ReceiverID: buyer.UserID,
		Asset:      pair.Base,
		Amount:     tradeAmount,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.txns.Append(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "trade record append failed",
			slog.String("buyer", buyer.UserID),
			slog.String("seller", seller.UserID),
			slog.String("pair", pair.String()),
			slog.String("error", err.Error()),
		)
	}

	payload, _ := json.Marshal(map[string]any{
		"event":  "trade",
		"pair":   pair.String(),
		"buyer":  buyer.UserID,
		"seller": seller.UserID,
		"amount": tradeAmount,
		"price":  tradePrice,
	})
	if err := s.bus.Publish(ctx, tradeStream, payload); err != nil {
		s.logger.WarnContext(ctx, "trade publish failed", slog.String("error", err.Error()))
	}
	if err := s.bus.StreamAppend(ctx, tradeStream, payload); err != nil {
		s.logger.WarnContext(ctx, "trade stream append failed", slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "trade executed",
		slog.String("pair", pair.String()),
		slog.String("buyer", buyer.UserID),
		slog.String("seller", seller.UserID),
		slog.Float64("amount", tradeAmount),
		slog.Float64("price", tradePrice),
	)
}

func (s *MatchingService) publishOrderEvent(ctx context.Context, event string, order domain.Order) {
	payload, _ := json.Marshal(map[string]any{
		"event":    event,
		"order_id": order.ID,
		"user":     order.UserID,
		"side":     string(order.Side),
		"pair":     order.Pair.String(),
		"status":   string(order.Status),
	})
	if err := s.bus.Publish(ctx, "orders", payload); err != nil {
		s.logger.WarnContext(ctx, "order event publish failed",
			slog.String("event", event),
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}

// restoreEscrow puts already-spent escrow back under lock: the amount is
// credited to the available balance and immediately re-locked.
func (s *MatchingService) restoreEscrow(ctx context.Context, userID, asset string, amount float64, reason string) {
	s.compensateSettlement(ctx, userID, asset, amount, reason)
	if err := s.balances.Lock(ctx, userID, asset, amount); err != nil {
		s.logger.ErrorContext(ctx, "escrow restore failed",
			slog.String("reason", reason),
			slog.String("user", userID),
			slog.String("asset", asset),
			slog.Float64("amount", amount),
			slog.String("error", err.Error()),
		)
	}
}

// compensateSettlement re-applies delta to undo part of a half-finished fill.
func (s *MatchingService) compensateSettlement(ctx context.Context, userID, asset string, delta float64, reason string) {
	if _, err := s.balances.Adjust(ctx, userID, asset, delta); err != nil {
		s.logger.ErrorContext(ctx, "settlement compensation failed",
			slog.String("reason", reason),
			slog.String("user", userID),
			slog.String("asset", asset),
			slog.Float64("delta", delta),
			slog.String("error", err.Error()),
		)
	}
}
