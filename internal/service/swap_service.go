package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// SwapResult reports a settled swap.
type SwapResult struct {
	FromAsset string
	ToAsset   string
	Spent     float64
	Received  float64
	Rate      float64
}

// SwapService exchanges one asset for another inside a single user's wallet
// at the oracle cross-rate. Rates are resolved before any balance moves, so
// an unavailable price leaves the wallet untouched.
type SwapService struct {
	balances domain.BalanceStore
	txns     domain.TransactionStore
	locks    domain.LockManager
	prices   *PriceService
	bus      domain.EventBus
	logger   *slog.Logger

	now func() time.Time
}

// NewSwapService creates a SwapService with all required dependencies.
func NewSwapService(
	balances domain.BalanceStore,
	txns domain.TransactionStore,
	locks domain.LockManager,
	prices *PriceService,
	bus domain.EventBus,
	logger *slog.Logger,
) *SwapService {
	return &SwapService{
		balances: balances,
		txns:     txns,
		locks:    locks,
		prices:   prices,
		bus:      bus,
		logger:   logger.With(slog.String("component", "swap")),
		now:      time.Now,
	}
}

// Swap converts amount of the from asset into the to asset at the current
// oracle cross-rate. The debit and credit are one logical unit: a failed
// credit rolls the debit back.
func (s *SwapService) Swap(ctx context.Context, userID, from, to string, amount float64) (SwapResult, error) {
	if from == to {
		return SwapResult{}, fmt.Errorf("swap_service: swap %s->%s: %w", from, to, domain.ErrSameAsset)
	}
	if amount <= 0 {
		return SwapResult{}, fmt.Errorf("swap_service: swap %v %s: %w", amount, from, domain.ErrInvalidAmount)
	}

	rate, err := s.prices.CrossRate(ctx, from, to)
	if err != nil {
		return SwapResult{}, fmt.Errorf("swap_service: swap rate %s->%s: %w", from, to, err)
	}
	received := amount * rate

	unlockFrom, err := s.locks.AcquireWait(ctx, balanceLockKey(userID, from), lockTTL)
	if err != nil {
		return SwapResult{}, fmt.Errorf("swap_service: swap lock %s/%s: %w", userID, from, err)
	}
	defer unlockFrom()

	if _, err := s.balances.Adjust(ctx, userID, from, -amount); err != nil {
		return SwapResult{}, fmt.Errorf("swap_service: swap debit %s/%s: %w", userID, from, err)
	}

	if _, err := s.balances.Adjust(ctx, userID, to, received); err != nil {
		if _, backErr := s.balances.Adjust(ctx, userID, from, amount); backErr != nil {
			s.logger.ErrorContext(ctx, "swap compensation failed",
				slog.String("user", userID),
				slog.String("asset", from),
				slog.Float64("amount", amount),
				slog.String("error", backErr.Error()),
			)
		}
		return SwapResult{}, fmt.Errorf("swap_service: swap credit %s/%s: %w", userID, to, err)
	}

	rec := domain.TransactionRecord{
		ID:         uuid.NewString(),
		Kind:       domain.TxKindSwap,
		SenderID:   userID,
		ReceiverID: userID,
		Asset:      from,
		Amount:     amount,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.txns.Append(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "swap record append failed",
			slog.String("user", userID),
			slog.String("from", from),
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
	}

	payload, _ := json.Marshal(map[string]any{
		"event":    "swap",
		"user":     userID,
		"from":     from,
		"to":       to,
		"spent":    amount,
		"received": received,
		"rate":     rate,
	})
	if err := s.bus.Publish(ctx, "swaps", payload); err != nil {
		s.logger.WarnContext(ctx, "swap publish failed", slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "swap settled",
		slog.String("user", userID),
		slog.String("from", from),
		slog.String("to", to),
		slog.Float64("spent", amount),
		slog.Float64("received", received),
		slog.Float64("rate", rate),
	)

	return SwapResult{
		FromAsset: from,
		ToAsset:   to,
		Spent:     amount,
		Received:  received,
		Rate:      rate,
	}, nil
}
