// Package service implements the ledger's business operations on top of the
// domain store and cache interfaces. Services own the serialization
// discipline: every multi-step mutation runs under the distributed lock of
// its serialization domain, and every settled movement appends exactly one
// transaction record.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// lockTTL bounds how long a serialization lock can outlive its holder if the
// process dies mid-operation.
const lockTTL = 10 * time.Second

// balanceLockKey names the serialization domain of one (user, asset) balance.
func balanceLockKey(userID, asset string) string {
	return "balance:" + userID + ":" + asset
}

// LedgerService owns account lifecycle and balance movement. Every balance
// mutation bottoms out in the store's atomic conditional updates; the service
// adds locking, the transaction log, and event publication.
type LedgerService struct {
	accounts domain.AccountStore
	balances domain.BalanceStore
	txns     domain.TransactionStore
	locks    domain.LockManager
	bus      domain.EventBus
	logger   *slog.Logger

	now func() time.Time
}

// NewLedgerService creates a LedgerService with all required dependencies.
func NewLedgerService(
	accounts domain.AccountStore,
	balances domain.BalanceStore,
	txns domain.TransactionStore,
	locks domain.LockManager,
	bus domain.EventBus,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		accounts: accounts,
		balances: balances,
		txns:     txns,
		locks:    locks,
		bus:      bus,
		logger:   logger.With(slog.String("component", "ledger")),
		now:      time.Now,
	}
}

// EnsureAccount registers a user identifier. Idempotent.
func (s *LedgerService) EnsureAccount(ctx context.Context, userID string) error {
	if err := s.accounts.Ensure(ctx, userID); err != nil {
		return fmt.Errorf("ledger_service: ensure account %q: %w", userID, err)
	}
	return nil
}

// GetBalance returns the balance row for (userID, asset). A row that has
// never been written reads as zero.
func (s *LedgerService) GetBalance(ctx context.Context, userID, asset string) (domain.Balance, error) {
	bal, err := s.balances.Get(ctx, userID, asset)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Balance{UserID: userID, Asset: asset}, nil
		}
		return domain.Balance{}, fmt.Errorf("ledger_service: get balance %s/%s: %w", userID, asset, err)
	}
	return bal, nil
}

// ListBalances returns every balance row held by the user.
func (s *LedgerService) ListBalances(ctx context.Context, userID string) ([]domain.Balance, error) {
	bals, err := s.balances.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list balances for %q: %w", userID, err)
	}
	return bals, nil
}

// Adjust applies delta atomically to the available amount of (userID, asset)
// and returns the new amount. This is the single authorized mutation path for
// balances; transfer, staking, and settlement are all expressed through it
// and its escrow siblings.
func (s *LedgerService) Adjust(ctx context.Context, userID, asset string, delta float64) (float64, error) {
	unlock, err := s.locks.AcquireWait(ctx, balanceLockKey(userID, asset), lockTTL)
	if err != nil {
		return 0, fmt.Errorf("ledger_service: adjust lock %s/%s: %w", userID, asset, err)
	}
	defer unlock()

	newAmount, err := s.balances.Adjust(ctx, userID, asset, delta)
	if err != nil {
		return 0, fmt.Errorf("ledger_service: adjust %s/%s by %v: %w", userID, asset, delta, err)
	}
	return newAmount, nil
}

// Deposit mints amount of asset into userID's available balance and records
// the mint. This is the only operation that changes an asset's conserved
// total.
func (s *LedgerService) Deposit(ctx context.Context, userID, asset string, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger_service: deposit %v %s: %w", amount, asset, domain.ErrInvalidAmount)
	}
	if err := s.accounts.Ensure(ctx, userID); err != nil {
		return 0, fmt.Errorf("ledger_service: deposit ensure account %q: %w", userID, err)
	}

	unlock, err := s.locks.AcquireWait(ctx, balanceLockKey(userID, asset), lockTTL)
	if err != nil {
		return 0, fmt.Errorf("ledger_service: deposit lock %s/%s: %w", userID, asset, err)
	}
	defer unlock()

	newAmount, err := s.balances.Adjust(ctx, userID, asset, amount)
	if err != nil {
		return 0, fmt.Errorf("ledger_service: deposit credit %s/%s: %w", userID, asset, err)
	}

	rec := domain.TransactionRecord{
		ID:         uuid.NewString(),
		Kind:       domain.TxKindDeposit,
		SenderID:   domain.ParticipantNone,
		ReceiverID: userID,
		Asset:      asset,
		Amount:     amount,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.txns.Append(ctx, rec); err != nil {
		// The mint stands; a missing log row is recoverable, a silently
		// reversed credit is not.
		s.logger.ErrorContext(ctx, "deposit record append failed",
			slog.String("user", userID),
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, "balances", map[string]any{
		"event":  "deposit",
		"user":   userID,
		"asset":  asset,
		"amount": amount,
	})

	return newAmount, nil
}

// Transfer moves amount of asset from sender to receiver. The debit, the
// credit, and the log append are one logical unit: a failed credit rolls the
// debit back, a failed append rolls both legs back.
func (s *LedgerService) Transfer(ctx context.Context, senderID, receiverID, asset string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger_service: transfer %v %s: %w", amount, asset, domain.ErrInvalidAmount)
	}

	// The receiver may never have been seen before; their account row must
	// exist before the credit can insert a balance row against it.
	if err := s.accounts.Ensure(ctx, receiverID); err != nil {
		return fmt.Errorf("ledger_service: transfer ensure account %q: %w", receiverID, err)
	}

	unlock, err := s.acquireBalancePair(ctx, senderID, receiverID, asset)
	if err != nil {
		return fmt.Errorf("ledger_service: transfer lock: %w", err)
	}
	defer unlock()

	if _, err := s.balances.Adjust(ctx, senderID, asset, -amount); err != nil {
		return fmt.Errorf("ledger_service: transfer debit %s/%s: %w", senderID, asset, err)
	}

	if _, err := s.balances.Adjust(ctx, receiverID, asset, amount); err != nil {
		s.compensate(ctx, senderID, asset, amount, "transfer credit failed")
		return fmt.Errorf("ledger_service: transfer credit %s/%s: %w", receiverID, asset, err)
	}

	rec := domain.TransactionRecord{
		ID:         uuid.NewString(),
		Kind:       domain.TxKindTransfer,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Asset:      asset,
		Amount:     amount,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.txns.Append(ctx, rec); err != nil {
		s.compensate(ctx, receiverID, asset, -amount, "transfer record append failed")
		s.compensate(ctx, senderID, asset, amount, "transfer record append failed")
		return fmt.Errorf("ledger_service: transfer record: %w", err)
	}

	s.publish(ctx, "transfers", map[string]any{
		"event":    "transfer",
		"sender":   senderID,
		"receiver": receiverID,
		"asset":    asset,
		"amount":   amount,
	})

	s.logger.InfoContext(ctx, "transfer settled",
		slog.String("sender", senderID),
		slog.String("receiver", receiverID),
		slog.String("asset", asset),
		slog.Float64("amount", amount),
	)

	return nil
}

// acquireBalancePair takes both participants' balance locks in sorted key
// order so concurrent opposing transfers cannot deadlock.
func (s *LedgerService) acquireBalancePair(ctx context.Context, a, b, asset string) (func(), error) {
	keys := []string{balanceLockKey(a, asset), balanceLockKey(b, asset)}
	sort.Strings(keys)
	if keys[0] == keys[1] {
		keys = keys[:1]
	}

	var unlocks []func()
	for _, key := range keys {
		unlock, err := s.locks.AcquireWait(ctx, key, lockTTL)
		if err != nil {
			for i := len(unlocks) - 1; i >= 0; i-- {
				unlocks[i]()
			}
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}

	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}, nil
}

// compensate re-applies delta to undo a half-finished movement. Failures are
// logged loudly; they mean a human has to reconcile.
func (s *LedgerService) compensate(ctx context.Context, userID, asset string, delta float64, reason string) {
	if _, err := s.balances.Adjust(ctx, userID, asset, delta); err != nil {
		s.logger.ErrorContext(ctx, "compensation failed",
			slog.String("reason", reason),
			slog.String("user", userID),
			slog.String("asset", asset),
			slog.Float64("delta", delta),
			slog.String("error", err.Error()),
		)
	}
}

// publish sends a ledger event best-effort; event delivery never fails an
// already-settled operation.
func (s *LedgerService) publish(ctx context.Context, channel string, payload map[string]any) {
	data, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, data); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
