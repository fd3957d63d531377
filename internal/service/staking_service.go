package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// stakeLockKey names the serialization domain of one (user, asset) stake.
func stakeLockKey(userID, asset string) string {
	return "stake:" + userID + ":" + asset
}

// StakingService owns interest-bearing stakes. Accrual is lazy: reward is
// computed from the last checkpoint whenever a stake is read or mutated,
// never by a background job. Every mutator accrues before touching principal
// or rate, so a rate change only ever applies to time after it.
type StakingService struct {
	stakes     domain.StakeStore
	balances   domain.BalanceStore
	txns       domain.TransactionStore
	locks      domain.LockManager
	bus        domain.EventBus
	logger     *slog.Logger
	stakeable  map[string]bool
	defaultAPY float64

	now func() time.Time
}

// NewStakingService creates a StakingService. stakeable is the asset
// allow-list; defaultAPY applies when a caller does not name a rate.
func NewStakingService(
	stakes domain.StakeStore,
	balances domain.BalanceStore,
	txns domain.TransactionStore,
	locks domain.LockManager,
	bus domain.EventBus,
	stakeable map[string]bool,
	defaultAPY float64,
	logger *slog.Logger,
) *StakingService {
	return &StakingService{
		stakes:     stakes,
		balances:   balances,
		txns:       txns,
		locks:      locks,
		bus:        bus,
		stakeable:  stakeable,
		defaultAPY: defaultAPY,
		logger:     logger.With(slog.String("component", "staking")),
		now:        time.Now,
	}
}

// Stake moves amount of asset from the user's available balance into a stake
// at the given rate. Staking into an existing position accrues the pending
// reward at the old rate first, then adds principal and adopts the new rate.
// apy <= 0 selects the configured default.
func (s *StakingService) Stake(ctx context.Context, userID, asset string, amount, apy float64) (domain.Stake, error) {
	asset = strings.ToLower(asset)
	if !s.stakeable[asset] {
		return domain.Stake{}, fmt.Errorf("staking_service: stake %s: %w", asset, domain.ErrUnsupportedAsset)
	}
	if amount <= 0 {
		return domain.Stake{}, fmt.Errorf("staking_service: stake %v %s: %w", amount, asset, domain.ErrInvalidAmount)
	}
	if apy <= 0 {
		apy = s.defaultAPY
	}

	unlock, err := s.locks.AcquireWait(ctx, stakeLockKey(userID, asset), lockTTL)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("staking_service: stake lock %s/%s: %w", userID, asset, err)
	}
	defer unlock()

	if _, err := s.balances.Adjust(ctx, userID, asset, -amount); err != nil {
		return domain.Stake{}, fmt.Errorf("staking_service: stake debit %s/%s: %w", userID, asset, err)
	}

	now := s.now().UTC()

	stake, err := s.stakes.Get(ctx, userID, asset)
	switch {
	case err == nil:
		stake.Accrue(now)
		stake.Principal += amount
		stake.APY = apy
	case errors.Is(err, domain.ErrNotFound):
		stake = domain.Stake{
			UserID:        userID,
			Asset:         asset,
			Principal:     amount,
			APY:           apy,
			LastAccrualAt: now,
		}
	default:
		s.compensateBalance(ctx, userID, asset, amount, "stake load failed")
		return domain.Stake{}, fmt.Errorf("staking_service: stake load %s/%s: %w", userID, asset, err)
	}

	if err := s.stakes.Upsert(ctx, stake); err != nil {
		s.compensateBalance(ctx, userID, asset, amount, "stake persist failed")
		return domain.Stake{}, fmt.Errorf("staking_service: stake persist %s/%s: %w", userID, asset, err)
	}

	s.record(ctx, domain.TransactionRecord{
		ID:         uuid.NewString(),
		Kind:       domain.TxKindStakeDeposit,
		SenderID:   userID,
		ReceiverID: domain.ParticipantNone,
		Asset:      asset,
		Amount:     amount,
		CreatedAt:  now,
	})

	s.publishStakeEvent(ctx, "stake_opened", userID, asset, amount)

	s.logger.InfoContext(ctx, "stake updated",
		slog.String("user", userID),
		slog.String("asset", asset),
		slog.Float64("principal", stake.Principal),
		slog.Float64("apy", stake.APY),
	)

	return stake, nil
}

// Unstake closes the user's stake in asset: the pending reward is accrued,
// principal and reward are credited back to the available balance, and the
// stake is destroyed. Returns what was paid out.
func (s *StakingService) Unstake(ctx context.Context, userID, asset string) (domain.StakeReceipt, error) {
	asset = strings.ToLower(asset)

	unlock, err := s.locks.AcquireWait(ctx, stakeLockKey(userID, asset), lockTTL)
	if err != nil {
		return domain.StakeReceipt{}, fmt.Errorf("staking_service: unstake lock %s/%s: %w", userID, asset, err)
	}
	defer unlock()

	stake, err := s.stakes.Get(ctx, userID, asset)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.StakeReceipt{}, fmt.Errorf("staking_service: unstake %s/%s: %w", userID, asset, domain.ErrNoSuchStake)
		}
		return domain.StakeReceipt{}, fmt.Errorf("staking_service: unstake load %s/%s: %w", userID, asset, err)
	}

	now := s.now().UTC()
	stake.Accrue(now)

	receipt := domain.StakeReceipt{
		Asset:     asset,
		Principal: stake.Principal,
		Reward:    stake.AccruedReward,
		Total:     stake.Principal + stake.AccruedReward,
	}

	if err := s.stakes.Delete(ctx, userID, asset); err != nil {
		return domain.StakeReceipt{}, fmt.Errorf("staking_service: unstake destroy %s/%s: %w", userID, asset, err)
	}

	if _, err := s.balances.Adjust(ctx, userID, asset, receipt.Principal); err != nil {
		// The stake row is gone; put it back so the funds are not lost.
		if restoreErr := s.stakes.Upsert(ctx, stake); restoreErr != nil {
			s.logger.ErrorContext(ctx, "unstake restore failed",
				slog.String("user", userID),
				slog.String("asset", asset),
				slog.String("error", restoreErr.Error()),
			)
		}
		return domain.StakeReceipt{}, fmt.Errorf("staking_service: unstake principal credit %s/%s: %w", userID, asset, err)
	}

	s.record(ctx, domain.TransactionRecord{
		ID:         uuid.NewString(),
		Kind:       domain.TxKindStakeWithdrawal,
		SenderID:   domain.ParticipantNone,
		ReceiverID: userID,
		Asset:      asset,
		Amount:     receipt.Principal,
		CreatedAt:  now,
	})

	if receipt.Reward > 0 {
		if _, err := s.balances.Adjust(ctx, userID, asset, receipt.Reward); err != nil {
			return receipt, fmt.Errorf("staking_service: unstake reward credit %s/%s: %w", userID, asset, err)
		}
		s.record(ctx, domain.TransactionRecord{
			ID:         uuid.NewString(),
			Kind:       domain.TxKindRewardPayout,
			SenderID:   domain.ParticipantReward,
			ReceiverID: userID,
			Asset:      asset,
			Amount:     receipt.Reward,
			CreatedAt:  now,
		})
	}

	s.publishStakeEvent(ctx, "stake_closed", userID, asset, receipt.Total)

	s.logger.InfoContext(ctx, "stake closed",
		slog.String("user", userID),
		slog.String("asset", asset),
		slog.Float64("principal", receipt.Principal),
		slog.Float64("reward", receipt.Reward),
	)

	return receipt, nil
}

// ListStakes returns the user's stakes with rewards accrued to now. Each
// accrual checkpoint is persisted so a later rate change cannot retroactively
// touch the time this call accounted for.
func (s *StakingService) ListStakes(ctx context.Context, userID string) ([]domain.Stake, error) {
	stakes, err := s.stakes.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("staking_service: list stakes for %q: %w", userID, err)
	}

	now := s.now().UTC()
	out := make([]domain.Stake, 0, len(stakes))
	for _, listed := range stakes {
		unlock, err := s.locks.AcquireWait(ctx, stakeLockKey(userID, listed.Asset), lockTTL)
		if err != nil {
			return nil, fmt.Errorf("staking_service: list stakes lock %s/%s: %w", userID, listed.Asset, err)
		}

		// The listing was a snapshot; a Stake or Unstake may have landed
		// since. Re-read under the lock so the checkpoint never overwrites a
		// concurrent mutation.
		stake, err := s.stakes.Get(ctx, userID, listed.Asset)
		if errors.Is(err, domain.ErrNotFound) {
			unlock()
			continue
		}
		if err != nil {
			unlock()
			return nil, fmt.Errorf("staking_service: list stakes reload %s/%s: %w", userID, listed.Asset, err)
		}

		stake.Accrue(now)
		if err := s.stakes.Upsert(ctx, stake); err != nil {
			unlock()
			return nil, fmt.Errorf("staking_service: list stakes checkpoint %s/%s: %w", userID, listed.Asset, err)
		}
		unlock()
		out = append(out, stake)
	}

	return out, nil
}

// compensateBalance re-credits an already-debited stake amount when a later
// step fails. Failures are logged loudly; they mean a human has to reconcile.
func (s *StakingService) compensateBalance(ctx context.Context, userID, asset string, amount float64, reason string) {
	if _, err := s.balances.Adjust(ctx, userID, asset, amount); err != nil {
		s.logger.ErrorContext(ctx, "stake compensation failed",
			slog.String("reason", reason),
			slog.String("user", userID),
			slog.String("asset", asset),
			slog.Float64("amount", amount),
			slog.String("error", err.Error()),
		)
	}
}

// record appends a transaction record, logging loudly on failure. A missing
// log row is recoverable; a reversed settlement is not.
func (s *StakingService) record(ctx context.Context, rec domain.TransactionRecord) {
	if err := s.txns.Append(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "transaction record append failed",
			slog.String("kind", string(rec.Kind)),
			slog.String("asset", rec.Asset),
			slog.String("error", err.Error()),
		)
	}
}

func (s *StakingService) publishStakeEvent(ctx context.Context, event, userID, asset string, amount float64) {
	data, _ := json.Marshal(map[string]any{
		"event":  event,
		"user":   userID,
		"asset":  asset,
		"amount": amount,
	})
	if err := s.bus.Publish(ctx, "stakes", data); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
