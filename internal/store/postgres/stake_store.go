package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// StakeStore implements domain.StakeStore using PostgreSQL.
type StakeStore struct {
	pool *pgxpool.Pool
}

// NewStakeStore creates a StakeStore backed by the given connection pool.
func NewStakeStore(pool *pgxpool.Pool) *StakeStore {
	return &StakeStore{pool: pool}
}

const stakeSelectCols = `user_id, asset, principal, accrued_reward, apy, last_accrual_at`

// Get returns the stake for (userID, asset), or domain.ErrNotFound.
func (s *StakeStore) Get(ctx context.Context, userID, asset string) (domain.Stake, error) {
	var st domain.Stake
	err := s.pool.QueryRow(ctx,
		`SELECT `+stakeSelectCols+` FROM stakes WHERE user_id = $1 AND asset = $2`,
		userID, asset,
	).Scan(&st.UserID, &st.Asset, &st.Principal, &st.AccruedReward, &st.APY, &st.LastAccrualAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stake{}, domain.ErrNotFound
		}
		return domain.Stake{}, fmt.Errorf("postgres: get stake %s/%s: %w", userID, asset, err)
	}
	return st, nil
}

// Upsert writes the full stake state, creating the row on first stake.
func (s *StakeStore) Upsert(ctx context.Context, stake domain.Stake) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stakes (user_id, asset, principal, accrued_reward, apy, last_accrual_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, asset)
		DO UPDATE SET principal = EXCLUDED.principal,
		              accrued_reward = EXCLUDED.accrued_reward,
		              apy = EXCLUDED.apy,
		              last_accrual_at = EXCLUDED.last_accrual_at`,
		stake.UserID, stake.Asset, stake.Principal, stake.AccruedReward, stake.APY, stake.LastAccrualAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert stake %s/%s: %w", stake.UserID, stake.Asset, err)
	}
	return nil
}

// Delete destroys the stake row after a full unstake.
func (s *StakeStore) Delete(ctx context.Context, userID, asset string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM stakes WHERE user_id = $1 AND asset = $2`, userID, asset)
	if err != nil {
		return fmt.Errorf("postgres: delete stake %s/%s: %w", userID, asset, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByUser returns every stake held by the user, ordered by asset.
func (s *StakeStore) ListByUser(ctx context.Context, userID string) ([]domain.Stake, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stakeSelectCols+` FROM stakes WHERE user_id = $1 ORDER BY asset`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes %s: %w", userID, err)
	}
	defer rows.Close()

	var stakes []domain.Stake
	for rows.Next() {
		var st domain.Stake
		if err := rows.Scan(&st.UserID, &st.Asset, &st.Principal, &st.AccruedReward, &st.APY, &st.LastAccrualAt); err != nil {
			return nil, fmt.Errorf("postgres: scan stake: %w", err)
		}
		stakes = append(stakes, st)
	}
	return stakes, rows.Err()
}

// Compile-time interface check.
var _ domain.StakeStore = (*StakeStore)(nil)
