package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates an AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Ensure creates the user row if it does not exist yet. Idempotent.
func (s *AccountStore) Ensure(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("postgres: ensure account %s: %w", userID, err)
	}
	return nil
}

// BalanceStore implements domain.BalanceStore using PostgreSQL. Every
// mutation is a single conditional UPDATE so that concurrent debits on the
// same (user, asset) row cannot interleave past the non-negative guard.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a BalanceStore backed by the given connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

const balanceSelectCols = `user_id, asset, available, locked, updated_at`

// Get returns the balance row for (userID, asset), or domain.ErrNotFound.
func (s *BalanceStore) Get(ctx context.Context, userID, asset string) (domain.Balance, error) {
	var b domain.Balance
	err := s.pool.QueryRow(ctx,
		`SELECT `+balanceSelectCols+` FROM balances WHERE user_id = $1 AND asset = $2`,
		userID, asset,
	).Scan(&b.UserID, &b.Asset, &b.Available, &b.Locked, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Balance{}, domain.ErrNotFound
		}
		return domain.Balance{}, fmt.Errorf("postgres: get balance %s/%s: %w", userID, asset, err)
	}
	return b, nil
}

// List returns every balance row for the user, ordered by asset.
func (s *BalanceStore) List(ctx context.Context, userID string) ([]domain.Balance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+balanceSelectCols+` FROM balances WHERE user_id = $1 ORDER BY asset`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances %s: %w", userID, err)
	}
	defer rows.Close()

	var balances []domain.Balance
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.UserID, &b.Asset, &b.Available, &b.Locked, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// Adjust applies delta to the available amount and returns the new value.
// A positive delta upserts the row; a negative delta is a conditional UPDATE
// that fails with domain.ErrInsufficientFunds when it would go below zero,
// leaving the row untouched.
func (s *BalanceStore) Adjust(ctx context.Context, userID, asset string, delta float64) (float64, error) {
	var newAmount float64

	if delta >= 0 {
		err := s.pool.QueryRow(ctx, `
			INSERT INTO balances (user_id, asset, available)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, asset)
			DO UPDATE SET available = balances.available + EXCLUDED.available,
			              updated_at = NOW()
			RETURNING available`,
			userID, asset, delta,
		).Scan(&newAmount)
		if err != nil {
			return 0, fmt.Errorf("postgres: credit balance %s/%s: %w", userID, asset, err)
		}
		return newAmount, nil
	}

	err := s.pool.QueryRow(ctx, `
		UPDATE balances
		SET available = available + $3, updated_at = NOW()
		WHERE user_id = $1 AND asset = $2 AND available + $3 >= 0
		RETURNING available`,
		userID, asset, delta,
	).Scan(&newAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the row is missing (balance is semantically zero) or
			// the guard rejected the debit. Both are the same failure.
			return 0, domain.ErrInsufficientFunds
		}
		return 0, fmt.Errorf("postgres: debit balance %s/%s: %w", userID, asset, err)
	}
	return newAmount, nil
}

// Lock moves amount from available to locked for order escrow.
func (s *BalanceStore) Lock(ctx context.Context, userID, asset string, amount float64) error {
	return s.move(ctx, userID, asset, amount, `
		UPDATE balances
		SET available = available - $3, locked = locked + $3, updated_at = NOW()
		WHERE user_id = $1 AND asset = $2 AND available >= $3`)
}

// Unlock moves amount from locked back to available (order cancellation).
func (s *BalanceStore) Unlock(ctx context.Context, userID, asset string, amount float64) error {
	return s.move(ctx, userID, asset, amount, `
		UPDATE balances
		SET available = available + $3, locked = locked - $3, updated_at = NOW()
		WHERE user_id = $1 AND asset = $2 AND locked >= $3`)
}

// SpendLocked removes amount from the locked portion (trade settlement).
func (s *BalanceStore) SpendLocked(ctx context.Context, userID, asset string, amount float64) error {
	return s.move(ctx, userID, asset, amount, `
		UPDATE balances
		SET locked = locked - $3, updated_at = NOW()
		WHERE user_id = $1 AND asset = $2 AND locked >= $3`)
}

func (s *BalanceStore) move(ctx context.Context, userID, asset string, amount float64, query string) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	tag, err := s.pool.Exec(ctx, query, userID, asset, amount)
	if err != nil {
		return fmt.Errorf("postgres: move balance %s/%s: %w", userID, asset, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.AccountStore = (*AccountStore)(nil)
	_ domain.BalanceStore = (*BalanceStore)(nil)
)
