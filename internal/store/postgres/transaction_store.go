package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL.
// Records are append-only; nothing here issues an UPDATE.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a TransactionStore backed by the given pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

const txSelectCols = `id, kind, sender_id, receiver_id, asset, amount, created_at`

func scanTxRows(rows pgx.Rows) ([]domain.TransactionRecord, error) {
	var recs []domain.TransactionRecord
	for rows.Next() {
		var rec domain.TransactionRecord
		var kind string
		if err := rows.Scan(&rec.ID, &kind, &rec.SenderID, &rec.ReceiverID,
			&rec.Asset, &rec.Amount, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Kind = domain.TransactionKind(kind)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Append writes one immutable record to the log.
func (s *TransactionStore) Append(ctx context.Context, rec domain.TransactionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (id, kind, sender_id, receiver_id, asset, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, string(rec.Kind), rec.SenderID, rec.ReceiverID,
		rec.Asset, rec.Amount, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append transaction %s: %w", rec.ID, err)
	}
	return nil
}

// ListByUser returns the most recent records where the user is sender or
// receiver, newest first.
func (s *TransactionStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txSelectCols+` FROM transactions
		 WHERE sender_id = $1 OR receiver_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions %s: %w", userID, err)
	}
	defer rows.Close()

	recs, err := scanTxRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions %s: %w", userID, err)
	}
	return recs, nil
}

// ListOlderThan returns up to limit records created before cutoff, oldest
// first, for archival batches.
func (s *TransactionStore) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txSelectCols+` FROM transactions
		 WHERE created_at < $1
		 ORDER BY created_at ASC
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions older than %s: %w", cutoff, err)
	}
	defer rows.Close()

	recs, err := scanTxRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan old transactions: %w", err)
	}
	return recs, nil
}

// DeleteBatch removes archived records by id.
func (s *TransactionStore) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM transactions WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("postgres: delete transaction batch: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.TransactionStore = (*TransactionStore)(nil)
