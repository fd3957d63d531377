package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, user_id, side, base_asset, quote_asset,
	amount, price, filled, status, created_at`

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, status string
	err := scanner.Scan(
		&o.ID, &o.UserID, &side, &o.Pair.Base, &o.Pair.Quote,
		&o.Amount, &o.Price, &o.Filled, &status, &o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, user_id, side, base_asset, quote_asset,
			amount, price, filled, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.UserID, string(o.Side), o.Pair.Base, o.Pair.Quote,
		o.Amount, o.Price, o.Filled, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// Get retrieves a single order by id.
func (s *OrderStore) Get(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// UpdateFill sets the filled amount and status of one order.
func (s *OrderStore) UpdateFill(ctx context.Context, id string, filled float64, status domain.OrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET filled = $2, status = $3 WHERE id = $1`,
		id, filled, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update order fill %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus changes only the status of an order.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListCrossing returns resting open/partial orders on the given side of the
// pair whose price crosses limit. Candidates come back best price first —
// ascending for sell candidates, descending for buy candidates — with ties
// broken by earliest creation so matching stays deterministic.
func (s *OrderStore) ListCrossing(ctx context.Context, pair domain.TradingPair, side domain.OrderSide, limit float64) ([]domain.Order, error) {
	var priceCond, priceOrder string
	if side == domain.OrderSideSell {
		priceCond = "price <= $4"
		priceOrder = "price ASC"
	} else {
		priceCond = "price >= $4"
		priceOrder = "price DESC"
	}

	query := `SELECT ` + orderSelectCols + ` FROM orders
		WHERE base_asset = $1 AND quote_asset = $2 AND side = $3
		  AND status IN ('open', 'partial') AND ` + priceCond + `
		ORDER BY ` + priceOrder + `, created_at ASC`

	rows, err := s.pool.Query(ctx, query, pair.Base, pair.Quote, string(side), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list crossing orders %s: %w", pair, err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan crossing orders %s: %w", pair, err)
	}
	return orders, nil
}

// ListOpenByUser returns the user's open and partially filled orders.
func (s *OrderStore) ListOpenByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE user_id = $1 AND status IN ('open', 'partial')
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders %s: %w", userID, err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open orders %s: %w", userID, err)
	}
	return orders, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
