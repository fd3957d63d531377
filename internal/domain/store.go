package domain

import (
	"context"
	"time"
)

// AccountStore persists the set of known user identifiers. Accounts exist
// implicitly: Ensure is idempotent and accounts are never deleted.
type AccountStore interface {
	Ensure(ctx context.Context, userID string) error
}

// BalanceStore persists per-(user, asset) balance rows. Every mutation is an
// atomic conditional update at the storage layer: a step that would drive
// either the available or the locked amount negative fails with
// ErrInsufficientFunds and leaves the row unchanged.
type BalanceStore interface {
	// Get returns the balance row, or ErrNotFound when none exists.
	// Callers treat absence as a zero balance.
	Get(ctx context.Context, userID, asset string) (Balance, error)
	// List returns every balance row for the user.
	List(ctx context.Context, userID string) ([]Balance, error)
	// Adjust applies delta to the available amount and returns the new
	// value. A positive delta creates the row when missing.
	Adjust(ctx context.Context, userID, asset string, delta float64) (float64, error)
	// Lock moves amount from available to locked (order escrow).
	Lock(ctx context.Context, userID, asset string, amount float64) error
	// Unlock moves amount from locked back to available.
	Unlock(ctx context.Context, userID, asset string, amount float64) error
	// SpendLocked removes amount from the locked portion (trade settlement
	// of escrowed funds).
	SpendLocked(ctx context.Context, userID, asset string, amount float64) error
}

// StakeStore persists stake records.
type StakeStore interface {
	Get(ctx context.Context, userID, asset string) (Stake, error)
	Upsert(ctx context.Context, stake Stake) error
	Delete(ctx context.Context, userID, asset string) error
	ListByUser(ctx context.Context, userID string) ([]Stake, error)
}

// OrderStore persists limit orders. Terminal orders are retained for audit.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	Get(ctx context.Context, id string) (Order, error)
	// UpdateFill sets the filled amount and status of one order.
	UpdateFill(ctx context.Context, id string, filled float64, status OrderStatus) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	// ListCrossing returns resting open/partial orders on side of pair whose
	// price crosses limit, sorted best price first (ascending for side=sell
	// candidates, descending for side=buy candidates), ties by earliest
	// creation.
	ListCrossing(ctx context.Context, pair TradingPair, side OrderSide, limit float64) ([]Order, error)
	ListOpenByUser(ctx context.Context, userID string) ([]Order, error)
}

// TransactionStore is the append-only transaction log.
type TransactionStore interface {
	Append(ctx context.Context, rec TransactionRecord) error
	// ListByUser returns the most recent records where the user is sender or
	// receiver, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]TransactionRecord, error)
	// ListOlderThan returns up to limit records created before cutoff,
	// oldest first (archival batches).
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]TransactionRecord, error)
	// DeleteBatch removes archived records by id.
	DeleteBatch(ctx context.Context, ids []string) error
}

// FriendStore persists friendships and time-boxed friend requests.
type FriendStore interface {
	AddFriendship(ctx context.Context, userID, friendID string) error
	ListFriends(ctx context.Context, userID string) ([]string, error)
	AreFriends(ctx context.Context, userID, friendID string) (bool, error)
	// CreateRequest inserts a pending request; ErrDuplicateRequest when an
	// equivalent pending request already exists.
	CreateRequest(ctx context.Context, req FriendRequest) error
	// GetPendingRequest finds the pending request from sender to receiver.
	GetPendingRequest(ctx context.Context, senderID, receiverID string) (FriendRequest, error)
	UpdateRequestStatus(ctx context.Context, id string, status FriendRequestStatus) error
	ListPendingByReceiver(ctx context.Context, receiverID string) ([]FriendRequest, error)
	// ExpirePending declines all pending requests created before cutoff and
	// returns how many were swept.
	ExpirePending(ctx context.Context, cutoff time.Time) (int64, error)
}
