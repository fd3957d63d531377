package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// FriendStore implements domain.FriendStore using PostgreSQL. Friendships are
// stored in both directions so a friend list is one equality query.
type FriendStore struct {
	pool *pgxpool.Pool
}

// NewFriendStore creates a FriendStore backed by the given connection pool.
func NewFriendStore(pool *pgxpool.Pool) *FriendStore {
	return &FriendStore{pool: pool}
}

// AddFriendship links two users in both directions. Idempotent.
func (s *FriendStore) AddFriendship(ctx context.Context, userID, friendID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO friends (user_id, friend_id)
		VALUES ($1, $2), ($2, $1)
		ON CONFLICT (user_id, friend_id) DO NOTHING`,
		userID, friendID)
	if err != nil {
		return fmt.Errorf("postgres: add friendship %s/%s: %w", userID, friendID, err)
	}
	return nil
}

// ListFriends returns the friend ids of the user.
func (s *FriendStore) ListFriends(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT friend_id FROM friends WHERE user_id = $1 ORDER BY friend_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list friends %s: %w", userID, err)
	}
	defer rows.Close()

	var friends []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan friend: %w", err)
		}
		friends = append(friends, id)
	}
	return friends, rows.Err()
}

// AreFriends reports whether a friendship row exists.
func (s *FriendStore) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM friends WHERE user_id = $1 AND friend_id = $2)`,
		userID, friendID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check friendship %s/%s: %w", userID, friendID, err)
	}
	return exists, nil
}

// CreateRequest inserts a pending friend request. The partial unique index on
// (sender, receiver, pending) turns duplicates into ErrDuplicateRequest.
func (s *FriendStore) CreateRequest(ctx context.Context, req domain.FriendRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO friend_requests (id, sender_id, receiver_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		req.ID, req.SenderID, req.ReceiverID, string(req.Status), req.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRequest
		}
		return fmt.Errorf("postgres: create friend request %s: %w", req.ID, err)
	}
	return nil
}

// GetPendingRequest finds the pending request from sender to receiver.
func (s *FriendStore) GetPendingRequest(ctx context.Context, senderID, receiverID string) (domain.FriendRequest, error) {
	var req domain.FriendRequest
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, sender_id, receiver_id, status, created_at
		FROM friend_requests
		WHERE sender_id = $1 AND receiver_id = $2 AND status = 'pending'`,
		senderID, receiverID,
	).Scan(&req.ID, &req.SenderID, &req.ReceiverID, &status, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FriendRequest{}, domain.ErrNotFound
		}
		return domain.FriendRequest{}, fmt.Errorf("postgres: get pending request %s->%s: %w", senderID, receiverID, err)
	}
	req.Status = domain.FriendRequestStatus(status)
	return req, nil
}

// UpdateRequestStatus resolves a request to accepted or declined.
func (s *FriendStore) UpdateRequestStatus(ctx context.Context, id string, status domain.FriendRequestStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE friend_requests SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update friend request %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListPendingByReceiver returns the pending requests addressed to a user,
// oldest first.
func (s *FriendStore) ListPendingByReceiver(ctx context.Context, receiverID string) ([]domain.FriendRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, receiver_id, status, created_at
		FROM friend_requests
		WHERE receiver_id = $1 AND status = 'pending'
		ORDER BY created_at ASC`, receiverID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending requests %s: %w", receiverID, err)
	}
	defer rows.Close()

	var reqs []domain.FriendRequest
	for rows.Next() {
		var req domain.FriendRequest
		var status string
		if err := rows.Scan(&req.ID, &req.SenderID, &req.ReceiverID, &status, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan friend request: %w", err)
		}
		req.Status = domain.FriendRequestStatus(status)
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// ExpirePending declines all pending requests created before cutoff in one
// statement and returns how many were swept.
func (s *FriendStore) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE friend_requests SET status = 'declined'
		WHERE status = 'pending' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: expire pending requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// Compile-time interface check.
var _ domain.FriendStore = (*FriendStore)(nil)
