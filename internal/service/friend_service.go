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

// FriendService owns the social graph: friendships, time-boxed friend
// requests, and transfers gated on friendship. Pending requests expire after
// the configured window; a background sweeper declines the stale ones.
type FriendService struct {
	friends       domain.FriendStore
	ledger        *LedgerService
	bus           domain.EventBus
	logger        *slog.Logger
	requestTTL    time.Duration
	sweepInterval time.Duration

	now func() time.Time
}

// NewFriendService creates a FriendService with all required dependencies.
func NewFriendService(
	friends domain.FriendStore,
	ledger *LedgerService,
	bus domain.EventBus,
	requestTTL time.Duration,
	sweepInterval time.Duration,
	logger *slog.Logger,
) *FriendService {
	return &FriendService{
		friends:       friends,
		ledger:        ledger,
		bus:           bus,
		requestTTL:    requestTTL,
		sweepInterval: sweepInterval,
		logger:        logger.With(slog.String("component", "friends")),
		now:           time.Now,
	}
}

// SendRequest creates a pending friend request from sender to receiver. The
// request expires if not answered within the configured window.
func (s *FriendService) SendRequest(ctx context.Context, senderID, receiverID string) (domain.FriendRequest, error) {
	if senderID == receiverID {
		return domain.FriendRequest{}, fmt.Errorf("friend_service: request from %q: %w", senderID, domain.ErrSelfTarget)
	}

	already, err := s.friends.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return domain.FriendRequest{}, fmt.Errorf("friend_service: friendship check: %w", err)
	}
	if already {
		return domain.FriendRequest{}, fmt.Errorf("friend_service: request %s->%s: %w", senderID, receiverID, domain.ErrAlreadyFriends)
	}

	req := domain.FriendRequest{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     domain.FriendRequestPending,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.friends.CreateRequest(ctx, req); err != nil {
		return domain.FriendRequest{}, fmt.Errorf("friend_service: create request %s->%s: %w", senderID, receiverID, err)
	}

	s.publish(ctx, map[string]any{
		"event":    "friend_request",
		"sender":   senderID,
		"receiver": receiverID,
	})

	return req, nil
}

// Respond answers the pending request from sender to receiver. Accepting
// establishes the friendship in both directions. A request older than the
// expiry window is declined on the spot and reported as not found.
func (s *FriendService) Respond(ctx context.Context, senderID, receiverID string, accept bool) error {
	req, err := s.friends.GetPendingRequest(ctx, senderID, receiverID)
	if err != nil {
		return fmt.Errorf("friend_service: pending request %s->%s: %w", senderID, receiverID, err)
	}

	if s.now().UTC().Sub(req.CreatedAt) > s.requestTTL {
		if err := s.friends.UpdateRequestStatus(ctx, req.ID, domain.FriendRequestDeclined); err != nil {
			s.logger.WarnContext(ctx, "expired request decline failed",
				slog.String("request_id", req.ID),
				slog.String("error", err.Error()),
			)
		}
		return fmt.Errorf("friend_service: request %s->%s expired: %w", senderID, receiverID, domain.ErrNotFound)
	}

	status := domain.FriendRequestDeclined
	if accept {
		status = domain.FriendRequestAccepted
	}
	if err := s.friends.UpdateRequestStatus(ctx, req.ID, status); err != nil {
		return fmt.Errorf("friend_service: update request %s: %w", req.ID, err)
	}

	if accept {
		if err := s.friends.AddFriendship(ctx, senderID, receiverID); err != nil {
			return fmt.Errorf("friend_service: add friendship %s<->%s: %w", senderID, receiverID, err)
		}
	}

	s.publish(ctx, map[string]any{
		"event":    "friend_request_answered",
		"sender":   senderID,
		"receiver": receiverID,
		"accepted": accept,
	})

	s.logger.InfoContext(ctx, "friend request answered",
		slog.String("sender", senderID),
		slog.String("receiver", receiverID),
		slog.Bool("accepted", accept),
	)

	return nil
}

// ListFriends returns the user's friend list.
func (s *FriendService) ListFriends(ctx context.Context, userID string) ([]string, error) {
	friends, err := s.friends.ListFriends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("friend_service: list friends for %q: %w", userID, err)
	}
	return friends, nil
}

// ListPendingRequests returns the unanswered requests waiting on the user.
func (s *FriendService) ListPendingRequests(ctx context.Context, receiverID string) ([]domain.FriendRequest, error) {
	reqs, err := s.friends.ListPendingByReceiver(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("friend_service: list pending for %q: %w", receiverID, err)
	}
	return reqs, nil
}

// TransferToFriend moves funds between two users only if they are friends.
func (s *FriendService) TransferToFriend(ctx context.Context, senderID, receiverID, asset string, amount float64) error {
	if senderID == receiverID {
		return fmt.Errorf("friend_service: transfer from %q: %w", senderID, domain.ErrSelfTarget)
	}

	friends, err := s.friends.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return fmt.Errorf("friend_service: friendship check: %w", err)
	}
	if !friends {
		return fmt.Errorf("friend_service: transfer %s->%s: %w", senderID, receiverID, domain.ErrNotFriends)
	}

	return s.ledger.Transfer(ctx, senderID, receiverID, asset, amount)
}

// RunSweeper declines pending requests older than the expiry window on a
// fixed interval until ctx is cancelled.
func (s *FriendService) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "friend request sweeper started",
		slog.Duration("interval", s.sweepInterval),
		slog.Duration("ttl", s.requestTTL),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "friend request sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepExpired(ctx); err != nil {
				s.logger.ErrorContext(ctx, "friend request sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// SweepExpired declines every pending request created before the expiry
// window in one pass.
func (s *FriendService) SweepExpired(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.requestTTL)
	swept, err := s.friends.ExpirePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("friend_service: expire pending: %w", err)
	}
	if swept > 0 {
		s.logger.InfoContext(ctx, "expired friend requests declined",
			slog.Int64("count", swept),
		)
	}
	return nil
}

func (s *FriendService) publish(ctx context.Context, payload map[string]any) {
	data, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, "friends", data); err != nil {
		s.logger.WarnContext(ctx, "friend event publish failed",
			slog.String("error", err.Error()),
		)
	}
}
