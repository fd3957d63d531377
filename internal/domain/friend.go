package domain

import "time"

// FriendRequestStatus tracks the lifecycle of a friend request. Pending
// requests older than the configured window are swept to declined.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestDeclined FriendRequestStatus = "declined"
)

// FriendRequest is a time-boxed invitation from one user to another.
type FriendRequest struct {
	ID         string
	SenderID   string
	ReceiverID string
	Status     FriendRequestStatus
	CreatedAt  time.Time
}

// Friendship links two users. Rows are stored in both directions so either
// side's friend list query is a single equality filter.
type Friendship struct {
	UserID    string
	FriendID  string
	CreatedAt time.Time
}
