package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnsupportedAsset  = errors.New("asset not stakeable")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSameAsset         = errors.New("source and destination asset are identical")
	ErrNoSuchStake       = errors.New("no stake for user and asset")
	ErrNoSuchOrder       = errors.New("no such order")
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrInvalidPair       = errors.New("invalid trading pair")
	ErrInvalidMonth      = errors.New("invalid archive month")
	ErrSelfTarget        = errors.New("sender and receiver are the same user")
	ErrNotFriends        = errors.New("users are not friends")
	ErrAlreadyFriends    = errors.New("users are already friends")
	ErrDuplicateRequest  = errors.New("friend request already pending")
	ErrLockHeld          = errors.New("lock already held")
	ErrRateLimited       = errors.New("rate limited")
)
