package domain

import "time"

// millisPerDay converts elapsed wall-clock time into the day units the
// accrual rate is expressed in.
const millisPerDay = 1000 * 60 * 60 * 24

// Stake is an interest-bearing position for one (user, asset). Principal is
// the staked amount; AccruedReward grows lazily via Accrue and is flushed to
// the ledger when the stake is closed.
type Stake struct {
	UserID        string
	Asset         string
	Principal     float64
	AccruedReward float64
	APY           float64
	LastAccrualAt time.Time
}

// Accrue applies simple interest for the window between LastAccrualAt and now
// at the currently recorded rate, then advances the checkpoint. Every reader
// or mutator of a stake must call this first so that rate changes only ever
// apply to time that has not yet been accounted for. Returns the reward added
// by this call.
func (s *Stake) Accrue(now time.Time) float64 {
	elapsed := now.Sub(s.LastAccrualAt)
	if elapsed <= 0 {
		s.LastAccrualAt = now
		return 0
	}
	days := float64(elapsed.Milliseconds()) / millisPerDay
	reward := s.Principal * s.APY * days
	s.AccruedReward += reward
	s.LastAccrualAt = now
	return reward
}

// StakeReceipt reports the settled amounts returned by closing a stake.
type StakeReceipt struct {
	Asset     string
	Principal float64
	Reward    float64
	Total     float64
}
