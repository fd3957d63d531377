package domain

import "time"

// Balance is one (user, asset) row of the ledger. Available is the amount the
// user may spend; Locked is escrowed in open sell orders. Both are kept
// non-negative by the store's conditional updates; nothing outside the ledger
// service mutates them.
type Balance struct {
	UserID    string
	Asset     string
	Available float64
	Locked    float64
	UpdatedAt time.Time
}

// Total returns available plus locked value.
func (b Balance) Total() float64 {
	return b.Available + b.Locked
}
