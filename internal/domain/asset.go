// Package domain defines the core entities of the multi-asset ledger: balance
// rows, stakes, orders, transaction records, and the store interfaces the
// services operate against.
package domain

import (
	"fmt"
	"strings"
)

// TradingPair identifies the two legs of an order book, written "base/quote"
// (e.g. "bitcoin/usd"). The base asset is what an order buys or sells; the
// quote asset is what it is priced in.
type TradingPair struct {
	Base  string
	Quote string
}

// ParsePair splits a "base/quote" string into a TradingPair. Both legs must be
// non-empty and distinct.
func ParsePair(s string) (TradingPair, error) {
	base, quote, ok := strings.Cut(s, "/")
	if !ok {
		return TradingPair{}, fmt.Errorf("%w: %q", ErrInvalidPair, s)
	}
	base = strings.TrimSpace(base)
	quote = strings.TrimSpace(quote)
	if base == "" || quote == "" {
		return TradingPair{}, fmt.Errorf("%w: %q", ErrInvalidPair, s)
	}
	if base == quote {
		return TradingPair{}, ErrSameAsset
	}
	return TradingPair{Base: base, Quote: quote}, nil
}

// String returns the canonical "base/quote" form.
func (p TradingPair) String() string {
	return p.Base + "/" + p.Quote
}
