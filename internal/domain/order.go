package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderStatus tracks the order lifecycle. Filled and cancelled are terminal;
// terminal orders are kept for audit, never deleted.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a limit order resting on one side of a trading pair's book.
// Amount and Price are immutable after placement; only Filled and Status
// change, and only inside the matching engine.
type Order struct {
	ID        string
	UserID    string
	Side      OrderSide
	Pair      TradingPair
	Amount    float64
	Price     float64
	Filled    float64
	Status    OrderStatus
	CreatedAt time.Time
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() float64 {
	return o.Amount - o.Filled
}

// FillStatus is the status implied by the filled/amount relationship. Outside
// of cancellation, an order's status is always exactly this function of its
// fill state.
func (o Order) FillStatus() OrderStatus {
	switch {
	case o.Filled >= o.Amount:
		return OrderStatusFilled
	case o.Filled > 0:
		return OrderStatusPartial
	default:
		return OrderStatusOpen
	}
}

// Crosses reports whether a resting order at restingPrice is eligible to
// trade against this order's limit: a buy crosses asks priced at or below its
// limit, a sell crosses bids priced at or above it.
func (o Order) Crosses(restingPrice float64) bool {
	if o.Side == OrderSideBuy {
		return restingPrice <= o.Price
	}
	return restingPrice >= o.Price
}
