package domain

import "time"

// Trade is a single execution against an order. It is created by the
// execution engine at match time and applied exactly once.
type Trade struct {
	ID          string
	OrderID     string
	Asset       Asset
	Side        OrderSide
	Quantity    float64
	Price       float64
	Commission  float64
	MarginDelta float64 // positive when margin gets blocked
	CashDelta   float64 // signed change of free cash
	Timestamp   time.Time
}

// SignedQuantity returns the traded quantity signed by side.
func (t Trade) SignedQuantity() float64 {
	return t.Side.Sign() * t.Quantity
}

// Notional returns the absolute traded value.
func (t Trade) Notional() float64 {
	return t.Quantity * t.Price
}
