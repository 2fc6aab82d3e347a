package domain

import (
	"math"
	"time"
)

// quantityEpsilon absorbs float rounding when comparing fill quantities.
const quantityEpsilon = 1e-9

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() float64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// OrderType is the pricing instruction of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus tracks the order lifecycle. Open is the only non-terminal
// status; terminal orders are immutable.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusComplete  OrderStatus = "complete"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// RejectReasonInsufficientFund is set on orders rejected at settlement.
const RejectReasonInsufficientFund = "insufficient fund"

// Order represents a trading order and its fill state.
type Order struct {
	ID         string
	Asset      Asset
	Side       OrderSide
	Type       OrderType
	Quantity   float64
	Filled     float64
	Price      float64 // limit price, zero for market orders
	AvgPrice   float64 // volume-weighted fill price
	Commission float64
	Status     OrderStatus
	Reason     string
	Strategy   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsOpen reports whether the order can still be filled or cancelled.
func (o Order) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

// IsTerminal reports whether the order reached a final status.
func (o Order) IsTerminal() bool {
	return !o.IsOpen()
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() float64 {
	r := o.Quantity - o.Filled
	if r < quantityEpsilon {
		return 0
	}
	return r
}

// FullyFilled reports whether the filled quantity reached the order quantity.
func (o Order) FullyFilled() bool {
	return math.Abs(o.Quantity-o.Filled) <= quantityEpsilon
}

// SignedFilled returns the filled quantity signed by side.
func (o Order) SignedFilled() float64 {
	return o.Side.Sign() * o.Filled
}

// Validate checks the static order parameters.
func (o Order) Validate() error {
	if o.Asset.Symbol == "" {
		return ErrInvalidOrder
	}
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return ErrInvalidOrder
	}
	if !(o.Quantity > 0) || math.IsInf(o.Quantity, 0) {
		return ErrInvalidOrder
	}
	switch o.Type {
	case OrderTypeMarket, "":
	case OrderTypeLimit:
		if !(o.Price > 0) {
			return ErrInvalidOrder
		}
	default:
		return ErrInvalidOrder
	}
	return nil
}
