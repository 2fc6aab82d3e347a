package domain

import (
	"context"
	"time"
)

// Broker is the capability set shared by the simulated execution engine and
// any live venue adapter.
type Broker interface {
	PlaceOrder(ctx context.Context, order Order) (string, error)
	CancelOrder(ctx context.Context, orderID string) (string, error)
	Orders(ctx context.Context) (map[string]Order, error)
	Positions(ctx context.Context) (map[string]Position, error)
	Account(ctx context.Context) (Account, error)
}

// PriceSource answers the latest known price of an asset at a point in time.
type PriceSource interface {
	LastPrice(ctx context.Context, asset Asset, at time.Time) (float64, error)
}

// FillReporter is implemented by brokers that expose individual fills. The
// blotter books an order fill by fill when they are available, so an order
// that crosses zero realizes PnL on the closing leg at the closing price.
type FillReporter interface {
	Trades() []Trade
}

// PnLReporter is implemented by brokers that report realized PnL including
// positions already closed.
type PnLReporter interface {
	RealizedPnL() float64
}
