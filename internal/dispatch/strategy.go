// Package dispatch drives a user strategy through the trading-day lifecycle.
// It owns the ordering of work inside each phase and is the only writer of
// trading state during a run.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Strategy is a user algorithm. Every callback receives the trading context
// of the event being dispatched. A returned error is reported to the operator
// and the run continues, unless it wraps domain.ErrFatal.
type Strategy interface {
	Initialize(tc *Context) error
	BeforeTradingStart(tc *Context) error
	HandleData(tc *Context, data Data) error
	AfterTradingHours(tc *Context) error
	Heartbeat(tc *Context) error
	Analyze(tc *Context, snapshots []domain.PerformanceSnapshot) error
}

// Funcs adapts a set of optional callbacks to Strategy. Nil fields are
// no-ops.
type Funcs struct {
	OnInitialize         func(tc *Context) error
	OnBeforeTradingStart func(tc *Context) error
	OnHandleData         func(tc *Context, data Data) error
	OnAfterTradingHours  func(tc *Context) error
	OnHeartbeat          func(tc *Context) error
	OnAnalyze            func(tc *Context, snapshots []domain.PerformanceSnapshot) error
}

var _ Strategy = Funcs{}

func (f Funcs) Initialize(tc *Context) error {
	if f.OnInitialize == nil {
		return nil
	}
	return f.OnInitialize(tc)
}

func (f Funcs) BeforeTradingStart(tc *Context) error {
	if f.OnBeforeTradingStart == nil {
		return nil
	}
	return f.OnBeforeTradingStart(tc)
}

func (f Funcs) HandleData(tc *Context, data Data) error {
	if f.OnHandleData == nil {
		return nil
	}
	return f.OnHandleData(tc, data)
}

func (f Funcs) AfterTradingHours(tc *Context) error {
	if f.OnAfterTradingHours == nil {
		return nil
	}
	return f.OnAfterTradingHours(tc)
}

func (f Funcs) Heartbeat(tc *Context) error {
	if f.OnHeartbeat == nil {
		return nil
	}
	return f.OnHeartbeat(tc)
}

func (f Funcs) Analyze(tc *Context, snapshots []domain.PerformanceSnapshot) error {
	if f.OnAnalyze == nil {
		return nil
	}
	return f.OnAnalyze(tc, snapshots)
}

// Data answers prices as of the event being dispatched.
type Data struct {
	ctx    context.Context
	prices domain.PriceSource
	at     time.Time
}

// Time returns the timestamp prices are resolved at.
func (d Data) Time() time.Time { return d.at }

// Price returns the last known price of asset.
func (d Data) Price(asset domain.Asset) (float64, error) {
	if d.prices == nil {
		return 0, fmt.Errorf("dispatch: price %s: %w", asset.Symbol, domain.ErrMissingPrice)
	}
	return d.prices.LastPrice(d.ctx, asset, d.at)
}

// Prices resolves several assets at once, keyed by symbol. The first missing
// price aborts the lookup.
func (d Data) Prices(assets ...domain.Asset) (map[string]float64, error) {
	out := make(map[string]float64, len(assets))
	for _, a := range assets {
		p, err := d.Price(a)
		if err != nil {
			return nil, err
		}
		out[a.Symbol] = p
	}
	return out, nil
}
