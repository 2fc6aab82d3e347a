// Package execution is the simulated broker: it matches open orders against
// reference prices on every bar and settles fills against a cash account.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

const cashEpsilon = 1e-9

// Engine implements domain.Broker for backtests and paper trading.
//
// One goroutine (the dispatch loop) drives it; the mutex only lets status
// readers take consistent snapshots.
type Engine struct {
	prices     domain.PriceSource
	fill       FillModel
	commission CommissionModel
	margins    MarginTable
	ids        *IDGenerator
	logger     *slog.Logger

	mu        sync.RWMutex
	now       time.Time
	cash      float64
	margin    float64
	orders    map[string]*domain.Order
	open      []string // open order IDs in placement order
	positions map[string]*domain.Position
	trades    []domain.Trade
}

// Option customises an Engine.
type Option func(*Engine)

// WithFillModel replaces the default FullFillModel.
func WithFillModel(m FillModel) Option {
	return func(e *Engine) { e.fill = m }
}

// WithCommission replaces the default zero commission.
func WithCommission(c CommissionModel) Option {
	return func(e *Engine) { e.commission = c }
}

// WithMarginTable replaces DefaultMarginTable.
func WithMarginTable(t MarginTable) Option {
	return func(e *Engine) { e.margins = t }
}

// WithIDGenerator sets the ID source.
func WithIDGenerator(g *IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.With(slog.String("component", "execution"))
		}
	}
}

// NewEngine creates an engine with initialCapital in cash.
func NewEngine(prices domain.PriceSource, initialCapital float64, opts ...Option) (*Engine, error) {
	if prices == nil {
		return nil, errors.New("execution: price source is required")
	}
	if !(initialCapital >= 0) {
		return nil, fmt.Errorf("execution: initial capital must not be negative, got %v", initialCapital)
	}
	e := &Engine{
		prices:     prices,
		fill:       FullFillModel{},
		commission: BpsCommission{},
		margins:    DefaultMarginTable(),
		ids:        NewIDGenerator("default"),
		logger:     slog.Default().With(slog.String("component", "execution")),
		cash:       initialCapital,
		orders:     make(map[string]*domain.Order),
		positions:  make(map[string]*domain.Position),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// PlaceOrder accepts an order and returns its ID. Matching happens on the
// next bar.
func (e *Engine) PlaceOrder(_ context.Context, order domain.Order) (string, error) {
	if err := order.Validate(); err != nil {
		return "", fmt.Errorf("execution: place order: %w", err)
	}
	if order.Type == "" {
		order.Type = domain.OrderTypeMarket
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	order.ID = e.ids.NextOrder()
	order.Status = domain.OrderStatusOpen
	order.Filled, order.AvgPrice, order.Commission = 0, 0, 0
	order.Reason = ""
	if order.CreatedAt.IsZero() {
		order.CreatedAt = e.now
	}
	order.UpdatedAt = order.CreatedAt

	e.orders[order.ID] = &order
	e.open = append(e.open, order.ID)

	e.logger.Debug("order accepted",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Asset.Symbol),
		slog.String("side", string(order.Side)),
		slog.Float64("qty", order.Quantity),
	)
	return order.ID, nil
}

// CancelOrder cancels an open order.
func (e *Engine) CancelOrder(_ context.Context, id string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[id]
	if !ok {
		return "", fmt.Errorf("execution: cancel %s: %w", id, domain.ErrNotFound)
	}
	if !o.IsOpen() {
		return "", fmt.Errorf("execution: cancel %s: %w", id, domain.ErrOrderClosed)
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = e.now
	e.removeOpen(id)
	return id, nil
}

// Orders returns every order the engine knows, open and closed.
func (e *Engine) Orders(_ context.Context) (map[string]domain.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]domain.Order, len(e.orders))
	for id, o := range e.orders {
		out[id] = *o
	}
	return out, nil
}

// OpenOrders returns open orders in placement order.
func (e *Engine) OpenOrders() []domain.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Order, 0, len(e.open))
	for _, id := range e.open {
		out = append(out, *e.orders[id])
	}
	return out
}

// Positions returns the non-flat positions keyed by symbol.
func (e *Engine) Positions(_ context.Context) (map[string]domain.Position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]domain.Position, len(e.positions))
	for sym, p := range e.positions {
		if p.IsFlat() {
			continue
		}
		out[sym] = *p
	}
	return out, nil
}

// Account returns cash, blocked margin and net liquidation value.
func (e *Engine) Account(_ context.Context) (domain.Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.account(), nil
}

// RealizedPnL sums realized PnL over every position, flat ones included.
func (e *Engine) RealizedPnL() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var sum float64
	for _, p := range e.positions {
		sum += p.RealizedPnL
	}
	return sum
}

// Trades returns the fill history.
func (e *Engine) Trades() []domain.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.Trade(nil), e.trades...)
}

// BeforeTradingStart records the session time.
func (e *Engine) BeforeTradingStart(_ context.Context, ts time.Time) error {
	e.setNow(ts)
	return nil
}

// OnTradingBar matches every open order once, in placement order, then
// marks positions. Rejections and missing prices are returned joined; they
// are recoverable. Settlement corruption matches domain.ErrFatal and stops
// matching immediately.
func (e *Engine) OnTradingBar(ctx context.Context, ts time.Time) error {
	e.setNow(ts)

	e.mu.RLock()
	pending := append([]string(nil), e.open...)
	e.mu.RUnlock()

	var errs []error
	refs := make(map[string]float64)
	for _, id := range pending {
		e.mu.RLock()
		order := *e.orders[id]
		e.mu.RUnlock()
		if !order.IsOpen() {
			continue
		}

		ref, ok := refs[order.Asset.Symbol]
		if !ok {
			p, err := e.prices.LastPrice(ctx, order.Asset, ts)
			if err != nil {
				errs = append(errs, fmt.Errorf("execution: price %s: %w", order.Asset.Symbol, err))
				continue
			}
			ref = p
			refs[order.Asset.Symbol] = p
		}

		qty, price, ok := e.fill.Fill(order, ref)
		if !ok {
			continue
		}
		qty = math.Min(qty, order.Remaining())
		if err := e.settle(id, qty, price, ts); err != nil {
			if domain.IsFatal(err) {
				return err
			}
			errs = append(errs, err)
		}
	}

	e.mark(ctx, ts, refs)
	return errors.Join(errs...)
}

// AfterTradingHours marks every position at the closing price.
func (e *Engine) AfterTradingHours(ctx context.Context, ts time.Time) error {
	e.setNow(ts)
	e.mark(ctx, ts, nil)
	return nil
}

// settle books one fill. It either applies completely or not at all.
func (e *Engine) settle(id string, qty, price float64, ts time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order := e.orders[id]
	sym := order.Asset.Symbol
	signed := order.Side.Sign() * qty

	var pos domain.Position
	if cur, ok := e.positions[sym]; ok {
		pos = *cur
	} else {
		pos.Asset = order.Asset
	}
	res := pos.Apply(signed, price)
	required := e.margins.Required(order.Asset, pos.Quantity, price)
	commission := e.commission.Commission(order.Asset, qty, price)

	var marginDelta, cashDelta float64
	if order.Asset.Type.Margined() {
		marginDelta = required - pos.Margin
		cashDelta = res.Realized - commission - marginDelta
	} else {
		cashDelta = -signed*price - commission
	}

	if e.cash+cashDelta < -cashEpsilon {
		order.Status = domain.OrderStatusRejected
		order.Reason = domain.RejectReasonInsufficientFund
		order.UpdatedAt = ts
		e.removeOpen(id)
		e.logger.Warn("order rejected",
			slog.String("order_id", id),
			slog.String("symbol", sym),
			slog.String("reason", order.Reason),
			slog.Float64("cash", e.cash),
			slog.Float64("cash_delta", cashDelta),
		)
		return fmt.Errorf("execution: order %s: %w", id, domain.ErrInsufficientFunds)
	}

	newCash, newMargin := e.cash+cashDelta, e.margin+marginDelta
	if math.IsNaN(newCash) || math.IsInf(newCash, 0) || math.IsNaN(newMargin) || newMargin < -cashEpsilon {
		return fmt.Errorf("execution: %w: settlement of order %s left cash=%v margin=%v", domain.ErrFatal, id, newCash, newMargin)
	}

	e.cash, e.margin = newCash, newMargin
	pos.Margin = required
	e.positions[sym] = &pos

	e.trades = append(e.trades, domain.Trade{
		ID:          e.ids.NextTrade(),
		OrderID:     id,
		Asset:       order.Asset,
		Side:        order.Side,
		Quantity:    qty,
		Price:       price,
		Commission:  commission,
		MarginDelta: marginDelta,
		CashDelta:   cashDelta,
		Timestamp:   ts,
	})

	order.AvgPrice = (order.Filled*order.AvgPrice + qty*price) / (order.Filled + qty)
	order.Filled += qty
	order.Commission += commission
	order.UpdatedAt = ts
	if order.FullyFilled() {
		order.Filled = order.Quantity
		order.Status = domain.OrderStatusComplete
		e.removeOpen(id)
	}

	e.logger.Debug("order filled",
		slog.String("order_id", id),
		slog.String("symbol", sym),
		slog.Float64("qty", qty),
		slog.Float64("price", price),
		slog.Float64("cash", e.cash),
		slog.Bool("flipped", res.Flipped),
	)
	return nil
}

// mark refreshes last prices. Cached refs from matching are reused; a
// missing price leaves the previous mark in place.
func (e *Engine) mark(ctx context.Context, ts time.Time, refs map[string]float64) {
	e.mu.RLock()
	held := make([]domain.Asset, 0, len(e.positions))
	for _, p := range e.positions {
		if !p.IsFlat() {
			held = append(held, p.Asset)
		}
	}
	e.mu.RUnlock()

	for _, a := range held {
		price, ok := refs[a.Symbol]
		if !ok {
			p, err := e.prices.LastPrice(ctx, a, ts)
			if err != nil {
				e.logger.Debug("no mark price", slog.String("symbol", a.Symbol), slog.String("error", err.Error()))
				continue
			}
			price = p
		}
		e.mu.Lock()
		e.positions[a.Symbol].Mark(price)
		e.mu.Unlock()
	}
}

func (e *Engine) account() domain.Account {
	nl := e.cash + e.margin
	for _, p := range e.positions {
		if p.Asset.Type.Margined() {
			nl += p.UnrealizedPnL
		} else {
			nl += p.Quantity * p.LastPrice
		}
	}
	return domain.Account{Cash: e.cash, Margin: e.margin, NetLiquidity: nl}
}

func (e *Engine) removeOpen(id string) {
	for i, oid := range e.open {
		if oid == id {
			e.open = append(e.open[:i], e.open[i+1:]...)
			return
		}
	}
}

func (e *Engine) setNow(ts time.Time) {
	e.mu.Lock()
	e.now = ts
	e.mu.Unlock()
}

var (
	_ domain.Broker       = (*Engine)(nil)
	_ domain.FillReporter = (*Engine)(nil)
	_ domain.PnLReporter  = (*Engine)(nil)
)
