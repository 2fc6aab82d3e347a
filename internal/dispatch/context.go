package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/controls"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/scheduler"
)

// Context is handed to strategy callbacks. It is only valid for the duration
// of the callback it was passed to.
type Context struct {
	ctx   context.Context
	d     *Dispatcher
	now   time.Time
	phase domain.Phase
}

// OrderOption customises an order placed through the context.
type OrderOption func(*domain.Order)

// Limit turns the order into a limit order at price.
func Limit(price float64) OrderOption {
	return func(o *domain.Order) {
		o.Type = domain.OrderTypeLimit
		o.Price = price
	}
}

// Tag records a label on the order's Strategy field.
func Tag(tag string) OrderOption {
	return func(o *domain.Order) { o.Strategy = tag }
}

func (d *Dispatcher) newContext(ctx context.Context, now time.Time, phase domain.Phase) *Context {
	return &Context{ctx: ctx, d: d, now: now, phase: phase}
}

// Context returns the run's context.Context.
func (c *Context) Context() context.Context { return c.ctx }

// Now returns the timestamp of the event being dispatched.
func (c *Context) Now() time.Time { return c.now }

// Phase returns the phase being dispatched.
func (c *Context) Phase() domain.Phase { return c.phase }

// Algo returns the algorithm name.
func (c *Context) Algo() string { return c.d.cfg.Algo }

// Logger returns the run logger.
func (c *Context) Logger() *slog.Logger { return c.d.logger }

// Data returns the price accessor for the current event.
func (c *Context) Data() Data {
	return Data{ctx: c.ctx, prices: c.d.prices, at: c.now}
}

// Positions returns the broker's current positions keyed by symbol.
func (c *Context) Positions() (map[string]domain.Position, error) {
	return c.d.broker.Positions(c.ctx)
}

// Account returns the broker's account summary.
func (c *Context) Account() (domain.Account, error) {
	return c.d.broker.Account(c.ctx)
}

// Order places a signed quantity of asset: positive buys, negative sells.
// The order is checked by the trading controls, sent to the broker and
// tracked as pending. It returns the broker's order ID.
func (c *Context) Order(asset domain.Asset, qty float64, opts ...OrderOption) (string, error) {
	if qty == 0 || math.IsNaN(qty) {
		return "", fmt.Errorf("dispatch: order %s: zero quantity: %w", asset.Symbol, domain.ErrInvalidOrder)
	}
	side := domain.OrderSideBuy
	if qty < 0 {
		side = domain.OrderSideSell
	}
	order := domain.Order{
		Asset:     asset,
		Side:      side,
		Type:      domain.OrderTypeMarket,
		Quantity:  math.Abs(qty),
		Strategy:  c.d.cfg.Algo,
		CreatedAt: c.now,
	}
	for _, opt := range opts {
		opt(&order)
	}
	return c.d.submit(c.ctx, c.now, order)
}

// OrderTarget orders the difference between target and the quantity held
// plus the unfilled remainder of open orders in asset. It returns an empty ID
// when nothing needs to be traded.
func (c *Context) OrderTarget(asset domain.Asset, target float64, opts ...OrderOption) (string, error) {
	held, err := c.d.expectedQuantity(c.ctx, asset.Symbol)
	if err != nil {
		return "", err
	}
	delta := target - held
	if math.Abs(delta) < 1e-9 {
		return "", nil
	}
	return c.Order(asset, delta, opts...)
}

// CancelOrder cancels an open order.
func (c *Context) CancelOrder(id string) error {
	_, err := c.d.broker.CancelOrder(c.ctx, id)
	return err
}

// Schedule registers fn to run when rule triggers. Scheduled callbacks run
// during trading bars, before the engine matches orders.
func (c *Context) Schedule(name string, rule scheduler.Rule, fn func(tc *Context) error) error {
	if fn == nil {
		return fmt.Errorf("dispatch: schedule %s: nil callback", name)
	}
	d := c.d
	return d.sched.AddEvent(name, rule, c.now, func(ctx context.Context, now time.Time) error {
		return fn(d.newContext(ctx, now, domain.PhaseTradingBar))
	})
}

// OnShutdown registers fn to run during cleanup, after the blotter is saved.
// Callbacks run in registration order; a failing callback does not stop the
// others.
func (c *Context) OnShutdown(fn func(ctx context.Context) error) {
	if fn != nil {
		c.d.shutdown = append(c.d.shutdown, fn)
	}
}

func (d *Dispatcher) submit(ctx context.Context, now time.Time, order domain.Order) (string, error) {
	if err := order.Validate(); err != nil {
		return "", fmt.Errorf("dispatch: order %s: %w", order.Asset.Symbol, err)
	}
	if d.controls != nil && d.controls.Len() > 0 {
		view, err := d.view(ctx, order.Asset, now)
		if err != nil {
			return "", err
		}
		if err := d.controls.Validate(order, view); err != nil {
			return "", err
		}
	}
	id, err := d.broker.PlaceOrder(ctx, order)
	if err != nil {
		return "", err
	}
	d.blotter.AddPendingOrder(id, order)
	d.logger.Info("order placed",
		slog.String("order_id", id),
		slog.String("symbol", order.Asset.Symbol),
		slog.String("side", string(order.Side)),
		slog.Float64("qty", order.Quantity),
	)
	return id, nil
}

func (d *Dispatcher) view(ctx context.Context, asset domain.Asset, now time.Time) (controls.View, error) {
	var v controls.View
	if d.prices != nil {
		// A missing price leaves notional checks to the limit price.
		if p, err := d.prices.LastPrice(ctx, asset, now); err == nil {
			v.Price = p
		}
	}
	positions, err := d.broker.Positions(ctx)
	if err != nil {
		return v, fmt.Errorf("dispatch: control view: %w", err)
	}
	acct, err := d.broker.Account(ctx)
	if err != nil {
		return v, fmt.Errorf("dispatch: control view: %w", err)
	}
	v.Positions = positions
	v.Account = acct
	return v, nil
}

func (d *Dispatcher) expectedQuantity(ctx context.Context, symbol string) (float64, error) {
	positions, err := d.broker.Positions(ctx)
	if err != nil {
		return 0, err
	}
	orders, err := d.broker.Orders(ctx)
	if err != nil {
		return 0, err
	}
	qty := positions[symbol].Quantity
	for _, o := range orders {
		if o.IsOpen() && o.Asset.Symbol == symbol {
			qty += o.Side.Sign() * o.Remaining()
		}
	}
	return qty, nil
}
