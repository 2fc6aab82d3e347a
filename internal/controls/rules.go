package controls

import (
	"math"
	"strings"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// MaxOrderSize caps a single order's quantity and notional. A zero limit is
// not enforced. An empty Symbol applies to every asset.
type MaxOrderSize struct {
	Symbol      string
	MaxQty      float64
	MaxNotional float64
}

// NewMaxOrderSize validates the limits.
func NewMaxOrderSize(symbol string, maxQty, maxNotional float64) (*MaxOrderSize, error) {
	if err := nonNegative("max_order_size", maxQty, maxNotional); err != nil {
		return nil, err
	}
	return &MaxOrderSize{Symbol: symbol, MaxQty: maxQty, MaxNotional: maxNotional}, nil
}

func (c *MaxOrderSize) Name() string { return "max_order_size" }

func (c *MaxOrderSize) Check(order domain.Order, view View) error {
	if !appliesTo(c.Symbol, order) {
		return nil
	}
	if c.MaxQty > 0 && order.Quantity > c.MaxQty {
		return violation(c, order, "quantity %.4f exceeds %.4f", order.Quantity, c.MaxQty)
	}
	if notional := order.Quantity * orderPrice(order, view); c.MaxNotional > 0 && notional > c.MaxNotional {
		return violation(c, order, "notional %.2f exceeds %.2f", notional, c.MaxNotional)
	}
	return nil
}

// MaxPositionSize caps the absolute position an order would leave behind.
type MaxPositionSize struct {
	Symbol      string
	MaxQty      float64
	MaxNotional float64
}

// NewMaxPositionSize validates the limits.
func NewMaxPositionSize(symbol string, maxQty, maxNotional float64) (*MaxPositionSize, error) {
	if err := nonNegative("max_position_size", maxQty, maxNotional); err != nil {
		return nil, err
	}
	return &MaxPositionSize{Symbol: symbol, MaxQty: maxQty, MaxNotional: maxNotional}, nil
}

func (c *MaxPositionSize) Name() string { return "max_position_size" }

func (c *MaxPositionSize) Check(order domain.Order, view View) error {
	if !appliesTo(c.Symbol, order) {
		return nil
	}
	qty := math.Abs(resulting(order, view))
	if c.MaxQty > 0 && qty > c.MaxQty {
		return violation(c, order, "position %.4f would exceed %.4f", qty, c.MaxQty)
	}
	if notional := qty * orderPrice(order, view); c.MaxNotional > 0 && notional > c.MaxNotional {
		return violation(c, order, "position notional %.2f would exceed %.2f", notional, c.MaxNotional)
	}
	return nil
}

// MaxGrossExposure caps the sum of absolute position values.
type MaxGrossExposure struct {
	Max float64
}

// NewMaxGrossExposure validates the limit.
func NewMaxGrossExposure(limit float64) (*MaxGrossExposure, error) {
	if err := nonNegative("max_gross_exposure", limit); err != nil {
		return nil, err
	}
	return &MaxGrossExposure{Max: limit}, nil
}

func (c *MaxGrossExposure) Name() string { return "max_gross_exposure" }

func (c *MaxGrossExposure) Check(order domain.Order, view View) error {
	if c.Max <= 0 {
		return nil
	}
	if gross := grossAfter(order, view, orderPrice(order, view)); gross > c.Max {
		return violation(c, order, "gross exposure %.2f would exceed %.2f", gross, c.Max)
	}
	return nil
}

// MaxLeverage caps gross exposure over net liquidation value.
type MaxLeverage struct {
	Max float64
}

// NewMaxLeverage validates the limit.
func NewMaxLeverage(limit float64) (*MaxLeverage, error) {
	if err := nonNegative("max_leverage", limit); err != nil {
		return nil, err
	}
	return &MaxLeverage{Max: limit}, nil
}

func (c *MaxLeverage) Name() string { return "max_leverage" }

func (c *MaxLeverage) Check(order domain.Order, view View) error {
	if c.Max <= 0 {
		return nil
	}
	if view.Account.NetLiquidity <= 0 {
		return violation(c, order, "account has no net liquidation value")
	}
	lev := view.Account.Leverage(grossAfter(order, view, orderPrice(order, view)))
	if lev > c.Max {
		return violation(c, order, "leverage %.2f would exceed %.2f", lev, c.Max)
	}
	return nil
}

// MaxDailyOrders caps the number of orders accepted per session.
type MaxDailyOrders struct {
	Max   int
	count int
}

// NewMaxDailyOrders validates the limit.
func NewMaxDailyOrders(limit int) (*MaxDailyOrders, error) {
	if err := nonNegative("max_daily_orders", float64(limit)); err != nil {
		return nil, err
	}
	return &MaxDailyOrders{Max: limit}, nil
}

func (c *MaxDailyOrders) Name() string { return "max_daily_orders" }

func (c *MaxDailyOrders) Check(order domain.Order, _ View) error {
	if c.Max > 0 && c.count >= c.Max {
		return violation(c, order, "%d orders already placed today", c.count)
	}
	return nil
}

func (c *MaxDailyOrders) record(domain.Order) { c.count++ }
func (c *MaxDailyOrders) resetDaily()         { c.count = 0 }

// LongOnly rejects orders that would leave a short position.
type LongOnly struct{}

func (LongOnly) Name() string { return "long_only" }

func (c LongOnly) Check(order domain.Order, view View) error {
	if q := resulting(order, view); q < -1e-9 {
		return violation(c, order, "resulting position %.4f is short", q)
	}
	return nil
}

// Blacklist rejects orders for restricted symbols.
type Blacklist struct {
	symbols map[string]struct{}
}

// NewBlacklist builds the restricted set. Symbols are case-insensitive.
func NewBlacklist(symbols ...string) *Blacklist {
	b := &Blacklist{symbols: make(map[string]struct{}, len(symbols))}
	for _, s := range symbols {
		if s = strings.TrimSpace(s); s != "" {
			b.symbols[strings.ToUpper(s)] = struct{}{}
		}
	}
	return b
}

func (c *Blacklist) Name() string { return "blacklist" }

func (c *Blacklist) Check(order domain.Order, _ View) error {
	if _, ok := c.symbols[strings.ToUpper(order.Asset.Symbol)]; ok {
		return violation(c, order, "symbol is restricted")
	}
	return nil
}
