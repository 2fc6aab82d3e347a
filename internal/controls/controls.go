// Package controls implements pre-trade admission rules consulted before an
// order reaches the broker.
package controls

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// View is the account state an order is checked against.
type View struct {
	Price     float64 // reference price of the order's asset
	Positions map[string]domain.Position
	Account   domain.Account
}

// Control is a single admission rule.
type Control interface {
	Name() string
	Check(order domain.Order, view View) error
}

// dailyControl is implemented by controls with per-session counters.
type dailyControl interface {
	record(order domain.Order)
	resetDaily()
}

// ViolationError is returned when a control rejects an order. It matches
// domain.ErrControlViolation.
type ViolationError struct {
	Control string
	Symbol  string
	Detail  string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("controls: %s rejected order for %s: %s", e.Control, e.Symbol, e.Detail)
}

// Is implements errors.Is matching.
func (e *ViolationError) Is(target error) bool {
	return target == domain.ErrControlViolation
}

func violation(c Control, order domain.Order, format string, args ...any) error {
	return &ViolationError{Control: c.Name(), Symbol: order.Asset.Symbol, Detail: fmt.Sprintf(format, args...)}
}

// Set runs every control in registration order and stops at the first
// violation.
type Set struct {
	controls []Control
	logger   *slog.Logger
}

// NewSet creates a set of controls.
func NewSet(logger *slog.Logger, controls ...Control) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{controls: controls, logger: logger.With(slog.String("component", "controls"))}
}

// Add appends a control.
func (s *Set) Add(c Control) {
	s.controls = append(s.controls, c)
}

// Len returns the number of controls.
func (s *Set) Len() int { return len(s.controls) }

// Validate checks order against every control. An accepted order is counted
// by the daily controls.
func (s *Set) Validate(order domain.Order, view View) error {
	for _, c := range s.controls {
		if err := c.Check(order, view); err != nil {
			s.logger.Warn("order blocked by trading control",
				slog.String("control", c.Name()),
				slog.String("symbol", order.Asset.Symbol),
				slog.String("side", string(order.Side)),
				slog.Float64("qty", order.Quantity),
				slog.String("error", err.Error()),
			)
			return err
		}
	}
	for _, c := range s.controls {
		if d, ok := c.(dailyControl); ok {
			d.record(order)
		}
	}
	return nil
}

// OnBeforeTradingStart resets per-session counters.
func (s *Set) OnBeforeTradingStart() {
	for _, c := range s.controls {
		if d, ok := c.(dailyControl); ok {
			d.resetDaily()
		}
	}
}

func nonNegative(name string, values ...float64) error {
	for _, v := range values {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("controls: %s: limit must not be negative, got %v", name, v)
		}
	}
	return nil
}

func orderPrice(order domain.Order, view View) float64 {
	if order.Type == domain.OrderTypeLimit && order.Price > 0 {
		return order.Price
	}
	return view.Price
}

func appliesTo(symbol string, order domain.Order) bool {
	return symbol == "" || strings.EqualFold(symbol, order.Asset.Symbol)
}

// resulting returns the position quantity after the order fills completely.
func resulting(order domain.Order, view View) float64 {
	return view.Positions[order.Asset.Symbol].Quantity + order.Side.Sign()*order.Quantity
}

// grossAfter returns gross exposure after the order fills at price.
func grossAfter(order domain.Order, view View, price float64) float64 {
	var gross float64
	for sym, p := range view.Positions {
		if sym == order.Asset.Symbol {
			continue
		}
		gross += math.Abs(p.Quantity * p.LastPrice)
	}
	return gross + math.Abs(resulting(order, view)*price)
}
