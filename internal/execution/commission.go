package execution

import (
	"math"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// CommissionModel prices a single fill. qty is unsigned.
type CommissionModel interface {
	Commission(asset domain.Asset, qty, price float64) float64
}

// BpsCommission charges a share of notional, with a floor per fill.
type BpsCommission struct {
	Bps     float64
	Minimum float64
}

// Commission implements CommissionModel.
func (c BpsCommission) Commission(_ domain.Asset, qty, price float64) float64 {
	return math.Max(qty*price*c.Bps/10_000, c.Minimum)
}

// PerShareCommission charges a fixed amount per unit traded.
type PerShareCommission struct {
	PerUnit float64
	Minimum float64
}

// Commission implements CommissionModel.
func (c PerShareCommission) Commission(_ domain.Asset, qty, _ float64) float64 {
	return math.Max(qty*c.PerUnit, c.Minimum)
}

// MarginTable maps instrument types to the fraction of notional blocked as
// margin. Spot instruments are never margined: they pay full notional.
type MarginTable map[domain.InstrumentType]float64

// DefaultMarginTable is used when no table is configured.
func DefaultMarginTable() MarginTable {
	return MarginTable{
		domain.InstrumentFutures: 0.10,
		domain.InstrumentOptions: 1.00,
		domain.InstrumentMargin:  0.50,
	}
}

// Rate returns the margin fraction for t. Margined types missing from the
// table are treated as fully margined.
func (m MarginTable) Rate(t domain.InstrumentType) float64 {
	if !t.Margined() {
		return 0
	}
	if r, ok := m[t]; ok {
		return r
	}
	return 1
}

// Required returns the margin a position needs at price.
func (m MarginTable) Required(asset domain.Asset, qty, price float64) float64 {
	return math.Abs(qty) * price * m.Rate(asset.Type)
}
