package execution

import (
	"math/rand/v2"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// FillModel decides how much of an open order trades on a bar, and at what
// price, given the reference market price. ok is false when nothing trades.
type FillModel interface {
	Fill(order domain.Order, ref float64) (qty, price float64, ok bool)
}

// FullFillModel fills the whole remaining quantity at the reference price.
type FullFillModel struct{}

// Fill implements FillModel.
func (FullFillModel) Fill(order domain.Order, ref float64) (float64, float64, bool) {
	if ref <= 0 || !marketable(order, ref) {
		return 0, 0, false
	}
	return order.Remaining(), ref, true
}

// RandomFillModel trades a random fraction of the remaining quantity at a
// price drawn uniformly within MaxSlippage (a fraction of the reference
// price) around the reference. It stands in for an order book; the same
// seed always produces the same fills.
type RandomFillModel struct {
	MaxSlippage float64 // e.g. 0.001 for 10 bps either side
	MinFraction float64 // smallest fraction of the remaining quantity traded
	rng         *rand.Rand
}

// NewRandomFillModel returns a model seeded with seed.
func NewRandomFillModel(seed uint64, maxSlippage, minFraction float64) *RandomFillModel {
	if minFraction <= 0 || minFraction > 1 {
		minFraction = 1
	}
	if maxSlippage < 0 {
		maxSlippage = 0
	}
	return &RandomFillModel{
		MaxSlippage: maxSlippage,
		MinFraction: minFraction,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Fill implements FillModel.
func (m *RandomFillModel) Fill(order domain.Order, ref float64) (float64, float64, bool) {
	if ref <= 0 {
		return 0, 0, false
	}
	// Draw both numbers up front so the random stream does not depend on
	// whether the order turns out to be marketable.
	u := 2*m.rng.Float64() - 1
	frac := m.MinFraction + (1-m.MinFraction)*m.rng.Float64()

	price := ref * (1 + u*m.MaxSlippage)
	if !marketable(order, price) {
		return 0, 0, false
	}
	qty := order.Remaining() * frac
	if qty <= 0 {
		return 0, 0, false
	}
	return qty, price, true
}

// marketable reports whether a limit order accepts price. Market orders
// accept any price.
func marketable(order domain.Order, price float64) bool {
	if order.Type != domain.OrderTypeLimit {
		return true
	}
	if order.Side == domain.OrderSideBuy {
		return price <= order.Price
	}
	return price >= order.Price
}
