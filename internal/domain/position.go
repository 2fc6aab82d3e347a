package domain

import "math"

// Position is the net holding in one asset. Quantity is signed: positive for
// long, negative for short. It is only mutated by applying fills.
type Position struct {
	Asset         Asset
	Quantity      float64
	AvgPrice      float64
	BuyQty        float64
	BuyPrice      float64
	SellQty       float64
	SellPrice     float64
	RealizedPnL   float64
	UnrealizedPnL float64
	LastPrice     float64
	Margin        float64
}

// FillResult describes how a fill changed a position.
type FillResult struct {
	Realized float64 // PnL realized by the closing leg
	Closed   float64 // absolute quantity closed
	Opened   float64 // absolute quantity opened or added
	Flipped  bool    // the position crossed zero
}

// IsFlat reports whether the position holds no quantity.
func (p Position) IsFlat() bool {
	return math.Abs(p.Quantity) <= quantityEpsilon
}

// Exposure returns the signed market value at the last price.
func (p Position) Exposure() float64 {
	return p.Quantity * p.LastPrice
}

// Apply books a signed fill quantity at price. A fill that crosses zero is
// handled as two legs: the existing position is closed (realizing PnL on its
// quantity only) and the residual opens a fresh position at the fill price.
func (p *Position) Apply(qty, price float64) FillResult {
	var res FillResult
	if math.Abs(qty) <= quantityEpsilon {
		return res
	}

	if p.IsFlat() || sameSign(p.Quantity, qty) {
		res.Opened = math.Abs(qty)
		p.add(qty, price)
	} else {
		held := math.Abs(p.Quantity)
		closing := math.Min(math.Abs(qty), held)
		res.Closed = closing
		res.Realized = closing * (price - p.AvgPrice) * sign(p.Quantity)
		p.RealizedPnL += res.Realized
		p.recordLeg(sign(qty)*closing, price)

		residual := qty + p.Quantity
		switch {
		case math.Abs(qty) < held-quantityEpsilon:
			p.Quantity += qty
		case math.Abs(math.Abs(qty)-held) <= quantityEpsilon:
			p.Quantity = 0
			p.AvgPrice = 0
		default:
			// Flip: start a fresh leg for the residual.
			res.Flipped = true
			res.Opened = math.Abs(residual)
			p.Quantity = 0
			p.AvgPrice = 0
			p.BuyQty, p.BuyPrice, p.SellQty, p.SellPrice = 0, 0, 0, 0
			p.add(residual, price)
		}
	}

	p.Mark(price)
	return res
}

// Mark updates the last price and unrealized PnL.
func (p *Position) Mark(price float64) {
	if price <= 0 {
		return
	}
	p.LastPrice = price
	if p.IsFlat() {
		p.UnrealizedPnL = 0
		return
	}
	p.UnrealizedPnL = (price - p.AvgPrice) * p.Quantity
}

func (p *Position) add(qty, price float64) {
	held := math.Abs(p.Quantity)
	adding := math.Abs(qty)
	p.AvgPrice = (held*p.AvgPrice + adding*price) / (held + adding)
	p.Quantity += qty
	p.recordLeg(qty, price)
}

func (p *Position) recordLeg(qty, price float64) {
	abs := math.Abs(qty)
	if qty > 0 {
		p.BuyPrice = (p.BuyQty*p.BuyPrice + abs*price) / (p.BuyQty + abs)
		p.BuyQty += abs
		return
	}
	p.SellPrice = (p.SellQty*p.SellPrice + abs*price) / (p.SellQty + abs)
	p.SellQty += abs
}

func sameSign(a, b float64) bool {
	return (a > 0) == (b > 0)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
