package domain

// Account is the cash view of a trading account. Cash is free cash, Margin
// is cash blocked against margined positions and NetLiquidity is the value
// of the account marked to market.
type Account struct {
	Cash         float64
	Margin       float64
	NetLiquidity float64
}

// Leverage returns gross exposure over net liquidity, or zero when the
// account has no value.
func (a Account) Leverage(grossExposure float64) float64 {
	if a.NetLiquidity <= 0 {
		return 0
	}
	return grossExposure / a.NetLiquidity
}
