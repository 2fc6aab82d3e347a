package domain

import "time"

// PerformanceSnapshot is the account state published once per completed day
// in backtests and per bar / end of day in live runs.
type PerformanceSnapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	Phase            Phase     `json:"phase"`
	Cash             float64   `json:"cash"`
	Margin           float64   `json:"margin"`
	NetLiquidity     float64   `json:"net_liquidity"`
	GrossExposure    float64   `json:"gross_exposure"`
	NetExposure      float64   `json:"net_exposure"`
	Leverage         float64   `json:"leverage"`
	RealizedPnL      float64   `json:"realized_pnl"`
	UnrealizedPnL    float64   `json:"unrealized_pnl"`
	DayPnL           float64   `json:"day_pnl"`
	CumulativeReturn float64   `json:"cumulative_return"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	OpenOrders       int       `json:"open_orders"`
	Positions        int       `json:"positions"`
}
