package domain

import "time"

// Phase is a discrete point in the trading-day lifecycle.
type Phase string

const (
	PhaseAlgoStart          Phase = "algo_start"
	PhaseBeforeTradingStart Phase = "before_trading_start"
	PhaseTradingBar         Phase = "trading_bar"
	PhaseAfterTradingHours  Phase = "after_trading_hours"
	PhaseHeartbeat          Phase = "heartbeat"
	PhaseAlgoEnd            Phase = "algo_end"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseAlgoStart, PhaseBeforeTradingStart, PhaseTradingBar,
		PhaseAfterTradingHours, PhaseHeartbeat, PhaseAlgoEnd:
		return true
	default:
		return false
	}
}

// TickEvent is one (timestamp, phase) pair produced by a clock. Within a run
// timestamps never decrease.
type TickEvent struct {
	Timestamp time.Time
	Phase     Phase
}
