// Package perf computes performance snapshots and publishes them to sinks.
package perf

import (
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Tracker turns account state into PerformanceSnapshots, remembering the
// start-of-day value and the running peak for drawdown.
type Tracker struct {
	mu       sync.Mutex
	initial  float64
	dayStart float64
	peak     float64
	maxDD    float64
	last     *domain.PerformanceSnapshot
}

// NewTracker starts tracking from initialCapital.
func NewTracker(initialCapital float64) *Tracker {
	return &Tracker{initial: initialCapital, dayStart: initialCapital, peak: initialCapital}
}

// StartDay sets the reference value for day PnL.
func (t *Tracker) StartDay(netLiquidity float64) {
	t.mu.Lock()
	t.dayStart = netLiquidity
	t.mu.Unlock()
}

// Snapshot builds a snapshot and records it as the latest. realizedPnL is
// taken as given because brokers leave closed positions out of positions.
func (t *Tracker) Snapshot(ts time.Time, phase domain.Phase, acct domain.Account, positions map[string]domain.Position, realizedPnL float64, openOrders int) domain.PerformanceSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := domain.PerformanceSnapshot{
		Timestamp:    ts,
		Phase:        phase,
		Cash:         acct.Cash,
		Margin:       acct.Margin,
		NetLiquidity: acct.NetLiquidity,
		RealizedPnL:  realizedPnL,
		OpenOrders:   openOrders,
	}
	for _, p := range positions {
		exposure := p.Exposure()
		snap.GrossExposure += math.Abs(exposure)
		snap.NetExposure += exposure
		snap.UnrealizedPnL += p.UnrealizedPnL
		if !p.IsFlat() {
			snap.Positions++
		}
	}
	snap.Leverage = acct.Leverage(snap.GrossExposure)
	snap.DayPnL = acct.NetLiquidity - t.dayStart
	if t.initial > 0 {
		snap.CumulativeReturn = acct.NetLiquidity/t.initial - 1
	}

	if acct.NetLiquidity > t.peak {
		t.peak = acct.NetLiquidity
	}
	if t.peak > 0 {
		if dd := (t.peak - acct.NetLiquidity) / t.peak; dd > t.maxDD {
			t.maxDD = dd
		}
	}
	snap.MaxDrawdown = t.maxDD

	t.last = &snap
	return snap
}

// Last returns the latest snapshot.
func (t *Tracker) Last() (domain.PerformanceSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return domain.PerformanceSnapshot{}, false
	}
	return *t.last, true
}
