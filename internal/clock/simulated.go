package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/calendar"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// SimulatedClock precomputes the event stream for a backtest over a session
// range. Every event is delivered, in order, with no wall-clock delay.
type SimulatedClock struct {
	cal     calendar.Calendar
	start   time.Time
	end     time.Time
	bar     time.Duration
	preOpen time.Duration
}

// NewSimulatedClock returns a clock over the sessions in [start, end].
func NewSimulatedClock(cal calendar.Calendar, start, end time.Time, bar, preOpen time.Duration) (*SimulatedClock, error) {
	switch {
	case cal == nil:
		return nil, fmt.Errorf("clock: %w: calendar is required", domain.ErrFatal)
	case bar <= 0:
		return nil, fmt.Errorf("clock: %w: bar period must be positive, got %s", domain.ErrFatal, bar)
	case preOpen < 0:
		return nil, fmt.Errorf("clock: %w: pre-open must not be negative", domain.ErrFatal)
	case end.Before(start):
		return nil, fmt.Errorf("clock: %w: end %s before start %s", domain.ErrFatal, end, start)
	}
	return &SimulatedClock{cal: cal, start: start, end: end, bar: bar, preOpen: preOpen}, nil
}

// Sessions returns the session dates covered by the clock.
func (c *SimulatedClock) Sessions() []time.Time {
	return c.cal.Sessions(c.start, c.end)
}

// Schedule returns the full event list: AlgoStart, then for every session
// BeforeTradingStart, the trading bars from open+bar through close and
// AfterTradingHours at close, and finally AlgoEnd.
func (c *SimulatedClock) Schedule() []domain.TickEvent {
	sessions := c.Sessions()
	if len(sessions) == 0 {
		return []domain.TickEvent{
			{Timestamp: c.start, Phase: domain.PhaseAlgoStart},
			{Timestamp: c.start, Phase: domain.PhaseAlgoEnd},
		}
	}

	first := c.cal.SessionOpen(sessions[0]).Add(-c.preOpen)
	events := []domain.TickEvent{{Timestamp: first, Phase: domain.PhaseAlgoStart}}

	var last time.Time
	for _, day := range sessions {
		open := c.cal.SessionOpen(day)
		closeAt := c.cal.SessionClose(day)

		events = append(events, domain.TickEvent{Timestamp: open.Add(-c.preOpen), Phase: domain.PhaseBeforeTradingStart})
		for t := open.Add(c.bar); !t.After(closeAt); t = t.Add(c.bar) {
			events = append(events, domain.TickEvent{Timestamp: t, Phase: domain.PhaseTradingBar})
		}
		events = append(events, domain.TickEvent{Timestamp: closeAt, Phase: domain.PhaseAfterTradingHours})
		last = closeAt
	}
	return append(events, domain.TickEvent{Timestamp: last, Phase: domain.PhaseAlgoEnd})
}

// Replay calls fn for every scheduled event in order. It stops at the first
// error from fn or when ctx is done.
func (c *SimulatedClock) Replay(ctx context.Context, fn func(domain.TickEvent) error) error {
	for _, ev := range c.Schedule() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}
