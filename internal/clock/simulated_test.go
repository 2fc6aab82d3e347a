package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func TestSimulatedClockSchedule(t *testing.T) {
	cal := testCalendar(t)
	clk, err := NewSimulatedClock(cal, at(t, cal, "2024-01-02 00:00"), at(t, cal, "2024-01-08 00:00"), 30*time.Minute, 15*time.Minute)
	require.NoError(t, err)

	events := clk.Schedule()
	counts := map[domain.Phase]int{}
	for i, ev := range events {
		counts[ev.Phase]++
		if i > 0 {
			require.False(t, ev.Timestamp.Before(events[i-1].Timestamp), "timestamps must not decrease")
		}
	}

	assert.Equal(t, domain.PhaseAlgoStart, events[0].Phase)
	assert.Equal(t, domain.PhaseAlgoEnd, events[len(events)-1].Phase)
	assert.Equal(t, 5, counts[domain.PhaseBeforeTradingStart])
	assert.Equal(t, 5, counts[domain.PhaseAfterTradingHours])
	assert.Equal(t, 5*13, counts[domain.PhaseTradingBar]) // 09:30 to 16:00 in 30m bars
	assert.WithinDuration(t, at(t, cal, "2024-01-02 09:15"), events[1].Timestamp, 0)
	assert.WithinDuration(t, at(t, cal, "2024-01-08 16:00"), events[len(events)-1].Timestamp, 0)
}

func TestSimulatedClockReplay(t *testing.T) {
	cal := testCalendar(t)
	clk, err := NewSimulatedClock(cal, at(t, cal, "2024-01-02 00:00"), at(t, cal, "2024-01-02 00:00"), time.Hour, 0)
	require.NoError(t, err)

	var seen []domain.Phase
	require.NoError(t, clk.Replay(context.Background(), func(ev domain.TickEvent) error {
		seen = append(seen, ev.Phase)
		return nil
	}))
	assert.Len(t, seen, len(clk.Schedule()))

	boom := errors.New("boom")
	calls := 0
	err = clk.Replay(context.Background(), func(domain.TickEvent) error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestNewSimulatedClockValidation(t *testing.T) {
	cal := testCalendar(t)
	start := at(t, cal, "2024-01-02 00:00")

	_, err := NewSimulatedClock(nil, start, start, time.Minute, 0)
	assert.ErrorIs(t, err, domain.ErrFatal)
	_, err = NewSimulatedClock(cal, start, start, 0, 0)
	assert.ErrorIs(t, err, domain.ErrFatal)
	_, err = NewSimulatedClock(cal, start, start.AddDate(0, 0, -1), time.Minute, 0)
	assert.ErrorIs(t, err, domain.ErrFatal)
}
