package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/calendar"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func weekdays(t *testing.T) *calendar.Exchange {
	t.Helper()
	cal, err := calendar.NewExchange(calendar.Options{
		Timezone: "America/New_York",
		Open:     "09:30",
		Close:    "16:00",
		Holidays: []string{"2024-01-01", "2024-01-15"},
	})
	require.NoError(t, err)
	return cal
}

func ts(t *testing.T, cal calendar.Calendar, s string) time.Time {
	t.Helper()
	v, err := time.ParseInLocation("2006-01-02 15:04", s, cal.Location())
	require.NoError(t, err)
	return v
}

func noop(context.Context, time.Time) error { return nil }

func TestMonthStartAfterOpen(t *testing.T) {
	cal, err := calendar.NewExchange(calendar.Options{
		Timezone: "America/New_York",
		Open:     "09:30",
		Close:    "16:00",
		Sessions: []string{"2024-01-02", "2024-01-03", "2024-02-01", "2024-02-02", "2024-03-01"},
	})
	require.NoError(t, err)

	rule, err := NewRule(MonthStart(0), AfterOpen(10*time.Minute))
	require.NoError(t, err)

	s := New(cal, nil)
	var fired []time.Time
	require.NoError(t, s.AddEvent("rebalance", rule, ts(t, cal, "2024-01-01 00:00"), func(_ context.Context, now time.Time) error {
		fired = append(fired, now)
		return nil
	}))

	first, ok := s.NextTrigger()
	require.True(t, ok)
	assert.WithinDuration(t, ts(t, cal, "2024-01-02 09:40"), first, 0)

	require.NoError(t, s.TriggerDue(context.Background(), ts(t, cal, "2024-01-02 09:30")))
	assert.Empty(t, fired, "not due yet")

	require.NoError(t, s.TriggerDue(context.Background(), first))
	require.Len(t, fired, 1)

	second, ok := s.NextTrigger()
	require.True(t, ok)
	assert.WithinDuration(t, ts(t, cal, "2024-02-01 09:40"), second, 0)
}

func TestDateRules(t *testing.T) {
	cal := weekdays(t)
	start := ts(t, cal, "2024-01-01 00:00")

	testCases := []struct {
		desc string
		date DateRule
		want string
	}{
		{"every day skips the new year holiday", EveryDay(), "2024-01-02 10:00"},
		{"week start", WeekStart(0), "2024-01-02 10:00"},
		{"week start second session", WeekStart(1), "2024-01-03 10:00"},
		{"week end", WeekEnd(0), "2024-01-05 10:00"},
		{"month end", MonthEnd(0), "2024-01-31 10:00"},
		{"month end offset", MonthEnd(2), "2024-01-29 10:00"},
		{"month start offset", MonthStart(3), "2024-01-05 10:00"},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			rule, err := NewRule(tc.date, AfterOpen(30*time.Minute))
			require.NoError(t, err)
			next, err := rule.Next(cal, start, DefaultLookahead)
			require.NoError(t, err)
			assert.WithinDuration(t, ts(t, cal, tc.want), next, 0)
		})
	}

	// Monday the 15th is a holiday, so Tuesday opens that week.
	rule, err := NewRule(WeekStart(0), AfterOpen(0))
	require.NoError(t, err)
	next, err := rule.Next(cal, ts(t, cal, "2024-01-13 00:00"), DefaultLookahead)
	require.NoError(t, err)
	assert.WithinDuration(t, ts(t, cal, "2024-01-16 09:30"), next, 0)
}

func TestNewRuleValidation(t *testing.T) {
	bad := []struct {
		desc string
		date DateRule
		tr   TimeRule
	}{
		{"week offset too large", WeekStart(5), AfterOpen(0)},
		{"negative week offset", WeekEnd(-1), AfterOpen(0)},
		{"month offset too large", MonthEnd(23), AfterOpen(0)},
		{"negative offset", EveryDay(), AfterOpen(-time.Minute)},
		{"zero period", EveryDay(), Every(0)},
	}
	for _, tc := range bad {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := NewRule(tc.date, tc.tr)
			assert.Error(t, err)
		})
	}

	_, err := NewRule(MonthStart(22), BeforeClose(time.Hour))
	assert.NoError(t, err)
}

func TestMalformedRuleIsFatal(t *testing.T) {
	cal := weekdays(t)
	s := New(cal, nil)

	// Ten hours after a six and a half hour session never happens.
	rule := Rule{Date: EveryDay(), Time: AfterOpen(10 * time.Hour)}
	err := s.AddEvent("never", rule, ts(t, cal, "2024-01-01 00:00"), noop)
	assert.ErrorIs(t, err, ErrMalformedRule)
	assert.ErrorIs(t, err, domain.ErrFatal)
	assert.Zero(t, s.Len())
}

func TestTriggerOrderAndTies(t *testing.T) {
	cal := weekdays(t)
	s := New(cal, nil)
	start := ts(t, cal, "2024-01-02 00:00")

	var order []string
	record := func(name string) Callback {
		return func(context.Context, time.Time) error {
			order = append(order, name)
			return nil
		}
	}

	late, err := NewRule(EveryDay(), AfterOpen(time.Hour))
	require.NoError(t, err)
	early, err := NewRule(EveryDay(), AfterOpen(10*time.Minute))
	require.NoError(t, err)

	require.NoError(t, s.AddEvent("late", late, start, record("late")))
	require.NoError(t, s.AddEvent("early-a", early, start, record("early-a")))
	require.NoError(t, s.AddEvent("early-b", early, start, record("early-b")))

	require.NoError(t, s.TriggerDue(context.Background(), ts(t, cal, "2024-01-02 11:00")))
	assert.Equal(t, []string{"early-a", "early-b", "late"}, order)
	assert.Equal(t, 3, s.Len(), "events are reinserted")

	next, ok := s.NextTrigger()
	require.True(t, ok)
	assert.WithinDuration(t, ts(t, cal, "2024-01-03 09:40"), next, 0)
}

func TestEveryFiresOncePerCall(t *testing.T) {
	cal := weekdays(t)
	s := New(cal, nil)

	rule, err := NewRule(EveryDay(), Every(2*time.Hour))
	require.NoError(t, err)
	calls := 0
	require.NoError(t, s.AddEvent("poll", rule, ts(t, cal, "2024-01-02 00:00"), func(context.Context, time.Time) error {
		calls++
		return nil
	}))

	require.NoError(t, s.TriggerDue(context.Background(), ts(t, cal, "2024-01-02 14:00")))
	assert.Equal(t, 1, calls)
	next, _ := s.NextTrigger()
	assert.WithinDuration(t, ts(t, cal, "2024-01-02 15:30"), next, 0)
}

func TestCallbackErrorsAreReturned(t *testing.T) {
	cal := weekdays(t)
	s := New(cal, nil)
	boom := errors.New("boom")

	rule, err := NewRule(EveryDay(), AfterOpen(0))
	require.NoError(t, err)
	require.NoError(t, s.AddEvent("fails", rule, ts(t, cal, "2024-01-02 00:00"), func(context.Context, time.Time) error { return boom }))
	require.NoError(t, s.AddEvent("ok", rule, ts(t, cal, "2024-01-02 00:00"), noop))

	err = s.TriggerDue(context.Background(), ts(t, cal, "2024-01-02 10:00"))
	assert.ErrorIs(t, err, boom)
	assert.False(t, domain.IsFatal(err))
	assert.Equal(t, 2, s.Len())
}

func TestExhaustedCalendarDropsEvent(t *testing.T) {
	cal, err := calendar.NewExchange(calendar.Options{
		Timezone: "UTC",
		Open:     "09:00",
		Close:    "17:00",
		Sessions: []string{"2024-01-02"},
	})
	require.NoError(t, err)

	s := New(cal, nil)
	rule, err := NewRule(EveryDay(), AfterOpen(0))
	require.NoError(t, err)
	require.NoError(t, s.AddEvent("once", rule, ts(t, cal, "2024-01-01 00:00"), noop))

	require.NoError(t, s.TriggerDue(context.Background(), ts(t, cal, "2024-01-02 12:00")))
	assert.Zero(t, s.Len())

	err = s.AddEvent("late", rule, ts(t, cal, "2024-01-03 00:00"), noop)
	assert.Error(t, err)
}

func TestParseRules(t *testing.T) {
	d, err := ParseDateRule("Month_Start", 2)
	require.NoError(t, err)
	assert.Equal(t, MonthStart(2), d)

	d, err = ParseDateRule("", 0)
	require.NoError(t, err)
	assert.Equal(t, EveryDay(), d)

	_, err = ParseDateRule("week_start", 9)
	assert.Error(t, err)
	_, err = ParseDateRule("fortnightly", 0)
	assert.Error(t, err)

	tr, err := ParseTimeRule("before_close", "15m")
	require.NoError(t, err)
	assert.Equal(t, BeforeClose(15*time.Minute), tr)

	_, err = ParseTimeRule("every", "")
	assert.Error(t, err, "every needs a positive period")
	_, err = ParseTimeRule("after_open", "soon")
	assert.Error(t, err)
	_, err = ParseTimeRule("at_noon", "1h")
	assert.Error(t, err)
}
