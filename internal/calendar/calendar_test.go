package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *Exchange {
	t.Helper()
	cal, err := NewExchange(Options{
		Timezone: "America/New_York",
		Open:     "09:30",
		Close:    "16:00",
		Holidays: []string{"2024-01-01", "2024-01-15"},
	})
	require.NoError(t, err)
	return cal
}

func date(t *testing.T, cal Calendar, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation(DateLayout, s, cal.Location())
	require.NoError(t, err)
	return d
}

func TestNewExchangeValidation(t *testing.T) {
	testCases := []struct {
		desc string
		opts Options
	}{
		{"bad timezone", Options{Timezone: "Mars/Olympus", Open: "09:30", Close: "16:00"}},
		{"missing open", Options{Close: "16:00"}},
		{"open after close", Options{Open: "16:00", Close: "09:30"}},
		{"bad holiday", Options{Open: "09:30", Close: "16:00", Holidays: []string{"01/02/2024"}}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := NewExchange(tc.opts)
			assert.Error(t, err)
		})
	}
}

func TestExchangeWeekdaySessions(t *testing.T) {
	cal := newYork(t)

	assert.False(t, cal.IsSession(date(t, cal, "2024-01-01")), "holiday")
	assert.True(t, cal.IsSession(date(t, cal, "2024-01-02")))
	assert.False(t, cal.IsSession(date(t, cal, "2024-01-06")), "saturday")

	sessions := cal.Sessions(date(t, cal, "2024-01-01"), date(t, cal, "2024-01-16"))
	var got []string
	for _, s := range sessions {
		got = append(got, s.Format(DateLayout))
	}
	assert.Equal(t, []string{
		"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05",
		"2024-01-08", "2024-01-09", "2024-01-10", "2024-01-11", "2024-01-12",
		"2024-01-16",
	}, got)

	next, ok := cal.NextSession(date(t, cal, "2024-01-12"))
	require.True(t, ok)
	assert.Equal(t, "2024-01-16", next.Format(DateLayout))
}

func TestExchangeOpenCloseAcrossDST(t *testing.T) {
	cal := newYork(t)

	open := cal.SessionOpen(date(t, cal, "2024-03-11")) // first session after the spring change
	assert.Equal(t, 9, open.Hour())
	assert.Equal(t, 30, open.Minute())
	assert.Equal(t, "13:30", open.UTC().Format("15:04"))

	closeAt := cal.SessionClose(date(t, cal, "2024-03-08"))
	assert.Equal(t, "21:00", closeAt.UTC().Format("15:04"))
}

func TestExchangeExplicitSessions(t *testing.T) {
	cal, err := NewExchange(Options{
		Timezone: "UTC",
		Open:     "09:00",
		Close:    "17:00",
		Sessions: []string{"2024-02-01", "2024-01-02", "2024-01-02"},
	})
	require.NoError(t, err)

	assert.True(t, cal.IsSession(date(t, cal, "2024-01-02")))
	assert.False(t, cal.IsSession(date(t, cal, "2024-01-03")))
	assert.Len(t, cal.Sessions(date(t, cal, "2024-01-01"), date(t, cal, "2024-12-31")), 2)

	next, ok := cal.NextSession(date(t, cal, "2024-01-02"))
	require.True(t, ok)
	assert.Equal(t, "2024-02-01", next.Format(DateLayout))

	_, ok = cal.NextSession(next)
	assert.False(t, ok)
}
