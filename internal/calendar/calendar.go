// Package calendar answers trading-session questions for a timezone-aware
// exchange calendar.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the layout used for session dates in configuration and
// ledger keys.
const DateLayout = "2006-01-02"

// Calendar is the session provider consumed by the clock and scheduler.
// Dates are interpreted as calendar days in Location().
type Calendar interface {
	Location() *time.Location
	IsSession(date time.Time) bool
	SessionOpen(date time.Time) time.Time
	SessionClose(date time.Time) time.Time
	// Sessions returns session dates (midnight, calendar location) in
	// [from, to], ascending.
	Sessions(from, to time.Time) []time.Time
	// NextSession returns the first session date strictly after the day of
	// after. ok is false once the calendar has no further sessions.
	NextSession(after time.Time) (time.Time, bool)
}

// Options configures an Exchange calendar.
type Options struct {
	Timezone string   // IANA name, e.g. "America/New_York"
	Open     string   // "15:04"
	Close    string   // "15:04"
	Holidays []string // dates excluded from the weekday schedule
	Sessions []string // explicit session list; replaces the weekday schedule
}

type clockTime struct{ hour, min int }

// Exchange is a Calendar with fixed open/close clock times. Sessions are
// either every weekday minus holidays or an explicit finite list.
type Exchange struct {
	loc      *time.Location
	open     clockTime
	close    clockTime
	holidays map[string]struct{}
	explicit []time.Time
}

// NewExchange validates opts and builds the calendar.
func NewExchange(opts Options) (*Exchange, error) {
	var errs []string

	tz := opts.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		errs = append(errs, fmt.Sprintf("timezone %q: %v", tz, err))
	}
	open, err := parseClock(opts.Open)
	if err != nil {
		errs = append(errs, fmt.Sprintf("open: %v", err))
	}
	closeAt, err := parseClock(opts.Close)
	if err != nil {
		errs = append(errs, fmt.Sprintf("close: %v", err))
	}
	if len(errs) == 0 && !open.before(closeAt) {
		errs = append(errs, fmt.Sprintf("open %s must be before close %s", opts.Open, opts.Close))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("calendar: %s", strings.Join(errs, "; "))
	}

	ex := &Exchange{
		loc:      loc,
		open:     open,
		close:    closeAt,
		holidays: make(map[string]struct{}, len(opts.Holidays)),
	}
	for _, h := range opts.Holidays {
		d, err := time.ParseInLocation(DateLayout, h, loc)
		if err != nil {
			return nil, fmt.Errorf("calendar: holiday %q: %w", h, err)
		}
		ex.holidays[d.Format(DateLayout)] = struct{}{}
	}
	if len(opts.Sessions) > 0 {
		seen := make(map[string]struct{}, len(opts.Sessions))
		for _, s := range opts.Sessions {
			d, err := time.ParseInLocation(DateLayout, s, loc)
			if err != nil {
				return nil, fmt.Errorf("calendar: session %q: %w", s, err)
			}
			key := d.Format(DateLayout)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			ex.explicit = append(ex.explicit, d)
		}
		sort.Slice(ex.explicit, func(i, j int) bool { return ex.explicit[i].Before(ex.explicit[j]) })
	}
	return ex, nil
}

// Location implements Calendar.
func (e *Exchange) Location() *time.Location { return e.loc }

// Day truncates t to midnight of its calendar day in the exchange location.
func (e *Exchange) Day(t time.Time) time.Time {
	y, m, d := t.In(e.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.loc)
}

// IsSession implements Calendar.
func (e *Exchange) IsSession(date time.Time) bool {
	day := e.Day(date)
	if e.explicit != nil {
		i := e.search(day)
		return i < len(e.explicit) && e.explicit[i].Equal(day)
	}
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := e.holidays[day.Format(DateLayout)]
	return !holiday
}

// SessionOpen implements Calendar. It does not check IsSession.
func (e *Exchange) SessionOpen(date time.Time) time.Time {
	return e.at(date, e.open)
}

// SessionClose implements Calendar. It does not check IsSession.
func (e *Exchange) SessionClose(date time.Time) time.Time {
	return e.at(date, e.close)
}

// Sessions implements Calendar.
func (e *Exchange) Sessions(from, to time.Time) []time.Time {
	start, end := e.Day(from), e.Day(to)
	if end.Before(start) {
		return nil
	}
	if e.explicit != nil {
		var out []time.Time
		for i := e.search(start); i < len(e.explicit) && !e.explicit[i].After(end); i++ {
			out = append(out, e.explicit[i])
		}
		return out
	}
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if e.IsSession(d) {
			out = append(out, d)
		}
	}
	return out
}

// NextSession implements Calendar.
func (e *Exchange) NextSession(after time.Time) (time.Time, bool) {
	next := e.Day(after).AddDate(0, 0, 1)
	if e.explicit != nil {
		i := e.search(next)
		if i >= len(e.explicit) {
			return time.Time{}, false
		}
		return e.explicit[i], true
	}
	// A weekday calendar always has another session within a few weeks,
	// unless the holiday list blocks an absurd stretch.
	for i := 0; i < 366; i++ {
		if e.IsSession(next) {
			return next, true
		}
		next = next.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}

func (e *Exchange) search(day time.Time) int {
	return sort.Search(len(e.explicit), func(i int) bool { return !e.explicit[i].Before(day) })
}

func (e *Exchange) at(date time.Time, c clockTime) time.Time {
	y, m, d := date.In(e.loc).Date()
	return time.Date(y, m, d, c.hour, c.min, 0, 0, e.loc)
}

func (c clockTime) before(o clockTime) bool {
	return c.hour < o.hour || (c.hour == o.hour && c.min < o.min)
}

func parseClock(s string) (clockTime, error) {
	if s == "" {
		return clockTime{}, errors.New("empty clock time")
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return clockTime{}, fmt.Errorf("parse %q: %w", s, err)
	}
	return clockTime{hour: t.Hour(), min: t.Minute()}, nil
}
