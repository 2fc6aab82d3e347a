package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/calendar"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// DefaultLookahead is the number of calendar days searched for a trigger.
const DefaultLookahead = 252

const (
	maxWeekOffset  = 4
	maxMonthOffset = 22
)

// ErrMalformedRule is returned when a rule produces no trigger in two
// consecutive lookahead windows although the calendar still has sessions.
// It also matches domain.ErrFatal.
var ErrMalformedRule = errors.New("scheduler: malformed rule")

// errExhausted means the calendar has no sessions left for the rule.
var errExhausted = errors.New("scheduler: calendar exhausted")

type dateKind int

const (
	everyDay dateKind = iota
	weekStart
	weekEnd
	monthStart
	monthEnd
)

// DateRule selects which sessions qualify.
type DateRule struct {
	kind   dateKind
	offset int
}

// EveryDay matches every session.
func EveryDay() DateRule { return DateRule{kind: everyDay} }

// WeekStart matches the n-th session of each week (0 is the first).
func WeekStart(n int) DateRule { return DateRule{kind: weekStart, offset: n} }

// WeekEnd matches the n-th session from the end of each week.
func WeekEnd(n int) DateRule { return DateRule{kind: weekEnd, offset: n} }

// MonthStart matches the n-th session of each month.
func MonthStart(n int) DateRule { return DateRule{kind: monthStart, offset: n} }

// MonthEnd matches the n-th session from the end of each month.
func MonthEnd(n int) DateRule { return DateRule{kind: monthEnd, offset: n} }

func (d DateRule) validate() error {
	switch d.kind {
	case everyDay:
		return nil
	case weekStart, weekEnd:
		if d.offset < 0 || d.offset > maxWeekOffset {
			return fmt.Errorf("week offset %d out of range [0, %d]", d.offset, maxWeekOffset)
		}
	case monthStart, monthEnd:
		if d.offset < 0 || d.offset > maxMonthOffset {
			return fmt.Errorf("month offset %d out of range [0, %d]", d.offset, maxMonthOffset)
		}
	default:
		return fmt.Errorf("unknown date rule %d", d.kind)
	}
	return nil
}

func (d DateRule) matches(cal calendar.Calendar, day time.Time) bool {
	if d.kind == everyDay {
		return true
	}

	var from, to time.Time
	switch d.kind {
	case weekStart, weekEnd:
		from = day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
		to = from.AddDate(0, 0, 6)
	default:
		from = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		to = from.AddDate(0, 1, -1)
	}

	sessions := cal.Sessions(from, to)
	idx := d.offset
	if d.kind == weekEnd || d.kind == monthEnd {
		idx = len(sessions) - 1 - d.offset
	}
	return idx >= 0 && idx < len(sessions) && sessions[idx].Equal(day)
}

func (d DateRule) String() string {
	switch d.kind {
	case weekStart:
		return fmt.Sprintf("week_start(%d)", d.offset)
	case weekEnd:
		return fmt.Sprintf("week_end(%d)", d.offset)
	case monthStart:
		return fmt.Sprintf("month_start(%d)", d.offset)
	case monthEnd:
		return fmt.Sprintf("month_end(%d)", d.offset)
	default:
		return "every_day"
	}
}

type timeKind int

const (
	afterOpen timeKind = iota
	beforeClose
	every
)

// TimeRule selects trigger times within a qualifying session.
type TimeRule struct {
	kind timeKind
	d    time.Duration
}

// AfterOpen triggers once, d after the session opens.
func AfterOpen(d time.Duration) TimeRule { return TimeRule{kind: afterOpen, d: d} }

// BeforeClose triggers once, d before the session closes.
func BeforeClose(d time.Duration) TimeRule { return TimeRule{kind: beforeClose, d: d} }

// Every triggers at open+period, open+2*period, ... up to the close.
func Every(period time.Duration) TimeRule { return TimeRule{kind: every, d: period} }

func (t TimeRule) validate() error {
	switch t.kind {
	case afterOpen, beforeClose:
		if t.d < 0 {
			return fmt.Errorf("offset %s must not be negative", t.d)
		}
	case every:
		if t.d <= 0 {
			return fmt.Errorf("period %s must be positive", t.d)
		}
	default:
		return fmt.Errorf("unknown time rule %d", t.kind)
	}
	return nil
}

// times returns the triggers inside [open, close], ascending.
func (t TimeRule) times(open, closeAt time.Time) []time.Time {
	switch t.kind {
	case afterOpen:
		if at := open.Add(t.d); !at.After(closeAt) {
			return []time.Time{at}
		}
	case beforeClose:
		if at := closeAt.Add(-t.d); !at.Before(open) {
			return []time.Time{at}
		}
	case every:
		var out []time.Time
		for at := open.Add(t.d); !at.After(closeAt); at = at.Add(t.d) {
			out = append(out, at)
		}
		return out
	}
	return nil
}

func (t TimeRule) String() string {
	switch t.kind {
	case beforeClose:
		return fmt.Sprintf("before_close(%s)", t.d)
	case every:
		return fmt.Sprintf("every(%s)", t.d)
	default:
		return fmt.Sprintf("after_open(%s)", t.d)
	}
}

// Rule is the Cartesian product of a date rule and a time rule.
type Rule struct {
	Date DateRule
	Time TimeRule
}

// NewRule validates and combines the two parts.
func NewRule(d DateRule, t TimeRule) (Rule, error) {
	if err := d.validate(); err != nil {
		return Rule{}, fmt.Errorf("scheduler: date rule: %w", err)
	}
	if err := t.validate(); err != nil {
		return Rule{}, fmt.Errorf("scheduler: time rule: %w", err)
	}
	return Rule{Date: d, Time: t}, nil
}

func (r Rule) String() string {
	return r.Date.String() + " x " + r.Time.String()
}

// Next returns the first trigger strictly after after. A window with no
// trigger is advanced once; a second empty window is ErrMalformedRule unless
// the calendar has run out of sessions.
func (r Rule) Next(cal calendar.Calendar, after time.Time, lookahead int) (time.Time, error) {
	loc := cal.Location()
	y, m, d := after.In(loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)

	for attempt := 0; attempt < 2; attempt++ {
		to := from.AddDate(0, 0, lookahead)
		if t, ok := r.scan(cal, from, to, after); ok {
			return t, nil
		}
		if _, more := cal.NextSession(to); !more {
			return time.Time{}, errExhausted
		}
		from = to.AddDate(0, 0, 1)
	}
	return time.Time{}, fmt.Errorf("%w: %s: %w", ErrMalformedRule, r, domain.ErrFatal)
}

func (r Rule) scan(cal calendar.Calendar, from, to, after time.Time) (time.Time, bool) {
	for _, day := range cal.Sessions(from, to) {
		if !r.Date.matches(cal, day) {
			continue
		}
		for _, t := range r.Time.times(cal.SessionOpen(day), cal.SessionClose(day)) {
			if t.After(after) {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
