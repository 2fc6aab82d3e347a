package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// ParseDateRule builds a DateRule from its configuration name: every_day,
// week_start, week_end, month_start or month_end.
func ParseDateRule(name string, offset int) (DateRule, error) {
	var r DateRule
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "every_day":
		r = EveryDay()
	case "week_start":
		r = WeekStart(offset)
	case "week_end":
		r = WeekEnd(offset)
	case "month_start":
		r = MonthStart(offset)
	case "month_end":
		r = MonthEnd(offset)
	default:
		return DateRule{}, fmt.Errorf("scheduler: unknown date rule %q", name)
	}
	if err := r.validate(); err != nil {
		return DateRule{}, fmt.Errorf("scheduler: %s: %w", r, err)
	}
	return r, nil
}

// ParseTimeRule builds a TimeRule from its configuration name: after_open,
// before_close or every. d is a Go duration string.
func ParseTimeRule(name, d string) (TimeRule, error) {
	var dur time.Duration
	if d != "" {
		var err error
		if dur, err = time.ParseDuration(d); err != nil {
			return TimeRule{}, fmt.Errorf("scheduler: time rule %s: %w", name, err)
		}
	}
	var r TimeRule
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "after_open":
		r = AfterOpen(dur)
	case "before_close":
		r = BeforeClose(dur)
	case "every":
		r = Every(dur)
	default:
		return TimeRule{}, fmt.Errorf("scheduler: unknown time rule %q", name)
	}
	if err := r.validate(); err != nil {
		return TimeRule{}, fmt.Errorf("scheduler: %s: %w", r, err)
	}
	return r, nil
}
