// Package scheduler runs calendar-aware recurring callbacks, independent of
// the trading phases that drive it.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/calendar"
)

// Callback is invoked when an event is due.
type Callback func(ctx context.Context, now time.Time) error

type event struct {
	name  string
	rule  Rule
	cb    Callback
	next  int64 // unix nanos
	seq   uint64
	index int
}

// eventHeap orders events by next trigger, then by registration order.
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].next != h[j].next {
		return h[i].next < h[j].next
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *eventHeap) Push(x any) {
	ev := x.(*event)
	ev.index = len(*h)
	*h = append(*h, ev)
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*h = old[:n-1]
	return ev
}

// Scheduler is a min-priority queue of recurring events. It is owned by the
// dispatch loop and is not safe for concurrent use.
type Scheduler struct {
	cal       calendar.Calendar
	lookahead int
	events    eventHeap
	seq       uint64
	logger    *slog.Logger
}

// New creates a Scheduler with the default lookahead.
func New(cal calendar.Calendar, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cal:       cal,
		lookahead: DefaultLookahead,
		logger:    logger.With(slog.String("component", "scheduler")),
	}
}

// SetLookahead overrides the lookahead window in calendar days.
func (s *Scheduler) SetLookahead(days int) {
	if days > 0 {
		s.lookahead = days
	}
}

// AddEvent registers cb under rule and computes its first trigger strictly
// after now. It fails when no trigger exists.
func (s *Scheduler) AddEvent(name string, rule Rule, now time.Time, cb Callback) error {
	if cb == nil {
		return fmt.Errorf("scheduler: add %q: nil callback", name)
	}
	if err := rule.Date.validate(); err != nil {
		return fmt.Errorf("scheduler: add %q: %w", name, err)
	}
	if err := rule.Time.validate(); err != nil {
		return fmt.Errorf("scheduler: add %q: %w", name, err)
	}

	next, err := rule.Next(s.cal, now, s.lookahead)
	if err != nil {
		if errors.Is(err, errExhausted) {
			return fmt.Errorf("scheduler: add %q: no sessions left for %s", name, rule)
		}
		return fmt.Errorf("scheduler: add %q: %w", name, err)
	}

	s.seq++
	heap.Push(&s.events, &event{name: name, rule: rule, cb: cb, next: next.UnixNano(), seq: s.seq})
	s.logger.Info("scheduled event registered",
		slog.String("event", name),
		slog.String("rule", rule.String()),
		slog.Time("first_trigger", next),
	)
	return nil
}

// Len returns the number of pending events.
func (s *Scheduler) Len() int { return len(s.events) }

// NextTrigger returns the earliest pending trigger.
func (s *Scheduler) NextTrigger() (time.Time, bool) {
	if len(s.events) == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, s.events[0].next).In(s.cal.Location()), true
}

// TriggerDue fires every event due at or before now in trigger order, then
// reschedules each one strictly after now. Callback errors are collected and
// returned together; a malformed rule on reschedule is returned as well and
// matches domain.ErrFatal.
func (s *Scheduler) TriggerDue(ctx context.Context, now time.Time) error {
	cutoff := now.UnixNano()

	var due []*event
	for len(s.events) > 0 && s.events[0].next <= cutoff {
		due = append(due, heap.Pop(&s.events).(*event))
	}

	var errs []error
	for _, ev := range due {
		if err := ev.cb(ctx, now); err != nil {
			s.logger.Warn("scheduled event failed",
				slog.String("event", ev.name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("scheduler: event %q: %w", ev.name, err))
		}

		next, err := ev.rule.Next(s.cal, now, s.lookahead)
		switch {
		case errors.Is(err, errExhausted):
			s.logger.Info("scheduled event exhausted", slog.String("event", ev.name))
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("scheduler: reschedule %q: %w", ev.name, err))
			continue
		}
		ev.next = next.UnixNano()
		heap.Push(&s.events, ev)
	}
	return errors.Join(errs...)
}
