package clock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/calendar"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// RealtimeClock samples the wall clock every period and publishes the
// classified phase into a coalescing channel. It never waits for the
// consumer.
type RealtimeClock struct {
	cls    *Classifier
	period time.Duration
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
	logger *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// Option customises a RealtimeClock.
type Option func(*RealtimeClock)

// WithPreOpen sets the length of the pre-open window.
func WithPreOpen(d time.Duration) Option {
	return func(c *RealtimeClock) { c.cls.preOpen = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *RealtimeClock) {
		if l != nil {
			c.logger = l.With(slog.String("component", "clock"))
		}
	}
}

// WithTimeSource replaces time.Now and time.After, for tests.
func WithTimeSource(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(c *RealtimeClock) {
		c.now = now
		c.after = after
	}
}

// NewRealtimeClock validates its configuration up front. Errors match
// domain.ErrFatal: a clock without a calendar or period cannot run at all.
func NewRealtimeClock(cal calendar.Calendar, period time.Duration, opts ...Option) (*RealtimeClock, error) {
	if cal == nil {
		return nil, fmt.Errorf("clock: %w: calendar is required", domain.ErrFatal)
	}
	if period <= 0 {
		return nil, fmt.Errorf("clock: %w: period must be positive, got %s", domain.ErrFatal, period)
	}
	c := &RealtimeClock{
		cls:    NewClassifier(cal, 0),
		period: period,
		now:    time.Now,
		after:  time.After,
		logger: slog.Default().With(slog.String("component", "clock")),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run produces events into out until ctx is cancelled or Stop is called,
// then closes out. The first wake is aligned to the next period boundary.
func (c *RealtimeClock) Run(ctx context.Context, out *Latest[domain.TickEvent]) error {
	defer out.Close()

	next := c.now().Truncate(c.period).Add(c.period)
	c.logger.Info("realtime clock starting",
		slog.Duration("period", c.period),
		slog.Time("first_wake", next),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("realtime clock stopped", slog.Uint64("coalesced", out.Dropped()))
			return nil // clean shutdown
		case <-c.stop:
			c.logger.Info("realtime clock stopped", slog.Uint64("coalesced", out.Dropped()))
			return nil
		case <-c.after(next.Sub(c.now())):
		}

		now := c.now()
		state := c.cls.Classify(now)
		out.Put(domain.TickEvent{Timestamp: now, Phase: state.Phase()})
		if state != StateInRecess {
			c.logger.Debug("clock transition", slog.String("phase", string(state.Phase())), slog.Time("at", now))
		}

		next = next.Add(c.period)
		if !next.After(now) {
			// Overslept: realign rather than firing a burst of wakes.
			next = now.Truncate(c.period).Add(c.period)
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (c *RealtimeClock) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
