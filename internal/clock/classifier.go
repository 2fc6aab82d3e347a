package clock

import (
	"time"

	"github.com/alanyoungcy/tradeloop/internal/calendar"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// State is the clock's view of where a wake falls relative to the session.
type State int

const (
	StateStartAlgo State = iota
	StateBeforeSession
	StateInSession
	StateAfterSession
	StateInRecess
)

var statePhases = [...]domain.Phase{
	StateStartAlgo:     domain.PhaseAlgoStart,
	StateBeforeSession: domain.PhaseBeforeTradingStart,
	StateInSession:     domain.PhaseTradingBar,
	StateAfterSession:  domain.PhaseAfterTradingHours,
	StateInRecess:      domain.PhaseHeartbeat,
}

// Phase maps the clock state to the lifecycle phase it emits.
func (s State) Phase() domain.Phase {
	return statePhases[s]
}

func (s State) String() string {
	return string(s.Phase())
}

// Classifier turns wall-clock wakes into phases. BeforeSession and
// AfterSession are emitted once per session no matter how often it is woken:
// it remembers the last non-recess state and the session it belonged to.
//
// Two catch-ups keep the per-session pair intact when wakes are sparse: a
// session first sampled after the open gets its BeforeSession on that wake,
// and a session whose close was never sampled gets its AfterSession on the
// first wake of a later day.
type Classifier struct {
	cal     calendar.Calendar
	preOpen time.Duration

	started bool
	last    State
	lastDay time.Time
}

// NewClassifier returns a classifier whose pre-open window starts preOpen
// before each session's open.
func NewClassifier(cal calendar.Calendar, preOpen time.Duration) *Classifier {
	return &Classifier{cal: cal, preOpen: preOpen, last: StateInRecess}
}

// Classify returns the state for a wake at now and records it.
func (c *Classifier) Classify(now time.Time) State {
	if !c.started {
		c.started = true
		return StateStartAlgo
	}

	loc := c.cal.Location()
	y, m, d := now.In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	// A previous session is still open from our point of view.
	if c.sessionActive() && c.lastDay.Before(today) {
		return c.emit(StateAfterSession, c.lastDay)
	}

	if !c.cal.IsSession(today) {
		return StateInRecess
	}

	open := c.cal.SessionOpen(today)
	closeAt := c.cal.SessionClose(today)
	sameSession := c.lastDay.Equal(today)

	switch {
	case now.Before(open.Add(-c.preOpen)):
		return StateInRecess
	case now.Before(open):
		if sameSession && c.last == StateBeforeSession {
			return StateInRecess
		}
		return c.emit(StateBeforeSession, today)
	case now.Before(closeAt):
		if !sameSession || !c.sessionActive() {
			return c.emit(StateBeforeSession, today)
		}
		return c.emit(StateInSession, today)
	default:
		if sameSession && c.sessionActive() {
			return c.emit(StateAfterSession, today)
		}
		return StateInRecess
	}
}

// Last returns the last non-recess state emitted.
func (c *Classifier) Last() State {
	return c.last
}

func (c *Classifier) sessionActive() bool {
	return c.last == StateBeforeSession || c.last == StateInSession
}

func (c *Classifier) emit(s State, day time.Time) State {
	c.last = s
	c.lastDay = day
	return s
}
