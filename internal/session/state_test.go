package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// table is written out independently of the implementation's map so the two
// can disagree.
var table = map[Trigger]map[State]State{
	TriggerInitialize: {StateStartup: StateInitialized},
	TriggerBeforeTradingStart: {
		StateHeartbeat:         StateBeforeTradingStart,
		StateInitialized:       StateBeforeTradingStart,
		StateAfterTradingHours: StateBeforeTradingStart,
	},
	TriggerHandleData: {
		StateBeforeTradingStart: StateTradingBar,
		StateHeartbeat:          StateTradingBar,
		StateTradingBar:         StateTradingBar,
	},
	TriggerAfterTradingHours: {
		StateTradingBar: StateAfterTradingHours,
		StateHeartbeat:  StateAfterTradingHours,
	},
	TriggerHeartbeat: {
		StateAfterTradingHours:  StateHeartbeat,
		StateBeforeTradingStart: StateHeartbeat,
		StateInitialized:        StateHeartbeat,
		StateHeartbeat:          StateHeartbeat,
		StateTradingBar:         StateHeartbeat,
	},
	TriggerResume: {StatePaused: StateStartup},
}

func expected(from State, t Trigger) (State, bool) {
	switch t {
	case TriggerAnalyze, TriggerStop:
		return StateStopped, true
	case TriggerPause:
		return StatePaused, from != StatePaused
	}
	to, ok := table[t][from]
	return to, ok
}

func machineIn(s State) *Machine {
	return &Machine{state: s}
}

func TestTransitionTable(t *testing.T) {
	for _, from := range AllStates {
		for _, trig := range AllTriggers {
			t.Run(fmt.Sprintf("%s/%s", from, trig), func(t *testing.T) {
				m := machineIn(from)
				want, legal := expected(from, trig)

				got, err := m.Fire(trig)
				if legal {
					require.NoError(t, err)
					assert.Equal(t, want, got)
					assert.Equal(t, want, m.State())
					return
				}

				var smErr *StateMachineError
				require.ErrorAs(t, err, &smErr)
				assert.Equal(t, trig, smErr.Trigger)
				assert.Equal(t, from, smErr.State)
				assert.ErrorIs(t, err, ErrIllegalTransition)
				assert.ErrorIs(t, err, domain.ErrFatal)
				assert.Equal(t, from, m.State(), "state must be unchanged")
			})
		}
	}
}

func TestPauseResumeReentersStartup(t *testing.T) {
	m := New()
	for _, trig := range []Trigger{TriggerInitialize, TriggerBeforeTradingStart, TriggerHandleData, TriggerPause} {
		_, err := m.Fire(trig)
		require.NoError(t, err)
	}
	assert.True(t, m.Paused())
	assert.False(t, m.Can(TriggerPause))

	s, err := m.Fire(TriggerResume)
	require.NoError(t, err)
	assert.Equal(t, StateStartup, s)
	assert.True(t, m.Can(TriggerInitialize))
}

func TestTriggerFor(t *testing.T) {
	phases := map[domain.Phase]Trigger{
		domain.PhaseAlgoStart:          TriggerInitialize,
		domain.PhaseBeforeTradingStart: TriggerBeforeTradingStart,
		domain.PhaseTradingBar:         TriggerHandleData,
		domain.PhaseAfterTradingHours:  TriggerAfterTradingHours,
		domain.PhaseHeartbeat:          TriggerHeartbeat,
		domain.PhaseAlgoEnd:            TriggerAnalyze,
	}
	for p, want := range phases {
		got, ok := TriggerFor(p)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := TriggerFor(domain.Phase("lunch"))
	assert.False(t, ok)
}
