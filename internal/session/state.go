// Package session enforces the legal ordering of lifecycle phases for one
// algorithm run.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// State is the state machine's current state.
type State string

const (
	StateStartup            State = "startup"
	StateInitialized        State = "initialized"
	StateBeforeTradingStart State = "before_trading_start"
	StateTradingBar         State = "trading_bar"
	StateAfterTradingHours  State = "after_trading_hours"
	StateHeartbeat          State = "heartbeat"
	StatePaused             State = "paused"
	StateStopped            State = "stopped"
)

// AllStates lists every state.
var AllStates = []State{
	StateStartup, StateInitialized, StateBeforeTradingStart, StateTradingBar,
	StateAfterTradingHours, StateHeartbeat, StatePaused, StateStopped,
}

// Trigger names a transition.
type Trigger string

const (
	TriggerInitialize         Trigger = "initialize"
	TriggerBeforeTradingStart Trigger = "beforeTradingStart"
	TriggerHandleData         Trigger = "handleData"
	TriggerAfterTradingHours  Trigger = "afterTradingHours"
	TriggerHeartbeat          Trigger = "heartbeat"
	TriggerAnalyze            Trigger = "analyze"
	TriggerPause              Trigger = "pause"
	TriggerResume             Trigger = "resume"
	TriggerStop               Trigger = "stop"
)

// AllTriggers lists every trigger.
var AllTriggers = []Trigger{
	TriggerInitialize, TriggerBeforeTradingStart, TriggerHandleData,
	TriggerAfterTradingHours, TriggerHeartbeat, TriggerAnalyze,
	TriggerPause, TriggerResume, TriggerStop,
}

// ErrIllegalTransition is matched by every StateMachineError.
var ErrIllegalTransition = errors.New("illegal state transition")

// StateMachineError reports a trigger fired from a state that does not
// accept it. It matches both ErrIllegalTransition and domain.ErrFatal.
type StateMachineError struct {
	Trigger Trigger
	State   State
}

func (e *StateMachineError) Error() string {
	return fmt.Sprintf("session: trigger %q is not allowed in state %q", e.Trigger, e.State)
}

// Is implements errors.Is matching.
func (e *StateMachineError) Is(target error) bool {
	return target == ErrIllegalTransition || target == domain.ErrFatal
}

type transition struct {
	from []State // nil means any state
	to   State
}

var transitions = map[Trigger]transition{
	TriggerInitialize:         {from: []State{StateStartup}, to: StateInitialized},
	TriggerBeforeTradingStart: {from: []State{StateHeartbeat, StateInitialized, StateAfterTradingHours}, to: StateBeforeTradingStart},
	TriggerHandleData:         {from: []State{StateBeforeTradingStart, StateHeartbeat, StateTradingBar}, to: StateTradingBar},
	TriggerAfterTradingHours:  {from: []State{StateTradingBar, StateHeartbeat}, to: StateAfterTradingHours},
	TriggerHeartbeat:          {from: []State{StateAfterTradingHours, StateBeforeTradingStart, StateInitialized, StateHeartbeat, StateTradingBar}, to: StateHeartbeat},
	TriggerAnalyze:            {to: StateStopped},
	TriggerPause:              {to: StatePaused},
	TriggerResume:             {from: []State{StatePaused}, to: StateStartup},
	TriggerStop:               {to: StateStopped},
}

// Machine is the session state machine. It has one writer (the dispatch
// loop); readers such as the status endpoint may call State concurrently.
type Machine struct {
	mu    sync.RWMutex
	state State
}

// New returns a machine in Startup.
func New() *Machine {
	return &Machine{state: StateStartup}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Paused reports whether the machine is paused.
func (m *Machine) Paused() bool {
	return m.State() == StatePaused
}

// Can reports whether t is legal from the current state.
func (m *Machine) Can(t Trigger) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := next(m.state, t)
	return ok
}

// Fire applies t. On an illegal pair the state is left unchanged and a
// *StateMachineError is returned.
func (m *Machine) Fire(t Trigger) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	to, ok := next(m.state, t)
	if !ok {
		return m.state, &StateMachineError{Trigger: t, State: m.state}
	}
	m.state = to
	return to, nil
}

func next(from State, t Trigger) (State, bool) {
	tr, ok := transitions[t]
	if !ok {
		return "", false
	}
	if t == TriggerPause && from == StatePaused {
		return "", false
	}
	if tr.from == nil {
		return tr.to, true
	}
	for _, s := range tr.from {
		if s == from {
			return tr.to, true
		}
	}
	return "", false
}

// TriggerFor maps a clock phase to the trigger it fires.
func TriggerFor(p domain.Phase) (Trigger, bool) {
	switch p {
	case domain.PhaseAlgoStart:
		return TriggerInitialize, true
	case domain.PhaseBeforeTradingStart:
		return TriggerBeforeTradingStart, true
	case domain.PhaseTradingBar:
		return TriggerHandleData, true
	case domain.PhaseAfterTradingHours:
		return TriggerAfterTradingHours, true
	case domain.PhaseHeartbeat:
		return TriggerHeartbeat, true
	case domain.PhaseAlgoEnd:
		return TriggerAnalyze, true
	default:
		return "", false
	}
}
