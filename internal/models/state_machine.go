// Package models provides the position data structures, the weekly cycle
// state machine, and the ledger record types.
package models

import (
	"fmt"
	"time"
)

// CycleState represents where a weekly cycle sits between its checkpoints.
type CycleState string

const (
	// StateIdle means no position is open; entry has not run or scored Skip.
	StateIdle CycleState = "idle"
	// StateEnteredCore means the near-term Core structure is filled.
	StateEnteredCore CycleState = "entered_core"
	// StateEnteredCoreCarry means both Core and the longer-dated Carry are on.
	StateEnteredCoreCarry CycleState = "entered_core_carry"
	// StateManaged means the management checkpoint has acted on the book.
	StateManaged CycleState = "managed"
	// StateExited is terminal: every leg is flat for the cycle.
	StateExited CycleState = "exited"
)

// Transition conditions. Each names the checkpoint event that moves the
// cycle forward.
const (
	CondCoreFilled  = "core_filled"
	CondCarryFilled = "carry_filled"
	CondCarrySkip   = "carry_skipped"
	CondTakeProfit  = "take_profit"
	CondNeutralRoll = "neutral_roll"
	CondStopLoss    = "stop_loss"
	CondFlatClose   = "flat_close"
	CondForcedExit  = "forced_exit"
	CondCycleOver   = "cycle_complete"
)

// StateTransition defines one valid cycle state transition.
type StateTransition struct {
	From        CycleState
	To          CycleState
	Condition   string
	Description string
}

// ValidTransitions enumerates every legal cycle transition. The forced-exit
// cutoff is reachable from every non-terminal state; nothing may block it.
var ValidTransitions = []StateTransition{
	// Entry checkpoint
	{StateIdle, StateEnteredCore, CondCoreFilled, "Core structure filled at the entry checkpoint"},
	{StateEnteredCore, StateEnteredCoreCarry, CondCarryFilled, "Carry structure filled alongside Core"},
	{StateEnteredCore, StateEnteredCore, CondCarrySkip, "Carry fill rejected; cycle continues on Core alone"},

	// Management checkpoint: exactly one branch fires
	{StateEnteredCore, StateManaged, CondTakeProfit, "Core closed at the profit target"},
	{StateEnteredCore, StateManaged, CondNeutralRoll, "Core rolled to a next-cutoff replacement"},
	{StateEnteredCore, StateManaged, CondStopLoss, "Book stopped out and Carry replaced"},
	{StateEnteredCore, StateManaged, CondFlatClose, "Roll had no viable replacement; closed flat"},
	{StateEnteredCoreCarry, StateManaged, CondTakeProfit, "Core closed at the profit target, Carry left open"},
	{StateEnteredCoreCarry, StateManaged, CondNeutralRoll, "Core rolled to a next-cutoff replacement"},
	{StateEnteredCoreCarry, StateManaged, CondStopLoss, "Book stopped out and Carry replaced"},
	{StateEnteredCoreCarry, StateManaged, CondFlatClose, "Roll had no viable replacement; closed flat"},

	// Forced-exit cutoff, valid from every non-terminal state
	{StateIdle, StateExited, CondForcedExit, "Cutoff reached with nothing open"},
	{StateIdle, StateExited, CondCycleOver, "Cycle ended flat without an entry"},
	{StateEnteredCore, StateExited, CondForcedExit, "Cutoff closed the open Core"},
	{StateEnteredCoreCarry, StateExited, CondForcedExit, "Cutoff closed Core and Carry"},
	{StateManaged, StateExited, CondForcedExit, "Cutoff closed whatever management left open"},
}

// StateMachine tracks one cycle's state and enforces the transition table.
type StateMachine struct {
	transitionTime  time.Time
	transitionCount map[CycleState]int
	currentState    CycleState
	previousState   CycleState
}

// NewStateMachine creates a state machine at Idle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState:    StateIdle,
		previousState:   StateIdle,
		transitionTime:  time.Now().UTC(),
		transitionCount: make(map[CycleState]int),
	}
}

// Current returns the current cycle state.
func (sm *StateMachine) Current() CycleState {
	return sm.currentState
}

// Previous returns the state before the last transition.
func (sm *StateMachine) Previous() CycleState {
	return sm.previousState
}

// CanTransition checks the transition table without moving.
func (sm *StateMachine) CanTransition(to CycleState, condition string) bool {
	for _, tr := range ValidTransitions {
		if tr.From == sm.currentState && tr.To == to && tr.Condition == condition {
			return true
		}
	}
	return false
}

// Transition moves to a new state if the table allows it.
func (sm *StateMachine) Transition(to CycleState, condition string) error {
	if !sm.CanTransition(to, condition) {
		return fmt.Errorf("invalid transition from %s to %s with condition %q",
			sm.currentState, to, condition)
	}
	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	sm.transitionCount[to]++
	return nil
}

// ForceExit moves to Exited from any non-terminal state. The cutoff cannot
// be skipped or delayed; callers flatten positions before calling this.
func (sm *StateMachine) ForceExit() error {
	if sm.currentState == StateExited {
		return fmt.Errorf("cycle already exited")
	}
	return sm.Transition(StateExited, CondForcedExit)
}

// IsTerminal reports whether the cycle has ended.
func (sm *StateMachine) IsTerminal() bool {
	return sm.currentState == StateExited
}

// HasOpenPositions reports whether the state implies open legs.
func (sm *StateMachine) HasOpenPositions() bool {
	switch sm.currentState {
	case StateEnteredCore, StateEnteredCoreCarry, StateManaged:
		return true
	default:
		return false
	}
}

// TransitionCount returns how many times the cycle has entered a state.
func (sm *StateMachine) TransitionCount(state CycleState) int {
	return sm.transitionCount[state]
}

// Reset returns the machine to Idle for the next cycle.
func (sm *StateMachine) Reset() {
	sm.currentState = StateIdle
	sm.previousState = StateIdle
	sm.transitionTime = time.Now().UTC()
	sm.transitionCount = make(map[CycleState]int)
}

// Copy creates a deep copy of the StateMachine.
func (sm *StateMachine) Copy() *StateMachine {
	if sm == nil {
		return nil
	}
	out := &StateMachine{
		currentState:    sm.currentState,
		previousState:   sm.previousState,
		transitionTime:  sm.transitionTime,
		transitionCount: make(map[CycleState]int, len(sm.transitionCount)),
	}
	for k, v := range sm.transitionCount {
		out.transitionCount[k] = v
	}
	return out
}
