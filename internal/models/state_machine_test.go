package models

import "testing"

func TestStateMachine_HappyPath(t *testing.T) {
	sm := NewStateMachine()
	if sm.Current() != StateIdle {
		t.Fatalf("initial state = %s, want idle", sm.Current())
	}

	steps := []struct {
		to   CycleState
		cond string
	}{
		{StateEnteredCore, CondCoreFilled},
		{StateEnteredCoreCarry, CondCarryFilled},
		{StateManaged, CondTakeProfit},
		{StateExited, CondForcedExit},
	}
	for _, s := range steps {
		if err := sm.Transition(s.to, s.cond); err != nil {
			t.Fatalf("Transition(%s, %s) failed: %v", s.to, s.cond, err)
		}
	}
	if !sm.IsTerminal() {
		t.Error("cycle should be terminal after the forced exit")
	}
	if sm.Previous() != StateManaged {
		t.Errorf("Previous = %s, want managed", sm.Previous())
	}
}

func TestStateMachine_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		to   CycleState
		cond string
	}{
		{"skip straight to managed", StateManaged, CondTakeProfit},
		{"carry before core", StateEnteredCoreCarry, CondCarryFilled},
		{"wrong condition", StateEnteredCore, CondTakeProfit},
		{"unknown condition", StateEnteredCore, "moonshot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine()
			if err := sm.Transition(tt.to, tt.cond); err == nil {
				t.Errorf("Transition(%s, %s) from idle should fail", tt.to, tt.cond)
			}
			if sm.Current() != StateIdle {
				t.Errorf("failed transition moved state to %s", sm.Current())
			}
		})
	}
}

func TestStateMachine_ForcedExitFromEveryNonTerminalState(t *testing.T) {
	reach := map[CycleState]func(sm *StateMachine){
		StateIdle: func(sm *StateMachine) {},
		StateEnteredCore: func(sm *StateMachine) {
			mustTransition(nil, sm, StateEnteredCore, CondCoreFilled)
		},
		StateEnteredCoreCarry: func(sm *StateMachine) {
			mustTransition(nil, sm, StateEnteredCore, CondCoreFilled)
			mustTransition(nil, sm, StateEnteredCoreCarry, CondCarryFilled)
		},
		StateManaged: func(sm *StateMachine) {
			mustTransition(nil, sm, StateEnteredCore, CondCoreFilled)
			mustTransition(nil, sm, StateManaged, CondStopLoss)
		},
	}

	for state, setup := range reach {
		t.Run(string(state), func(t *testing.T) {
			sm := NewStateMachine()
			setup(sm)
			if sm.Current() != state {
				t.Fatalf("setup reached %s, want %s", sm.Current(), state)
			}
			if err := sm.ForceExit(); err != nil {
				t.Fatalf("ForceExit from %s failed: %v", state, err)
			}
			if !sm.IsTerminal() {
				t.Error("forced exit must land in the terminal state")
			}
		})
	}
}

func TestStateMachine_ForcedExitIsTerminal(t *testing.T) {
	sm := NewStateMachine()
	if err := sm.ForceExit(); err != nil {
		t.Fatalf("ForceExit failed: %v", err)
	}
	if err := sm.ForceExit(); err == nil {
		t.Error("second ForceExit should fail")
	}
	if err := sm.Transition(StateEnteredCore, CondCoreFilled); err == nil {
		t.Error("no transition may leave the terminal state")
	}
}

func TestStateMachine_ManagementFiresExactlyOneBranch(t *testing.T) {
	for _, cond := range []string{CondTakeProfit, CondNeutralRoll, CondStopLoss, CondFlatClose} {
		t.Run(cond, func(t *testing.T) {
			sm := NewStateMachine()
			mustTransition(t, sm, StateEnteredCore, CondCoreFilled)
			mustTransition(t, sm, StateEnteredCoreCarry, CondCarryFilled)
			mustTransition(t, sm, StateManaged, cond)

			// A second management branch in the same cycle is illegal.
			if err := sm.Transition(StateManaged, CondStopLoss); err == nil {
				t.Error("management must fire exactly once per cycle")
			}
		})
	}
}

func TestStateMachine_CarrySkipStaysOnCore(t *testing.T) {
	sm := NewStateMachine()
	mustTransition(t, sm, StateEnteredCore, CondCoreFilled)
	mustTransition(t, sm, StateEnteredCore, CondCarrySkip)
	if sm.Current() != StateEnteredCore {
		t.Errorf("state = %s, want entered_core after a rejected carry fill", sm.Current())
	}
	if got := sm.TransitionCount(StateEnteredCore); got != 2 {
		t.Errorf("TransitionCount(entered_core) = %d, want 2", got)
	}
}

func TestStateMachine_ResetAndCopy(t *testing.T) {
	sm := NewStateMachine()
	mustTransition(t, sm, StateEnteredCore, CondCoreFilled)

	cp := sm.Copy()
	mustTransition(t, sm, StateManaged, CondTakeProfit)
	if cp.Current() != StateEnteredCore {
		t.Errorf("copy state = %s, want snapshot at entered_core", cp.Current())
	}

	sm.Reset()
	if sm.Current() != StateIdle || sm.HasOpenPositions() {
		t.Errorf("reset machine at %s with open=%v, want clean idle", sm.Current(), sm.HasOpenPositions())
	}
	if sm.TransitionCount(StateEnteredCore) != 0 {
		t.Error("reset must clear transition counts")
	}
}

func mustTransition(t *testing.T, sm *StateMachine, to CycleState, cond string) {
	if t != nil {
		t.Helper()
	}
	if err := sm.Transition(to, cond); err != nil {
		if t != nil {
			t.Fatalf("Transition(%s, %s) failed: %v", to, cond, err)
		}
		panic(err)
	}
}
