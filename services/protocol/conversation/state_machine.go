// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import "fmt"

// TurnState is a state in the per-question quality loop.
//
// Valid transitions are enforced by the state machine. Invalid transitions
// return ErrInvalidTransition.
type TurnState string

const (
	// StateAwaitingResponse is the initial state: a question is posed and
	// a response has not been obtained yet.
	StateAwaitingResponse TurnState = "AWAITING_RESPONSE"

	// StateValidating means a response is being scored by the evaluator.
	StateValidating TurnState = "VALIDATING"

	// StateNextAttempt means the response scored below the acceptance
	// threshold and another attempt remains.
	StateNextAttempt TurnState = "NEXT_ATTEMPT"

	// StateAccepted is terminal: an attempt scored at or above threshold.
	StateAccepted TurnState = "ACCEPTED"

	// StateEscalated is terminal: attempts exhausted below threshold. The
	// best response is kept and the turn is flagged for the user.
	StateEscalated TurnState = "ESCALATED"
)

// String returns the string representation of the state.
func (s TurnState) String() string {
	return string(s)
}

// IsTerminal returns true for ACCEPTED and ESCALATED.
func (s TurnState) IsTerminal() bool {
	return s == StateAccepted || s == StateEscalated
}

// StateMachine manages valid transitions for the quality loop.
//
// The transition graph:
//
//	AWAITING_RESPONSE → VALIDATING   : Response obtained
//	VALIDATING → ACCEPTED            : Score at or above threshold
//	VALIDATING → NEXT_ATTEMPT        : Score below threshold, attempts remain
//	VALIDATING → ESCALATED           : Score below threshold, attempts exhausted
//	NEXT_ATTEMPT → AWAITING_RESPONSE : Follow-up question posed
//
// Thread Safety:
//
//	StateMachine is immutable after construction and safe for concurrent use.
type StateMachine struct {
	transitions map[TurnState]map[TurnState]bool
}

// NewStateMachine creates the quality-loop state machine.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{transitions: make(map[TurnState]map[TurnState]bool)}
	for _, s := range []TurnState{StateAwaitingResponse, StateValidating, StateNextAttempt, StateAccepted, StateEscalated} {
		sm.transitions[s] = make(map[TurnState]bool)
	}

	sm.addTransition(StateAwaitingResponse, StateValidating)
	sm.addTransition(StateValidating, StateAccepted)
	sm.addTransition(StateValidating, StateNextAttempt)
	sm.addTransition(StateValidating, StateEscalated)
	sm.addTransition(StateNextAttempt, StateAwaitingResponse)

	return sm
}

func (sm *StateMachine) addTransition(from, to TurnState) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition is valid.
func (sm *StateMachine) CanTransition(from, to TurnState) bool {
	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition validates and applies a transition, returning the new state.
func (sm *StateMachine) Transition(from, to TurnState) (TurnState, error) {
	if !sm.CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}
