// Package cycle contains the pure state machine for one evolution run.
// This is part of the Functional Core - no I/O, only pure functions.
package cycle

import (
	"fmt"
)

// State is one stage of the evolution cycle.
type State string

const (
	StateSelect     State = "SELECT"
	StateGenerate   State = "GENERATE"
	StateEvaluate   State = "EVALUATE"
	StateFeedback   State = "FEEDBACK"
	StateEvolve     State = "EVOLVE"
	StateDecide     State = "DECIDE"
	StateTerminated State = "TERMINATED"
)

// Default loop parameters.
const (
	DefaultThreshold = 0.9
	DefaultBudget    = 5
	DefaultBatchSize = 9
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// TransitionError reports a move the state machine does not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal cycle transition %s -> %s", e.From, e.To)
}

// successors lists the only legal next states. DECIDE is the single fork.
var successors = map[State][]State{
	StateSelect:   {StateGenerate},
	StateGenerate: {StateEvaluate},
	StateEvaluate: {StateFeedback},
	StateFeedback: {StateEvolve},
	StateEvolve:   {StateDecide},
	StateDecide:   {StateSelect, StateTerminated},
}

// CanTransition evaluates whether the machine may move from one state to another.
// Rules:
// - TERMINATED is final
// - Each stage has exactly one successor, except DECIDE
func CanTransition(from, to State) GuardResult {
	for _, next := range successors[from] {
		if next == to {
			return GuardResult{Allowed: true}
		}
	}
	if from == StateTerminated {
		return GuardResult{Reason: "cycle already terminated"}
	}
	return GuardResult{Reason: (&TransitionError{From: from, To: to}).Error()}
}

// Next returns the state following from. For DECIDE the decision picks
// between SELECT and TERMINATED; it is ignored elsewhere.
func Next(from State, d Decision) (State, error) {
	switch from {
	case StateDecide:
		if d.Terminate {
			return StateTerminated, nil
		}
		return StateSelect, nil
	case StateTerminated:
		return from, &TransitionError{From: from, To: from}
	}
	nexts, ok := successors[from]
	if !ok {
		return from, fmt.Errorf("unknown cycle state %q", from)
	}
	return nexts[0], nil
}
