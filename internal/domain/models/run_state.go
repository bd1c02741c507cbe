package models

import "fmt"

// RunState is a step of the evolution state machine.
type RunState string

const (
	RunStateInit            RunState = "init"
	RunStateEvaluating      RunState = "evaluating"
	RunStateRevising        RunState = "revising"
	RunStateReEvaluating    RunState = "re_evaluating"
	RunStateUpdating        RunState = "updating"
	RunStateConverged       RunState = "converged"
	RunStateBudgetExhausted RunState = "budget_exhausted"
	RunStateValidation      RunState = "validation"
	RunStateDone            RunState = "done"
	RunStateFailed          RunState = "failed"
)

// RunTransition represents a state transition
type RunTransition struct {
	From RunState
	To   RunState
}

var validRunTransitions = map[RunTransition]bool{
	// The initial evaluation may already meet the threshold.
	{RunStateInit, RunStateEvaluating}:      true,
	{RunStateInit, RunStateConverged}:       true,
	{RunStateInit, RunStateBudgetExhausted}: true,

	{RunStateEvaluating, RunStateRevising}:      true,
	{RunStateRevising, RunStateReEvaluating}:    true,
	{RunStateReEvaluating, RunStateUpdating}:    true,
	{RunStateUpdating, RunStateEvaluating}:      true,
	{RunStateUpdating, RunStateConverged}:       true,
	{RunStateUpdating, RunStateBudgetExhausted}: true,

	{RunStateConverged, RunStateValidation}:       true,
	{RunStateConverged, RunStateDone}:             true,
	{RunStateBudgetExhausted, RunStateValidation}: true,
	{RunStateBudgetExhausted, RunStateDone}:       true,
	{RunStateValidation, RunStateDone}:            true,
}

// IsTerminal reports whether no further transitions are allowed.
func (s RunState) IsTerminal() bool {
	return s == RunStateDone || s == RunStateFailed
}

// ValidateRunTransition checks if a state transition is valid and returns an error if not
func ValidateRunTransition(from, to RunState) error {
	if from.IsTerminal() {
		return &InvalidRunTransitionError{From: from, To: to, Message: fmt.Sprintf("run is already %s", from)}
	}
	if to == RunStateFailed {
		return nil
	}
	if !validRunTransitions[RunTransition{From: from, To: to}] {
		return &InvalidRunTransitionError{From: from, To: to}
	}
	return nil
}

// InvalidRunTransitionError represents an error for invalid state transitions
type InvalidRunTransitionError struct {
	From    RunState
	To      RunState
	Message string
}

func (e *InvalidRunTransitionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("invalid run state transition from '%s' to '%s'", e.From, e.To)
}
