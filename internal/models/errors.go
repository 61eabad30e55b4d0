package models

import (
	"errors"
	"fmt"
)

// Stage identifies where in the cycle a failure happened.
type Stage string

const (
	StageSelect   Stage = "select"
	StageGenerate Stage = "generate"
	StageEvaluate Stage = "evaluate"
	StageFeedback Stage = "feedback"
	StageEvolve   Stage = "evolve"
	StageDecide   Stage = "decide"
)

// BackendFailureError is a failed or timed-out generation/judge call.
// Recovered locally: the caller degrades to an empty or error-tagged result.
type BackendFailureError struct {
	Slot       Slot
	InstanceID string
	Stage      Stage
	Err        error
}

func (e *BackendFailureError) Error() string {
	return fmt.Sprintf("backend failure (stage=%s slot=%s instance=%s): %v", e.Stage, e.Slot, e.InstanceID, e.Err)
}

func (e *BackendFailureError) Unwrap() error { return e.Err }

// MalformedResponseError is backend output that did not parse as expected.
type MalformedResponseError struct {
	Slot       Slot
	InstanceID string
	Stage      Stage
	Err        error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response (stage=%s slot=%s instance=%s): %v", e.Stage, e.Slot, e.InstanceID, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// EvaluationFailureError is a harness failure. It is not recoverable within
// an iteration and must never be reported as a zero score.
type EvaluationFailureError struct {
	Slot  Slot
	RunID string
	Err   error
}

func (e *EvaluationFailureError) Error() string {
	return fmt.Sprintf("evaluation failure (slot=%s run=%s): %v", e.Slot, e.RunID, e.Err)
}

func (e *EvaluationFailureError) Unwrap() error { return e.Err }

// InvalidPromptCandidateError is an evolved prompt that failed the
// validation render. The slot keeps its previous prompt.
type InvalidPromptCandidateError struct {
	Slot Slot
	Err  error
}

func (e *InvalidPromptCandidateError) Error() string {
	if e.Slot == "" {
		return fmt.Sprintf("invalid prompt candidate: %v", e.Err)
	}
	return fmt.Sprintf("invalid prompt candidate for slot %s: %v", e.Slot, e.Err)
}

func (e *InvalidPromptCandidateError) Unwrap() error { return e.Err }

// IsEvaluationFailure reports whether err is (or wraps) an EvaluationFailureError.
func IsEvaluationFailure(err error) bool {
	var target *EvaluationFailureError
	return errors.As(err, &target)
}
