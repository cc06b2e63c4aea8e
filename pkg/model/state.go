package model

import "strings"

// RunState represents the lifecycle state of a traced simulator run.
type RunState string

const (
	RunStateRunning  RunState = "RUNNING"
	RunStateFinished RunState = "FINISHED"
	RunStateAborted  RunState = "ABORTED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// ParseRunState accepts a run state name in any letter case.
func ParseRunState(s string) (RunState, bool) {
	st := RunState(strings.ToUpper(s))
	switch st {
	case RunStateRunning, RunStateFinished, RunStateAborted:
		return st, true
	}
	return "", false
}

// IsTerminal returns true if the run is in a final state.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateFinished, RunStateAborted:
		return true
	}
	return false
}

// ValidRunTransitions defines the allowed state transitions for Runs.
var ValidRunTransitions = map[RunState][]RunState{
	RunStateRunning: {RunStateFinished, RunStateAborted},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s RunState) CanTransitionTo(next RunState) bool {
	for _, allowed := range ValidRunTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
