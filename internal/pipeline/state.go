// Package pipeline sequences the selling workflow's steps through a strict
// execute-then-verify state machine. An action's effect is never trusted
// without on-screen confirmation, and a failed step aborts the whole run:
// later steps assume the UI state their predecessors established.
package pipeline

import "fmt"

// State is a step (and run) lifecycle state.
type State int

const (
	StatePending State = iota
	StateRunning
	StateVerifying
	StateSucceeded
	StateFailed
	StateRetrying
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateVerifying:
		return "verifying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateRetrying:
		return "retrying"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether the state ends a step's lifecycle.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateAborted
}

// validNext enumerates the permitted transitions. No edge leaves Running for
// an outcome state without passing Verifying.
var validNext = map[State][]State{
	StatePending:   {StateRunning, StateAborted},
	StateRunning:   {StateVerifying},
	StateVerifying: {StateSucceeded, StateRetrying, StateFailed},
	StateRetrying:  {StateRunning, StateAborted},
	StateFailed:    {StateAborted},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Stage groups steps into the four top-level phases of the workflow.
type Stage string

const (
	StageResearch        Stage = "research"
	StageSourcing        Stage = "sourcing"
	StageListing         Stage = "listing"
	StagePriceAdjustment Stage = "price_adjustment"
)
