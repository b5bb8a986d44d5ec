package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transition is one recorded state change of a step during a run.
type Transition struct {
	StepID  string
	From    State
	To      State
	Attempt int
	At      time.Time
}

// Run tracks a single execution of a step sequence. It is mutated only by
// the orchestrator goroutine; callers read it after Execute returns.
type Run struct {
	ID        string
	Status    State
	StartedAt time.Time
	EndedAt   time.Time

	stepStates map[string]State
	Trace      []Transition

	now func() time.Time
}

// NewRun builds a pending run with a fresh identifier.
func NewRun() *Run {
	return &Run{
		ID:         uuid.NewString(),
		Status:     StatePending,
		stepStates: make(map[string]State),
		now:        time.Now,
	}
}

func (r *Run) begin() {
	r.Status = StateRunning
	r.StartedAt = r.now()
}

func (r *Run) complete() {
	r.Status = StateSucceeded
	r.EndedAt = r.now()
}

func (r *Run) abort() {
	r.Status = StateAborted
	r.EndedAt = r.now()
}

// StepState returns the current state of a step, Pending if never seen.
func (r *Run) StepState(stepID string) State {
	return r.stepStates[stepID]
}

// transition moves a step to the given state, enforcing the legal edges.
// An illegal edge is a programming error and panics.
func (r *Run) transition(stepID string, to State, attempt int) {
	from := r.stepStates[stepID]
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s for step %s", from, to, stepID))
	}
	r.stepStates[stepID] = to
	r.Trace = append(r.Trace, Transition{
		StepID:  stepID,
		From:    from,
		To:      to,
		Attempt: attempt,
		At:      r.now(),
	})
}
