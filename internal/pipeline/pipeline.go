package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"sellflow/internal/coords"
	"sellflow/internal/ratelimit"
)

// StepError identifies which step aborted a run.
type StepError struct {
	StepID string
	Err    error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.StepID, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// FailedStep extracts the aborting step id from an Execute error chain,
// or "" when none is present.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.StepID
	}
	return ""
}

// RunRecorder receives every finished run for history persistence.
// Implementations absorb their own failures; history never aborts a run.
type RunRecorder interface {
	RecordRun(run *Run, stage Stage, failedStep string)
}

// Pipeline executes a step sequence in order. A single mutex serializes the
// UI surface: each step's full act-and-verify cycle runs with the lock held,
// so no other goroutine can inject input or capture mid-cycle.
type Pipeline struct {
	retry   *RetryController
	set     *coords.Set
	limiter *ratelimit.Limiter
	history RunRecorder
	logger  *zap.Logger

	uiLock sync.Mutex
}

// New builds a pipeline. limiter may be nil when no stage throttling applies.
func New(retry *RetryController, set *coords.Set, limiter *ratelimit.Limiter, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{retry: retry, set: set, limiter: limiter, logger: logger}
}

// SetHistory installs the run history sink. Nil disables recording.
func (p *Pipeline) SetHistory(r RunRecorder) { p.history = r }

func (p *Pipeline) record(run *Run, steps []StepSpec, failedStep string) {
	if p.history == nil {
		return
	}
	var stage Stage
	if len(steps) > 0 {
		stage = steps[0].Stage
	}
	p.history.RecordRun(run, stage, failedStep)
}

// Validate checks that every coordinate element the steps reference exists
// in the active set. Called before any action is performed so a bad profile
// aborts with zero UI side effects.
func (p *Pipeline) Validate(steps []StepSpec) error {
	var required []string
	for _, s := range steps {
		required = append(required, s.ElementNames()...)
	}
	return p.set.Validate(required)
}

// Execute runs the steps sequentially until all succeed or one fails. Caller
// cancellation is honored at step boundaries only; a step in flight finishes
// its current attempt first.
func (p *Pipeline) Execute(ctx context.Context, steps []StepSpec) (*Run, error) {
	run := NewRun()
	if err := p.Validate(steps); err != nil {
		run.abort()
		p.record(run, steps, "")
		return run, err
	}
	run.begin()

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			run.abort()
			p.record(run, steps, "")
			return run, err
		}
		if err := p.admit(ctx, step); err != nil {
			run.abort()
			p.record(run, steps, "")
			return run, err
		}
		if err := p.ExecuteStep(ctx, run, step); err != nil {
			p.logger.Error("run aborted",
				zap.String("run_id", run.ID),
				zap.String("step", step.ID),
				zap.Error(err),
			)
			run.abort()
			p.record(run, steps, step.ID)
			return run, &StepError{StepID: step.ID, Err: err}
		}
	}

	run.complete()
	p.record(run, steps, "")
	p.logger.Info("run complete", zap.String("run_id", run.ID), zap.Int("steps", len(steps)))
	return run, nil
}

// ExecuteStep drives one step through the retry controller under the UI lock.
func (p *Pipeline) ExecuteStep(ctx context.Context, run *Run, step StepSpec) error {
	p.uiLock.Lock()
	defer p.uiLock.Unlock()
	return p.retry.Execute(ctx, run, step)
}

// admit blocks research-class steps until the sliding-window limiter grants a
// slot. Waiting for capacity is backpressure, not failure.
func (p *Pipeline) admit(ctx context.Context, step StepSpec) error {
	if p.limiter == nil || step.Stage != StageResearch {
		return nil
	}
	if p.limiter.TryAcquire() {
		return nil
	}
	p.logger.Info("research throttled, waiting for window capacity", zap.String("step", step.ID))
	return p.limiter.Acquire(ctx)
}
