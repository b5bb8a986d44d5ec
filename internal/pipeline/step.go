package pipeline

import (
	"context"
	"time"

	"sellflow/internal/input"
)

// VerifySpec describes how a step's outcome is confirmed on screen. Element
// names a region in the active coordinate set; Pattern is the text expected
// inside it after the step's actions land.
type VerifySpec struct {
	Element   string
	Pattern   string
	Threshold float64 // 0 means the engine default
}

// RetryPolicy bounds how often a step may be retried and how long to wait
// between attempts. Backoff is indexed by completed attempts; when attempts
// outnumber entries the last entry repeats.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
}

// Delay returns the pause before the next attempt after `attempt` failures.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if attempt > len(p.Backoff) {
		attempt = len(p.Backoff)
	}
	if attempt < 1 {
		attempt = 1
	}
	return p.Backoff[attempt-1]
}

// StepTools is handed to a step's OnSuccess hook so it can pull data off the
// screen while the UI lock is still held.
type StepTools interface {
	Clipboard(ctx context.Context) (string, error)
	ReadRegion(ctx context.Context, element string) (string, error)
}

// StepSpec is one verified unit of work: a batch of input actions plus the
// screen evidence that proves they took effect.
type StepSpec struct {
	ID      string
	Stage   Stage
	Actions []input.Action
	Verify  VerifySpec
	Retry   RetryPolicy
	Timeout time.Duration

	// OnSuccess runs after verification passes, still under the UI lock.
	// An error fails the attempt and the whole cycle is retried.
	OnSuccess func(ctx context.Context, tools StepTools) error
}

// ElementNames returns every coordinate element the step touches, actions
// and verification region alike.
func (s StepSpec) ElementNames() []string {
	names := input.ElementNames(s.Actions)
	if s.Verify.Element != "" {
		names = append(names, s.Verify.Element)
	}
	return names
}
