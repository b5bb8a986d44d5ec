package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"sellflow/internal/artifacts"
	"sellflow/internal/coords"
	"sellflow/internal/input"
	"sellflow/internal/screen"
)

// Performer executes input actions against the UI surface.
type Performer interface {
	PerformAll(ctx context.Context, actions []input.Action) error
	ReadClipboard(ctx context.Context) (string, error)
}

// Checker confirms screen state and supplies captures for failure evidence.
type Checker interface {
	Verify(ctx context.Context, region coords.Region, expected string, threshold float64) (screen.MatchResult, error)
	Capture(r coords.Region) (image.Image, error)
	RecognizeText(img image.Image) (string, error)
}

// RetryController drives one step through its attempt budget: execute the
// actions, verify the screen, back off and repeat on a miss. A screenshot is
// taken only when the final attempt has failed.
type RetryController struct {
	performer Performer
	checker   Checker
	set       *coords.Set
	recorder  *artifacts.Recorder
	logger    *zap.Logger

	defaultThreshold float64
	sleep            func(ctx context.Context, d time.Duration) error
}

// NewRetryController wires a controller. defaultThreshold applies when a
// step's VerifySpec leaves its own threshold unset.
func NewRetryController(performer Performer, checker Checker, set *coords.Set, recorder *artifacts.Recorder, defaultThreshold float64, logger *zap.Logger) *RetryController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryController{
		performer:        performer,
		checker:          checker,
		set:              set,
		recorder:         recorder,
		logger:           logger,
		defaultThreshold: defaultThreshold,
		sleep:            sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Clipboard implements StepTools.
func (c *RetryController) Clipboard(ctx context.Context) (string, error) {
	return c.performer.ReadClipboard(ctx)
}

// ReadRegion implements StepTools: capture the named region and return its
// recognized, normalized text.
func (c *RetryController) ReadRegion(ctx context.Context, element string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	loc, err := c.set.Resolve(element)
	if err != nil {
		return "", err
	}
	if !loc.IsRegion() {
		return "", &coords.ConfigError{
			Profile: c.set.Profile,
			Reason:  fmt.Sprintf("element %q is a point, region required for text read", element),
		}
	}
	img, err := c.checker.Capture(*loc.Region)
	if err != nil {
		return "", err
	}
	return c.checker.RecognizeText(img)
}

// Execute runs the step to a terminal state and records every transition on
// the run. The returned error is nil iff the step succeeded.
func (c *RetryController) Execute(ctx context.Context, run *Run, step StepSpec) error {
	max := step.Retry.MaxAttempts
	if max < 1 {
		max = 1
	}
	threshold := step.Verify.Threshold
	if threshold == 0 {
		threshold = c.defaultThreshold
	}

	region, err := c.verifyRegion(step)
	if err != nil {
		// A bad coordinate profile is not retried.
		run.transition(step.ID, StateAborted, 0)
		return err
	}

	var last screen.MatchResult
	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		run.transition(step.ID, StateRunning, attempt)
		lastErr = c.attempt(ctx, step, region, threshold, &last, run, attempt)
		if lastErr == nil {
			run.transition(step.ID, StateSucceeded, attempt)
			return nil
		}
		if isFatal(ctx, lastErr) {
			run.transition(step.ID, StateFailed, attempt)
			return lastErr
		}
		c.logger.Warn("step attempt failed",
			zap.String("step", step.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", max),
			zap.Float64("confidence", last.Confidence),
			zap.Error(lastErr),
		)
		if attempt == max {
			break
		}
		run.transition(step.ID, StateRetrying, attempt)
		if err := c.sleep(ctx, step.Retry.Delay(attempt)); err != nil {
			run.transition(step.ID, StateAborted, attempt)
			return err
		}
	}

	c.recordFailure(run, step, region, last, lastErr, max)
	run.transition(step.ID, StateFailed, max)
	return lastErr
}

// attempt performs one execute+verify cycle. It always passes through the
// Verifying state, whether the actions landed or not.
func (c *RetryController) attempt(ctx context.Context, step StepSpec, region coords.Region, threshold float64, last *screen.MatchResult, run *Run, attempt int) error {
	actCtx := ctx
	cancel := context.CancelFunc(func() {})
	if step.Timeout > 0 {
		actCtx, cancel = context.WithTimeout(ctx, step.Timeout)
	}
	defer cancel()

	actionErr := c.performer.PerformAll(actCtx, step.Actions)
	run.transition(step.ID, StateVerifying, attempt)
	if actionErr != nil {
		return actionErr
	}

	result, err := c.checker.Verify(actCtx, region, step.Verify.Pattern, threshold)
	if err != nil {
		return err
	}
	*last = result
	if !result.Matched {
		return &screen.VerificationError{
			Expected:   step.Verify.Pattern,
			Observed:   result.ObservedText,
			Confidence: result.Confidence,
		}
	}
	if step.OnSuccess != nil {
		if err := step.OnSuccess(actCtx, c); err != nil {
			return err
		}
	}
	return nil
}

func (c *RetryController) verifyRegion(step StepSpec) (coords.Region, error) {
	loc, err := c.set.Resolve(step.Verify.Element)
	if err != nil {
		return coords.Region{}, err
	}
	if !loc.IsRegion() {
		return coords.Region{}, &coords.ConfigError{
			Profile: c.set.Profile,
			Reason:  fmt.Sprintf("element %q is a point, region required for verification", step.Verify.Element),
		}
	}
	return *loc.Region, nil
}

// recordFailure captures the evidence for an exhausted step: one screenshot
// of the verification region and a structured failure record.
func (c *RetryController) recordFailure(run *Run, step StepSpec, region coords.Region, last screen.MatchResult, cause error, attempts int) {
	if c.recorder == nil {
		return
	}
	var shot string
	if img, err := c.checker.Capture(region); err == nil {
		shot, _ = c.recorder.SaveScreenshot(img, step.ID)
	} else {
		c.logger.Warn("failure screenshot unavailable", zap.String("step", step.ID), zap.Error(err))
	}
	reason := "verification did not match"
	if cause != nil {
		reason = cause.Error()
	}
	if _, err := c.recorder.WriteFailure(artifacts.FailureRecord{
		RunID:        run.ID,
		StepID:       step.ID,
		Stage:        string(step.Stage),
		Attempts:     attempts,
		LastObserved: last.ObservedText,
		Reason:       reason,
		Screenshot:   shot,
		FailedAt:     time.Now(),
	}); err != nil {
		c.logger.Error("failure record not written", zap.String("step", step.ID), zap.Error(err))
	}
}

// isFatal reports errors that must not consume further attempts: caller
// cancellation and coordinate profile defects.
func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var cfgErr *coords.ConfigError
	return errors.As(err, &cfgErr)
}
