package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"sellflow/internal/artifacts"
	"sellflow/internal/coords"
	"sellflow/internal/input"
	"sellflow/internal/ratelimit"
	"sellflow/internal/screen"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const setJSON = `{
	"search_button": [100, 200],
	"search_box": [340, 200],
	"result_banner": {"x": 0, "y": 300, "width": 600, "height": 80},
	"price_region": {"x": 400, "y": 500, "width": 200, "height": 40}
}`

func testSet(t *testing.T) *coords.Set {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "mercari"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "mercari", "default.json")
	if err := os.WriteFile(path, []byte(setJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	set, err := coords.NewStore(dir).Load("mercari", "default")
	if err != nil {
		t.Fatalf("load coordinate set: %v", err)
	}
	return set
}

type fakePerformer struct {
	calls     int
	failFirst int // fail this many leading calls with an action error
	clipboard string
}

func (f *fakePerformer) PerformAll(ctx context.Context, actions []input.Action) error {
	f.calls++
	if f.calls <= f.failFirst {
		return &input.ActionError{Action: "click", Err: errors.New("element occluded")}
	}
	return nil
}

func (f *fakePerformer) ReadClipboard(ctx context.Context) (string, error) {
	return f.clipboard, nil
}

// fakeChecker returns scripted confidences, one per Verify call, repeating
// the last entry once exhausted.
type fakeChecker struct {
	confidences []float64
	verifies    int
	captures    int
	observed    string
}

func (f *fakeChecker) Verify(ctx context.Context, region coords.Region, expected string, threshold float64) (screen.MatchResult, error) {
	idx := f.verifies
	if idx >= len(f.confidences) {
		idx = len(f.confidences) - 1
	}
	f.verifies++
	c := f.confidences[idx]
	return screen.MatchResult{Matched: c >= threshold, Confidence: c, ObservedText: f.observed}, nil
}

func (f *fakeChecker) Capture(r coords.Region) (image.Image, error) {
	f.captures++
	return image.NewRGBA(image.Rect(0, 0, r.Width, r.Height)), nil
}

func (f *fakeChecker) RecognizeText(img image.Image) (string, error) {
	return f.observed, nil
}

func searchStep(id string) StepSpec {
	return StepSpec{
		ID:    id,
		Stage: StageResearch,
		Actions: []input.Action{
			input.Click{Element: "search_button"},
			input.TypeText{Text: "vintage camera"},
		},
		Verify: VerifySpec{Element: "result_banner", Pattern: "検索結果"},
		Retry:  RetryPolicy{MaxAttempts: 3, Backoff: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}},
	}
}

func newController(t *testing.T, performer Performer, checker Checker, dir string) *RetryController {
	t.Helper()
	rec := artifacts.NewRecorder(dir, nil)
	c := NewRetryController(performer, checker, testSet(t), rec, 0.8, nil)
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func TestExecute_AllStepsSucceed(t *testing.T) {
	performer := &fakePerformer{}
	checker := &fakeChecker{confidences: []float64{0.95}, observed: "検索結果"}
	p := New(newController(t, performer, checker, t.TempDir()), testSet(t), nil, nil)

	steps := []StepSpec{searchStep("execute_search"), searchStep("collect_item")}
	run, err := p.Execute(context.Background(), steps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Status != StateSucceeded {
		t.Errorf("run status = %s, want succeeded", run.Status)
	}
	for _, s := range steps {
		if got := run.StepState(s.ID); got != StateSucceeded {
			t.Errorf("step %s state = %s, want succeeded", s.ID, got)
		}
	}
	if performer.calls != 2 {
		t.Errorf("performer calls = %d, want 2", performer.calls)
	}
}

type fakeHistory struct {
	runs        []string
	stages      []Stage
	failedSteps []string
}

func (f *fakeHistory) RecordRun(run *Run, stage Stage, failedStep string) {
	f.runs = append(f.runs, run.ID)
	f.stages = append(f.stages, stage)
	f.failedSteps = append(f.failedSteps, failedStep)
}

func TestExecute_RecordsRunHistory(t *testing.T) {
	performer := &fakePerformer{}
	checker := &fakeChecker{confidences: []float64{0.95}, observed: "検索結果"}
	p := New(newController(t, performer, checker, t.TempDir()), testSet(t), nil, nil)
	hist := &fakeHistory{}
	p.SetHistory(hist)

	run, err := p.Execute(context.Background(), []StepSpec{searchStep("execute_search")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(hist.runs) != 1 || hist.runs[0] != run.ID {
		t.Fatalf("recorded runs = %v, want [%s]", hist.runs, run.ID)
	}
	if hist.stages[0] != StageResearch {
		t.Errorf("recorded stage = %s, want research", hist.stages[0])
	}
	if hist.failedSteps[0] != "" {
		t.Errorf("failed step = %q, want empty on success", hist.failedSteps[0])
	}
}

func TestExecute_AbortRecordsFailedStepID(t *testing.T) {
	performer := &fakePerformer{}
	checker := &fakeChecker{confidences: []float64{0.5, 0.5, 0.5}, observed: "読み込み中"}
	p := New(newController(t, performer, checker, t.TempDir()), testSet(t), nil, nil)
	hist := &fakeHistory{}
	p.SetHistory(hist)

	_, err := p.Execute(context.Background(), []StepSpec{searchStep("execute_search")})
	if err == nil {
		t.Fatal("Execute succeeded, want failure")
	}
	if got := FailedStep(err); got != "execute_search" {
		t.Errorf("FailedStep = %q, want execute_search", got)
	}
	// The id survives further wrapping by callers.
	wrapped := fmt.Errorf("research %q: %w", "camera", err)
	if got := FailedStep(wrapped); got != "execute_search" {
		t.Errorf("FailedStep through wrap = %q, want execute_search", got)
	}
	if len(hist.failedSteps) != 1 || hist.failedSteps[0] != "execute_search" {
		t.Errorf("recorded failed steps = %v, want [execute_search]", hist.failedSteps)
	}
}

func TestRetry_ExhaustedAttemptsFailRunWithOneScreenshot(t *testing.T) {
	dir := t.TempDir()
	performer := &fakePerformer{}
	checker := &fakeChecker{confidences: []float64{0.5, 0.5, 0.5}, observed: "読み込み中"}
	p := New(newController(t, performer, checker, dir), testSet(t), nil, nil)

	run, err := p.Execute(context.Background(), []StepSpec{searchStep("execute_search")})
	if err == nil {
		t.Fatal("Execute succeeded, want verification failure")
	}
	var verr *screen.VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want VerificationError", err)
	}
	if verr.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", verr.Confidence)
	}
	if run.Status != StateAborted {
		t.Errorf("run status = %s, want aborted", run.Status)
	}
	if got := run.StepState("execute_search"); got != StateFailed {
		t.Errorf("step state = %s, want failed", got)
	}
	if performer.calls != 3 {
		t.Errorf("attempts = %d, want 3", performer.calls)
	}

	// Evidence: exactly one screenshot and one failure record, from the
	// final attempt only.
	var shots, records int
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".png"):
			shots++
		case strings.HasSuffix(e.Name(), ".json"):
			records++
		}
	}
	if shots != 1 {
		t.Errorf("screenshots = %d, want exactly 1", shots)
	}
	if records != 1 {
		t.Errorf("failure records = %d, want exactly 1", records)
	}
}

func TestRetry_RecoversOnSecondAttempt(t *testing.T) {
	dir := t.TempDir()
	performer := &fakePerformer{}
	checker := &fakeChecker{confidences: []float64{0.5, 0.95}, observed: "検索結果"}
	p := New(newController(t, performer, checker, dir), testSet(t), nil, nil)

	run, err := p.Execute(context.Background(), []StepSpec{searchStep("execute_search")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Status != StateSucceeded {
		t.Errorf("run status = %s, want succeeded", run.Status)
	}
	if performer.calls != 2 {
		t.Errorf("attempts = %d, want 2", performer.calls)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("artifacts written on recovered step: %d files", len(entries))
	}
}

func TestRetry_ActionErrorConsumesAttempt(t *testing.T) {
	performer := &fakePerformer{failFirst: 1}
	checker := &fakeChecker{confidences: []float64{0.95}, observed: "検索結果"}
	p := New(newController(t, performer, checker, t.TempDir()), testSet(t), nil, nil)

	run, err := p.Execute(context.Background(), []StepSpec{searchStep("execute_search")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Status != StateSucceeded {
		t.Errorf("run status = %s, want succeeded", run.Status)
	}
	// The failed first attempt must not reach the verifier.
	if checker.verifies != 1 {
		t.Errorf("verifies = %d, want 1", checker.verifies)
	}
}

func TestTrace_OutcomeAlwaysFollowsVerifying(t *testing.T) {
	performer := &fakePerformer{failFirst: 1}
	checker := &fakeChecker{confidences: []float64{0.5, 0.5, 0.95}, observed: "検索結果"}
	p := New(newController(t, performer, checker, t.TempDir()), testSet(t), nil, nil)

	run, err := p.Execute(context.Background(), []StepSpec{searchStep("execute_search")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, tr := range run.Trace {
		switch tr.To {
		case StateSucceeded, StateRetrying, StateFailed:
			if tr.From != StateVerifying {
				t.Errorf("transition %s -> %s skipped verifying (step %s attempt %d)",
					tr.From, tr.To, tr.StepID, tr.Attempt)
			}
		}
	}
}

func TestValidate_UnknownElementAbortsBeforeAnyAction(t *testing.T) {
	performer := &fakePerformer{}
	checker := &fakeChecker{confidences: []float64{0.95}}
	p := New(newController(t, performer, checker, t.TempDir()), testSet(t), nil, nil)

	bad := searchStep("open_listing_form")
	bad.Actions = append(bad.Actions, input.Click{Element: "listing_submit"})

	run, err := p.Execute(context.Background(), []StepSpec{bad})
	var cfgErr *coords.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ConfigError", err)
	}
	if !strings.Contains(cfgErr.Reason, "listing_submit") {
		t.Errorf("reason %q does not name the missing element", cfgErr.Reason)
	}
	if run.Status != StateAborted {
		t.Errorf("run status = %s, want aborted", run.Status)
	}
	if performer.calls != 0 {
		t.Errorf("performer calls = %d, want 0 before validation passes", performer.calls)
	}
}

func TestExecute_CancellationStopsAtStepBoundary(t *testing.T) {
	performer := &fakePerformer{}
	checker := &fakeChecker{confidences: []float64{0.95}, observed: "検索結果"}
	p := New(newController(t, performer, checker, t.TempDir()), testSet(t), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := searchStep("execute_search")
	first.OnSuccess = func(ctx context.Context, tools StepTools) error {
		cancel() // abort request lands while step one is mid-cycle
		return nil
	}

	run, err := p.Execute(ctx, []StepSpec{first, searchStep("collect_item")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if got := run.StepState("execute_search"); got != StateSucceeded {
		t.Errorf("in-flight step state = %s, want succeeded (attempt completes)", got)
	}
	if got := run.StepState("collect_item"); got != StatePending {
		t.Errorf("next step state = %s, want pending (never started)", got)
	}
	if performer.calls != 1 {
		t.Errorf("performer calls = %d, want 1", performer.calls)
	}
}

func TestExecute_ResearchStepsWaitForWindowCapacity(t *testing.T) {
	performer := &fakePerformer{}
	checker := &fakeChecker{confidences: []float64{0.95}, observed: "検索結果"}
	limiter := ratelimit.New(1, 40*time.Millisecond)
	p := New(newController(t, performer, checker, t.TempDir()), testSet(t), limiter, nil)

	start := time.Now()
	_, err := p.Execute(context.Background(), []StepSpec{searchStep("execute_search"), searchStep("collect_item")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("second research step admitted after %v, want a window wait", elapsed)
	}
}

func TestOnSuccess_ErrorIsRetried(t *testing.T) {
	performer := &fakePerformer{clipboard: "https://example.com/item/123"}
	checker := &fakeChecker{confidences: []float64{0.95}, observed: "検索結果"}
	p := New(newController(t, performer, checker, t.TempDir()), testSet(t), nil, nil)

	var hookCalls int
	var captured string
	step := searchStep("collect_item")
	step.OnSuccess = func(ctx context.Context, tools StepTools) error {
		hookCalls++
		if hookCalls == 1 {
			return errors.New("clipboard empty")
		}
		var err error
		captured, err = tools.Clipboard(ctx)
		return err
	}

	run, err := p.Execute(context.Background(), []StepSpec{step})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Status != StateSucceeded {
		t.Errorf("run status = %s, want succeeded", run.Status)
	}
	if hookCalls != 2 {
		t.Errorf("hook calls = %d, want 2", hookCalls)
	}
	if captured != "https://example.com/item/123" {
		t.Errorf("clipboard = %q", captured)
	}
}
