// Package screen confirms UI state by capturing screen regions and reading
// them back through optical text recognition. Verification is a pure check:
// the only side effect is the screen read itself.
package screen

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"sellflow/internal/coords"
)

// Capturer grabs a screen region. The production implementation is the
// input.Session CDP capture; tests substitute canned images.
type Capturer interface {
	Capture(r coords.Region) (image.Image, error)
}

// Recognizer extracts raw text from an image.
type Recognizer interface {
	RecognizeText(img image.Image) (string, error)
}

// MatchResult is the outcome of one verification.
type MatchResult struct {
	Matched      bool
	Confidence   float64
	ObservedText string
}

// VerificationError reports that the expected pattern was not confirmed on
// screen within the attempt budget.
type VerificationError struct {
	Expected   string
	Observed   string
	Confidence float64
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed: expected %q, observed %q (confidence %.2f)",
		e.Expected, e.Observed, e.Confidence)
}

// Verifier couples a capturer and recognizer with the fuzzy matcher.
type Verifier struct {
	capturer   Capturer
	recognizer Recognizer
	logger     *zap.Logger
}

// NewVerifier builds a verifier.
func NewVerifier(capturer Capturer, recognizer Recognizer, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{capturer: capturer, recognizer: recognizer, logger: logger}
}

// Capture exposes the raw region capture, used for failure screenshots.
func (v *Verifier) Capture(r coords.Region) (image.Image, error) {
	return v.capturer.Capture(r)
}

// RecognizeText captures nothing; it runs recognition on an image and
// normalizes the result (width variants folded, whitespace collapsed).
func (v *Verifier) RecognizeText(img image.Image) (string, error) {
	raw, err := v.recognizer.RecognizeText(img)
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return Normalize(raw), nil
}

// Verify captures the region, recognizes its text, and scores it against the
// expected pattern. The result is deterministic for identical input images.
// Cancellation is checked before the capture; the capture+recognize latency
// itself is bounded by the caller's context deadline via the retry budget.
func (v *Verifier) Verify(ctx context.Context, region coords.Region, expected string, threshold float64) (MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return MatchResult{}, err
	}

	img, err := v.capturer.Capture(region)
	if err != nil {
		return MatchResult{}, fmt.Errorf("capture for verify: %w", err)
	}

	observed, err := v.RecognizeText(img)
	if err != nil {
		return MatchResult{}, err
	}

	confidence := Similarity(Normalize(expected), observed)
	result := MatchResult{
		Matched:      confidence >= threshold,
		Confidence:   confidence,
		ObservedText: observed,
	}

	v.logger.Debug("verify",
		zap.String("expected", expected),
		zap.String("observed", observed),
		zap.Float64("confidence", confidence),
		zap.Bool("matched", result.Matched),
	)
	return result, nil
}
