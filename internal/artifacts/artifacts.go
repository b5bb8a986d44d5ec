// Package artifacts persists step-failure diagnostics: a screenshot of the
// offending region and a structured failure record referencing it. Writes
// happen only on final-attempt escalation, keeping I/O bounded.
package artifacts

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FailureRecord captures everything needed to diagnose a step failure after
// the run has aborted.
type FailureRecord struct {
	RunID        string    `json:"run_id"`
	StepID       string    `json:"step_id"`
	Stage        string    `json:"stage"`
	Attempts     int       `json:"attempts"`
	LastObserved string    `json:"last_observed"`
	Reason       string    `json:"reason"`
	Screenshot   string    `json:"screenshot,omitempty"`
	FailedAt     time.Time `json:"failed_at"`
}

// Recorder owns the screenshot directory.
type Recorder struct {
	dir    string
	logger *zap.Logger
}

// NewRecorder builds a recorder rooted at dir.
func NewRecorder(dir string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{dir: dir, logger: logger}
}

// SaveScreenshot writes a PNG capture and returns its path.
func (r *Recorder) SaveScreenshot(img image.Image, stepID string) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.png",
		stepID,
		time.Now().Format("20060102_150405"),
		uuid.NewString()[:8],
	)
	path := filepath.Join(r.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create screenshot file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return "", fmt.Errorf("encode screenshot: %w", err)
	}

	r.logger.Info("failure screenshot saved", zap.String("path", path))
	return path, nil
}

// WriteFailure persists a failure record as JSON alongside the screenshots
// and returns its path.
func (r *Recorder) WriteFailure(rec FailureRecord) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	if rec.FailedAt.IsZero() {
		rec.FailedAt = time.Now()
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal failure record: %w", err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("failure_%s_%s.json", rec.StepID, rec.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write failure record: %w", err)
	}

	r.logger.Error("step failure recorded",
		zap.String("step", rec.StepID),
		zap.Int("attempts", rec.Attempts),
		zap.String("record", path),
	)
	return path, nil
}
