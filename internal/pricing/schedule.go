package pricing

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler fires the daily pass on a cron expression, e.g. "0 3 * * *" for
// 03:00 every day.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler validates spec and registers job.
func NewScheduler(spec string, job func(), logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, job); err != nil {
		return nil, fmt.Errorf("invalid price pass schedule %q: %w", spec, err)
	}
	logger.Info("price pass scheduled", zap.String("schedule", spec))
	return &Scheduler{cron: c, logger: logger}, nil
}

// Start begins firing. The job runs on the scheduler's goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("price pass scheduler stopped")
}
