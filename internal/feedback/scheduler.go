package feedback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs RecomputeAll on a cron schedule while a long-running
// command (serve, watch) is active.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	spec    string
}

// NewScheduler validates spec ("@every 1h", "0 3 * * *", ...) and registers
// the recompute job. Start must be called to begin running it.
func NewScheduler(svc *Service, spec string) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{cron: c, service: svc, spec: spec}
	if _, err := c.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid recompute schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	if _, err := s.service.RecomputeAll(context.Background()); err != nil {
		slog.Warn("scheduled_quality_recompute_failed", slog.String("error", err.Error()))
	}
}

// Start begins the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Debug("quality_scheduler_started", slog.String("schedule", s.spec))
}

// Stop halts the schedule and waits for a running recompute, or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
