package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs periodic background jobs (outbox relay, expired challenge
// sweep) on a gocron scheduler. A job never overlaps with its own previous
// run.
type Scheduler struct {
	sched  gocron.Scheduler
	ctx    context.Context
	logger *slog.Logger
}

// NewScheduler creates a scheduler whose jobs run under ctx.
func NewScheduler(ctx context.Context, logger *slog.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{sched: sched, ctx: ctx, logger: logger}, nil
}

// Every registers fn to run every interval. Each run gets a context bounded
// by timeout; errors are logged.
func (s *Scheduler) Every(name string, interval, timeout time.Duration, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(s.ctx, timeout)
			defer cancel()

			start := time.Now()
			if err := fn(ctx); err != nil {
				s.logger.Error("scheduled job failed", "job", name, "error", err)
				return
			}
			s.logger.Debug("scheduled job done", "job", name, "duration_ms", time.Since(start).Milliseconds())
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	s.logger.Info("scheduled job registered", "job", name, "interval", interval)
	return nil
}

// Run starts the scheduler and blocks until the scheduler context is done,
// then waits for running jobs to finish.
func (s *Scheduler) Run() error {
	s.sched.Start()
	<-s.ctx.Done()
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}
