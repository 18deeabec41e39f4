// Package scheduler runs the service's periodic maintenance jobs on gocron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
)

// Job is a named task run every Interval. Runs of one job never overlap.
type Job struct {
	Name      string
	Interval  time.Duration
	Immediate bool // also run once right after Start
	Run       func(ctx context.Context) error
}

// Scheduler wraps a gocron scheduler with logging and run metrics.
type Scheduler struct {
	s      gocron.Scheduler
	logger *zap.Logger
}

// New creates a stopped scheduler.
func New(logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{s: s, logger: logger}, nil
}

// Add registers job. A non-positive interval is rejected.
func (s *Scheduler) Add(job Job) error {
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", job.Name, job.Interval)
	}
	opts := []gocron.JobOption{
		gocron.WithName(job.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if job.Immediate {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	_, err := s.s.NewJob(
		gocron.DurationJob(job.Interval),
		gocron.NewTask(func(ctx context.Context) {
			s.run(ctx, job)
		}),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", job.Name, err)
	}
	s.logger.Info("job scheduled", zap.String("job", job.Name), zap.Duration("interval", job.Interval))
	return nil
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		observability.SchedulerJobRunsTotal.WithLabelValues(job.Name, "error").Inc()
		s.logger.Warn("job failed", zap.String("job", job.Name), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	observability.SchedulerJobRunsTotal.WithLabelValues(job.Name, "success").Inc()
	s.logger.Debug("job completed", zap.String("job", job.Name), zap.Duration("duration", time.Since(start)))
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.s.Start()
}

// Shutdown stops scheduling and waits for running jobs to return.
func (s *Scheduler) Shutdown() error {
	return s.s.Shutdown()
}
