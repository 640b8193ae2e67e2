// Package scheduler runs the recurring engine jobs, the price tick and the
// deadline sweep, on cron schedules.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/quotewire/pulse/pkg/logger"
)

// Scheduler owns the cron runner. Jobs are registered before Start and run
// until Stop drains them.
type Scheduler struct {
	cron   *cron.Cron
	logger logger.Logger
}

// New creates a scheduler supporting @every expressions and optional seconds.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger: logger.Get().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	return s
}

// AddJob registers a named job on the given cron expression. The job runs
// with the provided base context; panics are contained so one bad run never
// kills the runner.
func (s *Scheduler) AddJob(ctx context.Context, name, spec string, job func(context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(ctx, "scheduled job panicked",
					logger.String("job", name), logger.Any("panic", r))
			}
		}()
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("register job %s (%q): %w", name, spec, err)
	}
	s.logger.Info(ctx, "scheduled job registered",
		logger.String("job", name), logger.String("spec", spec))
	return nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to finish or the
// context to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger for the scheduler.
func WithLogger(log logger.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.logger = log
		}
	}
}
