package suspension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/log"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@every 15s"

// Resumer continues or fails executions found by the sweeper. Both calls
// must be no-ops for executions that already left the waiting state.
type Resumer interface {
	ResumeTimer(ctx context.Context, executionID string) error
	Timeout(ctx context.Context, executionID string) error
}

// SweepResult counts the executions a sweep acted on.
type SweepResult struct {
	Resumed  int
	TimedOut int
}

type Sweeper struct {
	executions persistence.ExecutionRepository
	resumer    Resumer
	schedule   string
	now        func() time.Time
	logger     *slog.Logger
}

func NewSweeper(executions persistence.ExecutionRepository, resumer Resumer, schedule string) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	return &Sweeper{
		executions: executions,
		resumer:    resumer,
		schedule:   schedule,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     log.WithModule("sweeper"),
	}, nil
}

// Sweep resumes elapsed timer waits and times out expired webhook waits.
// One failing execution does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var (
		result SweepResult
		errs   []error
	)

	now := s.now()

	due, err := s.executions.DueTimers(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to list due timers: %w", err)
	}

	for _, execution := range due {
		if err := s.resumer.ResumeTimer(ctx, execution.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to resume execution", "execution_id", execution.ID, "error", err)
			errs = append(errs, err)

			continue
		}

		result.Resumed++
	}

	expired, err := s.executions.ExpiredWebhookWaits(ctx, now)
	if err != nil {
		return result, errors.Join(append(errs, fmt.Errorf("failed to list expired webhook waits: %w", err))...)
	}

	for _, execution := range expired {
		if err := s.resumer.Timeout(ctx, execution.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to time out execution", "execution_id", execution.ID, "error", err)
			errs = append(errs, err)

			continue
		}

		result.TimedOut++
	}

	return result, errors.Join(errs...)
}

// Start runs Sweep on the schedule until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := c.AddFunc(s.schedule, func() {
		result, err := s.Sweep(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "sweep finished with errors", "error", err)
		}

		if result.Resumed > 0 || result.TimedOut > 0 {
			s.logger.InfoContext(ctx, "sweep finished", "resumed", result.Resumed, "timed_out", result.TimedOut)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}

	s.logger.InfoContext(ctx, "sweeper started", "schedule", s.schedule)
	c.Start()

	<-ctx.Done()

	<-c.Stop().Done()
	s.logger.Info("sweeper stopped")

	return nil
}
