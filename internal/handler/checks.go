package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
	"github.com/roach88/testworker/internal/events"
	"github.com/roach88/testworker/internal/message"
	"github.com/roach88/testworker/internal/progress"
)

// CheckTimeout times the job out once its maximum duration has elapsed,
// and otherwise checks again after period.
type CheckTimeout struct {
	jobs      JobFinder
	bus       engine.Dispatcher
	publisher events.Publisher
	period    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewCheckTimeout creates the CheckTimeout handler. A nil now uses time.Now.
func NewCheckTimeout(jobs JobFinder, bus engine.Dispatcher, publisher events.Publisher, period time.Duration, now func() time.Time, logger *slog.Logger) *CheckTimeout {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckTimeout{
		jobs:      jobs,
		bus:       bus,
		publisher: publisher,
		period:    period,
		now:       now,
		logger:    logger,
	}
}

// Handle implements engine.Handler.
func (h *CheckTimeout) Handle(ctx context.Context, msg engine.Message) error {
	if _, ok := msg.(message.CheckTimeout); !ok {
		return unexpected(msg)
	}

	job, active, err := activeJob(ctx, h.jobs)
	if err != nil || !active {
		return err
	}

	if job.MaximumDurationElapsed(h.now()) {
		h.logger.Warn("job timed out", "job", job.Label, "maximum_duration", job.MaximumDuration)
		return h.publisher.Publish(ctx, domain.JobTimeoutEvent{MaximumDuration: job.MaximumDuration})
	}

	if err := h.bus.Dispatch(ctx, message.CheckTimeout{}, engine.WithDelay(h.period)); err != nil {
		return fmt.Errorf("reschedule timeout check: %w", err)
	}
	return nil
}

// CheckJobCompletedRepository is the store surface CheckJobCompleted needs.
type CheckJobCompletedRepository interface {
	JobFinder
	HasWorkerEventOfType(ctx context.Context, scope domain.WorkerEventScope, outcome domain.WorkerEventOutcome) (bool, error)
}

// CheckJobCompleted completes the job once the application has nothing left
// to do, and otherwise checks again after period.
type CheckJobCompleted struct {
	repo      CheckJobCompletedRepository
	app       *progress.Application
	bus       engine.Dispatcher
	publisher events.Publisher
	period    time.Duration
	logger    *slog.Logger
}

// NewCheckJobCompleted creates the CheckJobCompleted handler.
func NewCheckJobCompleted(repo CheckJobCompletedRepository, app *progress.Application, bus engine.Dispatcher, publisher events.Publisher, period time.Duration, logger *slog.Logger) *CheckJobCompleted {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckJobCompleted{
		repo:      repo,
		app:       app,
		bus:       bus,
		publisher: publisher,
		period:    period,
		logger:    logger,
	}
}

// Handle implements engine.Handler.
func (h *CheckJobCompleted) Handle(ctx context.Context, msg engine.Message) error {
	if _, ok := msg.(message.CheckJobCompleted); !ok {
		return unexpected(msg)
	}

	if _, active, err := activeJob(ctx, h.repo); err != nil || !active {
		return err
	}

	done, err := h.repo.HasWorkerEventOfType(ctx, domain.ScopeJob, domain.OutcomeCompleted)
	if err != nil {
		return fmt.Errorf("check job completed: %w", err)
	}
	if done {
		return nil
	}

	state, err := h.app.Get(ctx)
	if err != nil {
		return fmt.Errorf("check job completed: %w", err)
	}
	if state == progress.ApplicationComplete {
		h.logger.Info("job completed")
		return h.publisher.Publish(ctx, domain.JobCompletedEvent{})
	}

	h.logger.Debug("job not complete yet", "application", state)
	if err := h.bus.Dispatch(ctx, message.CheckJobCompleted{}, engine.WithDelay(h.period)); err != nil {
		return fmt.Errorf("reschedule job completed check: %w", err)
	}
	return nil
}
