package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/testworker/internal/callback"
	"github.com/roach88/testworker/internal/domain"
)

// TestCanceller cancels tests that can no longer run.
//
// On timeout every unfinished test is cancelled; a running test's delegator
// notices and stops. On a test failure or exception only awaiting tests are
// cancelled, the failing test having already finished.
type TestCanceller struct {
	repo   TestCancelRepository
	logger *slog.Logger
}

// NewTestCanceller creates a TestCanceller.
func NewTestCanceller(repo TestCancelRepository, logger *slog.Logger) *TestCanceller {
	if logger == nil {
		logger = slog.Default()
	}
	return &TestCanceller{repo: repo, logger: logger}
}

// Handle implements events.Subscriber.
func (c *TestCanceller) Handle(ctx context.Context, event domain.Event) error {
	var states []domain.TestState
	switch event.(type) {
	case domain.JobTimeoutEvent:
		states = []domain.TestState{domain.TestStateAwaiting, domain.TestStateRunning}
	case domain.TestFailedEvent, domain.TestExceptionEvent:
		states = []domain.TestState{domain.TestStateAwaiting}
	default:
		return nil
	}

	n, err := c.repo.CancelTests(ctx, states...)
	if err != nil {
		return fmt.Errorf("test canceller: %w", err)
	}
	if n > 0 {
		c.logger.Info("tests cancelled", "count", n, "trigger", event.EventName())
	}
	return nil
}

// EventAborter fails every WorkerEvent still waiting for delivery when the
// job times out. A send already in flight completes, but its result can no
// longer move the event out of failed.
type EventAborter struct {
	repo    WorkerEventLister
	mutator *callback.Mutator
	logger  *slog.Logger
}

// NewEventAborter creates an EventAborter.
func NewEventAborter(repo WorkerEventLister, mutator *callback.Mutator, logger *slog.Logger) *EventAborter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventAborter{repo: repo, mutator: mutator, logger: logger}
}

// Handle implements events.Subscriber.
func (a *EventAborter) Handle(ctx context.Context, event domain.Event) error {
	if _, ok := event.(domain.JobTimeoutEvent); !ok {
		return nil
	}

	pending, err := a.repo.WorkerEvents(ctx, domain.WorkerEventStateQueued, domain.WorkerEventStateSending)
	if err != nil {
		return fmt.Errorf("event aborter: %w", err)
	}

	var aborted int
	for _, e := range pending {
		_, failed, err := a.mutator.Fail(ctx, e.SequenceNumber)
		if err != nil {
			return fmt.Errorf("event aborter: %w", err)
		}
		if failed {
			aborted++
		}
	}
	if aborted > 0 {
		a.logger.Info("worker events aborted", "count", aborted)
	}
	return nil
}
