package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
	"github.com/roach88/testworker/internal/events"
	"github.com/roach88/testworker/internal/message"
	"github.com/roach88/testworker/internal/progress"
)

// ExecutionLane runs compiled tests one at a time in position order.
//
// JobCompiled starts the lane. Every TestPassed for a test that really is
// complete moves it on to the next awaiting test, and emits
// ExecutionCompleted once nothing is left.
type ExecutionLane struct {
	progress  *progress.Execution
	tests     TestRepository
	bus       engine.Dispatcher
	publisher events.Publisher
	logger    *slog.Logger
}

// NewExecutionLane creates the execution lane.
func NewExecutionLane(p *progress.Execution, tests TestRepository, bus engine.Dispatcher, publisher events.Publisher, logger *slog.Logger) *ExecutionLane {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecutionLane{
		progress:  p,
		tests:     tests,
		bus:       bus,
		publisher: publisher,
		logger:    logger,
	}
}

// Handle implements events.Subscriber.
func (l *ExecutionLane) Handle(ctx context.Context, event domain.Event) error {
	switch e := event.(type) {
	case domain.JobCompiledEvent:
		return l.start(ctx)
	case domain.TestPassedEvent:
		return l.advance(ctx, e.Test.ID)
	}
	return nil
}

func (l *ExecutionLane) start(ctx context.Context) error {
	// Published before the first dispatch so execution/started precedes the
	// first test's events in sequence order.
	if err := l.publisher.Publish(ctx, domain.ExecutionStartedEvent{}); err != nil {
		return err
	}
	_, err := l.dispatchNext(ctx)
	return err
}

func (l *ExecutionLane) advance(ctx context.Context, testID int64) error {
	test, err := l.tests.GetTest(ctx, testID)
	if err != nil {
		return fmt.Errorf("execution lane: %w", err)
	}
	if test.State != domain.TestStateComplete {
		l.logger.Debug("test not complete, lane not advanced", "test", test.ID, "state", test.State)
		return nil
	}

	if _, err := l.dispatchNext(ctx); err != nil {
		return err
	}

	complete, err := l.progress.Is(ctx, progress.ExecutionComplete)
	if err != nil {
		return fmt.Errorf("execution lane: %w", err)
	}
	if !complete {
		return nil
	}

	done, err := l.tests.HasWorkerEventOfType(ctx, domain.ScopeExecution, domain.OutcomeCompleted)
	if err != nil {
		return fmt.Errorf("execution lane: %w", err)
	}
	if done {
		return nil
	}

	l.logger.Info("execution completed")
	return l.publisher.Publish(ctx, domain.ExecutionCompletedEvent{})
}

func (l *ExecutionLane) dispatchNext(ctx context.Context) (bool, error) {
	next, ok, err := l.tests.NextAwaitingTest(ctx)
	if err != nil {
		return false, fmt.Errorf("execution lane: %w", err)
	}
	if !ok {
		l.logger.Debug("no awaiting test")
		return false, nil
	}

	if err := l.bus.Dispatch(ctx, message.ExecuteTest{TestID: next.ID}); err != nil {
		return false, fmt.Errorf("execution lane: dispatch: %w", err)
	}
	l.logger.Debug("execute test dispatched", "test", next.ID, "source", next.Source, "position", next.Position)
	return true, nil
}
