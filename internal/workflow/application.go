package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
	"github.com/roach88/testworker/internal/events"
	"github.com/roach88/testworker/internal/message"
)

// ApplicationLane turns test and compilation outcomes into job outcomes.
//
// A passed test schedules a deferred job-completed check, since completion
// also waits on event delivery. A failed or excepted test, or a failed
// compilation, fails the job immediately.
type ApplicationLane struct {
	checker     WorkerEventChecker
	bus         engine.Dispatcher
	publisher   events.Publisher
	checkPeriod time.Duration
	logger      *slog.Logger
}

// NewApplicationLane creates the application lane. checkPeriod delays each
// CheckJobCompleted message.
func NewApplicationLane(checker WorkerEventChecker, bus engine.Dispatcher, publisher events.Publisher, checkPeriod time.Duration, logger *slog.Logger) *ApplicationLane {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApplicationLane{
		checker:     checker,
		bus:         bus,
		publisher:   publisher,
		checkPeriod: checkPeriod,
		logger:      logger,
	}
}

// Handle implements events.Subscriber.
func (l *ApplicationLane) Handle(ctx context.Context, event domain.Event) error {
	switch event.(type) {
	case domain.TestPassedEvent:
		if err := l.bus.Dispatch(ctx, message.CheckJobCompleted{}, engine.WithDelay(l.checkPeriod)); err != nil {
			return fmt.Errorf("application lane: dispatch: %w", err)
		}
		return nil
	case domain.TestFailedEvent, domain.TestExceptionEvent, domain.SourceCompilationFailedEvent:
		return l.fail(ctx, event)
	}
	return nil
}

func (l *ApplicationLane) fail(ctx context.Context, cause domain.Event) error {
	failed, err := l.checker.HasWorkerEventOfType(ctx, domain.ScopeJob, domain.OutcomeFailed)
	if err != nil {
		return fmt.Errorf("application lane: %w", err)
	}
	if failed {
		l.logger.Debug("job already failed", "trigger", cause.EventName())
		return nil
	}

	l.logger.Info("job failed", "trigger", cause.EventName())
	return l.publisher.Publish(ctx, domain.JobFailedEvent{})
}
