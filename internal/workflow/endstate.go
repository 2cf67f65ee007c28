package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/events"
)

// endStates maps terminal domain events to the job end state they latch.
var endStates = map[domain.EventName]domain.EndState{
	domain.EventTestFailed:              domain.EndStateFailedTestFailure,
	domain.EventTestException:           domain.EndStateFailedTestException,
	domain.EventSourceCompilationFailed: domain.EndStateFailedCompilation,
	domain.EventJobTimeout:              domain.EndStateTimedOut,
	domain.EventJobCompleted:            domain.EndStateComplete,
}

// EndStateSetter latches the job end state from terminal events.
// The first terminal event wins; later ones are logged and dropped.
type EndStateSetter struct {
	repo      EndStateRepository
	publisher events.Publisher
	logger    *slog.Logger
}

// NewEndStateSetter creates an EndStateSetter.
func NewEndStateSetter(repo EndStateRepository, publisher events.Publisher, logger *slog.Logger) *EndStateSetter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EndStateSetter{repo: repo, publisher: publisher, logger: logger}
}

// Handle implements events.Subscriber.
func (s *EndStateSetter) Handle(ctx context.Context, event domain.Event) error {
	state, ok := endStates[event.EventName()]
	if !ok {
		return nil
	}

	set, err := s.repo.SetJobEndState(ctx, state)
	if err != nil {
		return fmt.Errorf("end state setter: %w", err)
	}
	if !set {
		s.logger.Debug("job end state already latched", "ignored", state, "trigger", event.EventName())
		return nil
	}

	s.logger.Info("job end state set", "end_state", state)
	return s.publisher.Publish(ctx, domain.JobEndStateChangedEvent{EndState: state})
}
