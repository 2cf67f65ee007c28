package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/testworker/internal/callback"
	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/message"
)

// MessageFailureSubscriber fails a WorkerEvent whose delivery has given up.
type MessageFailureSubscriber struct {
	mutator *callback.Mutator
	logger  *slog.Logger
}

// NewMessageFailureSubscriber creates a MessageFailureSubscriber.
func NewMessageFailureSubscriber(mutator *callback.Mutator, logger *slog.Logger) *MessageFailureSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageFailureSubscriber{mutator: mutator, logger: logger}
}

// Handle implements events.Subscriber.
func (s *MessageFailureSubscriber) Handle(ctx context.Context, event domain.Event) error {
	e, ok := event.(domain.MessageFailedEvent)
	if !ok || e.WillRetry {
		return nil
	}
	deliver, ok := e.Message.(message.DeliverEvent)
	if !ok {
		return nil
	}

	_, failed, err := s.mutator.Fail(ctx, deliver.SequenceNumber)
	if err != nil {
		return fmt.Errorf("message failure subscriber: %w", err)
	}
	if failed {
		s.logger.Warn("worker event delivery abandoned",
			"sequence_number", deliver.SequenceNumber,
			"attempt", e.Attempt,
			"error", e.Err,
		)
	}
	return nil
}
