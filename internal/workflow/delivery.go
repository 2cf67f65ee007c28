package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/testworker/internal/callback"
	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
	"github.com/roach88/testworker/internal/message"
)

// DeliveryLane queues every new WorkerEvent and dispatches its delivery.
type DeliveryLane struct {
	mutator *callback.Mutator
	bus     engine.Dispatcher
	logger  *slog.Logger
}

// NewDeliveryLane creates the delivery lane.
func NewDeliveryLane(mutator *callback.Mutator, bus engine.Dispatcher, logger *slog.Logger) *DeliveryLane {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryLane{mutator: mutator, bus: bus, logger: logger}
}

// Handle implements events.Subscriber.
func (l *DeliveryLane) Handle(ctx context.Context, event domain.Event) error {
	e, ok := event.(domain.WorkerEventCreatedEvent)
	if !ok {
		return nil
	}
	seq := e.WorkerEvent.SequenceNumber

	_, queued, err := l.mutator.Queue(ctx, seq)
	if err != nil {
		return fmt.Errorf("delivery lane: %w", err)
	}
	if !queued {
		l.logger.Debug("worker event not queued", "sequence_number", seq)
		return nil
	}

	if err := l.bus.Dispatch(ctx, message.DeliverEvent{SequenceNumber: seq}); err != nil {
		return fmt.Errorf("delivery lane: dispatch: %w", err)
	}
	return nil
}
