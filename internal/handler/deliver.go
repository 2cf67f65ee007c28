package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/testworker/internal/callback"
	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
	"github.com/roach88/testworker/internal/message"
	"github.com/roach88/testworker/internal/store"
)

// Sender posts a WorkerEvent to the collector.
type Sender interface {
	Send(ctx context.Context, e domain.WorkerEvent) error
}

// DeliverEvent sends one queued WorkerEvent.
//
// On failure the event goes back to queued and the error is returned so the
// bus retries. Once the bus gives up, the message-failure subscriber fails
// the event.
type DeliverEvent struct {
	mutator *callback.Mutator
	sender  Sender
	logger  *slog.Logger
}

// NewDeliverEvent creates the DeliverEvent handler.
func NewDeliverEvent(mutator *callback.Mutator, sender Sender, logger *slog.Logger) *DeliverEvent {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliverEvent{mutator: mutator, sender: sender, logger: logger}
}

// Handle implements engine.Handler.
func (h *DeliverEvent) Handle(ctx context.Context, msg engine.Message) error {
	m, ok := msg.(message.DeliverEvent)
	if !ok {
		return unexpected(msg)
	}

	e, started, err := h.mutator.StartSending(ctx, m.SequenceNumber)
	if errors.Is(err, store.ErrNotFound) {
		return engine.Unrecoverable(err)
	}
	if err != nil {
		return err
	}
	// Only the handler that moved the event to sending may post it.
	if !started {
		h.logger.Debug("worker event not sendable", "sequence_number", e.SequenceNumber, "state", e.State)
		return nil
	}

	if sendErr := h.sender.Send(ctx, e); sendErr != nil {
		if _, _, err := h.mutator.Queue(ctx, e.SequenceNumber); err != nil {
			return errors.Join(sendErr, fmt.Errorf("requeue: %w", err))
		}
		return sendErr
	}

	if _, _, err := h.mutator.Complete(ctx, e.SequenceNumber); err != nil {
		return engine.Unrecoverable(fmt.Errorf("mark delivered: %w", err))
	}
	return nil
}
