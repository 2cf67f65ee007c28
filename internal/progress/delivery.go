package progress

import (
	"context"
	"fmt"

	"github.com/roach88/testworker/internal/domain"
)

// EventDeliveryState is the derived state of WorkerEvent delivery.
type EventDeliveryState string

const (
	EventDeliveryAwaiting EventDeliveryState = "awaiting"
	EventDeliveryRunning  EventDeliveryState = "running"
	EventDeliveryComplete EventDeliveryState = "complete"
)

// EventDelivery computes EventDeliveryState.
type EventDelivery struct {
	repo Repository
}

// NewEventDelivery creates an event delivery progress calculator.
func NewEventDelivery(repo Repository) *EventDelivery {
	return &EventDelivery{repo: repo}
}

// Get returns the current delivery state. Failed events count as finished.
func (d *EventDelivery) Get(ctx context.Context) (EventDeliveryState, error) {
	total, err := d.repo.CountWorkerEvents(ctx)
	if err != nil {
		return "", fmt.Errorf("event delivery progress: %w", err)
	}
	if total == 0 {
		return EventDeliveryAwaiting, nil
	}

	finished, err := d.repo.CountWorkerEvents(ctx, domain.WorkerEventStateFailed, domain.WorkerEventStateComplete)
	if err != nil {
		return "", fmt.Errorf("event delivery progress: %w", err)
	}
	if finished == total {
		return EventDeliveryComplete, nil
	}
	return EventDeliveryRunning, nil
}

// Is reports whether the current state is one of states.
func (d *EventDelivery) Is(ctx context.Context, states ...EventDeliveryState) (bool, error) {
	return is(ctx, d.Get, states)
}
