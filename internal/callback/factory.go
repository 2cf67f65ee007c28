package callback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/events"
	"github.com/roach88/testworker/internal/reference"
)

// FactoryRepository is the store surface the Factory needs.
type FactoryRepository interface {
	FindJob(ctx context.Context) (domain.Job, bool, error)
	CreateWorkerEvent(ctx context.Context, e domain.WorkerEvent) (domain.WorkerEvent, error)
}

// CreationObserver is told about every persisted WorkerEvent.
type CreationObserver interface {
	WorkerEventCreated(e domain.WorkerEvent)
}

// Factory creates WorkerEvents from domain events.
type Factory struct {
	repo      FactoryRepository
	handlers  []EventHandler
	publisher events.Publisher
	observer  CreationObserver
	logger    *slog.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithHandlers replaces the handler table.
func WithHandlers(handlers ...EventHandler) FactoryOption {
	return func(f *Factory) {
		f.handlers = handlers
	}
}

// WithCreationObserver sets an observer for created WorkerEvents.
func WithCreationObserver(o CreationObserver) FactoryOption {
	return func(f *Factory) {
		f.observer = o
	}
}

// WithFactoryLogger sets the factory logger.
func WithFactoryLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = l
	}
}

// NewFactory creates a Factory using DefaultHandlers("").
// publisher receives a WorkerEventCreatedEvent for every persisted event;
// it may be nil.
func NewFactory(repo FactoryRepository, publisher events.Publisher, opts ...FactoryOption) *Factory {
	f := &Factory{
		repo:      repo,
		handlers:  DefaultHandlers(""),
		publisher: publisher,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// CreateForEvent persists the WorkerEvent for a domain event.
// Returns ok=false, without error, when no job exists or no handler accepts
// the event.
func (f *Factory) CreateForEvent(ctx context.Context, event domain.Event) (domain.WorkerEvent, bool, error) {
	job, exists, err := f.repo.FindJob(ctx)
	if err != nil {
		return domain.WorkerEvent{}, false, fmt.Errorf("create worker event for %s: %w", event.EventName(), err)
	}
	if !exists {
		f.logger.Debug("no job, worker event skipped", "event", event.EventName())
		return domain.WorkerEvent{}, false, nil
	}

	handler := f.handlerFor(event)
	if handler == nil {
		return domain.WorkerEvent{}, false, nil
	}

	draft := handler.Draft(job, event)
	label := draft.Label
	if label == "" {
		label = job.Label
	}

	created, err := f.repo.CreateWorkerEvent(ctx, domain.WorkerEvent{
		Scope:             draft.Scope,
		Outcome:           draft.Outcome,
		Label:             label,
		Reference:         reference.Create(job.Label, draft.Components...),
		RelatedReferences: draft.RelatedReferences,
		Payload:           draft.Payload,
	})
	if err != nil {
		return domain.WorkerEvent{}, false, fmt.Errorf("create worker event for %s: %w", event.EventName(), err)
	}

	f.logger.Info("worker event created",
		"sequence_number", created.SequenceNumber,
		"type", created.Type(),
		"label", created.Label,
		"reference", created.Reference,
	)
	if f.observer != nil {
		f.observer.WorkerEventCreated(created)
	}

	if f.publisher != nil {
		if err := f.publisher.Publish(ctx, domain.WorkerEventCreatedEvent{WorkerEvent: created}); err != nil {
			return created, true, err
		}
	}

	return created, true, nil
}

// Handle implements events.Subscriber.
func (f *Factory) Handle(ctx context.Context, event domain.Event) error {
	_, _, err := f.CreateForEvent(ctx, event)
	return err
}

func (f *Factory) handlerFor(event domain.Event) EventHandler {
	for _, h := range f.handlers {
		if h.Handles(event) {
			return h
		}
	}
	return nil
}
