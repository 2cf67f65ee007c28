// Package events provides the synchronous in-process domain event dispatcher.
//
// Subscribers run in the order they were subscribed. A failing subscriber is
// logged and does not stop the ones after it; Publish returns every error
// joined.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/testworker/internal/domain"
)

// Subscriber reacts to a published domain event.
type Subscriber interface {
	Handle(ctx context.Context, event domain.Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, event domain.Event) error

// Handle calls f.
func (f SubscriberFunc) Handle(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type subscription struct {
	name       string
	subscriber Subscriber
}

// Dispatcher delivers each published event to its subscribers.
//
// Thread-safety: Subscribe and Publish are safe for concurrent use.
// Subscribers may publish further events from inside Handle.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[domain.EventName][]subscription
	logger *slog.Logger
}

// NewDispatcher creates an empty dispatcher. A nil logger uses slog.Default().
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		subs:   make(map[domain.EventName][]subscription),
		logger: logger,
	}
}

// Subscribe appends a named subscriber for an event.
// The name is only used in logs and errors.
func (d *Dispatcher) Subscribe(event domain.EventName, name string, sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[event] = append(d.subs[event], subscription{name: name, subscriber: sub})
}

// Subscribers returns the subscriber names for an event in call order.
func (d *Dispatcher) Subscribers(event domain.EventName) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.subs[event]))
	for _, s := range d.subs[event] {
		names = append(names, s.name)
	}
	return names
}

// Publish runs every subscriber of the event in subscription order.
func (d *Dispatcher) Publish(ctx context.Context, event domain.Event) error {
	d.mu.RLock()
	subs := d.subs[event.EventName()]
	d.mu.RUnlock()

	if len(subs) == 0 {
		d.logger.Debug("event has no subscribers", "event", event.EventName())
		return nil
	}

	var errs []error
	for _, s := range subs {
		if err := s.subscriber.Handle(ctx, event); err != nil {
			d.logger.Error("event subscriber failed",
				"event", event.EventName(),
				"subscriber", s.name,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	return errors.Join(errs...)
}
