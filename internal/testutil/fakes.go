package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
)

// Dispatched is one message captured by a RecordingDispatcher.
type Dispatched struct {
	Message engine.Message
	Delay   time.Duration
}

// RecordingDispatcher is an engine.Dispatcher that keeps every message
// instead of handling it.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingDispatcher struct {
	mu   sync.Mutex
	sent []Dispatched
	err  error
}

// NewRecordingDispatcher creates an empty recorder.
func NewRecordingDispatcher() *RecordingDispatcher {
	return &RecordingDispatcher{}
}

// FailWith makes every later Dispatch return err without recording.
func (d *RecordingDispatcher) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Dispatch records msg and the requested delay.
func (d *RecordingDispatcher) Dispatch(ctx context.Context, msg engine.Message, opts ...engine.DispatchOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, Dispatched{Message: msg, Delay: engine.DelayOf(opts...)})
	return nil
}

// Sent returns a copy of everything dispatched so far.
func (d *RecordingDispatcher) Sent() []Dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Dispatched(nil), d.sent...)
}

// Messages returns the dispatched messages without delays.
func (d *RecordingDispatcher) Messages() []engine.Message {
	sent := d.Sent()
	msgs := make([]engine.Message, 0, len(sent))
	for _, s := range sent {
		msgs = append(msgs, s.Message)
	}
	return msgs
}

// Reset forgets everything recorded.
func (d *RecordingDispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = nil
}

// RecordingPublisher is an events.Publisher that keeps every event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewRecordingPublisher creates an empty recorder.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// Publish records event.
func (p *RecordingPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *RecordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

// Names returns the names of published events in order.
func (p *RecordingPublisher) Names() []domain.EventName {
	events := p.Events()
	names := make([]domain.EventName, 0, len(events))
	for _, e := range events {
		names = append(names, e.EventName())
	}
	return names
}

// Reset forgets everything recorded.
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
