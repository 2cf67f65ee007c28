package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBusClosed is returned when dispatching to a stopped bus.
var ErrBusClosed = errors.New("message bus closed")

// Message is a unit of work routed to a handler by name.
type Message interface {
	MessageName() string
}

// Envelope carries a message through the queue.
type Envelope struct {
	ID      string
	Seq     int64
	Message Message
	Attempt int // 1-based
}

// Handler processes one message. A returned error is retried according to
// the bus RetryPolicy unless it is marked Unrecoverable.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Dispatcher enqueues messages. Implemented by *Bus.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message, opts ...DispatchOption) error
}

// Failure describes one failed handling attempt.
type Failure struct {
	Envelope  Envelope
	Err       error
	WillRetry bool
}

// FailureListener is notified after every failed attempt, before any retry
// is scheduled.
type FailureListener func(ctx context.Context, f Failure)

// Observer records handling outcomes, e.g. for metrics.
type Observer interface {
	MessageHandled(name string, duration time.Duration, err error)
}

// RetryPolicy bounds redelivery of failed messages.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay is the wait before the second attempt.
	Delay time.Duration
	// Multiplier scales Delay for every further attempt.
	Multiplier float64
}

// DefaultRetryPolicy is three attempts with 1s, then 2s, between them.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: time.Second, Multiplier: 2}

// Backoff returns the delay before the attempt after the given one.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.Delay) * math.Pow(p.Multiplier, float64(attempt-1)))
}

// ShouldRetry reports whether a message that failed on attempt with err
// gets another attempt.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	return !IsUnrecoverable(err) && attempt < p.MaxAttempts
}

// DispatchOption configures a single dispatch.
type DispatchOption func(*dispatchConfig)

type dispatchConfig struct {
	delay time.Duration
}

// WithDelay holds the message back for d before it becomes available.
func WithDelay(d time.Duration) DispatchOption {
	return func(c *dispatchConfig) {
		c.delay = d
	}
}

// DelayOf resolves the delay requested by opts.
func DelayOf(opts ...DispatchOption) time.Duration {
	var cfg dispatchConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg.delay
}

// Option configures a Bus.
type Option func(*Bus)

// WithConcurrency sets the number of worker goroutines (default 1).
func WithConcurrency(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(b *Bus) {
		b.retry = p
	}
}

// WithIDGenerator replaces the UUIDv7 message ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(b *Bus) {
		b.ids = g
	}
}

// WithLogger sets the bus logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// WithObserver sets an Observer for handling outcomes.
func WithObserver(o Observer) Option {
	return func(b *Bus) {
		b.observer = o
	}
}

// Bus is the asynchronous message bus.
//
// Dispatch is safe from any goroutine, including from inside a handler.
// Workers take the next envelope from a shared FIFO and run its handler to
// completion. Delayed messages and retries sit in timers until they are due.
type Bus struct {
	queue       *messageQueue
	ids         IDGenerator
	retry       RetryPolicy
	concurrency int
	logger      *slog.Logger
	observer    Observer

	handlersMu sync.RWMutex
	handlers   map[string]Handler
	listeners  []FailureListener

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
	stopped  bool
	done     chan struct{}

	// seq stamps envelopes in dispatch order. It is not a WorkerEvent
	// sequence number.
	seq atomic.Int64

	// pending counts envelopes that are queued, delayed or in flight.
	pending atomic.Int64
}

// New creates a Bus. Handlers must be registered before Run.
func New(opts ...Option) *Bus {
	b := &Bus{
		queue:       newMessageQueue(),
		ids:         UUIDv7Generator{},
		retry:       DefaultRetryPolicy,
		concurrency: 1,
		handlers:    make(map[string]Handler),
		timers:      make(map[*time.Timer]struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Register routes messages with the given name to h.
func (b *Bus) Register(name string, h Handler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers[name] = h
}

// OnFailure adds a listener for failed attempts.
func (b *Bus) OnFailure(l FailureListener) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Dispatch enqueues msg, optionally after a delay.
func (b *Bus) Dispatch(ctx context.Context, msg Message, opts ...DispatchOption) error {
	delay := DelayOf(opts...)

	env := Envelope{
		ID:      b.ids.Generate(),
		Seq:     b.seq.Add(1),
		Message: msg,
		Attempt: 1,
	}

	b.logger.Debug("message dispatched",
		"message", msg.MessageName(),
		"id", env.ID,
		"seq", env.Seq,
		"delay", delay,
	)

	return b.schedule(env, delay)
}

// Pending returns the number of messages that are queued, waiting on a
// delay, or being handled.
func (b *Bus) Pending() int64 {
	return b.pending.Load()
}

// schedule enqueues env now or after delay.
func (b *Bus) schedule(env Envelope, delay time.Duration) error {
	b.pending.Add(1)

	if delay <= 0 {
		if !b.queue.Enqueue(env) {
			b.pending.Add(-1)
			return ErrBusClosed
		}
		return nil
	}

	b.timersMu.Lock()
	defer b.timersMu.Unlock()

	if b.stopped {
		b.pending.Add(-1)
		return ErrBusClosed
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		b.timersMu.Lock()
		delete(b.timers, t)
		b.timersMu.Unlock()

		if !b.queue.Enqueue(env) {
			b.pending.Add(-1)
		}
	})
	b.timers[t] = struct{}{}
	return nil
}

// Run starts the worker pool and blocks until ctx is cancelled or Stop is
// called. After Stop, workers drain what is already queued; after
// cancellation they exit once their current message is done. Delayed
// messages are dropped in both cases.
func (b *Bus) Run(ctx context.Context) error {
	b.logger.Info("message bus starting", "concurrency", b.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < b.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			b.work(ctx, worker)
		}(i)
	}

	select {
	case <-ctx.Done():
		b.logger.Info("message bus stopping: context cancelled")
	case <-b.done:
		b.logger.Info("message bus stopping: stopped")
	}

	b.Stop()
	wg.Wait()
	return ctx.Err()
}

// Stop closes the queue and cancels delayed messages.
// Safe to call more than once.
func (b *Bus) Stop() {
	b.timersMu.Lock()
	if !b.stopped {
		b.stopped = true
		close(b.done)
	}
	for t := range b.timers {
		if t.Stop() {
			b.pending.Add(-1)
		}
		delete(b.timers, t)
	}
	b.timersMu.Unlock()

	b.queue.Close()
}

// work is the loop of one pool worker.
func (b *Bus) work(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}

		env, ok := b.queue.TryDequeue()
		if ok {
			b.process(ctx, env)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-b.queue.Wait():
			if b.queue.Drained() {
				b.logger.Debug("bus worker exiting: queue closed", "worker", worker)
				return
			}
		}
	}
}

// process handles one envelope and applies the retry policy.
func (b *Bus) process(ctx context.Context, env Envelope) {
	defer b.pending.Add(-1)

	name := env.Message.MessageName()
	start := time.Now()
	err := b.handle(ctx, env)
	if b.observer != nil {
		b.observer.MessageHandled(name, time.Since(start), err)
	}

	if err == nil {
		b.logger.Debug("message handled",
			"message", name,
			"id", env.ID,
			"attempt", env.Attempt,
		)
		return
	}

	willRetry := b.retry.ShouldRetry(env.Attempt, err)
	b.logger.Error("message handler failed",
		"message", name,
		"id", env.ID,
		"seq", env.Seq,
		"attempt", env.Attempt,
		"will_retry", willRetry,
		"error", err,
	)

	b.handlersMu.RLock()
	listeners := b.listeners
	b.handlersMu.RUnlock()

	failure := Failure{Envelope: env, Err: err, WillRetry: willRetry}
	for _, l := range listeners {
		l(ctx, failure)
	}

	if !willRetry {
		return
	}

	next := env
	next.Attempt++
	if err := b.schedule(next, b.retry.Backoff(env.Attempt)); err != nil {
		b.logger.Warn("retry dropped", "message", name, "id", env.ID, "error", err)
	}
}

func (b *Bus) handle(ctx context.Context, env Envelope) error {
	name := env.Message.MessageName()

	b.handlersMu.RLock()
	h, ok := b.handlers[name]
	b.handlersMu.RUnlock()

	if !ok {
		return NewNoHandlerError(name)
	}
	return h.Handle(ctx, env.Message)
}
