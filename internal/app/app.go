// Package app assembles the worker: store, message bus, event dispatcher,
// workflow lanes, message handlers and the inbound API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/roach88/testworker/internal/api"
	"github.com/roach88/testworker/internal/callback"
	"github.com/roach88/testworker/internal/compiler"
	"github.com/roach88/testworker/internal/config"
	"github.com/roach88/testworker/internal/delegator"
	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
	"github.com/roach88/testworker/internal/events"
	"github.com/roach88/testworker/internal/handler"
	"github.com/roach88/testworker/internal/message"
	"github.com/roach88/testworker/internal/metrics"
	"github.com/roach88/testworker/internal/progress"
	"github.com/roach88/testworker/internal/store"
	"github.com/roach88/testworker/internal/workflow"
)

// App is a fully wired worker.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store   *store.Store
	bus     *engine.Bus
	events  *events.Dispatcher
	metrics *metrics.Collector
	intake  *workflow.Intake
	server  *api.Server

	compiler  handler.Compiler
	delegator handler.Delegator
	now       func() time.Time
}

// Option configures an App.
type Option func(*App)

// WithCompiler replaces the compiler process.
func WithCompiler(c handler.Compiler) Option {
	return func(a *App) {
		a.compiler = c
	}
}

// WithDelegator replaces the delegator process.
func WithDelegator(d handler.Delegator) Option {
	return func(a *App) {
		a.delegator = d
	}
}

// WithClock sets the time source used for job creation and timeouts.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// New opens the store and wires every component. Close releases the store.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	if a.compiler == nil {
		a.compiler = compiler.NewProcess(cfg.Compiler.Binary, cfg.Compiler.SourceDir, cfg.Compiler.TargetDir, logger)
	}
	if a.delegator == nil {
		a.delegator = delegator.NewProcess(cfg.Delegator.Binary, logger)
	}

	s, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = s

	if err := a.wire(); err != nil {
		s.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	cfg := a.cfg
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	app := progress.NewApplication(a.store)
	a.metrics = metrics.NewCollector(app, a.logger)
	a.events = events.NewDispatcher(a.logger)
	a.bus = engine.New(
		engine.WithConcurrency(cfg.Worker.Concurrency),
		engine.WithRetryPolicy(engine.RetryPolicy{
			MaxAttempts: cfg.Delivery.MaxAttempts,
			Delay:       cfg.Delivery.RetryDelay,
			Multiplier:  cfg.Delivery.RetryMultiplier,
		}),
		engine.WithLogger(a.logger),
		engine.WithObserver(a.metrics),
	)
	a.bus.OnFailure(a.publishFailure)

	mutator := callback.NewMutator(a.store, a.logger)
	factory := callback.NewFactory(a.store, a.events,
		callback.WithHandlers(callback.DefaultHandlers(cfg.Compiler.SourceDir)...),
		callback.WithCreationObserver(a.metrics),
		callback.WithFactoryLogger(a.logger),
	)
	sender := callback.NewSender(a.store,
		callback.WithHTTPClient(&http.Client{Timeout: cfg.Delivery.Timeout}),
		callback.WithDeliveryObserver(a.metrics),
		callback.WithSenderLogger(a.logger),
	)

	c := components{
		factory:      factory,
		compilation:  workflow.NewCompilationLane(app.Compilation(), a.store, a.bus, a.events, a.logger),
		execution:    workflow.NewExecutionLane(app.Execution(), a.store, a.bus, a.events, a.logger),
		application:  workflow.NewApplicationLane(a.store, a.bus, a.events, cfg.JobCompletedCheckPeriod, a.logger),
		delivery:     workflow.NewDeliveryLane(mutator, a.bus, a.logger),
		endState:     workflow.NewEndStateSetter(a.store, a.events, a.logger),
		failures:     workflow.NewMessageFailureSubscriber(mutator, a.logger),
		canceller:    workflow.NewTestCanceller(a.store, a.logger),
		eventAborter: workflow.NewEventAborter(a.store, mutator, a.logger),
	}
	for _, s := range subscriptions(c) {
		a.events.Subscribe(s.event, s.name, s.subscriber)
	}

	a.bus.Register(message.NameCompileSource, handler.NewCompileSource(a.store, a.compiler, a.events, a.logger))
	a.bus.Register(message.NameExecuteTest, handler.NewExecuteTest(a.store, a.delegator, a.events, a.logger))
	a.bus.Register(message.NameDeliverEvent, handler.NewDeliverEvent(mutator, sender, a.logger))
	a.bus.Register(message.NameCheckTimeout,
		handler.NewCheckTimeout(a.store, a.bus, a.events, cfg.TimeoutCheckPeriod, a.now, a.logger))
	a.bus.Register(message.NameCheckJobCompleted,
		handler.NewCheckJobCompleted(a.store, app, a.bus, a.events, cfg.JobCompletedCheckPeriod, a.logger))

	a.intake = workflow.NewIntake(a.store, workflow.SourceDir(cfg.Compiler.SourceDir), a.bus, a.events, cfg.TimeoutCheckPeriod,
		workflow.WithIntakeClock(a.now),
		workflow.WithIntakeLogger(a.logger),
	)

	serverOpts := []api.Option{
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
		api.WithLogger(a.logger),
	}
	if cfg.Metrics.Enabled {
		serverOpts = append(serverOpts, api.WithMetricsHandler(a.metrics.Handler()))
	}
	server, err := api.NewServer(a.intake, a.store, app, mutator, serverOpts...)
	if err != nil {
		return fmt.Errorf("build api: %w", err)
	}
	a.server = server
	return nil
}

// publishFailure turns a failed bus attempt into a MessageFailed event.
func (a *App) publishFailure(ctx context.Context, f engine.Failure) {
	event := domain.MessageFailedEvent{
		MessageName: f.Envelope.Message.MessageName(),
		Message:     f.Envelope.Message,
		Err:         f.Err,
		Attempt:     f.Envelope.Attempt,
		WillRetry:   f.WillRetry,
	}
	if err := a.events.Publish(ctx, event); err != nil {
		a.logger.Error("publish message failure",
			"message", event.MessageName,
			"attempt", event.Attempt,
			"error", err,
		)
	}
}

// Handler returns the inbound API handler.
func (a *App) Handler() http.Handler {
	return a.server
}

// Intake returns the job intake.
func (a *App) Intake() *workflow.Intake {
	return a.intake
}

// Store returns the repository.
func (a *App) Store() *store.Store {
	return a.store
}

// Bus returns the message bus.
func (a *App) Bus() *engine.Bus {
	return a.bus
}

// Events returns the domain event dispatcher.
func (a *App) Events() *events.Dispatcher {
	return a.events
}

// RunBus processes messages until ctx is cancelled.
func (a *App) RunBus(ctx context.Context) error {
	if err := a.bus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Run serves the API and processes messages until ctx is cancelled or
// either stops with an error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	go func() { errs <- a.RunBus(ctx) }()
	go func() { errs <- a.server.Run(ctx, a.cfg.Listen) }()

	// The first to return stops the other.
	first := <-errs
	cancel()
	second := <-errs
	return errors.Join(first, second)
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}
