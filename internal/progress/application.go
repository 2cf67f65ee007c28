package progress

import (
	"context"
	"fmt"

	"github.com/roach88/testworker/internal/domain"
)

// ApplicationState is the top-level state reported to pollers.
type ApplicationState string

const (
	ApplicationAwaitingJob             ApplicationState = "awaiting_job"
	ApplicationTimedOut                ApplicationState = "timed_out"
	ApplicationAwaitingSources         ApplicationState = "awaiting_sources"
	ApplicationCompiling               ApplicationState = "compiling"
	ApplicationExecuting               ApplicationState = "executing"
	ApplicationCompletingEventDelivery ApplicationState = "completing_event_delivery"
	ApplicationComplete                ApplicationState = "complete"
)

// ApplicationStates lists every application state in priority order.
var ApplicationStates = []ApplicationState{
	ApplicationAwaitingJob,
	ApplicationTimedOut,
	ApplicationAwaitingSources,
	ApplicationCompiling,
	ApplicationExecuting,
	ApplicationCompletingEventDelivery,
	ApplicationComplete,
}

// Application composes the lane calculators into one state.
type Application struct {
	repo          Repository
	compilation   *Compilation
	execution     *Execution
	eventDelivery *EventDelivery
}

// NewApplication creates an application progress calculator and the lane
// calculators it depends on.
func NewApplication(repo Repository) *Application {
	return &Application{
		repo:          repo,
		compilation:   NewCompilation(repo),
		execution:     NewExecution(repo),
		eventDelivery: NewEventDelivery(repo),
	}
}

// Compilation returns the compilation calculator.
func (a *Application) Compilation() *Compilation { return a.compilation }

// Execution returns the execution calculator.
func (a *Application) Execution() *Execution { return a.execution }

// EventDelivery returns the event delivery calculator.
func (a *Application) EventDelivery() *EventDelivery { return a.eventDelivery }

// Get returns the current application state. The first matching rule wins,
// so a timed-out job reports timed_out even with undelivered events.
func (a *Application) Get(ctx context.Context) (ApplicationState, error) {
	hasJob, err := a.repo.HasJob(ctx)
	if err != nil {
		return "", fmt.Errorf("application progress: %w", err)
	}
	if !hasJob {
		return ApplicationAwaitingJob, nil
	}

	timedOut, err := a.repo.HasWorkerEventOfType(ctx, domain.ScopeJob, domain.OutcomeTimeOut)
	if err != nil {
		return "", fmt.Errorf("application progress: %w", err)
	}
	if timedOut {
		return ApplicationTimedOut, nil
	}

	sources, err := a.repo.CountSources(ctx)
	if err != nil {
		return "", fmt.Errorf("application progress: %w", err)
	}
	if sources == 0 {
		return ApplicationAwaitingSources, nil
	}

	compilation, err := a.compilation.Get(ctx)
	if err != nil {
		return "", err
	}
	if !compilation.IsFinished() {
		return ApplicationCompiling, nil
	}

	execution, err := a.execution.Get(ctx)
	if err != nil {
		return "", err
	}
	if !execution.IsFinished() {
		return ApplicationExecuting, nil
	}

	delivery, err := a.eventDelivery.Get(ctx)
	if err != nil {
		return "", err
	}
	if delivery != EventDeliveryComplete {
		return ApplicationCompletingEventDelivery, nil
	}

	return ApplicationComplete, nil
}

// Is reports whether the current state is one of states.
func (a *Application) Is(ctx context.Context, states ...ApplicationState) (bool, error) {
	return is(ctx, a.Get, states)
}

// Snapshot is every progress state at one point in time.
type Snapshot struct {
	Application   ApplicationState   `json:"application"`
	Compilation   CompilationState   `json:"compilation"`
	Execution     ExecutionState     `json:"execution"`
	EventDelivery EventDeliveryState `json:"event_delivery"`
}

// Snapshot computes all four states.
func (a *Application) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if snap.Application, err = a.Get(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Compilation, err = a.compilation.Get(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Execution, err = a.execution.Get(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.EventDelivery, err = a.eventDelivery.Get(ctx); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
