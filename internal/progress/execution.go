package progress

import (
	"context"
	"fmt"

	"github.com/roach88/testworker/internal/domain"
)

// ExecutionState is the derived state of the execution lane.
type ExecutionState string

const (
	ExecutionAwaiting  ExecutionState = "awaiting"
	ExecutionRunning   ExecutionState = "running"
	ExecutionComplete  ExecutionState = "complete"
	ExecutionCancelled ExecutionState = "cancelled"
)

// IsFinished reports whether the lane will dispatch no more work.
func (s ExecutionState) IsFinished() bool {
	return s == ExecutionComplete || s == ExecutionCancelled
}

// Execution computes ExecutionState.
type Execution struct {
	repo Repository
}

// NewExecution creates an execution progress calculator.
func NewExecution(repo Repository) *Execution {
	return &Execution{repo: repo}
}

// Get returns the current execution state.
func (e *Execution) Get(ctx context.Context) (ExecutionState, error) {
	unsuccessful, err := e.repo.CountTests(ctx, domain.TestStateFailed, domain.TestStateCancelled)
	if err != nil {
		return "", fmt.Errorf("execution progress: %w", err)
	}
	if unsuccessful > 0 {
		return ExecutionCancelled, nil
	}

	finished, err := e.repo.CountTests(ctx, domain.TestStateComplete, domain.TestStateFailed, domain.TestStateCancelled)
	if err != nil {
		return "", fmt.Errorf("execution progress: %w", err)
	}
	running, err := e.repo.CountTests(ctx, domain.TestStateRunning)
	if err != nil {
		return "", fmt.Errorf("execution progress: %w", err)
	}
	awaiting, err := e.repo.CountTests(ctx, domain.TestStateAwaiting)
	if err != nil {
		return "", fmt.Errorf("execution progress: %w", err)
	}

	switch {
	case finished > 0 && awaiting+running > 0:
		return ExecutionRunning, nil
	case finished > 0:
		return ExecutionComplete, nil
	case running > 0:
		return ExecutionRunning, nil
	default:
		return ExecutionAwaiting, nil
	}
}

// Is reports whether the current state is one of states.
func (e *Execution) Is(ctx context.Context, states ...ExecutionState) (bool, error) {
	return is(ctx, e.Get, states)
}
