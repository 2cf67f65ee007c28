package progress

import (
	"context"
	"fmt"

	"github.com/roach88/testworker/internal/domain"
)

// CompilationState is the derived state of the compilation lane.
type CompilationState string

const (
	CompilationAwaiting CompilationState = "awaiting"
	CompilationRunning  CompilationState = "running"
	CompilationComplete CompilationState = "complete"
	CompilationFailed   CompilationState = "failed"
)

// IsFinished reports whether the lane will dispatch no more work.
func (s CompilationState) IsFinished() bool {
	return s == CompilationComplete || s == CompilationFailed
}

// Compilation computes CompilationState.
type Compilation struct {
	repo Repository
}

// NewCompilation creates a compilation progress calculator.
func NewCompilation(repo Repository) *Compilation {
	return &Compilation{repo: repo}
}

// Get returns the current compilation state.
// A compilation/failed WorkerEvent takes priority over source coverage.
func (c *Compilation) Get(ctx context.Context) (CompilationState, error) {
	failed, err := c.repo.HasWorkerEventOfType(ctx, domain.ScopeCompilation, domain.OutcomeFailed)
	if err != nil {
		return "", fmt.Errorf("compilation progress: %w", err)
	}
	if failed {
		return CompilationFailed, nil
	}

	compiled, err := c.repo.CompiledSources(ctx)
	if err != nil {
		return "", fmt.Errorf("compilation progress: %w", err)
	}
	_, hasNext, err := c.repo.NextUncompiledSource(ctx)
	if err != nil {
		return "", fmt.Errorf("compilation progress: %w", err)
	}

	switch {
	case hasNext:
		return CompilationRunning, nil
	case len(compiled) == 0:
		return CompilationAwaiting, nil
	default:
		return CompilationComplete, nil
	}
}

// Is reports whether the current state is one of states.
func (c *Compilation) Is(ctx context.Context, states ...CompilationState) (bool, error) {
	return is(ctx, c.Get, states)
}
