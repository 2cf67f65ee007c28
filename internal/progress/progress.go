package progress

import (
	"context"
	"slices"

	"github.com/roach88/testworker/internal/domain"
)

// Repository is the read side of the store that progress is computed from.
// *store.Store satisfies it.
type Repository interface {
	HasJob(ctx context.Context) (bool, error)
	CountSources(ctx context.Context) (int, error)
	CompiledSources(ctx context.Context) ([]string, error)
	NextUncompiledSource(ctx context.Context) (string, bool, error)
	CountTests(ctx context.Context, states ...domain.TestState) (int, error)
	CountWorkerEvents(ctx context.Context, states ...domain.WorkerEventState) (int, error)
	HasWorkerEventOfType(ctx context.Context, scope domain.WorkerEventScope, outcome domain.WorkerEventOutcome) (bool, error)
}

// is evaluates get and reports whether the result is one of states.
func is[S comparable](ctx context.Context, get func(context.Context) (S, error), states []S) (bool, error) {
	current, err := get(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(states, current), nil
}
