package workflow

import (
	"context"

	"github.com/roach88/testworker/internal/domain"
)

// WorkerEventChecker reports whether a WorkerEvent of a type exists.
type WorkerEventChecker interface {
	HasWorkerEventOfType(ctx context.Context, scope domain.WorkerEventScope, outcome domain.WorkerEventOutcome) (bool, error)
}

// TestRepository is the test read side used by the execution lane.
type TestRepository interface {
	WorkerEventChecker
	GetTest(ctx context.Context, id int64) (domain.Test, error)
	NextAwaitingTest(ctx context.Context) (domain.Test, bool, error)
}

// EndStateRepository latches the job end state.
type EndStateRepository interface {
	SetJobEndState(ctx context.Context, state domain.EndState) (bool, error)
}

// TestCancelRepository cancels tests in bulk.
type TestCancelRepository interface {
	CancelTests(ctx context.Context, states ...domain.TestState) (int64, error)
}

// WorkerEventLister lists WorkerEvents by delivery state.
type WorkerEventLister interface {
	WorkerEvents(ctx context.Context, states ...domain.WorkerEventState) ([]domain.WorkerEvent, error)
}

// IntakeRepository is the write side used when a job is submitted.
type IntakeRepository interface {
	HasJob(ctx context.Context) (bool, error)
	CreateJobWithSources(ctx context.Context, job domain.Job, sources []domain.Source) error
}
