package handler

import (
	"context"
	"fmt"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
)

// JobFinder loads the singleton job.
type JobFinder interface {
	FindJob(ctx context.Context) (domain.Job, bool, error)
}

// activeJob returns the job if it exists and has not reached an end state.
func activeJob(ctx context.Context, jobs JobFinder) (domain.Job, bool, error) {
	job, ok, err := jobs.FindJob(ctx)
	if err != nil || !ok {
		return job, false, err
	}
	return job, !job.HasEnded(), nil
}

// unexpected reports a message routed to the wrong handler.
func unexpected(msg engine.Message) error {
	return engine.Unrecoverable(fmt.Errorf("unexpected message %T", msg))
}
