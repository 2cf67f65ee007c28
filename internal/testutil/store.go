package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/store"
)

// JobLabel is the label of the job created by CreateJob.
const JobLabel = "job-1"

// NewStore opens a fresh SQLite store in t.TempDir and closes it on cleanup.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// CreateJob inserts a job created at createdAt with the given test paths,
// also recording each path as a test source.
func CreateJob(t *testing.T, s *store.Store, deliveryURL string, createdAt time.Time, testPaths ...string) domain.Job {
	t.Helper()
	ctx := context.Background()
	job := domain.Job{
		Label:            JobLabel,
		EventDeliveryURL: deliveryURL,
		MaximumDuration:  60,
		TestPaths:        testPaths,
		CreatedAt:        createdAt,
	}
	require.NoError(t, s.CreateJob(ctx, job))
	for _, p := range testPaths {
		require.NoError(t, s.AddSource(ctx, domain.Source{Path: p, Type: domain.SourceTypeTest}))
	}
	job, err := s.GetJob(ctx)
	require.NoError(t, err)
	return job
}

// CreateTest inserts an awaiting test compiled from source.
func CreateTest(t *testing.T, s *store.Store, source string, steps ...string) domain.Test {
	t.Helper()
	test, err := s.CreateTest(context.Background(), domain.Test{
		Browser:   "chrome",
		URL:       "http://shop.test",
		Source:    source,
		Target:    source + ".js",
		StepNames: steps,
	})
	require.NoError(t, err)
	return test
}

// SetTestState moves a test along a legal path to state.
func SetTestState(t *testing.T, s *store.Store, id int64, state domain.TestState) {
	t.Helper()
	ctx := context.Background()
	test, err := s.GetTest(ctx, id)
	require.NoError(t, err)
	if test.State == domain.TestStateAwaiting && state != domain.TestStateCancelled && state != domain.TestStateRunning {
		ok, err := s.SetTestState(ctx, id, domain.TestStateAwaiting, domain.TestStateRunning)
		require.NoError(t, err)
		require.True(t, ok)
		test.State = domain.TestStateRunning
	}
	if test.State == state {
		return
	}
	ok, err := s.SetTestState(ctx, id, test.State, state)
	require.NoError(t, err)
	require.True(t, ok, "test %d: %s -> %s", id, test.State, state)
}

// CreateWorkerEvent inserts an awaiting WorkerEvent of the given type.
func CreateWorkerEvent(t *testing.T, s *store.Store, scope domain.WorkerEventScope, outcome domain.WorkerEventOutcome) domain.WorkerEvent {
	t.Helper()
	e, err := s.CreateWorkerEvent(context.Background(), domain.WorkerEvent{
		Scope:     scope,
		Outcome:   outcome,
		Label:     JobLabel,
		Reference: "ref",
	})
	require.NoError(t, err)
	return e
}

// SetWorkerEventState walks a WorkerEvent from awaiting to state through
// the legal delivery transitions.
func SetWorkerEventState(t *testing.T, s *store.Store, seq int64, state domain.WorkerEventState) {
	t.Helper()
	path := map[domain.WorkerEventState][]domain.WorkerEventState{
		domain.WorkerEventStateAwaiting: nil,
		domain.WorkerEventStateQueued:   {domain.WorkerEventStateQueued},
		domain.WorkerEventStateSending:  {domain.WorkerEventStateQueued, domain.WorkerEventStateSending},
		domain.WorkerEventStateComplete: {domain.WorkerEventStateQueued, domain.WorkerEventStateSending, domain.WorkerEventStateComplete},
		domain.WorkerEventStateFailed:   {domain.WorkerEventStateQueued, domain.WorkerEventStateFailed},
	}[state]

	from := domain.WorkerEventStateAwaiting
	for _, to := range path {
		ok, err := s.CompareAndSetWorkerEventState(context.Background(), seq, from, to)
		require.NoError(t, err)
		require.True(t, ok, "worker event %d: %s -> %s", seq, from, to)
		from = to
	}
}
