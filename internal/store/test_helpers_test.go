package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/testworker/internal/domain"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestJob stores a job with minimal required fields.
func createTestJob(t *testing.T, s *Store, testPaths ...string) domain.Job {
	t.Helper()
	job := domain.Job{
		Label:            "job-1",
		EventDeliveryURL: "http://collector.test/events",
		MaximumDuration:  60,
		TestPaths:        testPaths,
	}
	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob() failed: %v", err)
	}
	return job
}

// createTestTest stores a compiled test for the given source.
func createTestTest(t *testing.T, s *Store, source, target string, steps ...string) domain.Test {
	t.Helper()
	test, err := s.CreateTest(context.Background(), domain.Test{
		Browser:   "chrome",
		URL:       "http://app.test",
		Source:    source,
		Target:    target,
		StepNames: steps,
	})
	if err != nil {
		t.Fatalf("CreateTest() failed: %v", err)
	}
	return test
}

// createTestWorkerEvent stores a WorkerEvent of the given scope/outcome.
func createTestWorkerEvent(t *testing.T, s *Store, scope domain.WorkerEventScope, outcome domain.WorkerEventOutcome) domain.WorkerEvent {
	t.Helper()
	e, err := s.CreateWorkerEvent(context.Background(), domain.WorkerEvent{
		Scope:     scope,
		Outcome:   outcome,
		Label:     "job-1",
		Reference: "ref",
	})
	if err != nil {
		t.Fatalf("CreateWorkerEvent() failed: %v", err)
	}
	return e
}
