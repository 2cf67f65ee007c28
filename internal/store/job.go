package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/testworker/internal/domain"
)

// CreateJob inserts the singleton job.
// Returns ErrJobExists if a job has already been created.
func (s *Store) CreateJob(ctx context.Context, job domain.Job) error {
	return createJob(ctx, s.db, job)
}

// CreateJobWithSources inserts the singleton job and its sources in one
// transaction. Either the job and every source are stored, or nothing is.
// Returns ErrJobExists if a job has already been created.
func (s *Store) CreateJobWithSources(ctx context.Context, job domain.Job, sources []domain.Source) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create job: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := createJob(ctx, tx, job); err != nil {
		return err
	}
	for _, src := range sources {
		if err := addSource(ctx, tx, src); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create job: commit: %w", err)
	}
	return nil
}

func createJob(ctx context.Context, ex executor, job domain.Job) error {
	testPaths, err := marshalStrings(job.TestPaths)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := ex.ExecContext(ctx, `
		INSERT INTO jobs
		(id, label, event_delivery_url, maximum_duration, test_paths, end_state, created_at)
		VALUES (1, ?, ?, ?, ?, NULL, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		job.Label,
		job.EventDeliveryURL,
		job.MaximumDuration,
		testPaths,
		createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create job: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobExists
	}

	return nil
}

// GetJob returns the job. Returns ErrNotFound if no job exists.
func (s *Store) GetJob(ctx context.Context) (domain.Job, error) {
	var (
		job       domain.Job
		testPaths string
		endState  sql.NullString
		createdAt int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT label, event_delivery_url, maximum_duration, test_paths, end_state, created_at
		FROM jobs
		WHERE id = 1
	`).Scan(&job.Label, &job.EventDeliveryURL, &job.MaximumDuration, &testPaths, &endState, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, ErrNotFound
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}

	job.TestPaths, err = unmarshalStrings(testPaths)
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}
	if endState.Valid {
		state := domain.EndState(endState.String)
		job.EndState = &state
	}
	job.CreatedAt = time.UnixMilli(createdAt)

	return job, nil
}

// FindJob returns the job and whether it exists.
func (s *Store) FindJob(ctx context.Context) (domain.Job, bool, error) {
	job, err := s.GetJob(ctx)
	if errors.Is(err, ErrNotFound) {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, err
	}
	return job, true, nil
}

// HasJob reports whether a job exists.
func (s *Store) HasJob(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&count); err != nil {
		return false, fmt.Errorf("has job: %w", err)
	}
	return count > 0, nil
}

// SetJobEndState latches the job's end state.
// Only the first call takes effect; later calls return set=false.
func (s *Store) SetJobEndState(ctx context.Context, state domain.EndState) (set bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET end_state = ?
		WHERE id = 1 AND end_state IS NULL
	`, string(state))
	if err != nil {
		return false, fmt.Errorf("set job end state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set job end state: rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
