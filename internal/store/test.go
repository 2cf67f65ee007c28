package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/testworker/internal/domain"
)

const testColumns = `id, browser, url, source, target, step_names, state, position`

// CreateTest inserts a compiled test in the awaiting state.
// The position is assigned as one past the current highest position, inside
// the insert transaction, so tests are positioned in creation order.
func (s *Store) CreateTest(ctx context.Context, t domain.Test) (domain.Test, error) {
	stepNames, err := marshalStrings(t.StepNames)
	if err != nil {
		return domain.Test{}, fmt.Errorf("create test: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Test{}, fmt.Errorf("create test: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var position int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM tests`).Scan(&position); err != nil {
		return domain.Test{}, fmt.Errorf("create test: next position: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO tests (browser, url, source, target, step_names, state, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		t.Browser,
		t.URL,
		t.Source,
		t.Target,
		stepNames,
		string(domain.TestStateAwaiting),
		position,
	)
	if err != nil {
		return domain.Test{}, fmt.Errorf("create test: insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Test{}, fmt.Errorf("create test: last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Test{}, fmt.Errorf("create test: commit: %w", err)
	}

	t.ID = id
	t.State = domain.TestStateAwaiting
	t.Position = position
	if t.StepNames == nil {
		t.StepNames = []string{}
	}
	return t, nil
}

// GetTest retrieves a test by ID. Returns ErrNotFound if absent.
func (s *Store) GetTest(ctx context.Context, id int64) (domain.Test, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+testColumns+` FROM tests WHERE id = ?`, id)
	t, err := scanTest(row)
	if isNoRows(err) {
		return domain.Test{}, ErrNotFound
	}
	return t, err
}

// Tests returns every test ordered by position.
func (s *Store) Tests(ctx context.Context) ([]domain.Test, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+testColumns+` FROM tests ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()

	tests := []domain.Test{}
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tests: %w", err)
	}

	return tests, nil
}

// NextAwaitingTest returns the awaiting test with the lowest position.
func (s *Store) NextAwaitingTest(ctx context.Context) (domain.Test, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+testColumns+` FROM tests
		WHERE state = ?
		ORDER BY position ASC
		LIMIT 1
	`, string(domain.TestStateAwaiting))

	t, err := scanTest(row)
	if isNoRows(err) {
		return domain.Test{}, false, nil
	}
	if err != nil {
		return domain.Test{}, false, err
	}
	return t, true, nil
}

// CompiledSources returns the distinct source paths that have at least one
// compiled test.
func (s *Store) CompiledSources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source FROM tests GROUP BY source ORDER BY MIN(position) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query compiled sources: %w", err)
	}
	defer rows.Close()

	sources := []string{}
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("scan compiled source: %w", err)
		}
		sources = append(sources, source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compiled sources: %w", err)
	}

	return sources, nil
}

// CountTests returns the number of tests, optionally filtered by state.
func (s *Store) CountTests(ctx context.Context, states ...domain.TestState) (int, error) {
	query := `SELECT COUNT(*) FROM tests`
	var args []any
	if len(states) > 0 {
		var placeholders string
		placeholders, args = inClause(states)
		query += ` WHERE state IN (` + placeholders + `)`
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tests: %w", err)
	}
	return count, nil
}

// SetTestState moves a test from one state to another.
// The update is compare-and-set: it applies only if the test is currently in
// from and the transition is legal. Returns whether the state changed.
func (s *Store) SetTestState(ctx context.Context, id int64, from, to domain.TestState) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, nil
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tests SET state = ? WHERE id = ? AND state = ?
	`, string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("set test %d state: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set test %d state: rows affected: %w", id, err)
	}
	return rowsAffected > 0, nil
}

// CancelTests moves every test in one of the given states to cancelled.
// Only awaiting and running tests can be cancelled; other states are ignored.
// Returns the number of tests cancelled.
func (s *Store) CancelTests(ctx context.Context, states ...domain.TestState) (int64, error) {
	var cancellable []domain.TestState
	for _, state := range states {
		if state.CanTransitionTo(domain.TestStateCancelled) {
			cancellable = append(cancellable, state)
		}
	}
	if len(cancellable) == 0 {
		return 0, nil
	}

	placeholders, args := inClause(cancellable)
	args = append([]any{string(domain.TestStateCancelled)}, args...)

	result, err := s.db.ExecContext(ctx, `UPDATE tests SET state = ? WHERE state IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("cancel tests: %w", err)
	}

	return result.RowsAffected()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTest(row rowScanner) (domain.Test, error) {
	var (
		t         domain.Test
		stepNames string
		state     string
	)

	if err := row.Scan(&t.ID, &t.Browser, &t.URL, &t.Source, &t.Target, &stepNames, &state, &t.Position); err != nil {
		if err == sql.ErrNoRows {
			return domain.Test{}, err
		}
		return domain.Test{}, fmt.Errorf("scan test: %w", err)
	}

	names, err := unmarshalStrings(stepNames)
	if err != nil {
		return domain.Test{}, fmt.Errorf("scan test %d: %w", t.ID, err)
	}
	t.StepNames = names
	t.State = domain.TestState(state)

	return t, nil
}
