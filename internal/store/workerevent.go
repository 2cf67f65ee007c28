package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/testworker/internal/domain"
)

const workerEventColumns = `sequence_number, scope, outcome, label, reference, related_references, payload, state`

// CreateWorkerEvent persists a new WorkerEvent in the awaiting state.
// The sequence number is one past the current highest and is assigned in the
// same transaction as the insert, so numbers are monotonic and gap-free.
func (s *Store) CreateWorkerEvent(ctx context.Context, e domain.WorkerEvent) (domain.WorkerEvent, error) {
	payload, err := marshalPayload(e.Payload)
	if err != nil {
		return domain.WorkerEvent{}, fmt.Errorf("create worker event: %w", err)
	}
	related, err := marshalReferences(e.RelatedReferences)
	if err != nil {
		return domain.WorkerEvent{}, fmt.Errorf("create worker event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkerEvent{}, fmt.Errorf("create worker event: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM worker_events`).Scan(&seq); err != nil {
		return domain.WorkerEvent{}, fmt.Errorf("create worker event: next sequence number: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO worker_events
		(sequence_number, scope, outcome, label, reference, related_references, payload, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		seq,
		string(e.Scope),
		string(e.Outcome),
		e.Label,
		e.Reference,
		related,
		payload,
		string(domain.WorkerEventStateAwaiting),
	)
	if err != nil {
		return domain.WorkerEvent{}, fmt.Errorf("create worker event: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.WorkerEvent{}, fmt.Errorf("create worker event: commit: %w", err)
	}

	e.SequenceNumber = seq
	e.State = domain.WorkerEventStateAwaiting
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	if len(e.RelatedReferences) == 0 {
		e.RelatedReferences = nil
	}
	return e, nil
}

// GetWorkerEvent retrieves a WorkerEvent by sequence number.
// Returns ErrNotFound if absent.
func (s *Store) GetWorkerEvent(ctx context.Context, seq int64) (domain.WorkerEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+workerEventColumns+` FROM worker_events WHERE sequence_number = ?
	`, seq)
	e, err := scanWorkerEvent(row)
	if isNoRows(err) {
		return domain.WorkerEvent{}, ErrNotFound
	}
	return e, err
}

// WorkerEvents returns WorkerEvents ordered by sequence number, optionally
// filtered by delivery state.
func (s *Store) WorkerEvents(ctx context.Context, states ...domain.WorkerEventState) ([]domain.WorkerEvent, error) {
	query := `SELECT ` + workerEventColumns + ` FROM worker_events`
	var args []any
	if len(states) > 0 {
		var placeholders string
		placeholders, args = inClause(states)
		query += ` WHERE state IN (` + placeholders + `)`
	}
	query += ` ORDER BY sequence_number ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query worker events: %w", err)
	}
	defer rows.Close()

	events := []domain.WorkerEvent{}
	for rows.Next() {
		e, err := scanWorkerEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate worker events: %w", err)
	}

	return events, nil
}

// SequenceNumbers returns every WorkerEvent sequence number in order.
func (s *Store) SequenceNumbers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sequence_number FROM worker_events ORDER BY sequence_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("query sequence numbers: %w", err)
	}
	defer rows.Close()

	seqs := []int64{}
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, fmt.Errorf("scan sequence number: %w", err)
		}
		seqs = append(seqs, seq)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sequence numbers: %w", err)
	}

	return seqs, nil
}

// CountWorkerEvents returns the number of WorkerEvents, optionally filtered
// by delivery state.
func (s *Store) CountWorkerEvents(ctx context.Context, states ...domain.WorkerEventState) (int, error) {
	query := `SELECT COUNT(*) FROM worker_events`
	var args []any
	if len(states) > 0 {
		var placeholders string
		placeholders, args = inClause(states)
		query += ` WHERE state IN (` + placeholders + `)`
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count worker events: %w", err)
	}
	return count, nil
}

// CountWorkerEventsOfType returns the number of WorkerEvents with the given
// scope and outcome.
func (s *Store) CountWorkerEventsOfType(ctx context.Context, scope domain.WorkerEventScope, outcome domain.WorkerEventOutcome) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM worker_events WHERE scope = ? AND outcome = ?
	`, string(scope), string(outcome)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s/%s worker events: %w", scope, outcome, err)
	}
	return count, nil
}

// HasWorkerEventOfType reports whether any WorkerEvent with the given scope
// and outcome exists.
func (s *Store) HasWorkerEventOfType(ctx context.Context, scope domain.WorkerEventScope, outcome domain.WorkerEventOutcome) (bool, error) {
	count, err := s.CountWorkerEventsOfType(ctx, scope, outcome)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CompareAndSetWorkerEventState moves a WorkerEvent from one delivery state
// to another. Applies only when the stored state equals from.
// Returns whether the row changed.
func (s *Store) CompareAndSetWorkerEventState(ctx context.Context, seq int64, from, to domain.WorkerEventState) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE worker_events SET state = ?
		WHERE sequence_number = ? AND state = ?
	`, string(to), seq, string(from))
	if err != nil {
		return false, fmt.Errorf("set worker event %d state: %w", seq, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set worker event %d state: rows affected: %w", seq, err)
	}
	return rowsAffected > 0, nil
}

func scanWorkerEvent(row rowScanner) (domain.WorkerEvent, error) {
	var (
		e       domain.WorkerEvent
		scope   string
		outcome string
		related string
		payload string
		state   string
	)

	err := row.Scan(&e.SequenceNumber, &scope, &outcome, &e.Label, &e.Reference, &related, &payload, &state)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.WorkerEvent{}, err
		}
		return domain.WorkerEvent{}, fmt.Errorf("scan worker event: %w", err)
	}

	e.Scope = domain.WorkerEventScope(scope)
	e.Outcome = domain.WorkerEventOutcome(outcome)
	e.State = domain.WorkerEventState(state)

	if e.RelatedReferences, err = unmarshalReferences(related); err != nil {
		return domain.WorkerEvent{}, fmt.Errorf("scan worker event %d: %w", e.SequenceNumber, err)
	}
	if e.Payload, err = unmarshalPayload(payload); err != nil {
		return domain.WorkerEvent{}, fmt.Errorf("scan worker event %d: %w", e.SequenceNumber, err)
	}

	return e, nil
}
