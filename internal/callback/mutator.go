package callback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/testworker/internal/domain"
)

// allowedTransitions is the WorkerEvent delivery state machine.
// failed and complete are absorbing.
var allowedTransitions = map[domain.WorkerEventState][]domain.WorkerEventState{
	domain.WorkerEventStateAwaiting: {domain.WorkerEventStateQueued},
	domain.WorkerEventStateQueued:   {domain.WorkerEventStateSending, domain.WorkerEventStateFailed},
	domain.WorkerEventStateSending:  {domain.WorkerEventStateQueued, domain.WorkerEventStateFailed, domain.WorkerEventStateComplete},
}

// CanTransition reports whether from -> to is a legal delivery transition.
func CanTransition(from, to domain.WorkerEventState) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StateRepository is the store surface the Mutator needs.
type StateRepository interface {
	GetWorkerEvent(ctx context.Context, seq int64) (domain.WorkerEvent, error)
	CompareAndSetWorkerEventState(ctx context.Context, seq int64, from, to domain.WorkerEventState) (bool, error)
}

// Mutator applies WorkerEvent delivery-state transitions.
type Mutator struct {
	repo   StateRepository
	logger *slog.Logger
}

// NewMutator creates a Mutator. A nil logger uses slog.Default().
func NewMutator(repo StateRepository, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{repo: repo, logger: logger}
}

// Transition moves the WorkerEvent to the target state if that is legal
// from its current state. Returns the event as stored afterwards and
// whether the state changed. Illegal transitions, and transitions lost to a
// concurrent writer, leave the event untouched and return changed=false.
func (m *Mutator) Transition(ctx context.Context, seq int64, to domain.WorkerEventState) (domain.WorkerEvent, bool, error) {
	e, err := m.repo.GetWorkerEvent(ctx, seq)
	if err != nil {
		return domain.WorkerEvent{}, false, fmt.Errorf("transition worker event %d: %w", seq, err)
	}

	from := e.State
	if !CanTransition(from, to) {
		m.logger.Debug("worker event transition ignored",
			"sequence_number", seq,
			"from", from,
			"to", to,
		)
		return e, false, nil
	}

	changed, err := m.repo.CompareAndSetWorkerEventState(ctx, seq, from, to)
	if err != nil {
		return e, false, fmt.Errorf("transition worker event %d: %w", seq, err)
	}
	if !changed {
		current, err := m.repo.GetWorkerEvent(ctx, seq)
		if err != nil {
			return e, false, fmt.Errorf("transition worker event %d: %w", seq, err)
		}
		return current, false, nil
	}

	e.State = to
	m.logger.Debug("worker event transitioned",
		"sequence_number", seq,
		"from", from,
		"to", to,
	)
	return e, true, nil
}

// Queue moves an event to queued (awaiting -> queued or sending -> queued).
func (m *Mutator) Queue(ctx context.Context, seq int64) (domain.WorkerEvent, bool, error) {
	return m.Transition(ctx, seq, domain.WorkerEventStateQueued)
}

// StartSending moves an event from queued to sending.
func (m *Mutator) StartSending(ctx context.Context, seq int64) (domain.WorkerEvent, bool, error) {
	return m.Transition(ctx, seq, domain.WorkerEventStateSending)
}

// Complete moves an event from sending to complete.
func (m *Mutator) Complete(ctx context.Context, seq int64) (domain.WorkerEvent, bool, error) {
	return m.Transition(ctx, seq, domain.WorkerEventStateComplete)
}

// Fail moves a queued or sending event to failed.
func (m *Mutator) Fail(ctx context.Context, seq int64) (domain.WorkerEvent, bool, error) {
	return m.Transition(ctx, seq, domain.WorkerEventStateFailed)
}
