package handler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
	"github.com/roach88/testworker/internal/events"
	"github.com/roach88/testworker/internal/message"
	"github.com/roach88/testworker/internal/store"
)

// Delegator runs one test and streams its documents.
type Delegator interface {
	Execute(ctx context.Context, test domain.Test) iter.Seq2[domain.Document, error]
}

// ExecuteRepository is the store surface ExecuteTest needs.
type ExecuteRepository interface {
	JobFinder
	GetTest(ctx context.Context, id int64) (domain.Test, error)
	SetTestState(ctx context.Context, id int64, from, to domain.TestState) (bool, error)
}

// ExecuteTest runs an awaiting test and turns each streamed document into
// a domain event.
type ExecuteTest struct {
	repo      ExecuteRepository
	delegator Delegator
	publisher events.Publisher
	logger    *slog.Logger
}

// NewExecuteTest creates the ExecuteTest handler.
func NewExecuteTest(repo ExecuteRepository, d Delegator, publisher events.Publisher, logger *slog.Logger) *ExecuteTest {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecuteTest{repo: repo, delegator: d, publisher: publisher, logger: logger}
}

// Handle implements engine.Handler.
func (h *ExecuteTest) Handle(ctx context.Context, msg engine.Message) error {
	m, ok := msg.(message.ExecuteTest)
	if !ok {
		return unexpected(msg)
	}

	if _, active, err := activeJob(ctx, h.repo); err != nil || !active {
		return err
	}

	test, err := h.repo.GetTest(ctx, m.TestID)
	if errors.Is(err, store.ErrNotFound) {
		h.logger.Debug("test not found", "test", m.TestID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("execute test %d: %w", m.TestID, err)
	}
	if test.State != domain.TestStateAwaiting {
		h.logger.Debug("test not awaiting", "test", test.ID, "state", test.State)
		return nil
	}

	started, err := h.repo.SetTestState(ctx, test.ID, domain.TestStateAwaiting, domain.TestStateRunning)
	if err != nil {
		return fmt.Errorf("execute test %d: %w", test.ID, err)
	}
	if !started {
		return nil
	}
	test.State = domain.TestStateRunning
	h.logger.Info("test started", "test", test.ID, "source", test.Source, "browser", test.Browser)

	return h.run(ctx, test)
}

// run consumes the delegator stream. Leaving the loop stops the delegator.
func (h *ExecuteTest) run(ctx context.Context, test domain.Test) error {
	for doc, err := range h.delegator.Execute(ctx, test) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return h.finish(ctx, test, domain.TestStateFailed, domain.TestExceptionEvent{
				Test:     test,
				Document: exceptionDocument(err),
			})
		}

		switch doc.Type {
		case domain.DocumentTypeTest:
			if err := h.publisher.Publish(ctx, domain.TestStartedEvent{Test: test, Document: doc}); err != nil {
				return h.abandon(ctx, test, err)
			}

		case domain.DocumentTypeStep:
			name := doc.StepName()
			if doc.StepStatus() == domain.StepStatusFailed {
				if err := h.publisher.Publish(ctx, domain.StepFailedEvent{Test: test, Document: doc, Name: name}); err != nil {
					return h.abandon(ctx, test, err)
				}
				return h.finish(ctx, test, domain.TestStateFailed, domain.TestFailedEvent{Test: test, Document: doc})
			}
			if err := h.publisher.Publish(ctx, domain.StepPassedEvent{Test: test, Document: doc, Name: name}); err != nil {
				return h.abandon(ctx, test, err)
			}

		case domain.DocumentTypeException:
			return h.finish(ctx, test, domain.TestStateFailed, domain.TestExceptionEvent{Test: test, Document: doc})

		default:
			h.logger.Warn("unknown delegator document", "test", test.ID, "type", doc.Type)
		}

		current, err := h.repo.GetTest(ctx, test.ID)
		if err != nil {
			return h.abandon(ctx, test, fmt.Errorf("execute test %d: %w", test.ID, err))
		}
		if current.State != domain.TestStateRunning {
			h.logger.Info("test interrupted", "test", test.ID, "state", current.State)
			return nil
		}
	}

	return h.finish(ctx, test, domain.TestStateComplete, domain.TestPassedEvent{Test: test})
}

// abandon fails a running test whose stream could not be followed through
// and reports it as an exception. A retry would find the test no longer
// awaiting, so the error is never retried; if the exception cannot be
// published either, the timeout check still ends the job.
func (h *ExecuteTest) abandon(ctx context.Context, test domain.Test, cause error) error {
	h.logger.Error("test abandoned", "test", test.ID, "error", cause)
	err := h.finish(ctx, test, domain.TestStateFailed, domain.TestExceptionEvent{
		Test:     test,
		Document: exceptionDocument(cause),
	})
	return engine.Unrecoverable(errors.Join(cause, err))
}

// finish moves the test out of running and publishes outcome. A test that
// was cancelled meanwhile keeps its state and publishes nothing.
func (h *ExecuteTest) finish(ctx context.Context, test domain.Test, to domain.TestState, outcome domain.Event) error {
	ok, err := h.repo.SetTestState(ctx, test.ID, domain.TestStateRunning, to)
	if err != nil {
		return fmt.Errorf("execute test %d: %w", test.ID, err)
	}
	if !ok {
		h.logger.Info("test interrupted", "test", test.ID)
		return nil
	}

	test.State = to
	h.logger.Info("test finished", "test", test.ID, "state", to, "outcome", outcome.EventName())
	return h.publisher.Publish(ctx, withTest(outcome, test))
}

func withTest(event domain.Event, test domain.Test) domain.Event {
	switch e := event.(type) {
	case domain.TestPassedEvent:
		e.Test = test
		return e
	case domain.TestFailedEvent:
		e.Test = test
		return e
	case domain.TestExceptionEvent:
		e.Test = test
		return e
	}
	return event
}

func exceptionDocument(err error) domain.Document {
	return domain.Document{
		Type: domain.DocumentTypeException,
		Data: map[string]any{
			"type":    string(domain.DocumentTypeException),
			"payload": map[string]any{"message": err.Error()},
		},
	}
}
