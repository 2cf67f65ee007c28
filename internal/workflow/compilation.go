package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
	"github.com/roach88/testworker/internal/events"
	"github.com/roach88/testworker/internal/message"
	"github.com/roach88/testworker/internal/progress"
)

// CompilationLane compiles test sources one at a time.
//
// Subscribed to JobReady and SourceCompilationPassed. While compilation is
// unfinished it dispatches CompileSource; the handler picks the next
// uncompiled source itself. Once compilation is complete it emits
// JobCompiled, exactly once.
type CompilationLane struct {
	progress  *progress.Compilation
	checker   WorkerEventChecker
	bus       engine.Dispatcher
	publisher events.Publisher
	logger    *slog.Logger
}

// NewCompilationLane creates the compilation lane.
func NewCompilationLane(p *progress.Compilation, checker WorkerEventChecker, bus engine.Dispatcher, publisher events.Publisher, logger *slog.Logger) *CompilationLane {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompilationLane{
		progress:  p,
		checker:   checker,
		bus:       bus,
		publisher: publisher,
		logger:    logger,
	}
}

// Handle implements events.Subscriber.
func (l *CompilationLane) Handle(ctx context.Context, event domain.Event) error {
	switch event.(type) {
	case domain.JobReadyEvent, domain.SourceCompilationPassedEvent:
	default:
		return nil
	}

	state, err := l.progress.Get(ctx)
	if err != nil {
		return fmt.Errorf("compilation lane: %w", err)
	}

	switch state {
	case progress.CompilationFailed:
		l.logger.Debug("compilation failed, nothing to dispatch", "trigger", event.EventName())
		return nil
	case progress.CompilationComplete:
		return l.emitCompiled(ctx)
	}

	if err := l.bus.Dispatch(ctx, message.CompileSource{}); err != nil {
		return fmt.Errorf("compilation lane: dispatch: %w", err)
	}
	l.logger.Debug("compile source dispatched", "trigger", event.EventName(), "compilation", state)
	return nil
}

func (l *CompilationLane) emitCompiled(ctx context.Context) error {
	done, err := l.checker.HasWorkerEventOfType(ctx, domain.ScopeJob, domain.OutcomeCompiled)
	if err != nil {
		return fmt.Errorf("compilation lane: %w", err)
	}
	if done {
		return nil
	}

	l.logger.Info("job compiled")
	return l.publisher.Publish(ctx, domain.JobCompiledEvent{})
}
