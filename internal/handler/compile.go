package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/testworker/internal/compiler"
	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
	"github.com/roach88/testworker/internal/events"
	"github.com/roach88/testworker/internal/message"
)

// Compiler compiles one source path.
type Compiler interface {
	Compile(ctx context.Context, path string) (compiler.Result, error)
}

// CompileRepository is the store surface CompileSource needs.
type CompileRepository interface {
	JobFinder
	NextUncompiledSource(ctx context.Context) (string, bool, error)
	CreateTest(ctx context.Context, t domain.Test) (domain.Test, error)
	HasWorkerEventOfType(ctx context.Context, scope domain.WorkerEventScope, outcome domain.WorkerEventOutcome) (bool, error)
}

// CompileSource compiles the next uncompiled test source and records one
// Test per manifest the compiler returns.
type CompileSource struct {
	repo      CompileRepository
	compiler  Compiler
	publisher events.Publisher
	logger    *slog.Logger
}

// NewCompileSource creates the CompileSource handler.
func NewCompileSource(repo CompileRepository, c Compiler, publisher events.Publisher, logger *slog.Logger) *CompileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompileSource{repo: repo, compiler: c, publisher: publisher, logger: logger}
}

// Handle implements engine.Handler.
func (h *CompileSource) Handle(ctx context.Context, msg engine.Message) error {
	if _, ok := msg.(message.CompileSource); !ok {
		return unexpected(msg)
	}

	if _, active, err := activeJob(ctx, h.repo); err != nil || !active {
		return err
	}
	failed, err := h.repo.HasWorkerEventOfType(ctx, domain.ScopeCompilation, domain.OutcomeFailed)
	if err != nil {
		return fmt.Errorf("compile source: %w", err)
	}
	if failed {
		h.logger.Debug("compilation already failed")
		return nil
	}

	source, ok, err := h.repo.NextUncompiledSource(ctx)
	if err != nil {
		return fmt.Errorf("compile source: %w", err)
	}
	if !ok {
		h.logger.Debug("no uncompiled source")
		return nil
	}

	if err := h.publisher.Publish(ctx, domain.SourceCompilationStartedEvent{Source: source}); err != nil {
		return err
	}

	result, err := h.compiler.Compile(ctx, source)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result = compiler.Result{Output: domain.ErrorOutput{"message": err.Error()}}
	}
	if !result.Failed() && len(result.Manifests) == 0 {
		result = compiler.Result{Output: domain.ErrorOutput{"message": "no tests compiled"}}
	}

	if result.Failed() {
		h.logger.Info("source compilation failed", "source", source, "output", result.Output)
		return h.publisher.Publish(ctx, domain.SourceCompilationFailedEvent{Source: source, Output: result.Output})
	}

	for _, m := range result.Manifests {
		test, err := h.repo.CreateTest(ctx, domain.Test{
			Browser:   m.Config.Browser,
			URL:       m.Config.URL,
			Source:    source,
			Target:    m.Target,
			StepNames: m.StepNames,
		})
		if err != nil {
			return engine.Unrecoverable(fmt.Errorf("compile source %s: %w", source, err))
		}
		h.logger.Debug("test created", "test", test.ID, "source", source, "browser", test.Browser, "position", test.Position)
	}

	h.logger.Info("source compiled", "source", source, "tests", len(result.Manifests))
	return h.publisher.Publish(ctx, domain.SourceCompilationPassedEvent{Source: source, Manifests: result.Manifests})
}
