package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/testworker/internal/app"
	"github.com/roach88/testworker/internal/callback"
	"github.com/roach88/testworker/internal/compiler"
	"github.com/roach88/testworker/internal/config"
	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/progress"
)

const (
	settleTimeout = 10 * time.Second
	pollInterval  = 5 * time.Millisecond
)

// Run executes a scenario against a fully wired worker and evaluates its
// assertions. An error is returned only when the run itself could not
// complete; failed assertions are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "worker-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg, err := scenarioConfig(dir)
	if err != nil {
		return nil, err
	}

	collector := httptest.NewServer(newCollector(scenario.Collector.Reject))
	defer collector.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(cfg, logger,
		app.WithCompiler(scriptedCompiler(scenario.Compiler)),
		app.WithDelegator(scriptedDelegator(scenario.Delegator)),
	)
	if err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	defer a.Close()

	busCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.RunBus(busCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	if err := submit(a.Handler(), scenario.Job, collector.URL); err != nil {
		return nil, err
	}
	if err := settle(ctx, a); err != nil {
		return nil, err
	}

	result, err := collect(ctx, a)
	if err != nil {
		return nil, err
	}
	result.Errors = checkAssertions(result, scenario.Assertions)
	result.Pass = len(result.Errors) == 0
	return result, nil
}

func scenarioConfig(dir string) (*config.Config, error) {
	cfg, err := config.Load(config.New())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Database = filepath.Join(dir, "worker.db")
	cfg.Compiler.SourceDir = filepath.Join(dir, "source")
	cfg.Compiler.TargetDir = filepath.Join(dir, "tests")
	cfg.Worker.Concurrency = 1
	cfg.Delivery.MaxAttempts = 2
	cfg.Delivery.RetryDelay = 5 * time.Millisecond
	cfg.TimeoutCheckPeriod = time.Hour
	cfg.JobCompletedCheckPeriod = 5 * time.Millisecond
	cfg.Metrics.Enabled = false
	return cfg, nil
}

func submit(h http.Handler, job JobSpec, deliveryURL string) error {
	duration := job.MaximumDuration
	if duration == 0 {
		duration = 600
	}
	body, err := json.Marshal(map[string]any{
		"label":                       job.Label,
		"event_delivery_url":          deliveryURL,
		"maximum_duration_in_seconds": duration,
		"manifest":                    job.Manifest,
		"sources":                     job.Sources,
	})
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/job", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		return fmt.Errorf("submit job: status %d: %s", rec.Code, rec.Body.String())
	}
	return nil
}

// settle waits until the job has ended and every WorkerEvent has reached a
// final delivery state.
func settle(ctx context.Context, a *app.App) error {
	state := progress.NewApplication(a.Store())
	deadline := time.Now().Add(settleTimeout)
	for {
		job, err := a.Store().GetJob(ctx)
		if err != nil {
			return fmt.Errorf("settle: %w", err)
		}
		if job.HasEnded() {
			snap, err := state.Snapshot(ctx)
			if err != nil {
				return fmt.Errorf("settle: %w", err)
			}
			if snap.EventDelivery == progress.EventDeliveryComplete {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return errors.New("scenario did not settle")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func collect(ctx context.Context, a *app.App) (*Result, error) {
	trace, err := a.Store().WorkerEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect events: %w", err)
	}
	tests, err := a.Store().Tests(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect tests: %w", err)
	}
	job, err := a.Store().GetJob(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect job: %w", err)
	}
	snap, err := progress.NewApplication(a.Store()).Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect state: %w", err)
	}
	return &Result{Trace: trace, Tests: tests, EndState: job.EndState, State: snap}, nil
}

type scriptedCompiler map[string]CompileStep

func (c scriptedCompiler) Compile(ctx context.Context, path string) (compiler.Result, error) {
	step := c[path]
	if step.Error != nil {
		return compiler.Result{Output: domain.ErrorOutput(step.Error)}, nil
	}
	manifests := make([]domain.TestManifest, 0, len(step.Tests))
	for _, t := range step.Tests {
		manifests = append(manifests, domain.TestManifest{
			Config:    domain.TestConfiguration{Browser: t.Browser, URL: t.URL},
			Source:    path,
			Target:    t.Target,
			StepNames: t.StepNames,
		})
	}
	return compiler.Result{Manifests: manifests}, nil
}

type scriptedDelegator map[string][]map[string]any

func (d scriptedDelegator) Execute(ctx context.Context, test domain.Test) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		for _, data := range d[test.Target] {
			typ, _ := data["type"].(string)
			if !yield(domain.Document{Type: domain.DocumentType(typ), Data: data}, nil) {
				return
			}
		}
	}
}

// collector accepts every delivery except those for rejected sequence
// numbers.
type collector struct {
	reject []int64
}

func newCollector(reject []int64) *collector {
	return &collector{reject: reject}
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var env callback.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if slices.Contains(c.reject, env.Header.SequenceNumber) {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
