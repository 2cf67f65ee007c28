package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
	"github.com/roach88/testworker/internal/events"
	"github.com/roach88/testworker/internal/message"
	"github.com/roach88/testworker/internal/store"
)

// Submission is a job with its source bundle.
type Submission struct {
	Label            string
	EventDeliveryURL string
	MaximumDuration  int64
	// Manifest lists the test sources in execution order.
	Manifest []string
	// Sources maps a relative path to file content. Paths not in Manifest
	// are resources available to the compiler.
	Sources map[string]string
}

// SubmissionError reports a submission that cannot be accepted as given.
type SubmissionError struct {
	Path   string
	Reason string
}

func (e *SubmissionError) Error() string {
	if e.Path == "" {
		return "invalid submission: " + e.Reason
	}
	return fmt.Sprintf("invalid submission: %s: %s", e.Path, e.Reason)
}

// IsSubmissionError reports whether err is a *SubmissionError.
func IsSubmissionError(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se)
}

// SourceWriter stores one uploaded source file.
type SourceWriter interface {
	WriteSource(relPath string, content []byte) error
}

// SourceDir writes sources below a directory on disk.
type SourceDir string

// WriteSource writes content to relPath below the directory, creating
// parent directories.
func (d SourceDir) WriteSource(relPath string, content []byte) error {
	full := filepath.Join(string(d), filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("write source %s: %w", relPath, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("write source %s: %w", relPath, err)
	}
	return nil
}

// Intake accepts a submission and starts the job.
type Intake struct {
	mu sync.Mutex

	repo          IntakeRepository
	files         SourceWriter
	bus           engine.Dispatcher
	publisher     events.Publisher
	timeoutPeriod time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// IntakeOption configures an Intake.
type IntakeOption func(*Intake)

// WithIntakeClock overrides the job creation timestamp source.
func WithIntakeClock(now func() time.Time) IntakeOption {
	return func(i *Intake) {
		i.now = now
	}
}

// WithIntakeLogger sets the intake logger.
func WithIntakeLogger(l *slog.Logger) IntakeOption {
	return func(i *Intake) {
		i.logger = l
	}
}

// NewIntake creates an Intake. timeoutPeriod delays the first timeout check.
func NewIntake(repo IntakeRepository, files SourceWriter, bus engine.Dispatcher, publisher events.Publisher, timeoutPeriod time.Duration, opts ...IntakeOption) *Intake {
	i := &Intake{
		repo:          repo,
		files:         files,
		bus:           bus,
		publisher:     publisher,
		timeoutPeriod: timeoutPeriod,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.Default()
	}
	return i
}

// Submit writes the source files, persists the job together with its
// sources, schedules the first timeout check and publishes JobReady.
// Nothing is stored when a file cannot be written, so a failed submission
// can be retried.
//
// Returns a *SubmissionError for malformed bundles and store.ErrJobExists
// when a job was already submitted.
func (i *Intake) Submit(ctx context.Context, sub Submission) (domain.Job, error) {
	if err := validateSubmission(sub); err != nil {
		return domain.Job{}, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	// A rejected submission must not overwrite the accepted job's files.
	exists, err := i.repo.HasJob(ctx)
	if err != nil {
		return domain.Job{}, fmt.Errorf("submit job: %w", err)
	}
	if exists {
		return domain.Job{}, store.ErrJobExists
	}

	sources := orderedSources(sub)
	for _, src := range sources {
		if err := i.files.WriteSource(src.Path, []byte(sub.Sources[src.Path])); err != nil {
			return domain.Job{}, fmt.Errorf("submit job: %w", err)
		}
	}

	job := domain.Job{
		Label:            sub.Label,
		EventDeliveryURL: sub.EventDeliveryURL,
		MaximumDuration:  sub.MaximumDuration,
		TestPaths:        sub.Manifest,
		CreatedAt:        i.now(),
	}
	if err := i.repo.CreateJobWithSources(ctx, job, sources); err != nil {
		if errors.Is(err, store.ErrJobExists) {
			return domain.Job{}, err
		}
		return domain.Job{}, fmt.Errorf("submit job: %w", err)
	}

	i.logger.Info("job submitted",
		"job", job.Label,
		"tests", len(sub.Manifest),
		"sources", len(sub.Sources),
		"maximum_duration", job.MaximumDuration,
	)

	if err := i.bus.Dispatch(ctx, message.CheckTimeout{}, engine.WithDelay(i.timeoutPeriod)); err != nil {
		return job, fmt.Errorf("submit job: schedule timeout check: %w", err)
	}
	if err := i.publisher.Publish(ctx, domain.JobReadyEvent{}); err != nil {
		return job, fmt.Errorf("submit job: %w", err)
	}
	return job, nil
}

func validateSubmission(sub Submission) error {
	if len(sub.Manifest) == 0 {
		return &SubmissionError{Reason: "manifest lists no tests"}
	}
	for p := range sub.Sources {
		if !validSourcePath(p) {
			return &SubmissionError{Path: p, Reason: "source path must be relative and stay inside the bundle"}
		}
	}
	canonical := make(map[string]string, len(sub.Sources))
	for p := range sub.Sources {
		key := norm.NFC.String(p)
		if other, ok := canonical[key]; ok {
			return &SubmissionError{Path: p, Reason: fmt.Sprintf("same file name as %s after unicode normalization", other)}
		}
		canonical[key] = p
	}
	seen := make(map[string]bool, len(sub.Manifest))
	for _, p := range sub.Manifest {
		if _, ok := sub.Sources[p]; !ok {
			return &SubmissionError{Path: p, Reason: "manifest references a missing source"}
		}
		if seen[p] {
			return &SubmissionError{Path: p, Reason: "listed twice in manifest"}
		}
		seen[p] = true
	}
	return nil
}

func validSourcePath(p string) bool {
	if p == "" || strings.Contains(p, `\`) || path.IsAbs(p) {
		return false
	}
	clean := path.Clean(p)
	return clean == p && clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}

// orderedSources lists test sources in manifest order followed by
// resources in lexical order. Ingestion order decides compilation order.
func orderedSources(sub Submission) []domain.Source {
	sources := make([]domain.Source, 0, len(sub.Sources))
	tests := make(map[string]bool, len(sub.Manifest))
	for _, p := range sub.Manifest {
		tests[p] = true
		sources = append(sources, domain.Source{Path: p, Type: domain.SourceTypeTest})
	}

	var resources []string
	for p := range sub.Sources {
		if !tests[p] {
			resources = append(resources, p)
		}
	}
	slices.Sort(resources)
	for _, p := range resources {
		sources = append(sources, domain.Source{Path: p, Type: domain.SourceTypeResource})
	}
	return sources
}
