package callback

import (
	"strings"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/reference"
)

// Draft is what an EventHandler derives from a domain event.
// The Factory turns it into a WorkerEvent.
type Draft struct {
	Scope   domain.WorkerEventScope
	Outcome domain.WorkerEventOutcome

	// Label of the WorkerEvent. Empty means the job label.
	Label string

	// Components are hashed with the job label into the reference.
	Components []string

	Payload           map[string]any
	RelatedReferences []domain.ResourceReference
}

// EventHandler maps one family of domain events to WorkerEvents.
type EventHandler interface {
	Handles(event domain.Event) bool
	Draft(job domain.Job, event domain.Event) Draft
}

// DefaultHandlers returns the handler table in registration order.
// sourceDir is stripped from source paths placed in payloads.
func DefaultHandlers(sourceDir string) []EventHandler {
	paths := pathStripper(sourceDir)
	return []EventHandler{
		noPayloadHandler{},
		testStepHandler{paths: paths},
		compilationHandler{paths: paths},
		jobTimeoutHandler{},
	}
}

// pathStripper removes an internal working directory from a path.
type pathStripper string

func (p pathStripper) strip(path string) string {
	dir := strings.TrimSuffix(string(p), "/")
	if dir == "" {
		return path
	}
	return strings.TrimPrefix(path, dir+"/")
}

// noPayloadHandler covers job and execution lifecycle events.
type noPayloadHandler struct{}

var noPayloadTypes = map[domain.EventName]domain.WorkerEventType{
	domain.EventJobReady:           domain.TypeJobStarted,
	domain.EventJobCompiled:        domain.TypeJobCompiled,
	domain.EventExecutionStarted:   domain.TypeExecutionStarted,
	domain.EventExecutionCompleted: domain.TypeExecutionCompleted,
	domain.EventJobCompleted:       domain.TypeJobCompleted,
	domain.EventJobFailed:          domain.TypeJobFailed,
}

func (noPayloadHandler) Handles(event domain.Event) bool {
	_, ok := noPayloadTypes[event.EventName()]
	return ok
}

func (noPayloadHandler) Draft(job domain.Job, event domain.Event) Draft {
	scope, outcome := split(noPayloadTypes[event.EventName()])
	d := Draft{
		Scope:   scope,
		Outcome: outcome,
		Payload: map[string]any{},
	}
	if event.EventName() == domain.EventJobReady {
		d.RelatedReferences = reference.ForTests(job.Label, job.TestPaths)
	}
	return d
}

// testStepHandler covers test and step events streamed from the delegator.
type testStepHandler struct {
	paths pathStripper
}

func (testStepHandler) Handles(event domain.Event) bool {
	switch event.(type) {
	case domain.TestStartedEvent, domain.TestPassedEvent, domain.TestFailedEvent, domain.TestExceptionEvent,
		domain.StepPassedEvent, domain.StepFailedEvent:
		return true
	default:
		return false
	}
}

func (h testStepHandler) Draft(job domain.Job, event domain.Event) Draft {
	switch e := event.(type) {
	case domain.TestStartedEvent:
		return h.test(job, domain.TestEvent(e), domain.OutcomeStarted)
	case domain.TestPassedEvent:
		return h.test(job, domain.TestEvent(e), domain.OutcomePassed)
	case domain.TestFailedEvent:
		return h.test(job, domain.TestEvent(e), domain.OutcomeFailed)
	case domain.TestExceptionEvent:
		return h.test(job, domain.TestEvent(e), domain.OutcomeException)
	case domain.StepPassedEvent:
		return h.step(job, domain.StepEvent(e), domain.OutcomePassed)
	case domain.StepFailedEvent:
		return h.step(job, domain.StepEvent(e), domain.OutcomeFailed)
	}
	return Draft{}
}

func (h testStepHandler) test(job domain.Job, e domain.TestEvent, outcome domain.WorkerEventOutcome) Draft {
	return Draft{
		Scope:      domain.ScopeTest,
		Outcome:    outcome,
		Label:      e.Test.Source,
		Components: []string{e.Test.Source},
		Payload: map[string]any{
			"source":     h.paths.strip(e.Test.Source),
			"document":   documentData(e.Document),
			"step_names": stepNames(e.Test),
		},
		RelatedReferences: reference.ForSteps(job.Label, e.Test.Source, e.Test.StepNames),
	}
}

func (h testStepHandler) step(job domain.Job, e domain.StepEvent, outcome domain.WorkerEventOutcome) Draft {
	return Draft{
		Scope:      domain.ScopeStep,
		Outcome:    outcome,
		Label:      e.Name,
		Components: []string{e.Test.Source, e.Name},
		Payload: map[string]any{
			"source":   h.paths.strip(e.Test.Source),
			"document": documentData(e.Document),
			"name":     e.Name,
		},
		RelatedReferences: reference.ForSteps(job.Label, e.Test.Source, e.Test.StepNames),
	}
}

// compilationHandler covers per-source compilation events.
type compilationHandler struct {
	paths pathStripper
}

func (compilationHandler) Handles(event domain.Event) bool {
	switch event.(type) {
	case domain.SourceCompilationStartedEvent, domain.SourceCompilationPassedEvent, domain.SourceCompilationFailedEvent:
		return true
	default:
		return false
	}
}

func (h compilationHandler) Draft(job domain.Job, event domain.Event) Draft {
	var (
		source  string
		outcome domain.WorkerEventOutcome
		output  domain.ErrorOutput
	)
	switch e := event.(type) {
	case domain.SourceCompilationStartedEvent:
		source, outcome = e.Source, domain.OutcomeStarted
	case domain.SourceCompilationPassedEvent:
		source, outcome = e.Source, domain.OutcomePassed
	case domain.SourceCompilationFailedEvent:
		source, outcome, output = e.Source, domain.OutcomeFailed, e.Output
	}

	payload := map[string]any{"source": h.paths.strip(source)}
	if outcome == domain.OutcomeFailed {
		if output == nil {
			output = domain.ErrorOutput{}
		}
		payload["output"] = map[string]any(output)
	}

	return Draft{
		Scope:      domain.ScopeCompilation,
		Outcome:    outcome,
		Label:      source,
		Components: []string{source},
		Payload:    payload,
	}
}

// jobTimeoutHandler covers the job timing out.
type jobTimeoutHandler struct{}

func (jobTimeoutHandler) Handles(event domain.Event) bool {
	_, ok := event.(domain.JobTimeoutEvent)
	return ok
}

func (jobTimeoutHandler) Draft(job domain.Job, event domain.Event) Draft {
	e := event.(domain.JobTimeoutEvent)
	return Draft{
		Scope:   domain.ScopeJob,
		Outcome: domain.OutcomeTimeOut,
		Payload: map[string]any{
			"maximum_duration_in_seconds": e.MaximumDuration,
		},
	}
}

func split(t domain.WorkerEventType) (domain.WorkerEventScope, domain.WorkerEventOutcome) {
	scope, outcome, _ := strings.Cut(string(t), "/")
	return domain.WorkerEventScope(scope), domain.WorkerEventOutcome(outcome)
}

func documentData(d domain.Document) map[string]any {
	if d.Data == nil {
		return map[string]any{}
	}
	return d.Data
}

func stepNames(t domain.Test) []string {
	if t.StepNames == nil {
		return []string{}
	}
	return t.StepNames
}
