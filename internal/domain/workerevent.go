package domain

// WorkerEventScope is the subject of a WorkerEvent.
type WorkerEventScope string

const (
	ScopeJob         WorkerEventScope = "job"
	ScopeCompilation WorkerEventScope = "compilation"
	ScopeExecution   WorkerEventScope = "execution"
	ScopeTest        WorkerEventScope = "test"
	ScopeStep        WorkerEventScope = "step"
)

// WorkerEventOutcome is the result reported by a WorkerEvent.
type WorkerEventOutcome string

const (
	OutcomeStarted   WorkerEventOutcome = "started"
	OutcomePassed    WorkerEventOutcome = "passed"
	OutcomeFailed    WorkerEventOutcome = "failed"
	OutcomeException WorkerEventOutcome = "exception"
	OutcomeCompiled  WorkerEventOutcome = "compiled"
	OutcomeCompleted WorkerEventOutcome = "completed"
	OutcomeTimeOut   WorkerEventOutcome = "time_out"
)

// WorkerEventType is the flat "scope/outcome" classification.
type WorkerEventType string

// TypeOf builds the flat type for a scope/outcome pair.
func TypeOf(scope WorkerEventScope, outcome WorkerEventOutcome) WorkerEventType {
	return WorkerEventType(string(scope) + "/" + string(outcome))
}

const (
	TypeJobStarted         WorkerEventType = "job/started"
	TypeJobCompiled        WorkerEventType = "job/compiled"
	TypeJobCompleted       WorkerEventType = "job/completed"
	TypeJobFailed          WorkerEventType = "job/failed"
	TypeJobTimeOut         WorkerEventType = "job/time_out"
	TypeCompilationStarted WorkerEventType = "compilation/started"
	TypeCompilationPassed  WorkerEventType = "compilation/passed"
	TypeCompilationFailed  WorkerEventType = "compilation/failed"
	TypeExecutionStarted   WorkerEventType = "execution/started"
	TypeExecutionCompleted WorkerEventType = "execution/completed"
	TypeTestStarted        WorkerEventType = "test/started"
	TypeTestPassed         WorkerEventType = "test/passed"
	TypeTestFailed         WorkerEventType = "test/failed"
	TypeTestException      WorkerEventType = "test/exception"
	TypeStepPassed         WorkerEventType = "step/passed"
	TypeStepFailed         WorkerEventType = "step/failed"
)

// WorkerEventState is the delivery state of a WorkerEvent.
type WorkerEventState string

const (
	WorkerEventStateAwaiting WorkerEventState = "awaiting"
	WorkerEventStateQueued   WorkerEventState = "queued"
	WorkerEventStateSending  WorkerEventState = "sending"
	WorkerEventStateFailed   WorkerEventState = "failed"
	WorkerEventStateComplete WorkerEventState = "complete"
)

// IsFinished reports whether the state is absorbing.
func (s WorkerEventState) IsFinished() bool {
	return s == WorkerEventStateFailed || s == WorkerEventStateComplete
}

// ResourceReference is a label paired with its content-addressed reference.
type ResourceReference struct {
	Label     string `json:"label"`
	Reference string `json:"reference"`
}

// WorkerEvent is a persisted, externally deliverable record of one
// lifecycle occurrence.
type WorkerEvent struct {
	SequenceNumber    int64               `json:"sequence_number"`
	Scope             WorkerEventScope    `json:"scope"`
	Outcome           WorkerEventOutcome  `json:"outcome"`
	Label             string              `json:"label"`
	Reference         string              `json:"reference"`
	RelatedReferences []ResourceReference `json:"related_references,omitempty"`
	Payload           map[string]any      `json:"payload"`
	State             WorkerEventState    `json:"state"`
}

// Type returns the flat scope/outcome type.
func (e WorkerEvent) Type() WorkerEventType {
	return TypeOf(e.Scope, e.Outcome)
}
