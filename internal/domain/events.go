package domain

// EventName identifies a domain event kind.
type EventName string

const (
	EventJobReady                 EventName = "job.ready"
	EventJobCompiled              EventName = "job.compiled"
	EventJobCompleted             EventName = "job.completed"
	EventJobFailed                EventName = "job.failed"
	EventJobTimeout               EventName = "job.timeout"
	EventJobEndStateChanged       EventName = "job.end_state_changed"
	EventExecutionStarted         EventName = "execution.started"
	EventExecutionCompleted       EventName = "execution.completed"
	EventSourceCompilationStarted EventName = "source_compilation.started"
	EventSourceCompilationPassed  EventName = "source_compilation.passed"
	EventSourceCompilationFailed  EventName = "source_compilation.failed"
	EventTestStarted              EventName = "test.started"
	EventTestPassed               EventName = "test.passed"
	EventTestFailed               EventName = "test.failed"
	EventTestException            EventName = "test.exception"
	EventStepPassed               EventName = "step.passed"
	EventStepFailed               EventName = "step.failed"
	EventWorkerEventCreated       EventName = "worker_event.created"
	EventMessageFailed            EventName = "message.failed"
)

// Event is a domain event carried by the in-process dispatcher.
type Event interface {
	EventName() EventName
}

// JobReadyEvent signals that the job and its sources have been stored.
type JobReadyEvent struct{}

func (JobReadyEvent) EventName() EventName { return EventJobReady }

// JobCompiledEvent signals that every test source has compiled.
type JobCompiledEvent struct{}

func (JobCompiledEvent) EventName() EventName { return EventJobCompiled }

// JobCompletedEvent signals that the whole job has finished successfully.
type JobCompletedEvent struct{}

func (JobCompletedEvent) EventName() EventName { return EventJobCompleted }

// JobFailedEvent signals that the job can no longer succeed.
type JobFailedEvent struct{}

func (JobFailedEvent) EventName() EventName { return EventJobFailed }

// JobTimeoutEvent signals that the job exceeded its maximum duration.
type JobTimeoutEvent struct {
	MaximumDuration int64
}

func (JobTimeoutEvent) EventName() EventName { return EventJobTimeout }

// JobEndStateChangedEvent is emitted once the job's end state is latched.
type JobEndStateChangedEvent struct {
	EndState EndState
}

func (JobEndStateChangedEvent) EventName() EventName { return EventJobEndStateChanged }

// ExecutionStartedEvent signals that the first test has been dispatched.
type ExecutionStartedEvent struct{}

func (ExecutionStartedEvent) EventName() EventName { return EventExecutionStarted }

// ExecutionCompletedEvent signals that every test has finished.
type ExecutionCompletedEvent struct{}

func (ExecutionCompletedEvent) EventName() EventName { return EventExecutionCompleted }

// SourceCompilationStartedEvent is emitted before a source is compiled.
type SourceCompilationStartedEvent struct {
	Source string
}

func (SourceCompilationStartedEvent) EventName() EventName { return EventSourceCompilationStarted }

// SourceCompilationPassedEvent carries the manifests a source compiled to.
type SourceCompilationPassedEvent struct {
	Source    string
	Manifests []TestManifest
}

func (SourceCompilationPassedEvent) EventName() EventName { return EventSourceCompilationPassed }

// SourceCompilationFailedEvent carries the compiler's error output.
type SourceCompilationFailedEvent struct {
	Source string
	Output ErrorOutput
}

func (SourceCompilationFailedEvent) EventName() EventName { return EventSourceCompilationFailed }

// TestEvent is the shared shape of test-scoped events.
type TestEvent struct {
	Test     Test
	Document Document
}

// TestStartedEvent is emitted when the delegator reports the test document.
type TestStartedEvent TestEvent

func (TestStartedEvent) EventName() EventName { return EventTestStarted }

// TestPassedEvent is emitted when a test finishes without failure.
type TestPassedEvent TestEvent

func (TestPassedEvent) EventName() EventName { return EventTestPassed }

// TestFailedEvent is emitted when a step of the test fails.
type TestFailedEvent TestEvent

func (TestFailedEvent) EventName() EventName { return EventTestFailed }

// TestExceptionEvent is emitted when the delegator reports an exception.
type TestExceptionEvent TestEvent

func (TestExceptionEvent) EventName() EventName { return EventTestException }

// StepEvent is the shared shape of step-scoped events.
type StepEvent struct {
	Test     Test
	Document Document
	Name     string
}

// StepPassedEvent is emitted for each passing step document.
type StepPassedEvent StepEvent

func (StepPassedEvent) EventName() EventName { return EventStepPassed }

// StepFailedEvent is emitted for a failing step document.
type StepFailedEvent StepEvent

func (StepFailedEvent) EventName() EventName { return EventStepFailed }

// WorkerEventCreatedEvent is emitted after a WorkerEvent is persisted.
type WorkerEventCreatedEvent struct {
	WorkerEvent WorkerEvent
}

func (WorkerEventCreatedEvent) EventName() EventName { return EventWorkerEventCreated }

// MessageFailedEvent is emitted after a message handler attempt fails.
// WillRetry is false once the message has been given up on.
type MessageFailedEvent struct {
	MessageName string
	Message     any
	Err         error
	Attempt     int
	WillRetry   bool
}

func (MessageFailedEvent) EventName() EventName { return EventMessageFailed }
