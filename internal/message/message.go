// Package message defines the units of work dispatched on the bus.
package message

// Message names, used to route to handlers and as metric labels.
const (
	NameCompileSource     = "compile_source"
	NameExecuteTest       = "execute_test"
	NameDeliverEvent      = "deliver_event"
	NameCheckTimeout      = "check_timeout"
	NameCheckJobCompleted = "check_job_completed"
)

// CompileSource asks for the next uncompiled test source to be compiled.
// The source is chosen when the message is handled, not when dispatched.
type CompileSource struct{}

func (CompileSource) MessageName() string { return NameCompileSource }

// ExecuteTest runs one compiled test.
type ExecuteTest struct {
	TestID int64 `json:"test_id"`
}

func (ExecuteTest) MessageName() string { return NameExecuteTest }

// DeliverEvent sends one WorkerEvent to the job's delivery URL.
type DeliverEvent struct {
	SequenceNumber int64 `json:"sequence_number"`
}

func (DeliverEvent) MessageName() string { return NameDeliverEvent }

// CheckTimeout compares the job's age to its maximum duration.
type CheckTimeout struct{}

func (CheckTimeout) MessageName() string { return NameCheckTimeout }

// CheckJobCompleted emits job completion once the application is complete.
type CheckJobCompleted struct{}

func (CheckJobCompleted) MessageName() string { return NameCheckJobCompleted }
