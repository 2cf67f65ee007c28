package domain

// TestState is the execution state of a compiled test.
type TestState string

const (
	TestStateAwaiting  TestState = "awaiting"
	TestStateRunning   TestState = "running"
	TestStateComplete  TestState = "complete"
	TestStateFailed    TestState = "failed"
	TestStateCancelled TestState = "cancelled"
)

// IsFinished reports whether the state can no longer change.
func (s TestState) IsFinished() bool {
	switch s {
	case TestStateComplete, TestStateFailed, TestStateCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether from -> to is a legal test state change.
// States advance forward only; awaiting and running may also be cancelled.
func (s TestState) CanTransitionTo(to TestState) bool {
	switch s {
	case TestStateAwaiting:
		return to == TestStateRunning || to == TestStateCancelled
	case TestStateRunning:
		return to == TestStateComplete || to == TestStateFailed || to == TestStateCancelled
	default:
		return false
	}
}

// Test is one compiled test, produced from a manifest entry.
type Test struct {
	ID        int64     `json:"id"`
	Browser   string    `json:"browser"`
	URL       string    `json:"url"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	StepNames []string  `json:"step_names"`
	State     TestState `json:"state"`
	Position  int       `json:"position"`
}

// TestConfiguration is the browser/url pair a test runs against.
type TestConfiguration struct {
	Browser string `yaml:"browser" json:"browser"`
	URL     string `yaml:"url" json:"url"`
}

// TestManifest describes one compiled test as reported by the compiler.
type TestManifest struct {
	Config    TestConfiguration `yaml:"config" json:"config"`
	Source    string            `yaml:"source" json:"source"`
	Target    string            `yaml:"target" json:"target"`
	StepNames []string          `yaml:"step_names" json:"step_names"`
}
