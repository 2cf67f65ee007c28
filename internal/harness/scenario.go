package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one end-to-end worker run.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	Job JobSpec `yaml:"job"`

	// Compiler scripts the compiler per source path.
	Compiler map[string]CompileStep `yaml:"compiler,omitempty"`

	// Delegator scripts the documents streamed per compiled target.
	Delegator map[string][]map[string]any `yaml:"delegator,omitempty"`

	Collector CollectorSpec `yaml:"collector,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// JobSpec is the submitted job. The delivery URL is the harness collector.
type JobSpec struct {
	Label           string            `yaml:"label"`
	MaximumDuration int64             `yaml:"maximum_duration_in_seconds,omitempty"`
	Manifest        []string          `yaml:"manifest"`
	Sources         map[string]string `yaml:"sources"`
}

// CompileStep is the scripted compiler outcome for one source. Error, when
// set, is the structured compiler error output.
type CompileStep struct {
	Tests []TestSpec     `yaml:"tests,omitempty"`
	Error map[string]any `yaml:"error,omitempty"`
}

// TestSpec is one compiled test manifest.
type TestSpec struct {
	Target    string   `yaml:"target"`
	Browser   string   `yaml:"browser,omitempty"`
	URL       string   `yaml:"url,omitempty"`
	StepNames []string `yaml:"step_names,omitempty"`
}

// CollectorSpec scripts the event collector.
type CollectorSpec struct {
	// Reject lists sequence numbers the collector always answers with 500.
	Reject []int64 `yaml:"reject,omitempty"`
}

// Assertion checks the outcome of a run.
type Assertion struct {
	Type string `yaml:"type"`

	// Types is used by event_types and event_order.
	Types []string `yaml:"types,omitempty"`

	// Event is the WorkerEvent type counted by event_count.
	Event string `yaml:"event,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// SequenceNumber selects the event for event_state.
	SequenceNumber int64 `yaml:"sequence_number,omitempty"`

	// Source selects the test for test_state.
	Source string `yaml:"source,omitempty"`

	// State is the expected state for the *_state assertions.
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertEventTypes       = "event_types"
	AssertEventOrder       = "event_order"
	AssertEventCount       = "event_count"
	AssertEventState       = "event_state"
	AssertEndState         = "end_state"
	AssertTestState        = "test_state"
	AssertApplicationState = "application_state"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Job.Label == "" {
		return fmt.Errorf("job.label is required")
	}
	if len(s.Job.Manifest) == 0 {
		return fmt.Errorf("job.manifest is required and must be non-empty")
	}
	for _, p := range s.Job.Manifest {
		if _, ok := s.Job.Sources[p]; !ok {
			return fmt.Errorf("job.manifest: %s has no source", p)
		}
	}
	for source, step := range s.Compiler {
		for i, test := range step.Tests {
			if test.Target == "" {
				return fmt.Errorf("compiler[%s].tests[%d]: target is required", source, i)
			}
		}
	}
	for target, docs := range s.Delegator {
		for i, doc := range docs {
			if _, ok := doc["type"].(string); !ok {
				return fmt.Errorf("delegator[%s][%d]: type is required", target, i)
			}
		}
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEventTypes, AssertEventOrder:
		if len(a.Types) == 0 {
			return fmt.Errorf("assertions[%d]: types list is required for %s", index, a.Type)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventState:
		if a.SequenceNumber <= 0 || a.State == "" {
			return fmt.Errorf("assertions[%d]: sequence_number and state are required for event_state", index)
		}
	case AssertTestState:
		if a.Source == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: source and state are required for test_state", index)
		}
	case AssertEndState, AssertApplicationState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
