package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/progress"
)

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool

	// Trace is every WorkerEvent the run created, in sequence order, with
	// its final delivery state.
	Trace []domain.WorkerEvent

	// Tests is every compiled test with its final state.
	Tests []domain.Test

	// EndState is the latched job end state, nil if the job never ended.
	EndState *domain.EndState

	// State is the progress snapshot after the run settled.
	State progress.Snapshot

	// Errors holds one entry per failed assertion.
	Errors []error
}

// Types returns the WorkerEvent types of the trace in sequence order.
func (r *Result) Types() []string {
	types := make([]string, 0, len(r.Trace))
	for _, e := range r.Trace {
		types = append(types, string(e.Type()))
	}
	return types
}

// FormatTrace renders the trace one event per line as
// "<sequence> <type> <state> <label> <reference>".
func FormatTrace(trace []domain.WorkerEvent) string {
	var b strings.Builder
	for _, e := range trace {
		fmt.Fprintf(&b, "%d %s %s %s %s\n", e.SequenceNumber, e.Type(), e.State, e.Label, e.Reference)
	}
	return b.String()
}

// AssertionError is a failed scenario assertion.
type AssertionError struct {
	Type     string
	Expected any
	Actual   any
	Trace    []string
}

func (e *AssertionError) Error() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("assertion %s failed: expected %v, got %v", e.Type, e.Expected, e.Actual)
	}
	return fmt.Sprintf("assertion %s failed: expected %v, got %v\ntrace: %s",
		e.Type, e.Expected, e.Actual, strings.Join(e.Trace, ", "))
}
