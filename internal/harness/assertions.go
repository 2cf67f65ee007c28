package harness

import (
	"fmt"
	"slices"
)

// checkAssertions evaluates every assertion against result.
func checkAssertions(result *Result, assertions []Assertion) []error {
	var errs []error
	for i, a := range assertions {
		if err := checkAssertion(result, a); err != nil {
			errs = append(errs, fmt.Errorf("assertions[%d]: %w", i, err))
		}
	}
	return errs
}

func checkAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertEventTypes:
		return assertEventTypes(result, a.Types)
	case AssertEventOrder:
		return assertEventOrder(result, a.Types)
	case AssertEventCount:
		return assertEventCount(result, a.Event, a.Count)
	case AssertEventState:
		return assertEventState(result, a.SequenceNumber, a.State)
	case AssertEndState:
		return assertEndState(result, a.State)
	case AssertTestState:
		return assertTestState(result, a.Source, a.State)
	case AssertApplicationState:
		if got := string(result.State.Application); got != a.State {
			return &AssertionError{Type: a.Type, Expected: a.State, Actual: got}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertEventTypes(result *Result, want []string) error {
	got := result.Types()
	if !slices.Equal(got, want) {
		return &AssertionError{Type: AssertEventTypes, Expected: want, Actual: got}
	}
	return nil
}

// assertEventOrder checks that want is a subsequence of the trace types.
func assertEventOrder(result *Result, want []string) error {
	got := result.Types()
	next := 0
	for _, typ := range got {
		if next < len(want) && typ == want[next] {
			next++
		}
	}
	if next < len(want) {
		return &AssertionError{
			Type:     AssertEventOrder,
			Expected: want,
			Actual:   fmt.Sprintf("%s missing or out of order", want[next]),
			Trace:    got,
		}
	}
	return nil
}

func assertEventCount(result *Result, typ string, want int) error {
	count := 0
	for _, e := range result.Trace {
		if string(e.Type()) == typ {
			count++
		}
	}
	if count != want {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s", want, typ),
			Actual:   fmt.Sprintf("%d %s", count, typ),
			Trace:    result.Types(),
		}
	}
	return nil
}

func assertEventState(result *Result, seq int64, want string) error {
	for _, e := range result.Trace {
		if e.SequenceNumber == seq {
			if string(e.State) != want {
				return &AssertionError{
					Type:     AssertEventState,
					Expected: fmt.Sprintf("event %d %s", seq, want),
					Actual:   fmt.Sprintf("event %d %s", seq, e.State),
				}
			}
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEventState,
		Expected: fmt.Sprintf("event %d %s", seq, want),
		Actual:   "no such event",
		Trace:    result.Types(),
	}
}

func assertEndState(result *Result, want string) error {
	if result.EndState == nil {
		return &AssertionError{Type: AssertEndState, Expected: want, Actual: "no end state"}
	}
	if got := string(*result.EndState); got != want {
		return &AssertionError{Type: AssertEndState, Expected: want, Actual: got}
	}
	return nil
}

func assertTestState(result *Result, source, want string) error {
	for _, t := range result.Tests {
		if t.Source == source {
			if string(t.State) != want {
				return &AssertionError{
					Type:     AssertTestState,
					Expected: fmt.Sprintf("%s %s", source, want),
					Actual:   fmt.Sprintf("%s %s", source, t.State),
				}
			}
			return nil
		}
	}
	return &AssertionError{Type: AssertTestState, Expected: fmt.Sprintf("%s %s", source, want), Actual: "no such test"}
}
