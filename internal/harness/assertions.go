package harness

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		switch {
		case event.Action != "build":
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Step, event.Action, event.Target)
		case event.Error != "":
			fmt.Fprintf(&buf, "  [%d] build %s failed: %s\n", event.Step, event.Target, event.Error)
		default:
			fmt.Fprintf(&buf, "  [%d] build %s hit=%v %v\n", event.Step, event.Target, event.Hit, event.Constituents)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and
// returns the failure messages. Evaluation continues past failures so all
// of them are reported.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertComputations:
		return assertCount(result, a.Type, a.Count, int(result.Computations))
	case AssertReports:
		return assertCount(result, a.Type, a.Count, result.Reports)
	case AssertSameContent:
		return assertSameContent(result, a)
	case AssertConstituents:
		return assertConstituents(result, a)
	case AssertProcessorCalls:
		return assertCount(result, a.Type+" "+a.Subject, a.Count, result.ProcessorCalls[a.Subject])
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertCount(result *Result, typ string, want, got int) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%d", want),
		Actual:   fmt.Sprintf("%d", got),
		Trace:    result.Trace,
	}
}

// assertSameContent checks that every listed build step succeeded with
// byte-identical output.
func assertSameContent(result *Result, a Assertion) error {
	first, ok := result.contents[a.Steps[0]]
	if !ok {
		return &AssertionError{
			Type:     AssertSameContent,
			Expected: fmt.Sprintf("step %d to produce an artifact", a.Steps[0]),
			Actual:   "no artifact",
			Trace:    result.Trace,
		}
	}
	for _, n := range a.Steps[1:] {
		got, ok := result.contents[n]
		if !ok || !bytes.Equal(first, got) {
			return &AssertionError{
				Type:     AssertSameContent,
				Expected: fmt.Sprintf("step %d content %q", a.Steps[0], first),
				Actual:   fmt.Sprintf("step %d content %q", n, got),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

func assertConstituents(result *Result, a Assertion) error {
	event, ok := result.event(a.Step)
	if !ok {
		return &AssertionError{
			Type:     AssertConstituents,
			Expected: fmt.Sprintf("step %d to be a build", a.Step),
			Actual:   "no build at that step",
			Trace:    result.Trace,
		}
	}
	if !slices.Equal(event.Constituents, a.URIs) {
		return &AssertionError{
			Type:     AssertConstituents,
			Expected: fmt.Sprintf("%v", a.URIs),
			Actual:   fmt.Sprintf("%v", event.Constituents),
			Trace:    result.Trace,
		}
	}
	return nil
}
