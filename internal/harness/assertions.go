package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// AssertionError describes a failed assertion with the trace that led to it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceStep
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, step := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %d -> %v\n", step.Step, step.Event, step.ID, step.Order)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, schema record.Schema, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertOrder:
			err = assertOrder(result, schema, a)
		case AssertCount:
			err = assertCount(result, a)
		case AssertNotified:
			err = assertNotified(result, a)
		case AssertRecord:
			err = assertRecord(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func assertOrder(result *Result, schema record.Schema, a Assertion) error {
	got := make([]string, len(result.Final))
	for i, r := range result.Final {
		got[i] = schema.Label(r)
	}
	if slices.Equal(got, a.Labels) {
		return nil
	}
	return &AssertionError{
		Type:     AssertOrder,
		Expected: fmt.Sprintf("%v", a.Labels),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

func assertCount(result *Result, a Assertion) error {
	if len(result.Final) == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertCount,
		Expected: fmt.Sprintf("%d records", *a.Count),
		Actual:   fmt.Sprintf("%d records", len(result.Final)),
		Trace:    result.Trace,
	}
}

func assertNotified(result *Result, a Assertion) error {
	var got []string
	for _, n := range result.Notifications() {
		got = append(got, string(n.Kind))
	}
	if slices.Equal(got, a.Kinds) || (len(got) == 0 && len(a.Kinds) == 0) {
		return nil
	}
	return &AssertionError{
		Type:     AssertNotified,
		Expected: fmt.Sprintf("%v", a.Kinds),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

func assertRecord(result *Result, a Assertion) error {
	idx := slices.IndexFunc(result.Final, func(r record.Record) bool { return r.ID == a.ID })
	if a.Absent {
		if idx < 0 {
			return nil
		}
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("id %d absent", a.ID),
			Actual:   "present",
			Trace:    result.Trace,
		}
	}
	if idx < 0 {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("id %d present", a.ID),
			Actual:   "absent",
			Trace:    result.Trace,
		}
	}

	want, err := record.NormalizeFields(a.Fields)
	if err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	got := result.Final[idx]
	for k, v := range want {
		if gv, ok := got.Fields[k]; !ok || gv != v {
			return &AssertionError{
				Type:     AssertRecord,
				Expected: fmt.Sprintf("id %d %s=%v", a.ID, k, v),
				Actual:   fmt.Sprintf("%s=%v", k, gv),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}
