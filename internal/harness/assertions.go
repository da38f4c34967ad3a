package harness

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the recorded ops to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Ops      []string // Recorded ops for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Ops) > 0 {
		fmt.Fprintf(&buf, "\nRecorded ops:\n")
		for i, op := range e.Ops {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, op)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertFile:
		return assertValue(result, a, "file "+a.Path, result.State.Files, a.Path)
	case AssertEnv:
		return assertValue(result, a, "env "+a.Key, result.State.Env, a.Key)
	case AssertStorage:
		return assertValue(result, a, "storage "+a.Key, result.State.Storage, a.Key)
	case AssertLogCount:
		return assertCount(result, a, len(result.Log))
	case AssertCompactedCount:
		return assertCount(result, a, len(result.Compacted))
	case AssertLogOps:
		got := recordedOps(result)
		if !slices.Equal(got, a.Ops) {
			return &AssertionError{
				Type:     a.Type,
				Expected: strings.Join(a.Ops, ", "),
				Actual:   strings.Join(got, ", "),
				Ops:      got,
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertValue checks presence or value of key in values. File paths are
// compared in cleaned form, as the filesystem stores them.
func assertValue(result *Result, a Assertion, what string, values map[string]string, key string) error {
	if a.Type == AssertFile {
		key = cleanPath(key)
	}
	got, ok := values[key]
	want := what + " present"
	if a.Equals != nil {
		want = fmt.Sprintf("%s = %q", what, *a.Equals)
	}
	switch {
	case a.Absent && ok:
		return &AssertionError{Type: a.Type, Expected: what + " absent", Actual: fmt.Sprintf("%q", got), Ops: recordedOps(result)}
	case a.Absent:
		return nil
	case !ok:
		return &AssertionError{Type: a.Type, Expected: want, Actual: "absent", Ops: recordedOps(result)}
	case a.Equals != nil && got != *a.Equals:
		return &AssertionError{Type: a.Type, Expected: want, Actual: fmt.Sprintf("%q", got), Ops: recordedOps(result)}
	}
	return nil
}

func assertCount(result *Result, a Assertion, got int) error {
	if got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d entries", a.Count),
			Actual:   fmt.Sprintf("%d entries", got),
			Ops:      recordedOps(result),
		}
	}
	return nil
}

func recordedOps(result *Result) []string {
	ops := make([]string, len(result.Log))
	for i, e := range result.Log {
		ops[i] = e.Op
	}
	return ops
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}
