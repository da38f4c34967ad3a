package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sandboxx/internal/state"
	"github.com/roach88/sandboxx/internal/statelog"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// SessionID is the fixed session ID. Defaults to "sandbox-test".
	SessionID string `yaml:"session_id,omitempty"`

	// Env seeds the session environment. Seeding is not recorded.
	Env map[string]string `yaml:"env,omitempty"`

	// FailPaths lists paths whose fs mutations fail in the live session.
	// Replay sessions never fail.
	FailPaths []string `yaml:"fail_paths,omitempty"`

	// Steps are state operations run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and the recorded log.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one state operation. Op is a registered op name; Args holds the
// op's named arguments. fs.upload takes path and content instead of a ref:
// the harness uploads content and the ref is derived from it.
type Step struct {
	Op          string            `yaml:"op"`
	Args        map[string]string `yaml:"args"`
	ExpectError bool              `yaml:"expect_error,omitempty"`
}

// Assertion validates the final state or the recorded log.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Path is the file checked by "file".
	Path string `yaml:"path,omitempty"`

	// Key is the variable or item checked by "env" and "storage".
	Key string `yaml:"key,omitempty"`

	// Equals is the expected value. Mutually exclusive with Absent.
	Equals *string `yaml:"equals,omitempty"`

	// Absent expects the file, variable or item not to exist.
	Absent bool `yaml:"absent,omitempty"`

	// Count is the expected entry count for log_count and compacted_count.
	Count int `yaml:"count,omitempty"`

	// Ops is the expected op sequence for log_ops.
	Ops []string `yaml:"ops,omitempty"`
}

// Assertion type constants.
const (
	AssertFile           = "file"
	AssertEnv            = "env"
	AssertStorage        = "storage"
	AssertLogCount       = "log_count"
	AssertCompactedCount = "compacted_count"
	AssertLogOps         = "log_ops"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step Step) error {
	if step.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}
	names := []string{"path", "content"}
	if step.Op != statelog.OpFSUpload {
		op, ok := state.Lookup(step.Op)
		if !ok {
			return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
		}
		names = op.Args
	}
	for _, name := range names {
		if _, ok := step.Args[name]; !ok {
			return fmt.Errorf("steps[%d]: %s requires arg %q", index, step.Op, name)
		}
	}
	if len(step.Args) != len(names) {
		return fmt.Errorf("steps[%d]: %s takes args %v", index, step.Op, names)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFile, AssertEnv, AssertStorage:
		if a.Type == AssertFile && a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for file", index)
		}
		if a.Type != AssertFile && a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for %s", index, a.Type)
		}
		if (a.Equals == nil) == !a.Absent {
			return fmt.Errorf("assertions[%d]: exactly one of equals or absent is required", index)
		}
	case AssertLogCount, AssertCompactedCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertLogOps:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for log_ops", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
