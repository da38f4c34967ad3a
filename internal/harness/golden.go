package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sandboxx/internal/statelog"
)

// Snapshot captures the deterministic outcome of a scenario execution.
// It is serialized as canonical JSON for byte-exact comparison.
type Snapshot struct {
	ScenarioName string           `json:"scenario_name"`
	SessionID    string           `json:"session_id"`
	Log          []statelog.Entry `json:"log"`
	State        State            `json:"state"`
}

// toCanonicalMap converts a Snapshot for statelog.MarshalCanonical, which
// only handles log types and primitives.
func (s *Snapshot) toCanonicalMap() map[string]any {
	log := make([]any, len(s.Log))
	for i, e := range s.Log {
		log[i] = e
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"session_id":    s.SessionID,
		"log":           log,
		"state":         s.State.canonical(),
	}
}

// RunWithGolden executes a scenario and compares its compacted log and
// final state against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. A scenario that runs but fails
// its checks fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if !result.Pass {
		t.Errorf("scenario %s failed:\n%v", scenario.Name, result.Errors)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := SnapshotJSON(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

// SnapshotJSON returns the canonical JSON golden form of result.
func SnapshotJSON(scenarioName string, result *Result) ([]byte, error) {
	snapshot := Snapshot{
		ScenarioName: scenarioName,
		SessionID:    result.SessionID,
		Log:          result.Compacted,
		State:        result.State,
	}
	data, err := statelog.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}
