package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/sandboxx/internal/sandbox"
	"github.com/roach88/sandboxx/internal/schema"
	"github.com/roach88/sandboxx/internal/state"
	"github.com/roach88/sandboxx/internal/statelog"
	"github.com/roach88/sandboxx/internal/store"
	"github.com/roach88/sandboxx/internal/testutil"
)

// Harness holds the per-run collaborators.
type Harness struct {
	store  store.Store
	ids    *testutil.FixedIDGenerator
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh memory store and in-memory isolators.
// An error is returned only when the scenario cannot be executed at all;
// failed checks are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	st := store.NewMemoryStore()
	defer st.Close()

	h := &Harness{
		store:  st,
		ids:    testutil.NewFixedIDGenerator(scenario.SessionID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	return h.run(context.Background(), scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	iso := testutil.NewFakeIsolator()
	if len(scenario.FailPaths) > 0 {
		iso.FileSystemOverride = testutil.NewFailingFS(iso.FS, scenario.FailPaths...)
	}
	s, err := sandbox.New(sandbox.Config{
		Isolator:     iso,
		Env:          scenario.Env,
		EnableRecord: true,
		Store:        h.store,
		IDs:          h.ids,
		Logger:       h.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	result := NewResult()
	result.SessionID = s.ID()

	for i, step := range scenario.Steps {
		err := h.executeStep(ctx, s, step)
		switch {
		case step.ExpectError && err == nil:
			result.AddError(fmt.Sprintf("steps[%d] %s: expected an error, got none", i, step.Op))
		case !step.ExpectError && err != nil:
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Op, err))
		}
		h.logger.Debug("step executed", "step", i, "op", step.Op, "error", err)
	}

	log := s.StateLog()
	result.Log = log.Entries()
	result.Compacted = log.Compact().Entries()
	result.State = observe(s, iso.FS)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	if err := h.checkPersisted(ctx, s.ID(), result); err != nil {
		return nil, err
	}
	if err := h.checkReplay(ctx, "replay", statelog.FromEntries(result.Log), scenario, result); err != nil {
		return nil, err
	}
	if err := h.checkReplay(ctx, "compacted replay", statelog.FromEntries(result.Compacted), scenario, result); err != nil {
		return nil, err
	}
	for name, entries := range map[string][]statelog.Entry{"log": result.Log, "compacted log": result.Compacted} {
		if err := schema.ValidateLog(statelog.FromEntries(entries)); err != nil {
			result.AddError(fmt.Sprintf("%s fails schema validation: %v", name, err))
		}
	}

	return result, nil
}

// executeStep applies one step through the session's recording
// capabilities, using the registry to dispatch the op.
func (h *Harness) executeStep(ctx context.Context, s *sandbox.Session, step Step) error {
	if step.Op == statelog.OpFSUpload {
		_, err := s.Assets().UploadBuffer(ctx, []byte(step.Args["content"]), step.Args["path"])
		return err
	}
	op, ok := state.Lookup(step.Op)
	if !ok {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	args := make(statelog.Args, len(step.Args))
	for k, v := range step.Args {
		args[k] = v
	}
	target := state.Target{FS: s.FS(), Env: s.Env(), Storage: s.Storage()}
	return op.Apply(ctx, target, args)
}

// checkPersisted verifies that the append-only copy in the store matches
// the in-memory log entry for entry.
func (h *Harness) checkPersisted(ctx context.Context, id string, result *Result) error {
	persisted, ok, err := sandbox.LoadLog(ctx, h.store, id)
	if err != nil {
		return fmt.Errorf("failed to load persisted log: %w", err)
	}
	var entries []statelog.Entry
	if ok {
		entries = persisted.Entries()
	}
	if diff := cmp.Diff(result.Log, entries, cmp.Comparer(entriesEqual)); diff != "" && len(result.Log)+len(entries) > 0 {
		result.AddError(fmt.Sprintf("persisted log differs from recorded log (-recorded +persisted):\n%s", diff))
	}
	return nil
}

// checkReplay replays log into a fresh session and compares its state with
// the recording session's.
func (h *Harness) checkReplay(ctx context.Context, name string, log *statelog.Log, scenario *Scenario, result *Result) error {
	iso := testutil.NewFakeIsolator()
	s, err := sandbox.New(sandbox.Config{
		ID:            result.SessionID + "-" + "replay",
		Isolator:      iso,
		Env:           scenario.Env,
		InitializeLog: log,
		Store:         h.store,
		Logger:        h.logger,
	})
	if err != nil {
		result.AddError(fmt.Sprintf("%s: %v", name, err))
		return nil
	}
	if err := s.CompleteAsyncInit(ctx); err != nil {
		result.AddError(fmt.Sprintf("%s: %v", name, err))
		return nil
	}
	if diff := cmp.Diff(result.State, observe(s, iso.FS)); diff != "" {
		result.AddError(fmt.Sprintf("%s state differs (-recorded +replayed):\n%s", name, diff))
	}
	return nil
}

func entriesEqual(a, b statelog.Entry) bool {
	return a.Op == b.Op && cmp.Equal(map[string]any(a.Args), map[string]any(b.Args))
}
