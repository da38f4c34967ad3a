package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/roach88/sandboxx/internal/isolator"
	"github.com/roach88/sandboxx/internal/sandbox"
	"github.com/roach88/sandboxx/internal/state"
	"github.com/roach88/sandboxx/internal/statelog"
	"github.com/roach88/sandboxx/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Verify  bool // compare full and compacted replays
	Destroy bool // remove the work directory afterwards
}

// ReplayResult holds the replay result.
type ReplayResult struct {
	Key           string `json:"key"`
	SessionID     string `json:"session_id"`
	Dir           string `json:"dir,omitempty"`
	Entries       int    `json:"entries"`
	Compacted     int    `json:"compacted"`
	Files         int    `json:"files"`
	EnvVars       int    `json:"env_vars"`
	StorageItems  int    `json:"storage_items"`
	Verified      bool   `json:"verified"`
	Deterministic bool   `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <key>",
		Short: "Restore a stored log into a fresh sandbox",
		Long: `Replay a stored state log into a new local sandbox work directory.

Uploaded files are restored from the blob store. With --verify the full
log and its compacted form are also replayed in memory and their final
states compared.

Exit codes:
  0 - Replay succeeded (and verified, with --verify)
  1 - Compacted replay differs from the full replay
  2 - Command error (log not found, missing blob, etc.)

Examples:
  sandboxx replay sandbox-0192...
  sandboxx replay sandbox-0192... --verify --destroy
  sandboxx replay base-image --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), rootOpts, func(ctx context.Context, st store.Store) error {
				return runReplay(ctx, opts, st, args[0], cmd)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "verify the compacted log replays to the same state")
	cmd.Flags().BoolVar(&opts.Destroy, "destroy", false, "remove the work directory after replay")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, st store.Store, key string, cmd *cobra.Command) error {
	log, err := mustLoadLog(ctx, st, key)
	if err != nil {
		return err
	}

	id := sandbox.UUIDv7Generator{}.Generate()
	iso, err := isolator.NewLocal(isolator.LocalConfig{
		WorkDir:    opts.Config.Isolator.WorkDir,
		ID:         id,
		Timeout:    opts.Config.Isolator.Timeout,
		Filesystem: opts.Config.Isolator.Filesystem,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create sandbox", err)
	}
	s, err := sandbox.New(sandbox.Config{
		ID:            id,
		Isolator:      iso,
		InitializeLog: log,
		Store:         st,
	})
	if err != nil {
		_ = iso.Destroy(ctx)
		return WrapExitError(ExitCommandError, "failed to restore env and storage", err)
	}
	if err := s.CompleteAsyncInit(ctx); err != nil {
		_ = s.Destroy(ctx)
		return formatter(opts.RootOptions, cmd).Fail("failed to restore files", err, map[string]any{"key": key})
	}

	result := ReplayResult{
		Key:           key,
		SessionID:     id,
		Dir:           iso.Dir(),
		Entries:       log.Len(),
		Compacted:     log.Compact().Len(),
		EnvVars:       len(s.Env().Keys()),
		StorageItems:  len(s.Storage().Keys()),
		Deterministic: true,
	}

	if opts.Verify {
		full, err := replayInMemory(ctx, log, st)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to replay log in memory", err)
		}
		compacted, err := replayInMemory(ctx, log.Compact(), st)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to replay compacted log in memory", err)
		}
		result.Verified = true
		result.Files = len(full.Files)
		if diff := cmp.Diff(full, compacted); diff != "" {
			result.Deterministic = false
			formatter(opts.RootOptions, cmd).VerboseLog("compacted replay differs (-full +compacted):\n%s", diff)
		}
	}

	if opts.Destroy {
		if err := s.Destroy(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to destroy sandbox", err)
		}
		result.Dir = ""
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// memoryState is the observable state of an in-memory replay.
type memoryState struct {
	Files   map[string]string
	Env     map[string]string
	Storage map[string]string
}

// replayInMemory replays log into fresh in-memory capabilities backed by
// the blobs of st.
func replayInMemory(ctx context.Context, log *statelog.Log, st store.Store) (memoryState, error) {
	fs := state.NewMemoryFS()
	env := state.NewMemoryEnv(nil)
	storage := state.NewMemoryStorage()
	t := state.Target{FS: fs, Env: env, Storage: storage, Transfer: fs, Blobs: st}
	if err := state.Replay(ctx, log, t); err != nil {
		return memoryState{}, err
	}
	items := make(map[string]string)
	for _, k := range storage.Keys() {
		items[k], _ = storage.GetItem(k)
	}
	all := env.All()
	if all == nil {
		all = make(map[string]string)
	}
	return memoryState{Files: fs.Snapshot(), Env: all, Storage: items}, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.Deterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    CodeDeterminism,
			Message: "compacted replay differs from full replay",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, "compacted replay differs from full replay")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replayed %s into %s\n", result.Key, result.SessionID)
	if result.Dir != "" {
		fmt.Fprintf(w, "  Directory: %s\n", result.Dir)
	}
	fmt.Fprintf(w, "  Entries: %d (%d compacted)\n", result.Entries, result.Compacted)
	if verbose {
		fmt.Fprintf(w, "  Env vars: %d\n", result.EnvVars)
		fmt.Fprintf(w, "  Storage items: %d\n", result.StorageItems)
	}

	if !result.Verified {
		return nil
	}
	fmt.Fprintf(w, "  Files: %d\n", result.Files)
	if result.Deterministic {
		fmt.Fprintln(w, "✓ Compacted log replays to the same state")
		return nil
	}
	fmt.Fprintln(w, "✗ Compacted log replays to a different state")
	return NewExitError(ExitFailure, "compacted replay differs from full replay")
}
