package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sandboxx/internal/sandbox"
	"github.com/roach88/sandboxx/internal/schema"
	"github.com/roach88/sandboxx/internal/statelog"
	"github.com/roach88/sandboxx/internal/store"
)

// LogSummary describes one stored log.
type LogSummary struct {
	Key     string           `json:"key"`
	Entries int              `json:"entries"`
	Digest  string           `json:"digest,omitempty"`
	Log     []statelog.Entry `json:"log,omitempty"`
}

// CompactResult reports a compaction.
type CompactResult struct {
	Key    string `json:"key"`
	Output string `json:"output"`
	Before int    `json:"before"`
	After  int    `json:"after"`
	DryRun bool   `json:"dry_run"`
}

// NewLogCommand creates the log command group.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect and maintain stored state logs",
	}
	cmd.AddCommand(newLogListCommand(rootOpts))
	cmd.AddCommand(newLogShowCommand(rootOpts))
	cmd.AddCommand(newLogCompactCommand(rootOpts))
	cmd.AddCommand(newLogValidateCommand(rootOpts))
	cmd.AddCommand(newLogDeleteCommand(rootOpts))
	cmd.AddCommand(newLogImportCommand(rootOpts))
	return cmd
}

func newLogListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored log keys",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, st store.Store) error {
				keys, err := st.ListLogs(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list logs", err)
				}
				f := formatter(opts, cmd)
				if opts.Format == "json" {
					if keys == nil {
						keys = []string{}
					}
					return f.Success(map[string]any{"keys": keys})
				}
				if len(keys) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No logs found.")
					return nil
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}
}

func newLogShowCommand(opts *RootOptions) *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:   "show <key>",
		Short: "Print a stored log",
		Long: `Print the entries of a stored log as JSON.

Examples:
  sandboxx log show sandbox-0192...
  sandboxx log show sandbox-0192... --compact
  sandboxx log show sandbox-0192... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, st store.Store) error {
				log, err := mustLoadLog(ctx, st, args[0])
				if err != nil {
					return err
				}
				if compact {
					log = log.Compact()
				}
				if opts.Format == "json" {
					f := formatter(opts, cmd)
					// Unknown ops may carry numbers, which have no canonical
					// form; such logs are shown without a digest.
					digest, err := statelog.Digest(log)
					if err != nil {
						f.VerboseLog("no digest for %s: %v", args[0], err)
						digest = ""
					}
					return f.Success(LogSummary{
						Key:     args[0],
						Entries: log.Len(),
						Digest:  digest,
						Log:     log.Entries(),
					})
				}
				text, err := log.JSON()
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to encode log", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "print the compacted log")
	return cmd
}

func newLogCompactCommand(opts *RootOptions) *cobra.Command {
	var output string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "compact <key>",
		Short: "Compact a stored log into a snapshot",
		Long: `Compact a stored log and save the result under another key.

The source log is never modified: session logs are append-only. The
snapshot is written in bulk form under --output, which defaults to
<key>.compact.

Examples:
  sandboxx log compact sandbox-0192...
  sandboxx log compact sandbox-0192... --output base-image
  sandboxx log compact sandbox-0192... --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, st store.Store) error {
				key := args[0]
				log, err := mustLoadLog(ctx, st, key)
				if err != nil {
					return err
				}
				out := output
				if out == "" {
					out = key + ".compact"
				}
				if out == key {
					return NewExitError(ExitCommandError, "output key must differ from the source key")
				}
				compacted := log.Compact()
				if !dryRun {
					text, err := compacted.JSON()
					if err != nil {
						return WrapExitError(ExitCommandError, "failed to encode log", err)
					}
					if err := st.SaveLog(ctx, out, text); err != nil {
						return WrapExitError(ExitCommandError, "failed to save compacted log", err)
					}
				}
				result := CompactResult{Key: key, Output: out, Before: log.Len(), After: compacted.Len(), DryRun: dryRun}
				if opts.Format == "json" {
					return formatter(opts, cmd).Success(result)
				}
				verb := "Compacted"
				if dryRun {
					verb = "Would compact"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d -> %d entries (%s)\n", verb, key, result.Before, result.After, out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "key for the compacted log")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without saving")
	return cmd
}

func newLogValidateCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate [key]",
		Short: "Validate a log against the entry schema",
		Long: `Validate a stored log, or a log file, against the entry schema.

Files ending in .jsonl are read in append-only form, one entry per line;
anything else is read as a JSON array.

Exit codes:
  0 - Log is valid
  1 - Log is invalid
  2 - Command error (log not found, etc.)

Examples:
  sandboxx log validate sandbox-0192...
  sandboxx log validate --file ./state.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case file != "" && len(args) == 1:
				return NewExitError(ExitCommandError, "give either a key or --file, not both")
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read log file", err)
				}
				return reportValidation(opts, cmd, file, validateFile(file, data))
			case len(args) == 1:
				return withStore(cmd.Context(), opts, func(ctx context.Context, st store.Store) error {
					log, err := mustLoadLog(ctx, st, args[0])
					if err != nil {
						return err
					}
					return reportValidation(opts, cmd, args[0], schema.ValidateLog(log))
				})
			default:
				return NewExitError(ExitCommandError, "a key or --file is required")
			}
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "validate a log file instead of a stored log")
	return cmd
}

func validateFile(name string, data []byte) error {
	if strings.HasSuffix(name, ".jsonl") {
		return schema.ValidateLines(data)
	}
	return schema.ValidateJSON(data)
}

func reportValidation(opts *RootOptions, cmd *cobra.Command, name string, err error) error {
	f := formatter(opts, cmd)
	if err == nil {
		if opts.Format == "json" {
			return f.Success(map[string]any{"name": name, "valid": true})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid\n", name)
		return nil
	}

	return f.Fail(fmt.Sprintf("%s is invalid", name), err, map[string]any{"name": name})
}

func newLogDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <key>",
		Short:         "Delete a stored log",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, st store.Store) error {
				if err := st.DeleteLog(ctx, args[0]); err != nil {
					return WrapExitError(ExitCommandError, "failed to delete log", err)
				}
				if opts.Format == "json" {
					return formatter(opts, cmd).Success(map[string]any{"key": args[0], "deleted": true})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newLogImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <key> <file>",
		Short: "Validate a log file and save it under key",
		Long: `Validate a log file and save it in bulk form under key.

Files ending in .jsonl are read in append-only form; a truncated final
line is dropped. Anything else is read as a JSON array.

Examples:
  sandboxx log import base-image ./base.json
  sandboxx log import restored ./sandbox-0192.jsonl`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, file := args[0], args[1]
			data, err := os.ReadFile(file)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read log file", err)
			}
			log, err := parseLogFile(file, data)
			if err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("%s is not a state log", filepath.Base(file)), err)
			}
			if err := schema.ValidateLog(log); err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("%s is invalid", filepath.Base(file)), err)
			}
			text, err := log.JSON()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to encode log", err)
			}
			return withStore(cmd.Context(), opts, func(ctx context.Context, st store.Store) error {
				if err := st.SaveLog(ctx, key, text); err != nil {
					return WrapExitError(ExitCommandError, "failed to save log", err)
				}
				if opts.Format == "json" {
					return formatter(opts, cmd).Success(LogSummary{Key: key, Entries: log.Len()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries into %s\n", log.Len(), key)
				return nil
			})
		},
	}
}

func parseLogFile(name string, data []byte) (*statelog.Log, error) {
	if strings.HasSuffix(name, ".jsonl") {
		entries, err := statelog.ParseLines(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return statelog.FromEntries(entries), nil
	}
	return statelog.Parse(string(data))
}

// withStore opens the configured store for the duration of fn.
func withStore(ctx context.Context, opts *RootOptions, fn func(ctx context.Context, st store.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

// mustLoadLog loads key, reporting a missing log as a command error.
func mustLoadLog(ctx context.Context, st store.Store, key string) (*statelog.Log, error) {
	log, ok, err := sandbox.LoadLog(ctx, st, key)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load log %s", key), err)
	}
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("log not found: %s", key))
	}
	return log, nil
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
