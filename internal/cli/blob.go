package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/sandboxx/internal/state"
	"github.com/roach88/sandboxx/internal/statelog"
	"github.com/roach88/sandboxx/internal/store"
)

// BlobResult describes a stored blob.
type BlobResult struct {
	Ref  string `json:"ref"`
	Size int    `json:"size"`
}

// NewBlobCommand creates the blob command group.
func NewBlobCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Store and fetch content-addressed blobs",
	}
	cmd.AddCommand(newBlobPutCommand(rootOpts))
	cmd.AddCommand(newBlobGetCommand(rootOpts))
	return cmd
}

func newBlobPutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <file>",
		Short: "Store a file as a blob and print its ref",
		Long: `Store a file as a blob and print its ref. Use "-" to read stdin.

Storing the same content twice yields the same ref and keeps one copy.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read input", err)
			}
			ref := statelog.BlobRef(data)
			return withStore(cmd.Context(), opts, func(ctx context.Context, st store.Store) error {
				if err := st.SaveBlob(ctx, ref, data); err != nil {
					return WrapExitError(ExitCommandError, "failed to save blob", err)
				}
				if opts.Format == "json" {
					return formatter(opts, cmd).Success(BlobResult{Ref: ref, Size: len(data)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), ref)
				return nil
			})
		},
	}
}

func newBlobGetCommand(opts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <ref>",
		Short: "Write a blob to stdout or a file",
		Long: `Write a blob to stdout, or to --output.

Examples:
  sandboxx blob get sha256-2d45... > logo.png
  sandboxx blob get sha256-2d45... -o logo.png`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := args[0]
			if !statelog.IsBlobRef(ref) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid blob ref: %s", ref))
			}
			return withStore(cmd.Context(), opts, func(ctx context.Context, st store.Store) error {
				data, ok, err := st.LoadBlob(ctx, ref)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to load blob", err)
				}
				f := formatter(opts, cmd)
				if !ok {
					return f.Fail("blob not found", fmt.Errorf("%s: %w", ref, state.ErrBlobMissing), map[string]any{"ref": ref})
				}
				if got := statelog.BlobRef(data); got != ref {
					msg := fmt.Sprintf("blob %s is corrupt", ref)
					if ferr := f.Error(CodeBlobCorrupt, msg, map[string]any{"ref": ref, "actual": got}); ferr != nil {
						return ferr
					}
					return NewExitError(ExitFailure, msg)
				}
				if output == "" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return WrapExitError(ExitCommandError, "failed to write output", err)
				}
				f.VerboseLog("wrote %d bytes to %s", len(data), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
