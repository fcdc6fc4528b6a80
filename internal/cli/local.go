package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "check",
		Short:         "Check that every local file exists",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
}

func runCheck(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	loaded, err := LoadCampaign(opts.Config, LoadOptions{Logger: logger})
	if err != nil {
		return formatter.Fail("failed to load campaign", err)
	}
	defer func() {
		if closeErr := loaded.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()

	if err := loaded.Submitter.CheckLocal(); err != nil {
		_ = formatter.Error(ErrCodeNotFound, "local files missing", err.Error())
		return WrapExitError(ExitFailure, "local files missing", err)
	}
	n := loaded.Submitter.LocalFiles().Len()
	return formatter.Result(map[string]int{"files": n}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ All %d local files present\n", n)
	})
}

// CleanOptions holds flags for the clean command.
type CleanOptions struct {
	*RootOptions
	Snapshots bool
}

// NewCleanCommand creates the clean command.
func NewCleanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CleanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the local copies of the campaign files",
		Long: `Remove the files staged in the local directory.

OCDB snapshots are kept unless --snapshots is given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Snapshots, "snapshots", false, "also remove the OCDB snapshots")

	return cmd
}

func runClean(opts *CleanOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	loaded, err := LoadCampaign(opts.Config, LoadOptions{Logger: logger})
	if err != nil {
		return formatter.Fail("failed to load campaign", err)
	}
	defer func() {
		if closeErr := loaded.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()

	removed, err := loaded.Submitter.CleanLocal(opts.Snapshots)
	for _, p := range removed {
		formatter.VerboseLog("removed %s", p)
	}
	if err != nil {
		return formatter.Fail("clean incomplete", err)
	}
	return formatter.Result(map[string][]string{"removed": removed}, func(w io.Writer) {
		fmt.Fprintf(w, "Removed %d files\n", len(removed))
	})
}
