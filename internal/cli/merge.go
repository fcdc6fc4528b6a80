package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/merge"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Stage          int
	DryRun         bool
	BelowThreshold string // "proceed" | "abort" | "ask"
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Submit merge jobs for every run",
		Long: `Submit the merge jobs of one stage for every run of the campaign.

Stage 0 is the final merge. Intermediate stages must follow the last
completed stage of each run. When a run has no more files to merge than the
split threshold, --below-threshold decides: proceed, abort, or ask once for
the whole batch.

Example:
  accsubmit merge --stage 1 -c campaign.yaml
  accsubmit merge --stage 0 --dry-run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Stage, "stage", 0, "merge stage (0 = final)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "collect files without uploading or submitting")
	cmd.Flags().StringVar(&opts.BelowThreshold, "below-threshold", "ask", "below split threshold: proceed|abort|ask")

	return cmd
}

func runMerge(opts *MergeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	policy, err := parsePolicy(opts.BelowThreshold, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return formatter.Fail("invalid flag", err)
	}

	loaded, err := LoadCampaign(opts.Config, LoadOptions{Logger: logger, Policy: policy})
	if err != nil {
		return formatter.Fail("failed to load campaign", err)
	}
	defer func() {
		if closeErr := loaded.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	res, err := loaded.Submitter.Merge(ctx, opts.Stage, opts.DryRun)
	if err != nil {
		if res != nil && !formatter.JSON() {
			writeMergeResult(formatter.Writer, res)
		}
		return formatter.Fail("merge failed", err)
	}
	return formatter.Result(res, func(w io.Writer) { writeMergeResult(w, res) })
}

func parsePolicy(name string, in io.Reader, out io.Writer) (merge.Policy, error) {
	switch strings.ToLower(name) {
	case "proceed":
		return merge.Proceed, nil
	case "abort":
		return merge.Abort, nil
	case "ask":
		return promptPolicy(in, out), nil
	}
	return nil, errs.New(errs.Configuration, "unknown below-threshold policy %q", name)
}

// promptPolicy asks on out and reads a y/n answer from in.
func promptPolicy(in io.Reader, out io.Writer) merge.Policy {
	r := bufio.NewReader(in)
	return merge.PolicyFunc(func(run, count int) bool {
		fmt.Fprintf(out, "Run %d has only %d files to merge, at or below the split threshold. Proceed anyway? [y/N] ", run, count)
		line, _ := r.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	})
}

func writeMergeResult(w io.Writer, res *merge.Result) {
	for _, job := range res.Submitted {
		fmt.Fprintf(w, "  run %d stage %d: %d files", job.Run, job.Stage, job.Files)
		if job.JobID != "" {
			fmt.Fprintf(w, " (job %s)", job.JobID)
		}
		fmt.Fprintln(w)
	}
	for _, run := range res.Rejected {
		fmt.Fprintf(w, "  run %d: stage out of order, rejected\n", run)
	}
	for _, run := range res.Skipped {
		fmt.Fprintf(w, "  run %d: skipped\n", run)
	}
	for _, run := range res.Failed {
		fmt.Fprintf(w, "  run %d: FAILED\n", run)
	}
	fmt.Fprintf(w, "%d merge jobs, %d rejected, %d skipped, %d failed\n",
		len(res.Submitted), len(res.Rejected), len(res.Skipped), len(res.Failed))
}
