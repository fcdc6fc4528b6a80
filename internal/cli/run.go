package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/accsubmit/internal/campaign"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Resume bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <mode>",
		Short: "Run a campaign mode",
		Long: `Run one of the campaign modes:

  LOCAL   copy templates to the local directory, generate job documents
          and substitute variables
  OCDB    LOCAL, then produce the OCDB snapshots of every run
  UPLOAD  copy the local files to the remote directory
  SUBMIT  submit one chunked job per run
  TEST    LOCAL, OCDB and UPLOAD, then a dry-run submission
  FULL    LOCAL, OCDB and UPLOAD, then the real submission

Modes are case-insensitive.

Example:
  accsubmit run test -c campaign.yaml
  accsubmit run FULL -c campaign.cue --resume`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "skip runs the ledger records as submitted")

	return cmd
}

func runMode(opts *RunOptions, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	mode, err := campaign.ParseMode(arg)
	if err != nil {
		return formatter.Fail("invalid mode", err)
	}

	loaded, err := LoadCampaign(opts.Config, LoadOptions{Logger: logger})
	if err != nil {
		return formatter.Fail("failed to load campaign", err)
	}
	defer func() {
		if closeErr := loaded.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()
	loaded.Submitter.Resume = opts.Resume

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	rep, err := loaded.Submitter.Run(ctx, mode)
	if err != nil {
		if rep != nil && !formatter.JSON() {
			writeReport(formatter.Writer, rep)
		}
		return formatter.Fail(fmt.Sprintf("%s failed", mode), err)
	}
	return formatter.Result(rep, func(w io.Writer) { writeReport(w, rep) })
}

// signalContext cancels on SIGINT/SIGTERM. The parent context is used when
// set (for testing).
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		case <-done:
		}
	}()
	return ctx, func() {
		signal.Stop(sigChan)
		close(done)
		cancel()
	}
}

func writeReport(w io.Writer, rep *campaign.Report) {
	steps := make([]string, len(rep.Steps))
	for i, s := range rep.Steps {
		steps[i] = string(s)
	}
	fmt.Fprintf(w, "Mode %s: %s\n", rep.Mode, strings.Join(steps, " -> "))

	if l := rep.Local; l != nil {
		fmt.Fprintf(w, "  local: %d copied, %d generated, %d substituted",
			len(l.Copied), len(l.Generated), len(l.Substituted))
		if len(l.Conflicts) > 0 {
			fmt.Fprintf(w, ", %d conflicts", len(l.Conflicts))
		}
		fmt.Fprintln(w)
	}
	if s := rep.Submit; s != nil {
		verb := "submitted"
		if rep.Mode == campaign.ModeTest {
			verb = "planned"
		}
		for _, job := range s.Jobs {
			fmt.Fprintf(w, "  run %d: %d chunks x %d events", job.Run, job.Chunks, job.EventsPerChunk)
			if job.JobID != "" {
				fmt.Fprintf(w, " (job %s)", job.JobID)
			}
			fmt.Fprintln(w)
		}
		for _, run := range s.Skipped {
			fmt.Fprintf(w, "  run %d: already submitted, skipped\n", run)
		}
		for _, f := range s.Failed {
			fmt.Fprintf(w, "  run %d: FAILED: %v\n", f.Run, f.Err)
		}
		fmt.Fprintf(w, "%d jobs %s for %d events\n", s.TotalChunks, verb, s.TotalEvents)
	}
}
