package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/ledger"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
	Session  string
	Run      int
}

// StatusResult is the JSON form of the status command.
type StatusResult struct {
	Sessions []ledger.Session `json:"sessions,omitempty"`
	Outcomes []ledger.Outcome `json:"outcomes,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the submission ledger",
		Long: `Show what earlier sessions submitted.

Without flags every session is listed. --session shows the outcome of each
run in one session; --run shows the history of one run across sessions.
The ledger is taken from --db, or from the configuration.

Example:
  accsubmit status -c campaign.yaml
  accsubmit status --db ledger.db --run 195682`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the ledger database")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID to show")
	cmd.Flags().IntVar(&opts.Run, "run", 0, "run number to show")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	path := opts.Database
	if path == "" {
		cfg, err := LoadConfig(opts.Config)
		if err != nil {
			return formatter.Fail("failed to load configuration", err)
		}
		path = cfg.Ledger
	}
	if path == "" {
		return formatter.Fail("no ledger", errs.New(errs.Configuration, "no ledger configured, use --db or the ledger setting"))
	}

	l, err := ledger.Open(path)
	if err != nil {
		return formatter.Fail("failed to open ledger", errs.Wrap(errs.Configuration, err, "open ledger").WithPath(path))
	}
	defer func() {
		if closeErr := l.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	var res StatusResult
	switch {
	case opts.Session != "":
		res.Outcomes, err = l.Outcomes(ctx, opts.Session)
	case opts.Run != 0:
		res.Outcomes, err = l.RunHistory(ctx, opts.Run)
	default:
		res.Sessions, err = l.Sessions(ctx)
	}
	if err != nil {
		return formatter.Fail("failed to read ledger", err)
	}

	sessions := opts.Session == "" && opts.Run == 0
	return formatter.Result(res, func(w io.Writer) { writeStatus(w, res, sessions) })
}

func writeStatus(w io.Writer, res StatusResult, sessions bool) {
	if sessions {
		if len(res.Sessions) == 0 {
			fmt.Fprintln(w, "No session recorded")
			return
		}
		for _, s := range res.Sessions {
			dry := ""
			if s.DryRun {
				dry = " (dry run)"
			}
			fmt.Fprintf(w, "%s  %-6s%s  %s\n", s.ID, s.Mode, dry, s.RemoteDir)
		}
		return
	}

	if len(res.Outcomes) == 0 {
		fmt.Fprintln(w, "No outcome recorded")
		return
	}
	for _, o := range res.Outcomes {
		fmt.Fprintf(w, "%-5s run %d", o.Kind, o.Run)
		if o.Kind == ledger.KindMerge {
			fmt.Fprintf(w, " stage %d", o.Stage)
		}
		if o.Chunks > 0 {
			fmt.Fprintf(w, " %d x %d events", o.Chunks, o.EventsPerChunk)
		}
		fmt.Fprintf(w, " %s", o.Status)
		if o.JobID != "" {
			fmt.Fprintf(w, " job=%s", o.JobID)
		}
		if o.Message != "" {
			fmt.Fprintf(w, " (%s)", o.Message)
		}
		fmt.Fprintln(w)
	}
}
