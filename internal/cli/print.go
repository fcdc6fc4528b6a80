package cli

import (
	"bytes"
	"log/slog"

	"github.com/spf13/cobra"
)

// PrintSummary is the JSON form of the print command.
type PrintSummary struct {
	TemplateDir string            `json:"template_dir"`
	LocalDir    string            `json:"local_dir"`
	RemoteDir   string            `json:"remote_dir"`
	SnapshotDir string            `json:"snapshot_dir"`
	MergedDir   string            `json:"merged_dir,omitempty"`
	Runs        []int             `json:"runs"`
	Variables   map[string]string `json:"variables"`
	Files       []string          `json:"files"`
}

// NewPrintCommand creates the print command.
func NewPrintCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print the campaign configuration",
		Long: `Print the finalized campaign: directories, event policy, runs,
substitution variables and the files that would be uploaded.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrint(rootOpts, cmd)
		},
	}
}

func runPrint(opts *RootOptions, cmd *cobra.Command) error {
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
	s := loaded.Submitter

	if formatter.JSON() {
		cfg := s.Config()
		sum := PrintSummary{
			TemplateDir: cfg.TemplateDir,
			LocalDir:    cfg.LocalDir,
			RemoteDir:   cfg.RemoteDir,
			SnapshotDir: cfg.SnapshotDir,
			Runs:        s.Runs(),
			Variables:   map[string]string{},
			Files:       s.LocalFiles().Paths(),
		}
		if cfg.Merging {
			sum.MergedDir = cfg.MergedDir
		}
		s.Vars().Each(func(name, value string) { sum.Variables[name] = value })
		return formatter.Success(sum)
	}

	var buf bytes.Buffer
	if err := s.Summary(&buf); err != nil {
		return formatter.Fail("cannot print summary", err)
	}
	_, err = formatter.Writer.Write(buf.Bytes())
	return err
}
