package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	Config    string `json:"config"`
	Runs      int    `json:"runs"`
	Templates int    `json:"templates"`
	Generator string `json:"generator,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the campaign configuration",
		Long: `Validate the campaign configuration without touching any file.

Checks the configuration against its schema, the template and snapshot
directories, the generator macro and its variables, and the run list.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	loaded, err := LoadCampaign(opts.Config, LoadOptions{Logger: logger})
	if err != nil {
		return formatter.Fail("invalid campaign", err)
	}
	defer func() {
		if closeErr := loaded.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()

	s := loaded.Submitter
	formatter.VerboseLog("Template set: %v", s.Templates().Paths())

	res := ValidationResult{
		Valid:     true,
		Config:    opts.Config,
		Runs:      len(s.Runs()),
		Templates: s.Templates().Len(),
		Generator: s.Config().Generator,
	}
	return formatter.Result(res, func(w io.Writer) {
		fmt.Fprintln(w, "✓ Campaign configuration is valid")
	})
}
