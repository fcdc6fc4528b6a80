package cli

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/accsubmit/internal/campaign"
	"github.com/roach88/accsubmit/internal/config"
	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/ledger"
	"github.com/roach88/accsubmit/internal/merge"
	"github.com/roach88/accsubmit/internal/remote"
	"github.com/roach88/accsubmit/internal/scalers"
	"github.com/roach88/accsubmit/internal/snapshot"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric  = "E001" // Generic/unknown error
	ErrCodeNotFound = "E005" // Path not found

	ErrCodeConfig     = "E201" // Invalid configuration
	ErrCodeInvalidVar = "E202" // Invalid variable name
	ErrCodeUnresolved = "E203" // Template token with no variable
	ErrCodeConflict   = "E204" // Local file exists and overwrite is off
	ErrCodeRemote     = "E301" // Remote storage/grid failure
	ErrCodeTrigger    = "E302" // Reference trigger not found
)

// ErrorCode maps an error to its CLI error code.
func ErrorCode(err error) string {
	switch {
	case errs.IsConflict(err):
		return ErrCodeConflict
	case errs.IsUnresolved(err):
		return ErrCodeUnresolved
	case errs.Is(err, errs.InvalidName):
		return ErrCodeInvalidVar
	case errs.IsRemote(err):
		return ErrCodeRemote
	case errs.IsTriggerResolution(err):
		return ErrCodeTrigger
	case errors.Is(err, os.ErrNotExist):
		return ErrCodeNotFound
	case errs.IsConfiguration(err):
		return ErrCodeConfig
	}
	return ErrCodeGeneric
}

// ExitCode maps an error to a process exit code: configuration errors are
// command errors, everything else is a (partial) failure.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errs.KindOf(err) == errs.Configuration || errs.KindOf(err) == errs.InvalidName {
		return ExitCommandError
	}
	return ExitFailure
}

// setupLogging installs a text handler on w, at debug level when verbose.
func setupLogging(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Loaded is a campaign built from a configuration file, with the resources
// it holds open.
type Loaded struct {
	Config    *config.Config
	Submitter *campaign.Submitter
	Ledger    *ledger.Ledger
}

// Close releases the ledger, if any.
func (l *Loaded) Close() error {
	if l.Ledger == nil {
		return nil
	}
	return l.Ledger.Close()
}

// LoadOptions tune LoadCampaign.
type LoadOptions struct {
	Logger *slog.Logger
	Policy merge.Policy

	// Remote overrides the adapter selected by the configuration.
	Remote remote.Service
	// Snapshots overrides the configured snapshot command.
	Snapshots snapshot.Generator
}

// LoadConfig reads and validates the configuration file.
func LoadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "cannot read configuration").WithPath(path)
	}
	return config.Load(path)
}

// LoadCampaign reads the configuration and wires the campaign collaborators.
func LoadCampaign(path string, lo LoadOptions) (*Loaded, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logger := lo.Logger
	if logger == nil {
		logger = slog.Default()
	}

	deps := campaign.Deps{
		Remote:    lo.Remote,
		Snapshots: lo.Snapshots,
		Policy:    lo.Policy,
		Logger:    logger,
	}
	if deps.Remote == nil {
		if deps.Remote, err = newRemote(cfg.Remote); err != nil {
			return nil, err
		}
	}
	if deps.Snapshots == nil {
		line := cfg.SnapshotCommand
		if line == "" {
			line = snapshot.DefaultCommand
		}
		deps.Snapshots = &snapshot.Command{Line: line, Dir: cfg.LocalDir, Logger: logger}
	}
	if cfg.Scalers != "" {
		table, err := scalers.Load(cfg.Scalers)
		if err != nil {
			return nil, err
		}
		deps.Scalers = table
	}

	loaded := &Loaded{Config: cfg}
	if cfg.Ledger != "" {
		l, err := ledger.Open(cfg.Ledger)
		if err != nil {
			return nil, errs.Wrap(errs.Configuration, err, "cannot open ledger").WithPath(cfg.Ledger)
		}
		loaded.Ledger = l
		deps.Ledger = l
	}

	s, err := campaign.New(*cfg, deps)
	if err != nil {
		loaded.Close()
		return nil, err
	}
	loaded.Submitter = s
	logger.Debug("campaign loaded", "config", path, "runs", len(s.Runs()), "remote", cfg.RemoteDir)
	return loaded, nil
}

func newRemote(r config.Remote) (remote.Service, error) {
	switch r.Kind {
	case config.RemoteDir:
		d, err := remote.NewDir(r.Root)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.RemoteAlien, "":
		return remote.NewAlien(), nil
	}
	return nil, errs.New(errs.Configuration, "unknown remote kind %q", r.Kind)
}

func newFormatter(opts *RootOptions, w, errW io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    w,
		ErrWriter: errW,
		Verbose:   opts.Verbose,
	}
}
