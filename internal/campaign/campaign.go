// Package campaign ties the template pipeline, the snapshot step, the upload
// and the orchestrators into one configured Submitter, and dispatches the
// composite modes (LOCAL, UPLOAD, OCDB, SUBMIT, TEST, FULL).
//
// A Submitter owns the variable store, the template set, the local file list
// and the run list. It is not safe for concurrent use.
package campaign

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/accsubmit/internal/chunk"
	"github.com/roach88/accsubmit/internal/config"
	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/filelist"
	"github.com/roach88/accsubmit/internal/jdl"
	"github.com/roach88/accsubmit/internal/ledger"
	"github.com/roach88/accsubmit/internal/merge"
	"github.com/roach88/accsubmit/internal/remote"
	"github.com/roach88/accsubmit/internal/runlist"
	"github.com/roach88/accsubmit/internal/snapshot"
	"github.com/roach88/accsubmit/internal/vars"
)

// Deps are the external collaborators of a Submitter.
type Deps struct {
	Remote remote.Service

	// Scalers resolves trigger counts; required when the event target is
	// proportional.
	Scalers chunk.Lookup

	// Snapshots produces OCDB snapshots; required when snapshots are used.
	Snapshots snapshot.Generator

	// Ledger, when set, records every session and run outcome.
	Ledger *ledger.Ledger

	// Policy decides merges below the split threshold. Defaults to
	// merge.Proceed.
	Policy merge.Policy

	Logger *slog.Logger
}

// Submitter is a configured campaign.
type Submitter struct {
	cfg  config.Config
	deps Deps

	vars      *vars.Store
	compact   jdl.CompactMode
	templates filelist.TemplateSet
	local     *filelist.Local
	runs      []int

	// Resume skips runs the ledger already records as submitted.
	Resume bool
}

// New finalizes a configuration into a Submitter: variables are defined,
// the generator macro is validated and the file lists are computed.
func New(cfg config.Config, deps Deps) (*Submitter, error) {
	if deps.Remote == nil {
		return nil, errs.New(errs.Configuration, "no remote service")
	}
	if cfg.RemoteDir == "" {
		return nil, errs.New(errs.Configuration, "you must provide the grid location where to copy the files")
	}
	if info, err := os.Stat(cfg.TemplateDir); err != nil || !info.IsDir() {
		return nil, errs.New(errs.Configuration, "template directory does not exist").WithPath(cfg.TemplateDir)
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = cfg.LocalDir
	}
	if filepath.Clean(cfg.SnapshotDir) != filepath.Clean(cfg.LocalDir) {
		if _, err := os.Stat(filepath.Join(cfg.SnapshotDir, "OCDB")); err != nil {
			return nil, errs.New(errs.Configuration,
				"snapshot top directory should contain an OCDB subdir with run numbers in there").WithPath(cfg.SnapshotDir)
		}
	}
	if cfg.MergedDir == "" {
		cfg.MergedDir = remote.Join(cfg.RemoteDir, "AODs")
	}
	if cfg.Events.Ratio > 0 && deps.Scalers == nil {
		return nil, errs.New(errs.Configuration, "a proportional event target needs trigger scalers")
	}

	compact, err := jdl.ParseCompactMode(cfg.CompactMode)
	if err != nil {
		return nil, err
	}

	s := &Submitter{cfg: cfg, deps: deps, vars: vars.NewStore(), compact: compact}
	if err := s.defineVariables(); err != nil {
		return nil, err
	}
	if err := s.selectGenerator(cfg.Generator); err != nil {
		return nil, err
	}
	s.templates = filelist.Templates(s.options())
	s.local = filelist.NewLocal(s.templates)

	switch {
	case len(cfg.Runs) > 0:
		if err := s.SetRuns(cfg.Runs); err != nil {
			return nil, err
		}
	case cfg.RunList != "":
		if err := s.SetRunListFile(cfg.RunList); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Submitter) logger() *slog.Logger {
	if s.deps.Logger != nil {
		return s.deps.Logger
	}
	return slog.Default()
}

func (s *Submitter) defineVariables() error {
	s.vars.MustDefine(varOCDBPath, fmt.Sprintf("%q", s.cfg.OCDBPath))
	for _, kv := range defaultVariables {
		s.vars.MustDefine(kv[0], kv[1])
	}
	s.setSnapshotVariable()

	names := make([]string, 0, len(s.cfg.Variables))
	for name := range s.cfg.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.vars.Define(name, s.cfg.Variables[name]); err != nil {
			return errs.Wrap(errs.Configuration, err, "invalid variable")
		}
	}
	return nil
}

func (s *Submitter) setSnapshotVariable() {
	v := "kFALSE"
	if s.cfg.UseSnapshots {
		v = "kTRUE"
	}
	s.vars.MustDefine(varOCDBSnapshot, v)
}

// selectGenerator checks that the generator macro exists in the template
// directory and that every variable it uses is defined.
func (s *Submitter) selectGenerator(generator string) error {
	if generator == "" {
		return nil
	}
	path := filepath.Join(s.cfg.TemplateDir, filelist.GeneratorMacro(generator))
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return errs.New(errs.Configuration, "can not work with the macro").WithPath(path)
	}
	if err != nil {
		return errs.Wrap(errs.Configuration, err, "cannot read generator macro").WithPath(path)
	}

	// VAR_GENERATOR is set below and may be referenced by the macro itself.
	probe := s.vars.Clone()
	probe.MustDefine(varGenerator, generator)
	if missing := probe.Missing(string(data)); len(missing) > 0 {
		return errs.New(errs.Configuration,
			"macro expects variables that are not defined: %s", strings.Join(missing, ", ")).WithPath(path)
	}
	s.vars.MustDefine(varGenerator, generator)
	return nil
}

func (s *Submitter) options() filelist.Options {
	return filelist.Options{
		ExternalConfig: s.cfg.ExternalConfig,
		Generator:      s.cfg.Generator,
		Merging:        s.cfg.Merging,
	}
}

// Config returns the finalized configuration.
func (s *Submitter) Config() config.Config { return s.cfg }

// Vars returns the variable store.
func (s *Submitter) Vars() *vars.Store { return s.vars }

// Templates returns the template set.
func (s *Submitter) Templates() filelist.TemplateSet { return s.templates }

// LocalFiles returns the local file list.
func (s *Submitter) LocalFiles() *filelist.Local { return s.local }

// Runs returns the run list.
func (s *Submitter) Runs() []int { return append([]int(nil), s.runs...) }

// SetVar defines or overrides a substitution variable.
func (s *Submitter) SetVar(name, value string) error {
	return s.vars.Define(name, value)
}

// SetRuns replaces the run list. Snapshot entries of the previous runs are
// dropped and those already present on disk for the new runs are added.
func (s *Submitter) SetRuns(runs []int) error {
	for _, r := range runs {
		if r <= 0 {
			return errs.New(errs.Configuration, "invalid run number %d", r)
		}
	}
	s.runs = runlist.Dedupe(runs)
	s.refreshSnapshots(true)
	return nil
}

// SetRunListFile reads the run list from a file.
func (s *Submitter) SetRunListFile(path string) error {
	runs, err := runlist.Load(path)
	if err != nil {
		return err
	}
	return s.SetRuns(runs)
}

// SetMerging toggles merge support and recomputes the file lists.
func (s *Submitter) SetMerging(on bool) {
	s.cfg.Merging = on
	s.templates = filelist.Templates(s.options())
	s.local = filelist.NewLocal(s.templates)
	s.refreshSnapshots(false)
}

// SetUseSnapshots toggles OCDB snapshots.
func (s *Submitter) SetUseSnapshots(on bool) {
	s.cfg.UseSnapshots = on
	s.setSnapshotVariable()
	s.refreshSnapshots(false)
}

func (s *Submitter) refreshSnapshots(clear bool) {
	if clear {
		s.local.RemoveSnapshots()
	}
	for _, run := range s.runs {
		for _, phase := range filelist.Phases {
			p := filelist.SnapshotPath(s.cfg.SnapshotDir, run, phase)
			if _, err := os.Stat(p); err == nil {
				s.local.AddSnapshot(run, phase, p)
			}
		}
	}
}

// generator returns the job document generator. Merge documents are rooted
// at the merged directory.
func (s *Submitter) generator(forMerge bool) jdl.Generator {
	dir := s.cfg.RemoteDir
	if forMerge {
		dir = s.cfg.MergedDir
	}
	return jdl.Generator{
		Packages:           s.cfg.Packages,
		RemoteDir:          dir,
		Inputs:             s.templates.Entries(),
		UseSnapshots:       s.cfg.UseSnapshots,
		Compact:            s.compact,
		SplitMaxInputFiles: s.cfg.SplitMaxInputFiles,
	}
}

// JobDocument builds the document of a job-document entry.
func (s *Submitter) JobDocument(e filelist.Entry) (*jdl.Document, error) {
	return s.generator(e.IsMergeJobDocument()).ForEntry(e)
}

// localPath resolves an entry to its file on disk.
func (s *Submitter) localPath(e filelist.Entry) string {
	if filepath.IsAbs(e.Path) {
		return e.Path
	}
	return filepath.Join(s.cfg.LocalDir, e.Path)
}

// remotePath maps an entry to its upload destination. Snapshots keep their
// layout relative to the snapshot directory.
func (s *Submitter) remotePath(e filelist.Entry) string {
	if e.IsSnapshot() {
		rel, err := filepath.Rel(s.cfg.SnapshotDir, e.Path)
		if err == nil {
			return remote.Join(s.cfg.RemoteDir, filepath.ToSlash(rel))
		}
		return remote.Join(s.cfg.RemoteDir, "OCDB", fmt.Sprint(e.Run), filepath.Base(e.Path))
	}
	return remote.Join(s.cfg.RemoteDir, filepath.ToSlash(e.Path))
}
