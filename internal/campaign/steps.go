package campaign

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/roach88/accsubmit/internal/chunk"
	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/filelist"
	"github.com/roach88/accsubmit/internal/ledger"
	"github.com/roach88/accsubmit/internal/merge"
	"github.com/roach88/accsubmit/internal/pipeline"
	"github.com/roach88/accsubmit/internal/remote"
	"github.com/roach88/accsubmit/internal/snapshot"
	"github.com/roach88/accsubmit/internal/submit"
)

// Local stages the template set into the local directory.
func (s *Submitter) Local(ctx context.Context) (*pipeline.Result, error) {
	p := &pipeline.Pipeline{
		TemplateDir: s.cfg.TemplateDir,
		LocalDir:    s.cfg.LocalDir,
		Overwrite:   s.cfg.Overwrite,
		Vars:        s.vars,
		Templates:   s.templates,
		Generate:    s.JobDocument,
		Logger:      s.logger(),
	}
	return p.Run(ctx)
}

// Snapshots makes sure both OCDB snapshots exist for every run and adds them
// to the local file list. It is a no-op when snapshots are disabled.
func (s *Submitter) Snapshots(ctx context.Context) error {
	if !s.cfg.UseSnapshots {
		return nil
	}
	if len(s.runs) == 0 {
		return errs.New(errs.Configuration, "no run to work with")
	}
	if s.deps.Snapshots == nil {
		return errs.New(errs.Configuration, "no snapshot generator configured")
	}

	log := s.logger()
	var failures []error
	for _, run := range s.runs {
		if err := ctx.Err(); err != nil {
			return err
		}
		generated, err := snapshot.Ensure(ctx, s.deps.Snapshots, s.cfg.SnapshotDir, run)
		if err != nil {
			log.Error("snapshot generation failed", "run", run, "error", err)
			failures = append(failures, fmt.Errorf("run %d: %w", run, err))
		} else if generated {
			log.Info("snapshots generated", "run", run)
		} else {
			log.Debug("snapshots already present", "run", run)
		}
	}
	s.refreshSnapshots(false)
	return errors.Join(failures...)
}

// Upload copies every local file to the remote directory. Snapshots keep
// their path relative to the snapshot directory. With merging enabled the
// merge job documents and the files they reference are also placed in the
// merged directory.
func (s *Submitter) Upload(ctx context.Context) error {
	log := s.logger()
	svc := s.deps.Remote

	ok, err := svc.DirExists(ctx, s.cfg.RemoteDir)
	if err != nil {
		return err
	}
	if !ok {
		if !s.cfg.RemoteCreate {
			return errs.New(errs.Remote, "remote directory does not exist").WithPath(s.cfg.RemoteDir)
		}
		if err := svc.Mkdir(ctx, s.cfg.RemoteDir, true); err != nil {
			return err
		}
		log.Info("remote directory created", "dir", s.cfg.RemoteDir)
	}

	type copyJob struct{ src, dst string }
	var jobs []copyJob
	mergedElsewhere := s.cfg.Merging && remote.Clean(s.cfg.MergedDir) != remote.Clean(s.cfg.RemoteDir)
	for _, e := range s.local.Entries() {
		src := s.localPath(e)
		jobs = append(jobs, copyJob{src, s.remotePath(e)})
		if mergedElsewhere && isMergeInput(e) {
			jobs = append(jobs, copyJob{src, remote.Join(s.cfg.MergedDir, e.Path)})
		}
	}

	var failures []error
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.copyOne(ctx, j.src, j.dst); err != nil {
			log.Error("upload failed", "file", j.src, "error", err)
			failures = append(failures, err)
			continue
		}
		log.Debug("uploaded", "file", j.src, "remote", j.dst)
	}
	if len(failures) > 0 {
		return errors.Join(append([]error{fmt.Errorf("%d of %d files not uploaded", len(failures), len(jobs))}, failures...)...)
	}
	log.Info("upload done", "files", len(jobs), "remote", s.cfg.RemoteDir)
	return nil
}

// isMergeInput reports whether merge jobs read e from the merged directory.
func isMergeInput(e filelist.Entry) bool {
	switch e.Path {
	case filelist.AODTrain, filelist.MergeScript, filelist.MergeValidation:
		return true
	}
	return e.IsMergeJobDocument()
}

// copyOne replaces dst with the content of src.
func (s *Submitter) copyOne(ctx context.Context, src, dst string) error {
	svc := s.deps.Remote
	if _, err := os.Stat(src); err != nil {
		return errs.Wrap(errs.Configuration, err, "local file does not exist").WithPath(src)
	}
	if err := remote.EnsureDir(ctx, svc, path.Dir(dst)); err != nil {
		return err
	}
	exists, err := svc.FileExists(ctx, dst)
	if err != nil {
		return err
	}
	if exists {
		if err := svc.Remove(ctx, dst); err != nil {
			return err
		}
	}
	return svc.CopyIn(ctx, src, dst)
}

// session opens a ledger session, or returns the discard recorder when no
// ledger is configured.
func (s *Submitter) session(ctx context.Context, mode string, dryRun bool) (ledger.Recorder, error) {
	if s.deps.Ledger == nil {
		return ledger.Discard, nil
	}
	sess, err := s.deps.Ledger.StartSession(ctx, mode, dryRun, s.cfg.RemoteDir)
	if err != nil {
		return nil, err
	}
	s.logger().Debug("ledger session started", "session", sess.ID, "mode", mode)
	return sess, nil
}

// Submit submits (or, with dryRun, only plans) one job per run.
func (s *Submitter) Submit(ctx context.Context, dryRun bool) (*submit.Result, error) {
	return s.submit(ctx, string(ModeSubmit), dryRun)
}

func (s *Submitter) submit(ctx context.Context, mode string, dryRun bool) (*submit.Result, error) {
	rec, err := s.session(ctx, mode, dryRun)
	if err != nil {
		return nil, err
	}
	o := &submit.Orchestrator{
		Remote:      s.deps.Remote,
		RemoteDir:   s.cfg.RemoteDir,
		JobDocument: filelist.RunJDL,
		Runs:        s.runs,
		Target: chunk.Target{
			Fixed:   s.cfg.Events.Fixed,
			Ratio:   s.cfg.Events.Ratio,
			Trigger: s.cfg.Events.Trigger,
		},
		MaxPerChunk:   s.cfg.Events.MaxPerChunk,
		Scalers:       s.deps.Scalers,
		DryRun:        dryRun,
		SkipSubmitted: s.Resume && s.deps.Ledger != nil,
		Recorder:      rec,
		Logger:        s.logger(),
	}
	if s.deps.Ledger != nil {
		o.History = s.deps.Ledger
	}
	return o.Submit(ctx)
}

// Merge submits merge jobs of the given stage for every run; stage 0 is the
// final merge.
func (s *Submitter) Merge(ctx context.Context, stage int, dryRun bool) (*merge.Result, error) {
	if !s.cfg.Merging {
		return nil, errs.New(errs.Configuration, "merging is not enabled")
	}
	rec, err := s.session(ctx, "MERGE", dryRun)
	if err != nil {
		return nil, err
	}
	policy := s.deps.Policy
	if policy == nil {
		policy = merge.Proceed
	}
	o := &merge.Orchestrator{
		Remote:    s.deps.Remote,
		SourceDir: s.cfg.RemoteDir,
		MergedDir: s.cfg.MergedDir,
		WorkDir:   s.cfg.LocalDir,
		Runs:      s.runs,
		Threshold: s.cfg.MergeSplitThreshold,
		Policy:    merge.Sticky(policy),
		Recorder:  rec,
		DryRun:    dryRun,
		Logger:    s.logger(),
	}
	return o.Merge(ctx, stage)
}
