// Package merge drives the hierarchical merge of per-chunk outputs.
//
// Layout, with <merged> the merge root and <source> the simulation output
// root:
//
//	<merged>/AOD_merge.jdl, AOD_merge_final.jdl   merge job documents
//	<merged>/<run>/Stage_<n>/                      output of intermediate stage n
//	<merged>/<run>/Stage_<n>.xml, wn.xml           uploaded collections
//	<merged>/<run>/root_archive.zip                final merge output
//	<source>/<run>/<chunk>/root_archive.zip        simulation output
//
// Stage 0 is the final merge. Intermediate stage s is accepted for a run only
// when its last completed stage is s-1.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/filelist"
	"github.com/roach88/accsubmit/internal/ledger"
	"github.com/roach88/accsubmit/internal/remote"
)

// DefaultThreshold is the default minimal split threshold.
const DefaultThreshold = 10

// ArchiveName is the per-job output archive collected for merging.
const ArchiveName = "root_archive.zip"

var stageDir = regexp.MustCompile(`^Stage_(\d+)$`)

// Orchestrator submits merge jobs for a list of runs.
type Orchestrator struct {
	Remote remote.Service

	// SourceDir holds the simulation outputs, MergedDir the merge tree.
	SourceDir string
	MergedDir string

	// WorkDir receives collections before upload. Defaults to os.TempDir().
	WorkDir string

	Runs []int

	// Threshold is the minimal split threshold for intermediate stages.
	// Zero selects DefaultThreshold.
	Threshold int
	Policy    Policy

	Recorder ledger.Recorder
	DryRun   bool
	Logger   *slog.Logger
}

// Job is a submitted (or simulated) merge job.
type Job struct {
	Run     int    `json:"run"`
	Stage   int    `json:"stage"`
	Files   int    `json:"files"`
	Request string `json:"request"`
	JobID   string `json:"job_id,omitempty"`
}

// Result is the outcome of one Merge call.
type Result struct {
	Submitted []Job `json:"submitted"`
	Rejected  []int `json:"rejected,omitempty"`
	Skipped   []int `json:"skipped,omitempty"`
	Failed    []int `json:"failed,omitempty"`
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) recorder() ledger.Recorder {
	if o.Recorder != nil {
		return o.Recorder
	}
	return ledger.Discard
}

// JobDocument returns the remote path of the merge job document of stage.
func (o *Orchestrator) JobDocument(stage int) string {
	name := filelist.MergeJDL
	if stage == 0 {
		name = filelist.FinalMergeJDL
	}
	return remote.Join(o.MergedDir, name)
}

// LastStage returns the last completed stage under runDir: the largest k
// such that Stage_1 ... Stage_k all exist.
func LastStage(ctx context.Context, svc remote.Service, runDir string) (int, error) {
	entries, err := svc.List(ctx, runDir)
	if err != nil {
		return 0, err
	}
	present := map[int]bool{}
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		if m := stageDir.FindStringSubmatch(e.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			present[n] = true
		}
	}
	k := 0
	for present[k+1] {
		k++
	}
	return k, nil
}

// Collect returns the archives under dir, sorted. Stage_* sub-directories
// are skipped when skipStages is set.
func Collect(ctx context.Context, svc remote.Service, dir string, skipStages bool) ([]string, error) {
	var skip func(string) bool
	if skipStages {
		skip = func(name string) bool { return stageDir.MatchString(name) }
	}
	var out []string
	err := remote.Walk(ctx, svc, dir, skip, func(file string) {
		if strings.HasSuffix(file, ArchiveName) && file != remote.Join(dir, ArchiveName) {
			out = append(out, file)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Merge submits stage for every run. Missing merge root, missing job
// document and an empty run list are fatal. Per-run failures are collected
// and the returned error lists every failed run.
func (o *Orchestrator) Merge(ctx context.Context, stage int) (*Result, error) {
	log := o.logger()
	if stage < 0 {
		return nil, errs.New(errs.Configuration, "invalid merge stage %d", stage)
	}

	ok, err := o.Remote.DirExists(ctx, o.MergedDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.Remote, "merged directory does not exist").WithPath(o.MergedDir)
	}
	jdl := o.JobDocument(stage)
	ok, err = o.Remote.FileExists(ctx, jdl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.Remote, "merge job document does not exist").WithPath(jdl)
	}
	if len(o.Runs) == 0 {
		return nil, errs.New(errs.Configuration, "no run to work with")
	}

	res := &Result{}
	var failures []error
	for _, run := range o.Runs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		log.Info("processing run", "run", run, "stage", stage)
		job, status, err := o.mergeRun(ctx, run, stage, jdl)

		out := ledger.Outcome{Kind: ledger.KindMerge, Run: run, Stage: stage, Status: status}
		if job != nil {
			out.Request, out.JobID = job.Request, job.JobID
		}
		if err != nil {
			out.Message = err.Error()
		}
		if rerr := o.recorder().Record(ctx, out); rerr != nil {
			log.Warn("cannot record merge outcome", "run", run, "error", rerr)
		}

		switch status {
		case ledger.StatusSubmitted, ledger.StatusDryRun:
			res.Submitted = append(res.Submitted, *job)
		case ledger.StatusRejected:
			res.Rejected = append(res.Rejected, run)
		case ledger.StatusSkipped:
			res.Skipped = append(res.Skipped, run)
		case ledger.StatusFailed:
			res.Failed = append(res.Failed, run)
			failures = append(failures, err)
		}
	}

	if len(res.Failed) > 0 {
		log.Error("merge failed for some runs", "runs", res.Failed)
		return res, errors.Join(append([]error{fmt.Errorf("merge failed for runs %v", res.Failed)}, failures...)...)
	}
	return res, nil
}

func (o *Orchestrator) mergeRun(ctx context.Context, run, stage int, jdl string) (*Job, ledger.Status, error) {
	log := o.logger().With("run", run)
	runDir := remote.Join(o.MergedDir, strconv.Itoa(run))

	if err := remote.EnsureDir(ctx, o.Remote, runDir); err != nil {
		return nil, ledger.StatusFailed, err
	}

	done, err := o.Remote.FileExists(ctx, remote.Join(runDir, ArchiveName))
	if err != nil {
		return nil, ledger.StatusFailed, err
	}
	if done {
		log.Warn("final merging already done")
		return nil, ledger.StatusSkipped, nil
	}

	last, err := LastStage(ctx, o.Remote, runDir)
	if err != nil {
		return nil, ledger.StatusFailed, err
	}
	if stage > 0 && stage != last+1 {
		log.Error("stage out of order", "last_stage", last, "next_stage", last+1, "requested", stage)
		return nil, ledger.StatusRejected,
			errs.New(errs.Configuration, "latest merging stage = %d, next must be stage %d or final stage", last, last+1).WithRun(run)
	}

	var source string
	if last == 0 {
		source = remote.Join(o.SourceDir, strconv.Itoa(run))
	} else {
		source = remote.Join(runDir, fmt.Sprintf("Stage_%d", last))
	}
	ok, err := o.Remote.DirExists(ctx, source)
	if err != nil {
		return nil, ledger.StatusFailed, err
	}
	if !ok {
		log.Warn("collection of files to merge is empty", "source", source, "reason", "no such directory")
		return nil, ledger.StatusSkipped, nil
	}
	archives, err := Collect(ctx, o.Remote, source, last == 0)
	if err != nil {
		return nil, ledger.StatusFailed, err
	}
	log.Info("collected files to merge", "files", len(archives), "source", source)
	if len(archives) == 0 {
		log.Warn("collection of files to merge is empty")
		return nil, ledger.StatusSkipped, nil
	}

	threshold := o.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if stage > 0 && len(archives) <= threshold {
		policy := o.Policy
		if policy == nil {
			policy = Proceed
		}
		if !policy.ShouldProceedBelowThreshold(run, len(archives)) {
			log.Warn("files to merge below split threshold, skipped", "files", len(archives), "threshold", threshold)
			return nil, ledger.StatusSkipped, nil
		}
	}

	coll := NewCollection(stage, archives)
	request := fmt.Sprintf("submit %s %d", jdl, run)
	if stage > 0 {
		request = fmt.Sprintf("submit %s %d %d", jdl, run, stage)
	}
	job := &Job{Run: run, Stage: stage, Files: coll.Len(), Request: request}

	if o.DryRun {
		log.Info("dry run", "request", request)
		return job, ledger.StatusDryRun, nil
	}

	if err := o.upload(ctx, coll, remote.Join(runDir, coll.Name())); err != nil {
		return job, ledger.StatusFailed, err
	}
	id, err := o.Remote.Submit(ctx, request)
	if err != nil {
		log.Error("merge submission failed", "request", request, "error", err)
		return job, ledger.StatusFailed, errs.Wrap(errs.Remote, err, "submit").WithRun(run)
	}
	job.JobID = id
	log.Info("merge job submitted", "request", request, "job_id", id)
	return job, ledger.StatusSubmitted, nil
}

// upload writes coll locally and copies it to dst, replacing any previous
// collection.
func (o *Orchestrator) upload(ctx context.Context, coll *Collection, dst string) error {
	f, err := os.CreateTemp(o.WorkDir, "collection-*.xml")
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := coll.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write collection: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write collection: %w", err)
	}

	exists, err := o.Remote.FileExists(ctx, dst)
	if err != nil {
		return err
	}
	if exists {
		if err := o.Remote.Remove(ctx, dst); err != nil {
			return err
		}
	}
	return o.Remote.CopyIn(ctx, f.Name(), dst)
}
