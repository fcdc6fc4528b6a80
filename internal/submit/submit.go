// Package submit sends the run jobs of a campaign, one master job per run.
//
// Each run is planned with the chunk calculator and submitted as
// "submit <run jdl> <run> <chunks> <events per chunk>". A run whose trigger
// count cannot be resolved, or whose submission fails, is reported and the
// batch moves on.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/accsubmit/internal/chunk"
	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/filelist"
	"github.com/roach88/accsubmit/internal/ledger"
	"github.com/roach88/accsubmit/internal/remote"
)

// SubmittedChecker reports runs already submitted by an earlier session.
type SubmittedChecker interface {
	Submitted(ctx context.Context, run int) (bool, error)
}

// Orchestrator submits run jobs.
type Orchestrator struct {
	Remote    remote.Service
	RemoteDir string

	// JobDocument is the run job document name under RemoteDir.
	JobDocument string

	Runs        []int
	Target      chunk.Target
	MaxPerChunk int
	Scalers     chunk.Lookup

	DryRun bool

	// SkipSubmitted, with History set, leaves out runs already submitted.
	SkipSubmitted bool
	History       SubmittedChecker

	Recorder ledger.Recorder
	Logger   *slog.Logger
}

// Job is one submitted (or simulated) run.
type Job struct {
	chunk.Plan
	Request string `json:"request"`
	JobID   string `json:"job_id,omitempty"`
}

// Failure is a run that could not be submitted.
type Failure struct {
	Run int   `json:"run"`
	Err error `json:"-"`
}

// Result is the outcome of a Submit call.
type Result struct {
	Jobs    []Job     `json:"jobs"`
	Failed  []Failure `json:"-"`
	Skipped []int     `json:"skipped,omitempty"`

	// TotalChunks and TotalEvents sum the plans of Jobs.
	TotalChunks int `json:"total_chunks"`
	TotalEvents int `json:"total_events"`
}

// Submitted returns the number of runs submitted (or simulated).
func (r *Result) Submitted() int { return len(r.Jobs) }

// FailedRuns returns the failed run numbers in order.
func (r *Result) FailedRuns() []int {
	out := make([]int, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = f.Run
	}
	return out
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

// JobDocumentPath returns the remote path of the run job document.
func (o *Orchestrator) JobDocumentPath() string {
	name := o.JobDocument
	if name == "" {
		name = filelist.RunJDL
	}
	return remote.Join(o.RemoteDir, name)
}

// Submit plans and submits every run. Missing remote dir, missing job
// document and an empty run list are fatal. The returned error lists every
// run that failed.
func (o *Orchestrator) Submit(ctx context.Context) (*Result, error) {
	log := o.logger()

	ok, err := o.Remote.DirExists(ctx, o.RemoteDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.Remote, "remote directory does not exist").WithPath(o.RemoteDir)
	}
	jdl := o.JobDocumentPath()
	ok, err = o.Remote.FileExists(ctx, jdl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.Remote, "run job document does not exist").WithPath(jdl)
	}
	if len(o.Runs) == 0 {
		return nil, errs.New(errs.Configuration, "no run to work with")
	}

	res := &Result{}
	for _, run := range o.Runs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if o.SkipSubmitted && o.History != nil {
			done, err := o.History.Submitted(ctx, run)
			if err != nil {
				return res, fmt.Errorf("check history of run %d: %w", run, err)
			}
			if done {
				log.Info("run already submitted, skipped", "run", run)
				res.Skipped = append(res.Skipped, run)
				o.record(ctx, ledger.Outcome{Run: run, Status: ledger.StatusSkipped, Message: "already submitted"})
				continue
			}
		}

		job, err := o.submitRun(ctx, run, jdl)
		if err != nil {
			log.Error("run not submitted", "run", run, "error", err)
			res.Failed = append(res.Failed, Failure{Run: run, Err: err})
			out := ledger.Outcome{Run: run, Status: ledger.StatusFailed, Message: err.Error()}
			if job != nil {
				out.Chunks, out.EventsPerChunk, out.Request = job.Chunks, job.EventsPerChunk, job.Request
			}
			o.record(ctx, out)
			continue
		}

		res.Jobs = append(res.Jobs, *job)
		res.TotalChunks += job.Chunks
		res.TotalEvents += job.Total()
		status := ledger.StatusSubmitted
		if o.DryRun {
			status = ledger.StatusDryRun
		}
		o.record(ctx, ledger.Outcome{
			Run:            run,
			Chunks:         job.Chunks,
			EventsPerChunk: job.EventsPerChunk,
			Request:        job.Request,
			JobID:          job.JobID,
			Status:         status,
		})
	}

	log.Info("submission done",
		"jobs", res.TotalChunks, "events", res.TotalEvents,
		"runs", res.Submitted(), "failed", len(res.Failed))

	if len(res.Failed) > 0 {
		all := []error{fmt.Errorf("submission failed for runs %v", res.FailedRuns())}
		for _, f := range res.Failed {
			all = append(all, f.Err)
		}
		return res, errors.Join(all...)
	}
	return res, nil
}

func (o *Orchestrator) submitRun(ctx context.Context, run int, jdl string) (*Job, error) {
	plan, err := chunk.For(ctx, run, o.Target, o.MaxPerChunk, o.Scalers)
	if err != nil {
		return nil, err
	}
	job := &Job{
		Plan:    plan,
		Request: fmt.Sprintf("submit %s %d %d %d", jdl, run, plan.Chunks, plan.EventsPerChunk),
	}
	log := o.logger().With("run", run)
	log.Info("planned run", "chunks", plan.Chunks, "events_per_chunk", plan.EventsPerChunk)

	if o.DryRun {
		log.Info("dry run", "request", job.Request)
		return job, nil
	}
	id, err := o.Remote.Submit(ctx, job.Request)
	if err != nil {
		return job, errs.Wrap(errs.Remote, err, "submit").WithRun(run)
	}
	job.JobID = id
	log.Info("job submitted", "request", job.Request, "job_id", id)
	return job, nil
}

func (o *Orchestrator) record(ctx context.Context, out ledger.Outcome) {
	out.Kind = ledger.KindRun
	if err := o.recorder().Record(ctx, out); err != nil {
		o.logger().Warn("cannot record outcome", "run", out.Run, "error", err)
	}
}
