package campaign

import (
	"context"
	"errors"
	"strings"

	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/pipeline"
	"github.com/roach88/accsubmit/internal/submit"
)

// Mode is a composite campaign action.
type Mode string

const (
	// ModeLocal stages the templates into the local directory.
	ModeLocal Mode = "LOCAL"
	// ModeUpload copies the local files to the remote directory.
	ModeUpload Mode = "UPLOAD"
	// ModeOCDB stages locally then produces the OCDB snapshots.
	ModeOCDB Mode = "OCDB"
	// ModeSubmit submits the run jobs.
	ModeSubmit Mode = "SUBMIT"
	// ModeTest is FULL with a dry-run submission.
	ModeTest Mode = "TEST"
	// ModeFull stages, snapshots, uploads and submits.
	ModeFull Mode = "FULL"
)

// Modes lists every mode.
var Modes = []Mode{ModeLocal, ModeUpload, ModeOCDB, ModeSubmit, ModeTest, ModeFull}

// ParseMode parses a mode name, ignoring case.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", errs.New(errs.Configuration, "unknown mode %q", s)
}

// Report collects the results of the steps a mode ran.
type Report struct {
	Mode   Mode             `json:"mode"`
	Local  *pipeline.Result `json:"local,omitempty"`
	Submit *submit.Result   `json:"submit,omitempty"`
	Steps  []Mode           `json:"steps"`
}

// ErrNoJobs is returned when a submitting mode ends with no job.
var ErrNoJobs = errors.New("no job submitted")

// Run executes mode. Composite modes stop at the first failing step.
func (s *Submitter) Run(ctx context.Context, mode Mode) (*Report, error) {
	rep := &Report{Mode: mode}
	s.logger().Info("running", "mode", mode, "runs", len(s.runs))

	switch mode {
	case ModeLocal:
		return rep, s.runLocal(ctx, rep)
	case ModeUpload:
		return rep, s.runUpload(ctx, rep)
	case ModeOCDB:
		if err := s.runLocal(ctx, rep); err != nil {
			return rep, err
		}
		return rep, s.runSnapshots(ctx, rep)
	case ModeSubmit:
		return rep, s.runSubmit(ctx, rep, mode, false)
	case ModeTest, ModeFull:
		if err := s.runLocal(ctx, rep); err != nil {
			return rep, err
		}
		if err := s.runSnapshots(ctx, rep); err != nil {
			return rep, err
		}
		if err := s.runUpload(ctx, rep); err != nil {
			return rep, err
		}
		return rep, s.runSubmit(ctx, rep, mode, mode == ModeTest)
	}
	return rep, errs.New(errs.Configuration, "unknown mode %q", string(mode))
}

func (s *Submitter) runLocal(ctx context.Context, rep *Report) error {
	rep.Steps = append(rep.Steps, ModeLocal)
	res, err := s.Local(ctx)
	rep.Local = res
	return err
}

func (s *Submitter) runSnapshots(ctx context.Context, rep *Report) error {
	rep.Steps = append(rep.Steps, ModeOCDB)
	return s.Snapshots(ctx)
}

func (s *Submitter) runUpload(ctx context.Context, rep *Report) error {
	rep.Steps = append(rep.Steps, ModeUpload)
	return s.Upload(ctx)
}

func (s *Submitter) runSubmit(ctx context.Context, rep *Report, mode Mode, dryRun bool) error {
	rep.Steps = append(rep.Steps, ModeSubmit)
	res, err := s.submit(ctx, string(mode), dryRun)
	rep.Submit = res
	if err != nil {
		return err
	}
	if res.TotalChunks == 0 && len(res.Skipped) == 0 {
		return ErrNoJobs
	}
	return nil
}
