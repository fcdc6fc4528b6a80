// Package pipeline stages template files into the local working directory.
//
// Every template entry is copied from the template directory to the local
// directory, then its variables are substituted. A job document missing from
// the template directory is generated instead. The pipeline never stops at
// the first problem: conflicts and failures are collected and reported
// together once every entry has been handled.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/filelist"
	"github.com/roach88/accsubmit/internal/jdl"
	"github.com/roach88/accsubmit/internal/vars"
)

// GenerateFunc builds the job document of a job-document entry.
type GenerateFunc func(filelist.Entry) (*jdl.Document, error)

// Pipeline copies, generates and substitutes the template set.
type Pipeline struct {
	TemplateDir string
	LocalDir    string

	// Overwrite allows replacing files already present in LocalDir.
	Overwrite bool

	Vars      *vars.Store
	Templates filelist.TemplateSet
	Generate  GenerateFunc
	Logger    *slog.Logger
}

// Result lists what happened to each entry, by local path.
type Result struct {
	Copied      []string `json:"copied,omitempty"`
	Generated   []string `json:"generated,omitempty"`
	Substituted []string `json:"substituted,omitempty"`
	Conflicts   []string `json:"conflicts,omitempty"`
	Errors      []error  `json:"-"`
}

// OK reports whether every entry was staged.
func (r *Result) OK() bool {
	return len(r.Conflicts) == 0 && len(r.Errors) == 0
}

// Err aggregates conflicts and failures, or returns nil.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	all := make([]error, 0, len(r.Conflicts)+len(r.Errors))
	for _, p := range r.Conflicts {
		all = append(all, errs.New(errs.Conflict, "local file already exists and overwrite is off").WithPath(p))
	}
	all = append(all, r.Errors...)
	return errors.Join(all...)
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Run stages every template entry. The returned error is Result.Err().
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{}
	if err := os.MkdirAll(p.LocalDir, 0755); err != nil {
		res.Errors = append(res.Errors, errs.Wrap(errs.Configuration, err, "cannot create local dir").WithPath(p.LocalDir))
		return res, res.Err()
	}

	for _, e := range p.Templates.Entries() {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err)
			break
		}
		if e.IsSnapshot() {
			continue
		}
		p.stage(e, res)
	}

	if !res.OK() {
		p.logger().Error("local staging incomplete",
			"conflicts", len(res.Conflicts), "errors", len(res.Errors))
	}
	return res, res.Err()
}

func (p *Pipeline) stage(e filelist.Entry, res *Result) {
	log := p.logger()
	dst := filepath.Join(p.LocalDir, e.Path)

	if exists(dst) && !p.Overwrite {
		log.Error("local file already exists", "path", dst)
		res.Conflicts = append(res.Conflicts, dst)
		return
	}

	src := filepath.Join(p.TemplateDir, e.Path)
	if err := copyFile(src, dst); err != nil {
		if !e.IsJobDocument() || p.Generate == nil {
			log.Error("cannot copy template", "src", src, "dst", dst, "error", err)
			res.Errors = append(res.Errors, fmt.Errorf("copy %s: %w", e.Path, err))
			return
		}
		doc, err := p.Generate(e)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("generate %s: %w", e.Path, err))
			return
		}
		if err := jdl.Write(dst, doc, true); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("generate %s: %w", e.Path, err))
			return
		}
		log.Info("generated job document", "path", dst, "kind", e.Kind.String())
		res.Generated = append(res.Generated, dst)
	} else {
		log.Debug("copied template", "src", src, "dst", dst)
		res.Copied = append(res.Copied, dst)
	}

	has, err := vars.HasVars(dst)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("scan %s: %w", e.Path, err))
		return
	}
	if !has {
		return
	}
	stats, err := p.Vars.SubstituteFile(dst)
	if err != nil {
		log.Error("variable substitution failed", "path", dst,
			"nvars", stats.Vars, "nreplaced", stats.Replaced, "unresolved", stats.Unresolved)
		res.Errors = append(res.Errors, err)
		return
	}
	log.Debug("substituted variables", "path", dst, "nvars", stats.Vars)
	res.Substituted = append(res.Substituted, dst)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
