package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"regexp"
	"strings"

	"github.com/roach88/accsubmit/internal/errs"
)

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner. Standard error is folded into the returned error.
// A tool that exits reporting a missing path yields an error matching
// fs.ErrNotExist.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	msg := strings.TrimSpace(stderr.String())
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil && strings.Contains(strings.ToLower(msg), "no such file") {
		err = fmt.Errorf("%w (%v)", fs.ErrNotExist, err)
	}
	return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
}

// Alien drives the alien command-line tools.
type Alien struct {
	Runner Runner
}

// NewAlien creates an Alien adapter using os/exec.
func NewAlien() *Alien {
	return &Alien{Runner: ExecRunner{}}
}

func (a *Alien) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r := a.Runner
	if r == nil {
		r = ExecRunner{}
	}
	return r.Run(ctx, name, args...)
}

// DirExists implements Service by looking for "<base>/" in the listing of
// the parent directory.
func (a *Alien) DirExists(ctx context.Context, dir string) (bool, error) {
	dir = strings.TrimRight(Clean(dir), "/")
	if dir == "" {
		return false, nil
	}
	parent, base := splitPath(dir)
	out, found, err := a.lookup(ctx, dir, "-F", parent)
	if err != nil || !found {
		return false, err
	}
	for _, line := range lines(out) {
		if line == base+"/" {
			return true, nil
		}
	}
	return false, nil
}

// FileExists implements Service.
func (a *Alien) FileExists(ctx context.Context, file string) (bool, error) {
	out, found, err := a.lookup(ctx, file, Clean(file))
	if err != nil || !found {
		return false, err
	}
	return len(lines(out)) > 0, nil
}

// lookup runs alien_ls for an existence check on path. A missing path is
// reported as not found; any other failure is a Remote error.
func (a *Alien) lookup(ctx context.Context, path string, args ...string) ([]byte, bool, error) {
	out, err := a.run(ctx, "alien_ls", args...)
	switch {
	case err == nil:
		return out, true, nil
	case ctx.Err() != nil:
		return nil, false, errs.Wrap(errs.Remote, ctx.Err(), "list").WithPath(path)
	case errors.Is(err, fs.ErrNotExist):
		return nil, false, nil
	}
	return nil, false, errs.Wrap(errs.Remote, err, "list").WithPath(path)
}

// Mkdir implements Service.
func (a *Alien) Mkdir(ctx context.Context, dir string, recursive bool) error {
	args := []string{Clean(dir)}
	if recursive {
		args = append([]string{"-p"}, args...)
	}
	if _, err := a.run(ctx, "alien_mkdir", args...); err != nil {
		return errs.Wrap(errs.Remote, err, "mkdir").WithPath(dir)
	}
	return nil
}

// CopyIn implements Service.
func (a *Alien) CopyIn(ctx context.Context, localPath, remotePath string) error {
	if _, err := a.run(ctx, "alien_cp", "file:"+localPath, "alien://"+Clean(remotePath)); err != nil {
		return errs.Wrap(errs.Remote, err, "copy").WithPath(remotePath)
	}
	return nil
}

// List implements Service. Directory names carry a trailing slash in
// "alien_ls -F" output.
func (a *Alien) List(ctx context.Context, dir string) ([]Entry, error) {
	out, err := a.run(ctx, "alien_ls", "-F", Clean(dir))
	if err != nil {
		return nil, errs.Wrap(errs.Remote, err, "list").WithPath(dir)
	}
	var entries []Entry
	for _, line := range lines(out) {
		if strings.HasSuffix(line, "/") {
			entries = append(entries, Entry{Name: strings.TrimSuffix(line, "/"), IsDir: true})
			continue
		}
		entries = append(entries, Entry{Name: line})
	}
	return entries, nil
}

// Remove implements Service.
func (a *Alien) Remove(ctx context.Context, file string) error {
	if _, err := a.run(ctx, "alien_rm", Clean(file)); err != nil {
		return errs.Wrap(errs.Remote, err, "remove").WithPath(file)
	}
	return nil
}

var jobIDPattern = regexp.MustCompile(`(?i)job\s*id(?:\s+is)?\s*[:=]?\s*(\d+)`)

// Submit implements Service. The request's "submit" verb maps onto
// alien_submit; the job ID is parsed from its output.
func (a *Alien) Submit(ctx context.Context, request string) (string, error) {
	fields := strings.Fields(request)
	if len(fields) < 2 || fields[0] != "submit" {
		return "", errs.New(errs.Remote, "malformed request %q", request)
	}
	out, err := a.run(ctx, "alien_submit", fields[1:]...)
	if err != nil {
		return "", errs.Wrap(errs.Remote, err, "submit %s", fields[1])
	}
	m := jobIDPattern.FindSubmatch(out)
	if m == nil {
		return "", errs.New(errs.Remote, "no job ID in submit output: %s", strings.TrimSpace(string(out)))
	}
	return string(m[1]), nil
}

func splitPath(p string) (parent, base string) {
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/", strings.TrimPrefix(p, "/")
	}
	return p[:i], p[i+1:]
}

func lines(out []byte) []string {
	var res []string
	for _, l := range strings.Split(string(out), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			res = append(res, l)
		}
	}
	return res
}
