// Package snapshot produces the per-run condition-database snapshots
// (OCDB_sim.root and OCDB_rec.root) that run jobs ship instead of querying
// the condition database.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"text/template"

	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/filelist"
)

// DefaultCommand is the snapshot command line template.
const DefaultCommand = "aliroot -b -q -x simrun.C --run {{.Run}} --snapshot"

// Generator produces the snapshots of one run.
type Generator interface {
	Generate(ctx context.Context, run int) error
}

// ExecFunc runs argv in dir.
type ExecFunc func(ctx context.Context, dir string, argv []string) error

// Command generates snapshots by running an external command in Dir.
type Command struct {
	// Line is a text/template command line; {{.Run}} is the run number.
	Line string
	Dir  string

	// Exec defaults to os/exec.
	Exec   ExecFunc
	Logger *slog.Logger
}

// Argv renders the command line of run.
func (c *Command) Argv(run int) ([]string, error) {
	line := c.Line
	if line == "" {
		line = DefaultCommand
	}
	tmpl, err := template.New("snapshot").Option("missingkey=error").Parse(line)
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "invalid snapshot command %q", line)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Run int }{run}); err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "invalid snapshot command %q", line)
	}
	argv := strings.Fields(buf.String())
	if len(argv) == 0 {
		return nil, errs.New(errs.Configuration, "empty snapshot command")
	}
	return argv, nil
}

// Generate implements Generator.
func (c *Command) Generate(ctx context.Context, run int) error {
	argv, err := c.Argv(run)
	if err != nil {
		return err
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("generating OCDB snapshot", "run", run, "command", strings.Join(argv, " "))

	execFn := c.Exec
	if execFn == nil {
		execFn = execInDir
	}
	if err := execFn(ctx, c.Dir, argv); err != nil {
		return fmt.Errorf("snapshot command for run %d: %w", run, err)
	}
	return nil
}

func execInDir(ctx context.Context, dir string, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Paths returns the snapshot files of run under root, in phase order.
func Paths(root string, run int) []string {
	out := make([]string, 0, len(filelist.Phases))
	for _, phase := range filelist.Phases {
		out = append(out, filelist.SnapshotPath(root, run, phase))
	}
	return out
}

// Present reports whether every snapshot of run exists under root.
func Present(root string, run int) (bool, error) {
	for _, p := range Paths(root, run) {
		_, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

// Ensure generates the snapshots of run unless they already exist under
// root. It reports whether the generator was invoked.
func Ensure(ctx context.Context, gen Generator, root string, run int) (bool, error) {
	ok, err := Present(root, run)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := gen.Generate(ctx, run); err != nil {
		return true, err
	}
	ok, err = Present(root, run)
	if err != nil {
		return true, err
	}
	if !ok {
		return true, fmt.Errorf("snapshot generation for run %d did not produce %s", run, strings.Join(Paths(root, run), ", "))
	}
	return true, nil
}
