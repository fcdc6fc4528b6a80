package campaign

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/accsubmit/internal/errs"
)

// Summary prints the configuration in a human readable form.
func (s *Submitter) Summary(w io.Writer) error {
	var b strings.Builder
	c := s.cfg

	fmt.Fprintf(&b, "Template  directory = %s\n", c.TemplateDir)
	fmt.Fprintf(&b, "Local     directory = %s\n", c.LocalDir)
	fmt.Fprintf(&b, "Remote    directory = %s\n", c.RemoteDir)
	if filepath.Clean(c.SnapshotDir) != filepath.Clean(c.LocalDir) {
		fmt.Fprintf(&b, "Snapshots directory = %s\n", c.SnapshotDir)
	}
	if c.Merging {
		fmt.Fprintf(&b, "Merged    directory = %s\n", c.MergedDir)
	}
	fmt.Fprintf(&b, "OCDB path = %s\n", c.OCDBPath)

	if c.Events.Ratio > 0 {
		fmt.Fprintf(&b, "For each run, will generate %5.2f times the number of real events for trigger %s\n",
			c.Events.Ratio, c.Events.Trigger)
	} else {
		fmt.Fprintf(&b, "For each run, will generate %10d events\n", c.Events.Fixed)
	}
	fmt.Fprintf(&b, "MaxEventsPerChunk = %d\n", c.Events.MaxPerChunk)

	fmt.Fprintf(&b, "%d run(s) = ", len(s.runs))
	for _, r := range s.runs {
		fmt.Fprintf(&b, "%d ", r)
	}
	b.WriteString("\n")

	s.vars.Each(func(name, value string) {
		fmt.Fprintf(&b, "Variable %s will be replaced by %s\n", name, value)
	})

	b.WriteString("Files to be uploaded:\n")
	for _, p := range s.local.Paths() {
		fmt.Fprintf(&b, "%s\n", p)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// CheckLocal verifies that every file of the local list exists.
func (s *Submitter) CheckLocal() error {
	var missing []error
	for _, e := range s.local.Entries() {
		p := s.localPath(e)
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, errs.New(errs.Configuration, "local file missing").WithPath(p))
		}
	}
	return errors.Join(missing...)
}

// CleanLocal removes the local copies of the campaign files and returns the
// removed paths. Snapshots are kept unless cleanSnapshots is set.
func (s *Submitter) CleanLocal(cleanSnapshots bool) ([]string, error) {
	var removed []string
	var failures []error
	for _, e := range s.local.Entries() {
		if e.IsSnapshot() && !cleanSnapshots {
			continue
		}
		p := s.localPath(e)
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = append(removed, p)
		case errors.Is(err, fs.ErrNotExist):
		default:
			failures = append(failures, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	if cleanSnapshots {
		s.local.RemoveSnapshots()
	}
	return removed, errors.Join(failures...)
}
