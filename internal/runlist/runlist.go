// Package runlist reads the list of runs a campaign is anchored to.
package runlist

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/roach88/accsubmit/internal/errs"
)

// Load reads a run list file. Runs are separated by blanks or commas; text
// after '#' is ignored. Duplicates are dropped, first occurrence wins.
func Load(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "cannot open run list").WithPath(path)
	}
	defer f.Close()

	runs, err := Parse(f)
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return nil, e.WithPath(path)
		}
		return nil, err
	}
	return runs, nil
}

// Parse reads runs from r.
func Parse(r io.Reader) ([]int, error) {
	var runs []int
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.FieldsFunc(line, func(c rune) bool {
			return c == ',' || c == ' ' || c == '\t' || c == ';'
		})
		for _, field := range fields {
			run, err := strconv.Atoi(field)
			if err != nil || run <= 0 {
				return nil, errs.New(errs.Configuration, "line %d: invalid run number %q", lineNo, field)
			}
			runs = append(runs, run)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "cannot read run list")
	}
	return Dedupe(runs), nil
}

// Single returns the run list made of one run.
func Single(run int) ([]int, error) {
	if run <= 0 {
		return nil, errs.New(errs.Configuration, "invalid run number %d", run)
	}
	return []int{run}, nil
}

// Dedupe removes duplicate runs, preserving first-occurrence order.
func Dedupe(runs []int) []int {
	seen := make(map[int]bool, len(runs))
	out := make([]int, 0, len(runs))
	for _, r := range runs {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
