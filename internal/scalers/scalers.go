// Package scalers resolves reference trigger counts per run.
package scalers

import (
	"context"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/accsubmit/internal/errs"
)

// Lookup resolves the count of a trigger at a level for a run.
type Lookup interface {
	TriggerValue(ctx context.Context, run int, level, trigger string) (float64, error)
}

// Table is a static scaler table:
//
//	runs:
//	  195682:
//	    L2A:
//	      CMUL7-B-NOPF-MUON: 123456
type Table struct {
	Runs map[int]map[string]map[string]float64 `yaml:"runs"`
}

// Load reads a Table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "cannot read scaler table").WithPath(path)
	}
	return Parse(data, path)
}

// Parse decodes a Table. source is only used in error messages.
func Parse(data []byte, source string) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "invalid scaler table").WithPath(source)
	}
	if t.Runs == nil {
		t.Runs = map[int]map[string]map[string]float64{}
	}
	return &t, nil
}

// Set stores a count, creating intermediate maps as needed.
func (t *Table) Set(run int, level, trigger string, count float64) {
	if t.Runs == nil {
		t.Runs = map[int]map[string]map[string]float64{}
	}
	levels, ok := t.Runs[run]
	if !ok {
		levels = map[string]map[string]float64{}
		t.Runs[run] = levels
	}
	triggers, ok := levels[level]
	if !ok {
		triggers = map[string]float64{}
		levels[level] = triggers
	}
	triggers[trigger] = count
}

// TriggerValue implements Lookup.
func (t *Table) TriggerValue(_ context.Context, run int, level, trigger string) (float64, error) {
	levels, ok := t.Runs[run]
	if !ok {
		return 0, errs.New(errs.TriggerResolution, "no scalers for run").WithRun(run)
	}
	v, ok := levels[level][trigger]
	if !ok {
		return 0, errs.New(errs.TriggerResolution, "could not get trigger %s at level %s", trigger, level).WithRun(run)
	}
	return v, nil
}

// RunNumbers returns the runs present in the table, sorted.
func (t *Table) RunNumbers() []int {
	runs := make([]int, 0, len(t.Runs))
	for r := range t.Runs {
		runs = append(runs, r)
	}
	sort.Ints(runs)
	return runs
}
