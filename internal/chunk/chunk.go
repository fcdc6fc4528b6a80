// Package chunk converts a per-run event target into a chunk plan.
//
// A run's events are split into chunks of at most MaxPerChunk events. The
// sizing rule keeps a +0.5 margin against rounding at the boundary: the chunk
// count is the minimal n >= 1 with floor(E/n) + 0.5 <= M and each chunk gets
// round(floor(E/n) + 0.5) events. At exact divisibility this yields one chunk
// more than E/M (10000 events, 5000 per chunk -> 3 chunks of 3334), and the
// total can exceed E. Downstream event accounting relies on these numbers.
package chunk

import (
	"context"
	"math"

	"github.com/roach88/accsubmit/internal/errs"
)

// Plan is the chunking of one run.
type Plan struct {
	Run            int `json:"run"`
	Events         int `json:"events"`
	Chunks         int `json:"chunks"`
	EventsPerChunk int `json:"events_per_chunk"`
}

// Total returns the number of events the plan generates.
func (p Plan) Total() int {
	return p.Chunks * p.EventsPerChunk
}

// Size returns the chunk count and events per chunk for events split under
// maxPerChunk.
func Size(events, maxPerChunk int) (chunks, perChunk int, err error) {
	if maxPerChunk < 1 {
		return 0, 0, errs.New(errs.Configuration, "max events per chunk must be >= 1, got %d", maxPerChunk)
	}
	if events < 0 {
		return 0, 0, errs.New(errs.Configuration, "event target must be >= 0, got %d", events)
	}

	// floor(E/n) + 0.5 <= M  <=>  floor(E/n) <= M-1  <=>  E/n < M
	chunks = events/maxPerChunk + 1
	perChunk = int(math.Round(float64(events/chunks) + 0.5))
	return chunks, perChunk, nil
}

// Lookup resolves the reference trigger count of a run.
type Lookup interface {
	TriggerValue(ctx context.Context, run int, level, trigger string) (float64, error)
}

// Level is the trigger level used for reference counts.
const Level = "L2A"

// Target is the per-run event target policy.
type Target struct {
	// Fixed is the event count used when Ratio is not positive.
	Fixed int `json:"fixed"`

	// Ratio multiplies the reference trigger count when positive.
	Ratio float64 `json:"ratio"`

	// Trigger is the reference trigger name.
	Trigger string `json:"trigger,omitempty"`
}

// Proportional reports whether the target follows the trigger count.
func (t Target) Proportional() bool {
	return t.Ratio > 0
}

// Events returns the event target of run.
func (t Target) Events(ctx context.Context, run int, lookup Lookup) (int, error) {
	if !t.Proportional() {
		return t.Fixed, nil
	}
	if lookup == nil {
		return 0, errs.New(errs.TriggerResolution, "no trigger scalers configured for %s", t.Trigger).WithRun(run)
	}
	v, err := lookup.TriggerValue(ctx, run, Level, t.Trigger)
	if err != nil {
		if errs.IsTriggerResolution(err) {
			return 0, err
		}
		return 0, errs.Wrap(errs.TriggerResolution, err, "could not get trigger %s", t.Trigger).WithRun(run)
	}
	return int(math.Round(t.Ratio * v)), nil
}

// For computes the plan of run.
func For(ctx context.Context, run int, target Target, maxPerChunk int, lookup Lookup) (Plan, error) {
	events, err := target.Events(ctx, run, lookup)
	if err != nil {
		return Plan{}, err
	}
	n, per, err := Size(events, maxPerChunk)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Run: run, Events: events, Chunks: n, EventsPerChunk: per}, nil
}
