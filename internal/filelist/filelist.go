// Package filelist tracks the files that make up a campaign.
//
// The template set is fixed by configuration and computed once; the local set
// starts as a copy of it and grows with OCDB snapshot artifacts as they are
// produced. Both sets have set semantics on Path.
package filelist

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Fixed template names.
const (
	CheckESD        = "CheckESD.C"
	CheckAOD        = "CheckAOD.C"
	AODTrain        = "AODtrain.C"
	Validation      = "validation.sh"
	DefaultConfig   = "Config.C"
	Rec             = "rec.C"
	Sim             = "sim.C"
	SimRun          = "simrun.C"
	RunJDL          = "run.jdl"
	MergeJDL        = "AOD_merge.jdl"
	FinalMergeJDL   = "AOD_merge_final.jdl"
	MergeScript     = "AOD_merge.sh"
	MergeValidation = "validation_merge.sh"
)

// Snapshot phases.
const (
	PhaseSim = "sim"
	PhaseRec = "rec"
)

// Phases lists the snapshot phases in generation order.
var Phases = []string{PhaseSim, PhaseRec}

// Kind classifies an entry.
type Kind int

const (
	// Plain is a macro or script copied verbatim from the templates.
	Plain Kind = iota
	// RunJob is the run job document.
	RunJob
	// MergeJob is the intermediate-stage merge job document.
	MergeJob
	// FinalMergeJob is the final-stage merge job document.
	FinalMergeJob
	// Snapshot is an OCDB snapshot artifact, produced outside the templates.
	Snapshot
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case RunJob:
		return "run-jdl"
	case MergeJob:
		return "merge-jdl"
	case FinalMergeJob:
		return "final-merge-jdl"
	case Snapshot:
		return "snapshot"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Entry is one file of the campaign.
type Entry struct {
	// Path is relative to the template/local root, or absolute for snapshots.
	Path string
	Kind Kind

	// Run and Phase identify snapshot entries.
	Run   int
	Phase string
}

// IsJobDocument reports whether the entry is a run or merge job document.
func (e Entry) IsJobDocument() bool {
	return e.Kind == RunJob || e.Kind == MergeJob || e.Kind == FinalMergeJob
}

// IsMergeJobDocument reports whether the entry is a merge job document.
func (e Entry) IsMergeJobDocument() bool {
	return e.Kind == MergeJob || e.Kind == FinalMergeJob
}

// IsSnapshot reports whether the entry is OCDB-derived.
func (e Entry) IsSnapshot() bool {
	return e.Kind == Snapshot
}

// Options selects the configurable part of the template set.
type Options struct {
	// ExternalConfig replaces the default configuration macro when set.
	ExternalConfig string

	// Generator is the generator macro base name (without ".C"), if selected.
	Generator string

	// Merging adds the merge job documents and scripts.
	Merging bool
}

// TemplateSet is the immutable list of template files.
type TemplateSet struct {
	entries []Entry
}

// Templates computes the template set for opts.
func Templates(opts Options) TemplateSet {
	config := DefaultConfig
	if opts.ExternalConfig != "" {
		config = opts.ExternalConfig
	}

	entries := []Entry{
		{Path: CheckESD},
		{Path: CheckAOD},
		{Path: AODTrain},
		{Path: Validation},
		{Path: config},
		{Path: Rec},
		{Path: Sim},
		{Path: SimRun},
		{Path: RunJDL, Kind: RunJob},
	}
	if opts.Merging {
		entries = append(entries,
			Entry{Path: MergeJDL, Kind: MergeJob},
			Entry{Path: FinalMergeJDL, Kind: FinalMergeJob},
			Entry{Path: MergeScript},
			Entry{Path: MergeValidation},
		)
	}
	if opts.Generator != "" {
		entries = append(entries, Entry{Path: GeneratorMacro(opts.Generator)})
	}

	var ts TemplateSet
	for _, e := range entries {
		if !ts.Contains(e.Path) {
			ts.entries = append(ts.entries, e)
		}
	}
	return ts
}

// GeneratorMacro returns the macro file name of a generator.
func GeneratorMacro(generator string) string {
	return generator + ".C"
}

// Entries returns a copy of the entries in order.
func (ts TemplateSet) Entries() []Entry {
	out := make([]Entry, len(ts.entries))
	copy(out, ts.entries)
	return out
}

// Paths returns the entry paths in order.
func (ts TemplateSet) Paths() []string {
	return paths(ts.entries)
}

// Len returns the number of entries.
func (ts TemplateSet) Len() int {
	return len(ts.entries)
}

// Contains reports whether path is in the set.
func (ts TemplateSet) Contains(path string) bool {
	_, ok := ts.Lookup(path)
	return ok
}

// Lookup returns the entry for path.
func (ts TemplateSet) Lookup(path string) (Entry, bool) {
	for _, e := range ts.entries {
		if e.Path == path {
			return e, true
		}
	}
	return Entry{}, false
}

// Local is the working set: the template set plus derived snapshot entries.
type Local struct {
	base    TemplateSet
	derived []Entry
}

// NewLocal clones ts into a new working set.
func NewLocal(ts TemplateSet) *Local {
	return &Local{base: TemplateSet{entries: ts.Entries()}}
}

// AddSnapshot appends a snapshot entry unless path is already present.
// It reports whether the entry was added.
func (l *Local) AddSnapshot(run int, phase, path string) bool {
	if l.Contains(path) {
		return false
	}
	l.derived = append(l.derived, Entry{Path: path, Kind: Snapshot, Run: run, Phase: phase})
	return true
}

// RemoveSnapshots drops every snapshot entry and returns how many were removed.
func (l *Local) RemoveSnapshots() int {
	kept := l.derived[:0]
	removed := 0
	for _, e := range l.derived {
		if e.IsSnapshot() {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.derived = kept
	return removed
}

// Contains reports whether path is in the working set.
func (l *Local) Contains(path string) bool {
	if l.base.Contains(path) {
		return true
	}
	for _, e := range l.derived {
		if e.Path == path {
			return true
		}
	}
	return false
}

// Entries returns template entries followed by derived entries.
func (l *Local) Entries() []Entry {
	out := l.base.Entries()
	return append(out, l.derived...)
}

// Paths returns the paths of Entries.
func (l *Local) Paths() []string {
	return paths(l.Entries())
}

// Snapshots returns the snapshot entries.
func (l *Local) Snapshots() []Entry {
	var out []Entry
	for _, e := range l.derived {
		if e.IsSnapshot() {
			out = append(out, e)
		}
	}
	return out
}

// Templates returns the template set the working set was cloned from.
func (l *Local) Templates() TemplateSet {
	return l.base
}

// Len returns the number of entries.
func (l *Local) Len() int {
	return l.base.Len() + len(l.derived)
}

// SnapshotPath returns the location of a run's snapshot artifact under root.
func SnapshotPath(root string, run int, phase string) string {
	return filepath.Join(root, "OCDB", strconv.Itoa(run), fmt.Sprintf("OCDB_%s.root", phase))
}

func paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}
