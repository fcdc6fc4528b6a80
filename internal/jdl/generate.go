package jdl

import (
	"fmt"
	"strconv"

	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/filelist"
)

// Kind selects the document variant.
type Kind int

const (
	// RunJob is the simulation + reconstruction job of one run.
	RunJob Kind = iota
	// MergeJob aggregates outputs of a run, intermediate or final.
	MergeJob
)

func (k Kind) String() string {
	switch k {
	case RunJob:
		return "run"
	case MergeJob:
		return "merge"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// CompactMode selects what the run job keeps in its output archive.
type CompactMode int

const (
	// Full keeps kinematics, ESDs, AODs and QA.
	Full CompactMode = 0
	// MuonAODOnly keeps the galice files and the muon AODs.
	MuonAODOnly CompactMode = 1
)

// ParseCompactMode validates an integer compact mode.
func ParseCompactMode(n int) (CompactMode, error) {
	switch CompactMode(n) {
	case Full, MuonAODOnly:
		return CompactMode(n), nil
	}
	return 0, errs.New(errs.Configuration, "unknown compact mode %d", n)
}

// Packages are the software packages requested by every job.
type Packages struct {
	AliRoot string `yaml:"aliroot" json:"aliroot"`
	Geant3  string `yaml:"geant3" json:"geant3"`
	Root    string `yaml:"root" json:"root"`
	API     string `yaml:"api" json:"api"`
}

// JobTag is the tag put in every job comment.
const JobTag = "AccEffSubmitter"

const (
	logArchive      = "log_archive.zip:stderr,stdout,aod.log,checkaod.log,checkesd.log,rec.log,sim.log@disk=1"
	fullArchive     = "root_archive.zip:galice*.root,Kinematics*.root,TrackRefs*.root,AliESDs.root,AliAOD.root,AliAOD.Muons.root,Merged.QA.Data.root,Run*.root@disk=2"
	muonArchive     = "root_archive.zip:galice*.root,AliAOD.Muons.root@disk=2"
	mergeLogArchive = "log_archive.zip:stderr,stdout@disk=1"
	mergeArchive    = "root_archive.zip:AliAOD.root,AliAOD.Muons.root,AnalysisResults.root@disk=3"
)

// Generator produces the documents of a campaign.
type Generator struct {
	Packages  Packages
	RemoteDir string

	// Inputs is the template set; job documents and snapshot entries are
	// not shipped as direct inputs.
	Inputs []filelist.Entry

	UseSnapshots       bool
	Compact            CompactMode
	SplitMaxInputFiles int
}

// Generate builds the document of the given kind. final is only meaningful
// for merge documents.
func (g Generator) Generate(kind Kind, final bool) (*Document, error) {
	switch kind {
	case RunJob:
		return g.RunJob()
	case MergeJob:
		return g.MergeJob(final), nil
	}
	return nil, errs.New(errs.Configuration, "unknown job document kind %v", kind)
}

// ForEntry builds the document matching a job-document entry of the file list.
func (g Generator) ForEntry(e filelist.Entry) (*Document, error) {
	switch e.Kind {
	case filelist.RunJob:
		return g.Generate(RunJob, false)
	case filelist.MergeJob:
		return g.Generate(MergeJob, false)
	case filelist.FinalMergeJob:
		return g.Generate(MergeJob, true)
	}
	return nil, fmt.Errorf("%s is not a job document", e.Path)
}

func (g Generator) packages(d *Document) {
	d.Add("Packages", g.Packages.AliRoot, g.Packages.Geant3, g.Packages.Root, g.Packages.API)
}

func (g Generator) lf(path string) string {
	return "LF:" + g.RemoteDir + "/" + path
}

// RunJob builds the simulation + reconstruction job document. The document
// takes $1 = run number, $2 = number of chunks and $3 = events per chunk.
func (g Generator) RunJob() (*Document, error) {
	var archive string
	switch g.Compact {
	case Full:
		archive = fullArchive
	case MuonAODOnly:
		archive = muonArchive
	default:
		return nil, errs.New(errs.Configuration, "unknown compact mode %d", int(g.Compact))
	}

	d := &Document{Kind: RunJob}
	g.packages(d)
	d.Add("Jobtag", "comment: "+JobTag+" RUN $1")
	d.Add("split", "production:1-$2")
	d.Add("Price", "1")
	d.Add("OutputDir", g.RemoteDir+"/$1/#alien_counter_03i#")
	d.Add("Executable", "/alice/bin/aliroot_new")

	var inputs []string
	for _, e := range g.Inputs {
		if e.IsJobDocument() || e.IsSnapshot() {
			continue
		}
		inputs = append(inputs, g.lf(e.Path))
	}
	if g.UseSnapshots {
		inputs = append(inputs,
			g.lf("OCDB/$1/OCDB_sim.root"),
			g.lf("OCDB/$1/OCDB_rec.root"))
	}
	d.AddList("InputFile", inputs)

	d.Add("OutputArchive", logArchive, archive)
	d.Add("splitarguments", "simrun.C --run $1 --chunk #alien_counter# --event $3")
	d.Add("Workdirectorysize", "5000MB")
	d.Add("JDLVariables", "Packages", "OutputDir")
	d.Add("Validationcommand", g.RemoteDir+"/validation.sh")
	d.Add("TTL", "72000")
	return d, nil
}

// MergeJob builds a merge job document. The document takes $1 = run number
// and $2 = merging stage.
func (g Generator) MergeJob(final bool) *Document {
	d := &Document{Kind: MergeJob, Final: final}
	d.Header = []string{
		"Generated merging jdl (production mode)",
		"$1 = run number",
		"$2 = merging stage",
		"Stage_<n>.xml made via: find <OutputDir> *Stage<n-1>/*root_archive.zip",
	}

	g.packages(d)
	d.Add("Executable", filelist.MergeScript)
	d.Add("Price", "1")
	if final {
		d.Add("Jobtag", "comment: "+JobTag+" final merging")
	} else {
		d.Add("Jobtag", "comment: "+JobTag+" merging stage $2")
	}
	d.Add("Workdirectorysize", "5000MB")
	d.Add("Validationcommand", g.RemoteDir+"/"+filelist.MergeValidation)
	d.Add("TTL", "7200")
	d.Add("OutputArchive", mergeLogArchive, mergeArchive)

	// AOD_merge.sh: 1 is an intermediate stage, 2 the final one.
	if final {
		d.Add("Arguments", "2")
		d.Add("InputFile", g.lf(filelist.AODTrain), g.lf("$1/wn.xml"))
		d.Add("OutputDir", g.RemoteDir+"/$1")
		return d
	}

	d.Add("Arguments", "1")
	d.Add("InputFile", g.lf(filelist.AODTrain))
	d.Add("OutputDir", g.RemoteDir+"/$1/Stage_$2/#alien_counter_03i#")
	d.Add("InputDataCollection", g.RemoteDir+"/$1/Stage_$2.xml,nodownload")
	d.Add("split", "se")
	d.Add("SplitMaxInputFileNumber", strconv.Itoa(g.SplitMaxInputFiles))
	d.Add("InputDataListFormat", "xml-single")
	d.Add("InputDataList", "wn.xml")
	return d
}
