package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/filelist"
	"github.com/roach88/accsubmit/internal/jdl"
	"github.com/roach88/accsubmit/internal/testutil"
	"github.com/roach88/accsubmit/internal/vars"
)

func newStore() *vars.Store {
	s := vars.NewStore()
	s.MustDefine("VAR_OCDB_PATH", `"raw://"`)
	s.MustDefine("VAR_GENERATOR", "GenParamCustom")
	return s
}

func newPipeline(t *testing.T, opts filelist.Options, overrides map[string]string) *Pipeline {
	t.Helper()
	gen := jdl.Generator{RemoteDir: "/alice/sim", Compact: jdl.MuonAODOnly, SplitMaxInputFiles: 20}
	ts := filelist.Templates(opts)
	gen.Inputs = ts.Entries()
	return &Pipeline{
		TemplateDir: testutil.TemplateDir(t, opts, overrides),
		LocalDir:    filepath.Join(t.TempDir(), "local"),
		Vars:        newStore(),
		Templates:   ts,
		Generate:    gen.ForEntry,
	}
}

func TestRun_CopiesAndSubstitutes(t *testing.T) {
	p := newPipeline(t, filelist.Options{}, map[string]string{
		filelist.SimRun: "// simrun with VAR_GENERATOR in a comment\nTString ocdb = VAR_OCDB_PATH;\n",
		filelist.Sim:    "gen = VAR_GENERATOR;\n",
	})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Len(t, res.Copied, filelist.Templates(filelist.Options{}).Len())
	assert.ElementsMatch(t, []string{
		filepath.Join(p.LocalDir, filelist.SimRun),
		filepath.Join(p.LocalDir, filelist.Sim),
	}, res.Substituted)

	assert.Equal(t, "// simrun with VAR_GENERATOR in a comment\nTString ocdb = \"raw://\";\n",
		testutil.ReadFile(t, filepath.Join(p.LocalDir, filelist.SimRun)))
	assert.Equal(t, "gen = GenParamCustom;\n",
		testutil.ReadFile(t, filepath.Join(p.LocalDir, filelist.Sim)))
}

func TestRun_GeneratesMissingJobDocuments(t *testing.T) {
	opts := filelist.Options{Merging: true}
	p := newPipeline(t, opts, map[string]string{
		filelist.RunJDL:        "",
		filelist.MergeJDL:      "",
		filelist.FinalMergeJDL: "",
	})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(p.LocalDir, filelist.RunJDL),
		filepath.Join(p.LocalDir, filelist.MergeJDL),
		filepath.Join(p.LocalDir, filelist.FinalMergeJDL),
	}, res.Generated)

	final := testutil.ReadFile(t, filepath.Join(p.LocalDir, filelist.FinalMergeJDL))
	assert.Contains(t, final, "Arguments = 2;")
	merge := testutil.ReadFile(t, filepath.Join(p.LocalDir, filelist.MergeJDL))
	assert.Contains(t, merge, "Arguments = 1;")
	assert.Contains(t, testutil.ReadFile(t, filepath.Join(p.LocalDir, filelist.RunJDL)), "split = \"production:1-$2\";")
}

func TestRun_MissingPlainTemplateIsAnError(t *testing.T) {
	p := newPipeline(t, filelist.Options{}, map[string]string{filelist.CheckAOD: ""})

	res, err := p.Run(context.Background())
	require.Error(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), filelist.CheckAOD)
	// The remaining entries were still processed.
	assert.Len(t, res.Copied, filelist.Templates(filelist.Options{}).Len()-1)
}

func TestRun_EnumeratesEveryConflict(t *testing.T) {
	p := newPipeline(t, filelist.Options{}, nil)
	testutil.WriteFiles(t, p.LocalDir, map[string]string{
		filelist.Sim:    "old",
		filelist.RunJDL: "old",
		filelist.Rec:    "old",
	})

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
	assert.ElementsMatch(t, []string{
		filepath.Join(p.LocalDir, filelist.Sim),
		filepath.Join(p.LocalDir, filelist.RunJDL),
		filepath.Join(p.LocalDir, filelist.Rec),
	}, res.Conflicts)

	for _, c := range res.Conflicts {
		assert.Contains(t, err.Error(), c)
		assert.Equal(t, "old", testutil.ReadFile(t, c), "conflicting files are not touched")
	}
}

func TestRun_OverwriteReplacesExisting(t *testing.T) {
	p := newPipeline(t, filelist.Options{}, nil)
	p.Overwrite = true
	testutil.WriteFiles(t, p.LocalDir, map[string]string{filelist.Sim: "old"})

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "old", testutil.ReadFile(t, filepath.Join(p.LocalDir, filelist.Sim)))
}

func TestRun_SubstitutionFailureContinues(t *testing.T) {
	p := newPipeline(t, filelist.Options{}, map[string]string{
		filelist.Sim: "x = VAR_UNDEFINED_THING;\n",
		filelist.Rec: "y = VAR_OCDB_PATH;\n",
	})

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsUnresolved(err))
	assert.Equal(t, []string{filepath.Join(p.LocalDir, filelist.Rec)}, res.Substituted)
	assert.Equal(t, "x = VAR_UNDEFINED_THING;\n", testutil.ReadFile(t, filepath.Join(p.LocalDir, filelist.Sim)))
}

func TestRun_GenerationFailure(t *testing.T) {
	p := newPipeline(t, filelist.Options{}, map[string]string{filelist.RunJDL: ""})
	p.Generate = func(filelist.Entry) (*jdl.Document, error) {
		return nil, errors.New("boom")
	}
	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, res.Generated)
	_, statErr := os.Stat(filepath.Join(p.LocalDir, filelist.RunJDL))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_Cancelled(t *testing.T) {
	p := newPipeline(t, filelist.Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Copied)
}
