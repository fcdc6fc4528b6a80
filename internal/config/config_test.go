package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/accsubmit/internal/errs"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAMLDefaults(t *testing.T) {
	path := writeConfig(t, "campaign.yaml", `
template_dir: templates
local_dir: /work/local
remote_dir: /alice/cern.ch/user/a/accsim/jpsi
generator: GenParamCustom
runs: [195682, 195683]
variables:
  VAR_GENPARAMCUSTOM_PTMIN: "0.5"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(path), "templates"), cfg.TemplateDir)
	assert.Equal(t, "/work/local", cfg.LocalDir)
	assert.Equal(t, "/work/local", cfg.SnapshotDir, "snapshot dir defaults to the local dir")
	assert.Equal(t, "/alice/cern.ch/user/a/accsim/jpsi/AODs", cfg.MergedDir)
	assert.Equal(t, 10000, cfg.Events.Fixed)
	assert.Equal(t, 5000, cfg.Events.MaxPerChunk)
	assert.Equal(t, 1, cfg.CompactMode)
	assert.Equal(t, 20, cfg.SplitMaxInputFiles)
	assert.Equal(t, 10, cfg.MergeSplitThreshold)
	assert.True(t, cfg.UseSnapshots)
	assert.Equal(t, "raw://", cfg.OCDBPath)
	assert.Equal(t, "VO_ALICE@AliRoot::v5-03-Rev-18", cfg.Packages.AliRoot)
	assert.Equal(t, RemoteAlien, cfg.Remote.Kind)
	assert.Equal(t, []int{195682, 195683}, cfg.Runs)
	assert.Equal(t, "0.5", cfg.Variables["VAR_GENPARAMCUSTOM_PTMIN"])
}

func TestLoad_YAMLOverrides(t *testing.T) {
	path := writeConfig(t, "campaign.yml", `
template_dir: /t
local_dir: /l
remote_dir: /r
use_snapshots: false
compact_mode: 0
events:
  ratio: 2.5
  trigger: CMUL7-B-NOPF-MUON
  max_per_chunk: 1000
scalers: scalers.yaml
remote:
  kind: dir
  root: grid
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.UseSnapshots)
	assert.Equal(t, 0, cfg.CompactMode)
	assert.Equal(t, 2.5, cfg.Events.Ratio)
	assert.Equal(t, 1000, cfg.Events.MaxPerChunk)
	assert.Equal(t, 10000, cfg.Events.Fixed, "unset nested fields keep their defaults")
	assert.Equal(t, filepath.Join(filepath.Dir(path), "grid"), cfg.Remote.Root)
}

func TestLoad_CUE(t *testing.T) {
	path := writeConfig(t, "campaign.cue", `
template_dir: "/t"
local_dir:    "/l"
remote_dir:   "/alice/sim"
merging:      true
events: max_per_chunk: 2000
runs: [10, 11, 12]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Merging)
	assert.Equal(t, 2000, cfg.Events.MaxPerChunk)
	assert.Equal(t, 10000, cfg.Events.Fixed)
	assert.Equal(t, []int{10, 11, 12}, cfg.Runs)
	assert.Equal(t, "/alice/sim/AODs", cfg.MergedDir)
}

func TestLoad_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"compact mode":    "template_dir: /t\nlocal_dir: /l\nremote_dir: /r\ncompact_mode: 3\n",
		"relative remote": "template_dir: /t\nlocal_dir: /l\nremote_dir: alice/sim\n",
		"max per chunk":   "template_dir: /t\nlocal_dir: /l\nremote_dir: /r\nevents:\n  max_per_chunk: 0\n",
		"negative ratio":  "template_dir: /t\nlocal_dir: /l\nremote_dir: /r\nevents:\n  ratio: -1\n",
		"split max input": "template_dir: /t\nlocal_dir: /l\nremote_dir: /r\nsplit_max_input_files: 0\n",
		"split threshold": "template_dir: /t\nlocal_dir: /l\nremote_dir: /r\nmerge_split_threshold: 0\n",
		"unknown field":   "template_dir: /t\nlocal_dir: /l\nremote_dir: /r\nmax_events: 3\n",
		"remote kind":     "template_dir: /t\nlocal_dir: /l\nremote_dir: /r\nremote:\n  kind: ftp\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "c.yaml", content))
			require.Error(t, err)
			assert.True(t, errs.IsConfiguration(err), "got %v", err)
		})
	}

	_, err := Load(writeConfig(t, "c.cue", "template_dir: \"/t\"\nlocal_dir: \"/l\"\nremote_dir: \"/r\"\ncompact_mode: 2\n"))
	assert.True(t, errs.IsConfiguration(err))

	_, err = Load(writeConfig(t, "c.cue", "template_dir: \"/t\"\nlocal_dir: \"/l\"\nremote_dir: \"/r\"\nevents: max_per_chunk: 0\n"))
	assert.True(t, errs.IsConfiguration(err))
}

func TestValidate_RejectsZeroSizes(t *testing.T) {
	base := Default()
	base.TemplateDir, base.LocalDir, base.RemoteDir = "/t", "/l", "/alice/sim"
	require.NoError(t, base.Validate())

	for name, mutate := range map[string]func(*Config){
		"max per chunk":   func(c *Config) { c.Events.MaxPerChunk = 0 },
		"split max input": func(c *Config) { c.SplitMaxInputFiles = 0 },
		"split threshold": func(c *Config) { c.MergeSplitThreshold = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errs.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestLoad_CrossFieldRules(t *testing.T) {
	cases := map[string]string{
		"missing local":    "template_dir: /t\nremote_dir: /r\n",
		"ratio no trigger": "template_dir: /t\nlocal_dir: /l\nremote_dir: /r\nscalers: s.yaml\nevents:\n  ratio: 1\n",
		"ratio no scalers": "template_dir: /t\nlocal_dir: /l\nremote_dir: /r\nevents:\n  ratio: 1\n  trigger: CINT7\n",
		"dir without root": "template_dir: /t\nlocal_dir: /l\nremote_dir: /r\nremote:\n  kind: dir\n",
		"runs and list":    "template_dir: /t\nlocal_dir: /l\nremote_dir: /r\nruns: [1]\nrun_list: runs.txt\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "c.yaml", content))
			require.Error(t, err)
			assert.True(t, errs.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestLoad_Unsupported(t *testing.T) {
	_, err := Load(writeConfig(t, "c.toml", "x = 1"))
	assert.True(t, errs.IsConfiguration(err))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errs.IsConfiguration(err))
}
