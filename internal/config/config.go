// Package config loads and validates campaign configurations.
//
// Configurations are YAML (.yaml, .yml) or CUE (.cue) files. Both are
// checked against the embedded CUE schema after defaults are applied.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/jdl"
)

//go:embed schema.cue
var schemaSource string

// Remote kinds.
const (
	RemoteDir   = "dir"
	RemoteAlien = "alien"
)

// Events is the per-run event target and chunking policy.
type Events struct {
	// Fixed is used when Ratio is zero.
	Fixed int `yaml:"fixed,omitempty" json:"fixed,omitempty"`

	// Ratio scales the reference trigger count of each run when positive.
	Ratio   float64 `yaml:"ratio,omitempty" json:"ratio,omitempty"`
	Trigger string  `yaml:"trigger,omitempty" json:"trigger,omitempty"`

	MaxPerChunk int `yaml:"max_per_chunk" json:"max_per_chunk"`
}

// Remote selects the remote service adapter.
type Remote struct {
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	// Root is the local directory backing the "dir" adapter.
	Root string `yaml:"root,omitempty" json:"root,omitempty"`
}

// Config is a campaign configuration.
type Config struct {
	TemplateDir    string `yaml:"template_dir,omitempty" json:"template_dir,omitempty"`
	LocalDir       string `yaml:"local_dir,omitempty" json:"local_dir,omitempty"`
	RemoteDir      string `yaml:"remote_dir,omitempty" json:"remote_dir,omitempty"`
	RemoteCreate   bool   `yaml:"remote_create,omitempty" json:"remote_create,omitempty"`
	MergedDir      string `yaml:"merged_dir,omitempty" json:"merged_dir,omitempty"`
	SnapshotDir    string `yaml:"snapshot_dir,omitempty" json:"snapshot_dir,omitempty"`
	Generator      string `yaml:"generator,omitempty" json:"generator,omitempty"`
	ExternalConfig string `yaml:"external_config,omitempty" json:"external_config,omitempty"`
	Merging        bool   `yaml:"merging,omitempty" json:"merging,omitempty"`
	Overwrite      bool   `yaml:"overwrite,omitempty" json:"overwrite,omitempty"`
	UseSnapshots   bool   `yaml:"use_snapshots" json:"use_snapshots"`
	OCDBPath       string `yaml:"ocdb_path,omitempty" json:"ocdb_path,omitempty"`

	Events              Events       `yaml:"events" json:"events"`
	CompactMode         int          `yaml:"compact_mode" json:"compact_mode"`
	SplitMaxInputFiles  int          `yaml:"split_max_input_files" json:"split_max_input_files"`
	MergeSplitThreshold int          `yaml:"merge_split_threshold" json:"merge_split_threshold"`
	Packages            jdl.Packages `yaml:"packages" json:"packages"`
	Remote              Remote       `yaml:"remote" json:"remote"`

	Runs            []int             `yaml:"runs,omitempty" json:"runs,omitempty"`
	RunList         string            `yaml:"run_list,omitempty" json:"run_list,omitempty"`
	Scalers         string            `yaml:"scalers,omitempty" json:"scalers,omitempty"`
	Ledger          string            `yaml:"ledger,omitempty" json:"ledger,omitempty"`
	SnapshotCommand string            `yaml:"snapshot_command,omitempty" json:"snapshot_command,omitempty"`
	Variables       map[string]string `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		UseSnapshots: true,
		OCDBPath:     "raw://",
		Events: Events{
			Fixed:       10000,
			MaxPerChunk: 5000,
		},
		CompactMode:         int(jdl.MuonAODOnly),
		SplitMaxInputFiles:  20,
		MergeSplitThreshold: 10,
		Packages: jdl.Packages{
			AliRoot: "VO_ALICE@AliRoot::v5-03-Rev-18",
			Geant3:  "VO_ALICE@GEANT3::v1-14-8",
			Root:    "VO_ALICE@ROOT::v5-34-05-1",
		},
		Remote: Remote{Kind: RemoteAlien},
	}
}

// Load reads path, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "cannot read configuration").WithPath(path)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".cue":
		err = decodeCUE(data, path, &cfg)
	default:
		return nil, errs.New(errs.Configuration, "unsupported configuration format %q", filepath.Ext(path)).WithPath(path)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "invalid configuration").WithPath(path)
	}

	cfg.resolve(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		var e *errs.Error
		if errors.As(err, &e) && e.Path == "" {
			e.Path = path
		}
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeCUE(data []byte, path string, cfg *Config) error {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return err
	}
	schema, err := compileSchema(ctx)
	if err != nil {
		return err
	}
	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	// JSON keeps the defaults of fields the file leaves out.
	b, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, cfg)
}

func compileSchema(ctx *cue.Context) (cue.Value, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, err
	}
	return schema.LookupPath(cue.ParsePath("#Config")), nil
}

// resolve applies derived defaults. Relative local paths are taken relative
// to base, the directory of the configuration file.
func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.TemplateDir = abs(c.TemplateDir)
	c.LocalDir = abs(c.LocalDir)
	c.SnapshotDir = abs(c.SnapshotDir)
	c.RunList = abs(c.RunList)
	c.Scalers = abs(c.Scalers)
	c.Ledger = abs(c.Ledger)
	c.Remote.Root = abs(c.Remote.Root)

	if c.SnapshotDir == "" {
		c.SnapshotDir = c.LocalDir
	}
	if c.MergedDir == "" && c.RemoteDir != "" {
		c.MergedDir = strings.TrimRight(c.RemoteDir, "/") + "/AODs"
	}
}

// Validate checks the configuration against the schema and the cross-field
// rules.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return errs.Wrap(errs.Configuration, err, "invalid configuration schema")
	}
	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return errs.Wrap(errs.Configuration, err, "configuration does not match schema")
	}

	switch {
	case c.TemplateDir == "":
		return errs.New(errs.Configuration, "template_dir is required")
	case c.LocalDir == "":
		return errs.New(errs.Configuration, "local_dir is required")
	case c.RemoteDir == "":
		return errs.New(errs.Configuration, "remote_dir is required")
	case c.Events.MaxPerChunk < 1:
		return errs.New(errs.Configuration, "events.max_per_chunk must be at least 1")
	case c.SplitMaxInputFiles < 1:
		return errs.New(errs.Configuration, "split_max_input_files must be at least 1")
	case c.MergeSplitThreshold < 1:
		return errs.New(errs.Configuration, "merge_split_threshold must be at least 1")
	case c.Events.Ratio > 0 && c.Events.Trigger == "":
		return errs.New(errs.Configuration, "events.ratio requires events.trigger")
	case c.Events.Ratio > 0 && c.Scalers == "":
		return errs.New(errs.Configuration, "events.ratio requires a scalers table")
	case c.Remote.Kind == RemoteDir && c.Remote.Root == "":
		return errs.New(errs.Configuration, "remote.root is required for the dir remote")
	case len(c.Runs) > 0 && c.RunList != "":
		return errs.New(errs.Configuration, "runs and run_list are mutually exclusive")
	}
	return nil
}
