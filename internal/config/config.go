// Package config loads the project file (skilleval.yml or skilleval.toml) that locates each domain's run files, task data
// and score sheet and parameterizes the statistics.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/codalotl/skilleval/internal/fsutil"
	"github.com/codalotl/skilleval/internal/stats"
	"github.com/codalotl/skilleval/internal/workspace"
)

// ResultsEnvVar overrides the results directory of whichever domain is being evaluated.
const ResultsEnvVar = "SKILLEVAL_RESULTS"

// FileNames are the project files looked for, in order.
var FileNames = []string{"skilleval.yml", "skilleval.yaml", "skilleval.toml"}

type Config struct {
	DomainsRoot string                  `yaml:"domains-root" toml:"domains_root"`
	Domains     map[string]DomainConfig `yaml:"domains" toml:"domains"`
	Jobs        int                     `yaml:"jobs" toml:"jobs"`
	DB          string                  `yaml:"db" toml:"db"`
	Stats       StatsConfig             `yaml:"stats" toml:"stats"`
	Bootstrap   BootstrapConfig         `yaml:"bootstrap" toml:"bootstrap"`

	// root is the directory the file was found in; relative paths resolve against it.
	root string
}

// DomainConfig overrides the layout of one domain. Empty fields fall back to the workspace conventions.
type DomainConfig struct {
	Dir      string `yaml:"dir" toml:"dir"`
	Label    string `yaml:"label" toml:"label"`
	Results  string `yaml:"results" toml:"results"`
	TestData string `yaml:"test-data" toml:"test_data"`
	Output   string `yaml:"output" toml:"output"`
	TaskGlob string `yaml:"task-glob" toml:"task_glob"`
}

type StatsConfig struct {
	Domains       StringList `yaml:"domains" toml:"domains"`
	ExcludeModels StringList `yaml:"exclude-models" toml:"exclude_models"`
	BetaSamples   int        `yaml:"beta-samples" toml:"beta_samples"`
	BetaWidth     float64    `yaml:"beta-width" toml:"beta_width"`
	Seed          uint64     `yaml:"seed" toml:"seed"`
	MinRuns       int        `yaml:"min-runs" toml:"min_runs"`
	// FrontierModels get a row in the frontier table.
	FrontierModels StringList `yaml:"frontier-models" toml:"frontier_models"`
}

type BootstrapConfig struct {
	Resamples int     `yaml:"resamples" toml:"resamples"`
	Level     float64 `yaml:"level" toml:"level"`
	Seed      uint64  `yaml:"seed" toml:"seed"`
}

// defaultLabels name domains in the statistics tables.
var defaultLabels = map[string]string{
	"chart":          "Chart",
	"commit-message": "Commit",
	"dockerfile":     "Dockerfile",
	"openapi-spec":   "OpenAPI",
	"sql-query":      "SQL",
	"terraform":      "Terraform",
}

// DefaultConfig returns config with the published experiment's settings.
func DefaultConfig() Config {
	beta := stats.DefaultBetaOptions()
	return Config{
		DomainsRoot: workspace.DefaultDomainsRoot,
		Stats: StatsConfig{
			Domains:        StringList{"chart", "dockerfile", "sql-query", "terraform"},
			ExcludeModels:  StringList{"glm-4.7-flash"},
			BetaSamples:    beta.Samples,
			BetaWidth:      beta.Width,
			Seed:           stats.DefaultSeed,
			MinRuns:        3,
			FrontierModels: StringList{"opus", "glm-5"},
		},
		Bootstrap: BootstrapConfig{
			Resamples: 10_000,
			Level:     0.95,
			Seed:      stats.DefaultSeed,
		},
		root: ".",
	}
}

// StringList allows unmarshalling a string or a slice of strings.
type StringList []string

// UnmarshalYAML makes StringList accept a string or a slice.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var v string
		if err := value.Decode(&v); err != nil {
			return err
		}
		*s = nil
		if v != "" {
			*s = []string{v}
		}
		return nil
	case yaml.SequenceNode:
		var vals []string
		if err := value.Decode(&vals); err != nil {
			return err
		}
		*s = vals
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", value.Kind)
	}
}

// UnmarshalTOML is the toml.Unmarshaler counterpart of UnmarshalYAML.
func (s *StringList) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case string:
		*s = nil
		if val != "" {
			*s = []string{val}
		}
		return nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string list item, got %T", item)
			}
			out = append(out, str)
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("expected string or list, got %T", v)
	}
}

// Load reads the first of FileNames present in dir over DefaultConfig. It returns the path read, or "" when no file exists
// and the defaults are used.
func Load(dir string) (Config, string, error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		cfg, err := LoadFile(p)
		return cfg, p, err
	}
	cfg := DefaultConfig()
	cfg.root = dir
	return cfg, "", nil
}

// LoadFile decodes path by extension: .toml via BurntSushi/toml, anything else as YAML.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	cfg.root = filepath.Dir(path)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks domain names against known and that every configured path stays under the project root.
func (c Config) Validate(known []string) error {
	knownSet := map[string]bool{}
	for _, k := range known {
		knownSet[k] = true
	}
	if strings.TrimSpace(c.DomainsRoot) == "" {
		return errors.New("domains-root is required")
	}
	if err := c.checkPath(c.DomainsRoot); err != nil {
		return fmt.Errorf("domains-root: %w", err)
	}
	if c.DB != "" {
		if err := c.checkPath(c.DB); err != nil {
			return fmt.Errorf("db: %w", err)
		}
	}

	for _, name := range sortedKeys(c.Domains) {
		if !knownSet[name] {
			return fmt.Errorf("domains: unknown domain %q (known: %s)", name, strings.Join(known, ", "))
		}
		d := c.Domains[name]
		if d.Dir != "" {
			if _, err := workspace.CleanDomain(d.Dir); err != nil {
				return fmt.Errorf("domains.%s.dir: %w", name, err)
			}
		}
		for _, f := range [][2]string{{"results", d.Results}, {"test-data", d.TestData}, {"output", d.Output}} {
			if f[1] == "" {
				continue
			}
			if err := c.checkPath(f[1]); err != nil {
				return fmt.Errorf("domains.%s.%s: %w", name, f[0], err)
			}
		}
		if d.TaskGlob != "" {
			if _, err := filepath.Match(d.TaskGlob, ""); err != nil {
				return fmt.Errorf("domains.%s.task-glob: %w", name, err)
			}
		}
	}
	for _, name := range c.Stats.Domains {
		if !knownSet[name] {
			return fmt.Errorf("stats.domains: unknown domain %q", name)
		}
	}
	if c.Stats.BetaWidth <= 0 || c.Stats.BetaWidth > 1 {
		return fmt.Errorf("stats.beta-width must be in (0, 1], got %v", c.Stats.BetaWidth)
	}
	if c.Bootstrap.Level <= 0 || c.Bootstrap.Level >= 1 {
		return fmt.Errorf("bootstrap.level must be in (0, 1), got %v", c.Bootstrap.Level)
	}
	if c.Bootstrap.Resamples < 1 {
		return errors.New("bootstrap.resamples must be positive")
	}
	if c.Jobs < 0 {
		return errors.New("jobs cannot be negative")
	}
	return nil
}

func (c Config) checkPath(p string) error {
	if filepath.IsAbs(p) {
		return fmt.Errorf("path %q must be relative", p)
	}
	_, err := fsutil.SafeJoin(c.root, p)
	return err
}

// Root is the directory relative paths resolve against.
func (c Config) Root() string {
	return c.root
}

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.root, p)
}

func (c Config) domainDir(name string) string {
	dir := name
	if d := c.Domains[name].Dir; d != "" {
		dir = d
	}
	return workspace.DomainDir(c.resolve(c.DomainsRoot), dir)
}

// ResultsDir is where domain's run files live. ResultsEnvVar wins over the file.
func (c Config) ResultsDir(name string) string {
	if env := strings.TrimSpace(os.Getenv(ResultsEnvVar)); env != "" {
		return env
	}
	if p := c.Domains[name].Results; p != "" {
		return c.resolve(p)
	}
	return filepath.Join(c.domainDir(name), workspace.ResultsSubdir)
}

func (c Config) TestDataDir(name string) string {
	if p := c.Domains[name].TestData; p != "" {
		return c.resolve(p)
	}
	return filepath.Join(c.domainDir(name), workspace.TestDataSubdir)
}

// OutputPath is the scores CSV for domain. defaultName comes from the domain's evaluator.
func (c Config) OutputPath(name, defaultName string) string {
	if p := c.Domains[name].Output; p != "" {
		return c.resolve(p)
	}
	return filepath.Join(c.ResultsDir(name), defaultName)
}

func (c Config) TaskGlob(name string) string {
	return c.Domains[name].TaskGlob
}

// Label is the display name of domain in the statistics tables.
func (c Config) Label(name string) string {
	if l := c.Domains[name].Label; l != "" {
		return l
	}
	if l, ok := defaultLabels[name]; ok {
		return l
	}
	return name
}

// DBPath is the SQLite sink, or "" when none is configured.
func (c Config) DBPath() string {
	if c.DB == "" {
		return ""
	}
	return c.resolve(c.DB)
}

// BetaOptions converts the stats section for stats.BetaHDI.
func (c Config) BetaOptions() stats.BetaOptions {
	opts := stats.DefaultBetaOptions()
	opts.Samples = c.Stats.BetaSamples
	opts.Width = c.Stats.BetaWidth
	opts.Seed = c.Stats.Seed
	return opts
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
