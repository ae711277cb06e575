package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var known = []string{"chart", "commit-message", "dockerfile", "openapi-spec", "sql-query", "terraform"}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, path, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, path)
	require.NoError(t, cfg.Validate(known))

	assert.Equal(t, filepath.Join(dir, "domains", "chart", "results"), cfg.ResultsDir("chart"))
	assert.Equal(t, filepath.Join(dir, "domains", "chart", "results", "scores_deep.csv"), cfg.OutputPath("chart", "scores_deep.csv"))
	assert.Equal(t, filepath.Join(dir, "domains", "terraform", "test-data"), cfg.TestDataDir("terraform"))
	assert.Equal(t, "SQL", cfg.Label("sql-query"))
	assert.Equal(t, "custom", cfg.Label("custom"))
	assert.Empty(t, cfg.DBPath())

	beta := cfg.BetaOptions()
	assert.Equal(t, 50000, beta.Samples)
	assert.Equal(t, 0.95, beta.Width)
	assert.Equal(t, 0.10, beta.Threshold)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "skilleval.yml", `
domains-root: experiments
db: out/scores.db
domains:
  chart:
    label: Charts
    output: reports/chart.csv
  sql-query:
    dir: sql
    task-glob: "task_*.json"
stats:
  exclude-models: gemini-flash
  beta-samples: 1000
bootstrap:
  resamples: 500
`)
	cfg, path, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "skilleval.yml"), path)
	require.NoError(t, cfg.Validate(known))

	assert.Equal(t, StringList{"gemini-flash"}, cfg.Stats.ExcludeModels)
	assert.Equal(t, StringList{"chart", "dockerfile", "sql-query", "terraform"}, cfg.Stats.Domains, "unset keys keep defaults")
	assert.Equal(t, 1000, cfg.Stats.BetaSamples)
	assert.Equal(t, StringList{"opus", "glm-5"}, cfg.Stats.FrontierModels)
	assert.Equal(t, 0.95, cfg.Bootstrap.Level)
	assert.Equal(t, 500, cfg.Bootstrap.Resamples)

	assert.Equal(t, "Charts", cfg.Label("chart"))
	assert.Equal(t, filepath.Join(dir, "reports", "chart.csv"), cfg.OutputPath("chart", "scores_deep.csv"))
	assert.Equal(t, filepath.Join(dir, "experiments", "sql", "results"), cfg.ResultsDir("sql-query"))
	assert.Equal(t, "task_*.json", cfg.TaskGlob("sql-query"))
	assert.Equal(t, filepath.Join(dir, "out", "scores.db"), cfg.DBPath())
}

func TestLoadTOML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "skilleval.toml", `
domains_root = "d"

[domains.terraform]
results = "runs/tf"

[stats]
domains = ["terraform", "chart"]
exclude_models = "glm-4.7-flash"
frontier_models = ["sonnet"]
seed = 7
`)
	cfg, _, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate(known))
	assert.Equal(t, StringList{"terraform", "chart"}, cfg.Stats.Domains)
	assert.Equal(t, StringList{"glm-4.7-flash"}, cfg.Stats.ExcludeModels)
	assert.Equal(t, StringList{"sonnet"}, cfg.Stats.FrontierModels)
	assert.Equal(t, uint64(7), cfg.BetaOptions().Seed)
	assert.Equal(t, filepath.Join(dir, "runs", "tf"), cfg.ResultsDir("terraform"))
	assert.Equal(t, filepath.Join(dir, "d", "chart", "test-data"), cfg.TestDataDir("chart"))
}

func TestLoadParseError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "skilleval.toml", "domains_root = [")
	_, _, err := Load(dir)
	require.ErrorContains(t, err, "parse config "+p)

	p = writeFile(t, t.TempDir(), "bad.yml", "stats:\n  domains: {a: 1}\n")
	_, err = LoadFile(p)
	require.ErrorContains(t, err, "expected string or list")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "unknown domain", mutate: func(c *Config) { c.Domains = map[string]DomainConfig{"cobol": {}} }, wantErr: `unknown domain "cobol"`},
		{name: "unknown stats domain", mutate: func(c *Config) { c.Stats.Domains = StringList{"chart", "x"} }, wantErr: "stats.domains"},
		{name: "escaping output", mutate: func(c *Config) { c.Domains = map[string]DomainConfig{"chart": {Output: "../../etc/x.csv"}} }, wantErr: "escapes base directory"},
		{name: "absolute results", mutate: func(c *Config) { c.Domains = map[string]DomainConfig{"chart": {Results: "/tmp/r"}} }, wantErr: "must be relative"},
		{name: "escaping dir", mutate: func(c *Config) { c.Domains = map[string]DomainConfig{"chart": {Dir: "../x"}} }, wantErr: "domains.chart.dir"},
		{name: "bad glob", mutate: func(c *Config) { c.Domains = map[string]DomainConfig{"chart": {TaskGlob: "["}} }, wantErr: "task-glob"},
		{name: "empty root", mutate: func(c *Config) { c.DomainsRoot = "" }, wantErr: "domains-root is required"},
		{name: "escaping db", mutate: func(c *Config) { c.DB = "../scores.db" }, wantErr: "db:"},
		{name: "beta width", mutate: func(c *Config) { c.Stats.BetaWidth = 1.5 }, wantErr: "beta-width"},
		{name: "level", mutate: func(c *Config) { c.Bootstrap.Level = 1 }, wantErr: "bootstrap.level"},
		{name: "resamples", mutate: func(c *Config) { c.Bootstrap.Resamples = 0 }, wantErr: "resamples"},
		{name: "jobs", mutate: func(c *Config) { c.Jobs = -1 }, wantErr: "jobs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(known), tt.wantErr)
		})
	}
}

func TestResultsEnvOverride(t *testing.T) {
	t.Setenv(ResultsEnvVar, "/elsewhere/results")

	cfg := DefaultConfig()
	assert.Equal(t, "/elsewhere/results", cfg.ResultsDir("dockerfile"))
	assert.Equal(t, filepath.Join("/elsewhere/results", "scores.csv"), cfg.OutputPath("dockerfile", "scores.csv"))
}
