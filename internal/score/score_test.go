package score

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/codalotl/skilleval/internal/fsutil"
	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
)

type echoEvaluator struct{}

func (echoEvaluator) Name() string       { return "echo" }
func (echoEvaluator) Marker(string) bool { return true }
func (echoEvaluator) ScoredRules() int   { return 1 }

func (echoEvaluator) Columns() []string {
	return []string{"echo", "task_flag", "auto_score", "scored_rules"}
}

func (echoEvaluator) Evaluate(raw string, task types.Task) rules.Fields {
	f := rules.Fields{"echo": unwrapResult(raw)}
	f.Bool("task_flag", task.Bool("flag"))
	f.Int("auto_score", 1)
	f.Int("scored_rules", 1)
	return f
}

func unwrapResult(raw string) string {
	var obj map[string]any
	if json.Unmarshal([]byte(raw), &obj) == nil {
		if s, ok := obj["result"].(string); ok {
			return s
		}
	}
	return raw
}

type mapTasks map[string]types.Task

func (m mapTasks) Load(id string) types.Task {
	if t, ok := m[id]; ok {
		return t
	}
	return types.Task{}
}

func writeRun(t *testing.T, dir, name string, run map[string]any) string {
	t.Helper()
	data, err := json.Marshal(run)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunKeepsOrderAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i, name := range []string{"a.json", "b.json", "c.json", "d.json"} {
		writeRun(t, dir, name, map[string]any{
			"run_id":     name,
			"model":      "opus",
			"condition":  "markdown",
			"task":       i % 2,
			"rep":        "1",
			"raw_output": `{"result":"` + name + `","usage":{"input_tokens":10,"output_tokens":3}}`,
		})
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{oops"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scores.csv"), []byte("run_id\n"), 0o644))
	require.NoError(t, fsutil.WriteZstd(filepath.Join(dir, "e.json.zst"), []byte(`{"model":"haiku","raw_output":"plain"}`)))

	core, logs := observer.New(zapcore.ErrorLevel)
	batch, err := Run(context.Background(), Options{
		Evaluator:  echoEvaluator{},
		ResultsDir: dir,
		Tasks:      mapTasks{"1": {"flag": true}},
		Jobs:       3,
		Logger:     zap.New(core),
	})
	require.NoError(t, err)
	require.NotEmpty(t, batch.ID)
	require.Len(t, batch.Files, 6)

	var got []string
	for _, row := range batch.Rows {
		got = append(got, row["echo"])
	}
	assert.Equal(t, []string{"a.json", "b.json", "c.json", "d.json", "plain"}, got)

	first := batch.Rows[0]
	assert.Equal(t, "opus", first["model"])
	assert.Equal(t, "0", first["task"])
	assert.Equal(t, "10", first["input_tokens"])
	assert.Equal(t, "", first["total_cost_usd"])
	assert.Equal(t, "False", first["task_flag"])
	assert.Equal(t, "True", batch.Rows[1]["task_flag"])

	assert.Equal(t, "e", batch.Rows[4]["run_id"], "run_id falls back to the file stem")

	require.Len(t, batch.Failed, 1)
	assert.Equal(t, "bad.json", filepath.Base(batch.Failed[0].File))
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "ERROR processing bad.json: parse run:")
}

func TestScoreFileAcceptsNumericRunID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeRun(t, dir, "run.json", map[string]any{
		"run_id":     17,
		"model":      "opus",
		"task":       "2",
		"raw_output": "plain",
	})
	row, err := ScoreFile(path, echoEvaluator{}, mapTasks{})
	require.NoError(t, err)
	assert.Equal(t, "17", row["run_id"])
	assert.Equal(t, "2", row["task"])
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), Options{Evaluator: echoEvaluator{}, ResultsDir: filepath.Join(t.TempDir(), "missing")})
	require.ErrorIs(t, err, ErrNoResultsDir)

	_, err = Run(context.Background(), Options{Evaluator: echoEvaluator{}, ResultsDir: t.TempDir()})
	require.ErrorIs(t, err, ErrNoResultFiles)

	_, err = Run(context.Background(), Options{Evaluator: echoEvaluator{}, Files: []string{"notes.txt"}})
	require.ErrorIs(t, err, ErrNoResultFiles)

	_, err = Run(context.Background(), Options{ResultsDir: t.TempDir()})
	require.Error(t, err)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeRun(t, dir, "a.json", map[string]any{"raw_output": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Options{Evaluator: echoEvaluator{}, Files: []string{path}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"chart", "commit-message", "dockerfile", "openapi-spec", "sql-query", "terraform"}, Names())

	ev, ok := Lookup("chart")
	require.True(t, ok)
	assert.Equal(t, "scores_deep.csv", OutputName(ev))

	ev, ok = Lookup("terraform")
	require.True(t, ok)
	assert.Equal(t, DefaultOutputName, OutputName(ev))

	_, ok = Lookup("latex")
	assert.False(t, ok)
}

func TestExtractionFailureFailsEveryDomain(t *testing.T) {
	t.Parallel()

	for _, ev := range Evaluators() {
		t.Run(ev.Name(), func(t *testing.T) {
			t.Parallel()
			fields := Row(types.RunResult{RunID: "r", RawOutput: ""}, ev, types.Task{})
			require.Equal(t, "0", fields["auto_score"][:1])
			require.Equal(t, ev.ScoredRules(), mustInt(t, fields["scored_rules"]))
			for _, col := range ev.Columns() {
				require.Contains(t, fields, col)
			}
		})
	}
}

func mustInt(t *testing.T, s string) int {
	t.Helper()
	v, ok := types.AsInt(s)
	require.True(t, ok, "not an int: %q", s)
	return v
}
