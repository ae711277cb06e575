// Package score runs a domain evaluator over a batch of run files and assembles one row per run.
package score

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codalotl/skilleval/internal/chart"
	"github.com/codalotl/skilleval/internal/commitmsg"
	"github.com/codalotl/skilleval/internal/dbt"
	"github.com/codalotl/skilleval/internal/dockerfile"
	"github.com/codalotl/skilleval/internal/fsutil"
	"github.com/codalotl/skilleval/internal/openapi"
	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/terraform"
	"github.com/codalotl/skilleval/internal/types"
	"github.com/codalotl/skilleval/internal/unwrap"
)

var (
	ErrNoResultsDir  = errors.New("no results directory found")
	ErrNoResultFiles = errors.New("no result files found")
)

// DefaultOutputName is the scores file written into a domain's results directory.
const DefaultOutputName = "scores.csv"

// Evaluator scores the raw output of one run for a single domain.
type Evaluator interface {
	Name() string
	// Marker reports whether text plausibly holds the domain's artifact; it filters written-file payloads.
	Marker(text string) bool
	// Columns are the domain's CSV columns in order, after the identity and token columns.
	Columns() []string
	// ScoredRules is the fixed number of rules that count toward auto_score.
	ScoredRules() int
	Evaluate(raw string, task types.Task) rules.Fields
}

var registry = []Evaluator{
	chart.Evaluator{},
	commitmsg.Evaluator{},
	dockerfile.Evaluator{},
	openapi.Evaluator{},
	dbt.Evaluator{},
	terraform.Evaluator{},
}

// Evaluators returns every registered evaluator sorted by name.
func Evaluators() []Evaluator {
	out := append([]Evaluator(nil), registry...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the registered domain names, sorted.
func Names() []string {
	evs := Evaluators()
	names := make([]string, 0, len(evs))
	for _, ev := range evs {
		names = append(names, ev.Name())
	}
	return names
}

// Lookup returns the evaluator registered under name.
func Lookup(name string) (Evaluator, bool) {
	for _, ev := range registry {
		if ev.Name() == name {
			return ev, true
		}
	}
	return nil, false
}

// OutputName is the scores file name for ev. Evaluators may override DefaultOutputName with an OutputName method.
func OutputName(ev Evaluator) string {
	if named, ok := ev.(interface{ OutputName() string }); ok {
		return named.OutputName()
	}
	return DefaultOutputName
}

// TaskSource resolves task metadata by task id. A miss returns an empty Task.
type TaskSource interface {
	Load(taskID string) types.Task
}

type noTasks struct{}

func (noTasks) Load(string) types.Task { return types.Task{} }

type Options struct {
	Evaluator Evaluator

	// ResultsDir is scanned for run files when Files is empty.
	ResultsDir string
	Files      []string

	Tasks  TaskSource
	Jobs   int
	Logger *zap.Logger
}

// FileError is a run file that could not be scored.
type FileError struct {
	File string
	Err  error
}

// Batch is the outcome of one Run. Rows keep the order of the input files; files that failed are absent from Rows and listed
// in Failed.
type Batch struct {
	ID     string
	Files  []string
	Rows   []rules.Fields
	Failed []FileError
}

// Run scores every run file selected by opts. It errors only when there is nothing to score or ctx is canceled; per-file
// failures are logged and collected in the batch.
func Run(ctx context.Context, opts Options) (*Batch, error) {
	if opts.Evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	files, err := SelectFiles(opts)
	if err != nil {
		return nil, err
	}
	tasks := opts.Tasks
	if tasks == nil {
		tasks = noTasks{}
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	batch := &Batch{ID: uuid.NewString(), Files: files}
	logger = logger.With(zap.String("batch", batch.ID), zap.String("domain", opts.Evaluator.Name()))
	logger.Debug("scoring batch", zap.Int("files", len(files)), zap.Int("jobs", jobs))

	rows := make([]rules.Fields, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i], errs[i] = ScoreFile(path, opts.Evaluator, tasks)
			if errs[i] != nil {
				logger.Error(fmt.Sprintf("ERROR processing %s: %v", filepath.Base(path), errs[i]),
					zap.String("file", path), zap.Error(errs[i]))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, row := range rows {
		if errs[i] != nil {
			batch.Failed = append(batch.Failed, FileError{File: files[i], Err: errs[i]})
			continue
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

// SelectFiles returns the run files Run would score: opts.Files filtered to run-file names, or the run files in
// opts.ResultsDir minus the scores sheets.
func SelectFiles(opts Options) ([]string, error) {
	var files []string
	if len(opts.Files) > 0 {
		for _, f := range opts.Files {
			if fsutil.IsRunFile(f) {
				files = append(files, f)
			}
		}
	} else {
		dir := opts.ResultsDir
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w at %s", ErrNoResultsDir, dir)
		}
		listed, err := fsutil.ListRunFiles(dir, DefaultOutputName, OutputName(opts.Evaluator))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		files = listed
	}
	if len(files) == 0 {
		return nil, ErrNoResultFiles
	}
	return files, nil
}

// ScoreFile reads one run file and returns its complete row: identity, token usage, and the evaluator's fields.
func ScoreFile(path string, ev Evaluator, tasks TaskSource) (rules.Fields, error) {
	data, err := fsutil.ReadRunFile(path)
	if err != nil {
		return nil, err
	}
	var run types.RunResult
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse run: %w", err)
	}
	if run.RunID == "" {
		run.RunID = types.Scalar(fsutil.RunFileStem(path))
	}
	return Row(run, ev, tasks.Load(run.Task.String())), nil
}

// Row scores a decoded run against task.
func Row(run types.RunResult, ev Evaluator, task types.Task) rules.Fields {
	fields := rules.Fields{
		"run_id":          run.RunID.String(),
		"model":           run.Model,
		"condition":       run.Condition,
		"task":            run.Task.String(),
		"task_complexity": run.TaskComplexity.String(),
		"rep":             run.Rep.String(),
		"duration_ms":     run.DurationMS.String(),
	}
	fields.Merge(unwrap.Tokens(run.RawOutput).Fields())
	fields.Merge(ev.Evaluate(run.RawOutput, task))
	return fields
}
