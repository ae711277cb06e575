package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codalotl/skilleval/internal/report"
	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/score"
	"github.com/codalotl/skilleval/internal/store"
	"github.com/codalotl/skilleval/internal/tasks"
)

type evaluateOptions struct {
	domain     string
	files      []string
	resultsDir string
	tasksDir   string
	out        string
	db         string
	jobs       int
	watch      bool
}

func newEvaluateCmd(a *app) *cobra.Command {
	var opts evaluateOptions
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "evaluate <domain> [FILE.json ...]",
		Short: "Score a domain's run files into a CSV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.domain = args[0]
			opts.files = args[1:]
			return runEvaluate(cmd.Context(), a, opts)
		},
	})
	cmd.Flags().StringVar(&opts.resultsDir, "results", "", "directory of run files (default: from config)")
	cmd.Flags().StringVar(&opts.tasksDir, "tasks", "", "directory of task definitions (default: from config)")
	cmd.Flags().StringVar(&opts.out, "out", "", "scores CSV path (default: inside the results directory)")
	cmd.Flags().StringVar(&opts.db, "db", "", "also append rows to this SQLite database")
	cmd.Flags().IntVar(&opts.jobs, "jobs", 0, "files scored in parallel (default: from config, else GOMAXPROCS)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "rescore whenever run files change")
	return cmd
}

// evaluation is one resolved evaluate invocation.
type evaluation struct {
	a      *app
	ev     score.Evaluator
	opts   evaluateOptions
	tasks  score.TaskSource
	out    string
	db     string
	logger *zap.Logger
}

func runEvaluate(ctx context.Context, a *app, opts evaluateOptions) error {
	ev, ok := score.Lookup(opts.domain)
	if !ok {
		return fmt.Errorf("unknown domain %q (known: %s)", opts.domain, strings.Join(score.Names(), ", "))
	}
	cfg := a.cfg
	if opts.resultsDir == "" {
		opts.resultsDir = cfg.ResultsDir(opts.domain)
	}
	if opts.tasksDir == "" {
		opts.tasksDir = cfg.TestDataDir(opts.domain)
	}
	if opts.jobs == 0 {
		opts.jobs = cfg.Jobs
	}
	e := &evaluation{
		a:      a,
		ev:     ev,
		opts:   opts,
		tasks:  tasks.NewLoader(opts.tasksDir, cfg.TaskGlob(opts.domain), a.logger),
		out:    opts.out,
		db:     opts.db,
		logger: a.logger.With(zap.String("domain", opts.domain)),
	}
	if e.out == "" {
		e.out = cfg.OutputPath(opts.domain, score.OutputName(ev))
	}
	if e.db == "" {
		e.db = cfg.DBPath()
	}

	if !opts.watch {
		return e.once(ctx)
	}
	return e.watch(ctx)
}

func (e *evaluation) scoreOptions() score.Options {
	return score.Options{
		Evaluator:  e.ev,
		ResultsDir: e.opts.resultsDir,
		Files:      e.opts.files,
		Tasks:      e.tasks,
		Jobs:       e.opts.jobs,
		Logger:     e.a.logger,
	}
}

// once scores the selected files, writes the CSV (and the database when configured) and prints the summary.
func (e *evaluation) once(ctx context.Context) error {
	p := e.a.printer
	sopts := e.scoreOptions()
	files, err := score.SelectFiles(sopts)
	if err != nil {
		return err
	}
	sopts.Files = files
	if err := p.Appf("Evaluating %d result files...", len(files)); err != nil {
		return err
	}

	batch, err := score.Run(ctx, sopts)
	if err != nil {
		return err
	}
	header := report.BuildCSVSchema(e.ev)
	if err := report.WriteFile(e.out, header, batch.Rows); err != nil {
		return err
	}
	if e.db != "" {
		if err := e.save(ctx, batch); err != nil {
			return err
		}
	}
	e.logger.Info("batch scored",
		zap.String("batch", batch.ID),
		zap.Int("rows", len(batch.Rows)),
		zap.Int("failed", len(batch.Failed)),
		zap.String("out", e.out))
	return printSummary(e.a, e.out, report.Summarize(header, batch.Rows, e.ev.ScoredRules()))
}

func (e *evaluation) save(ctx context.Context, batch *score.Batch) error {
	db, err := store.Open(e.db)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Save(ctx, store.Batch{
		ID:     batch.ID,
		Domain: e.ev.Name(),
		Files:  len(batch.Files),
		Failed: len(batch.Failed),
	}, batch.Rows)
}

// watch scores once, then rescores on every debounced change until ctx is done. An empty results directory is not an
// error while watching.
func (e *evaluation) watch(ctx context.Context) error {
	if err := e.once(ctx); err != nil && !isNothingToScore(err) {
		return err
	}
	w, err := score.NewWatcher(e.opts.resultsDir, []string{score.DefaultOutputName, filepath.Base(e.out)}, e.logger, func(ctx context.Context) {
		if err := e.once(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("rescore failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	defer w.Stop()
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("watch %s: %w", e.opts.resultsDir, err)
	}
	<-ctx.Done()
	return nil
}

func isNothingToScore(err error) bool {
	return errors.Is(err, score.ErrNoResultFiles)
}

func printSummary(a *app, out string, s report.Summary) error {
	p := a.printer
	if err := p.Appf("Results written to %s", out); err != nil {
		return err
	}
	lines := []string{
		fmt.Sprintf("Total runs: %d", s.Total),
		fmt.Sprintf("Extraction ok: %d/%d", s.ExtractionOK, s.Total),
	}
	if s.StructureValid != nil {
		lines = append(lines, fmt.Sprintf("Structure valid: %d/%d", *s.StructureValid, s.Total))
	}
	if s.NeedsReview != nil {
		lines = append(lines, fmt.Sprintf("Needs manual review: %d", *s.NeedsReview))
	}
	for _, line := range lines {
		if err := p.Detail(line); err != nil {
			return err
		}
	}
	if len(s.ByCondition) > 0 {
		if err := p.Appf("Auto-score by condition (max %d scored rules):", s.MaxScored); err != nil {
			return err
		}
		for _, c := range s.ByCondition {
			if err := p.Detailf("  %s: mean=%.1f, n=%d", c.Condition, c.Mean, c.N); err != nil {
				return err
			}
		}
	}
	if len(s.Rules) == 0 {
		return nil
	}
	if err := p.App("Per-rule pass rate:"); err != nil {
		return err
	}
	rows := make([][]string, 0, len(s.Rules))
	for _, r := range s.Rules {
		rows = append(rows, []string{r.Rule, rules.FormatFloat(rules.Round(r.Rate, 3))})
	}
	return p.Table([]string{"rule", "rate"}, rows)
}
