package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codalotl/skilleval/internal/report"
	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/score"
)

type statsOptions struct {
	domains       []string
	excludeModels []string
	publish       bool
}

func newStatsCmd(a *app) *cobra.Command {
	var domains string
	var exclude string
	var opts statsOptions
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "stats",
		Short: "Compare failure rates across skill conditions, domains and model families",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.domains = splitCommaList(domains)
			opts.excludeModels = splitCommaList(exclude)
			an, err := runStats(a, opts)
			if err != nil {
				return err
			}
			sections := statsSections(an)
			if err := printSections(a, an, sections); err != nil {
				return err
			}
			if !opts.publish {
				return nil
			}
			rel, err := publishStats(a.cfg.Root(), an, sections, formatCommandForPublish(os.Args), time.Now())
			if err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			return a.printer.Appf("Published %s", rel)
		},
	})
	cmd.Flags().StringVar(&domains, "domains", "", "comma-separated domains (default: from config)")
	cmd.Flags().StringVar(&exclude, "exclude-models", "", "comma-separated models to drop in addition to the config's")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "write a stats summary under result_summaries/ and update README.md")
	return cmd
}

// runStats loads every requested domain's scores CSV and analyzes them together. A domain without a CSV is skipped with a
// warning; having none at all is an error.
func runStats(a *app, opts statsOptions) (report.Analysis, error) {
	cfg := a.cfg
	domains := opts.domains
	if len(domains) == 0 {
		domains = cfg.Stats.Domains
	}
	exclude := append(append([]string(nil), cfg.Stats.ExcludeModels...), opts.excludeModels...)

	var records []report.Record
	for _, name := range domains {
		ev, ok := score.Lookup(name)
		if !ok {
			return report.Analysis{}, fmt.Errorf("unknown domain %q", name)
		}
		path := cfg.OutputPath(name, score.OutputName(ev))
		recs, err := report.LoadRecords(path, cfg.Label(name), exclude)
		if errors.Is(err, fs.ErrNotExist) {
			a.logger.Warn("no scores for domain", zap.String("domain", name), zap.String("path", path))
			continue
		}
		if err != nil {
			return report.Analysis{}, fmt.Errorf("load %s: %w", path, err)
		}
		a.logger.Debug("loaded scores", zap.String("domain", name), zap.Int("records", len(recs)))
		records = append(records, recs...)
	}
	if len(records) == 0 {
		return report.Analysis{}, errors.New("no scored runs found; run evaluate first")
	}
	return report.Analyze(records, report.AnalysisOptions{
		Beta:      cfg.BetaOptions(),
		MinRuns:   cfg.Stats.MinRuns,
		Frontier:  cfg.Stats.FrontierModels,
		Resamples: cfg.Bootstrap.Resamples,
		Seed:      cfg.Bootstrap.Seed,
	}), nil
}

// section is one titled table of the statistics report, rendered to the console or to markdown.
type section struct {
	title  string
	header []string
	rows   [][]string
	notes  []string
}

func statsSections(an report.Analysis) []section {
	var out []section

	byDomain := section{title: "Mean failure rate by domain", header: []string{"domain", "n", "none", "markdown", "pseudocode"}}
	for _, d := range an.ByDomain {
		byDomain.rows = append(byDomain.rows, []string{d.Domain, strconv.Itoa(d.N), num(d.None), num(d.Markdown), num(d.Pseudocode)})
	}
	out = append(out, byDomain)

	rq1 := section{title: "Skill presence (none > skill, one-tailed)", header: comparisonHeader("comparison")}
	rq1.rows = append(rq1.rows, comparisonRow(an.Skill))
	if !math.IsNaN(an.Reduction) {
		rq1.notes = append(rq1.notes, "Failure-rate reduction: "+num(an.Reduction)+"x")
	}
	out = append(out, rq1)

	rq2 := section{title: "Skill format (markdown > pseudocode, one-tailed)", header: comparisonHeader("scope")}
	rq2.rows = append(rq2.rows, comparisonRow(an.Format))
	for _, c := range an.FormatDomain {
		rq2.rows = append(rq2.rows, comparisonRow(c))
	}
	out = append(out, rq2)

	if c := an.Consistency; c.Domains > 0 {
		out = append(out, section{
			title:  "Cross-domain consistency (markdown > pseudocode)",
			header: []string{"domains", "positive", "mean delta", "magnitude", "sign p", "sign p (two-sided)"},
			rows: [][]string{{
				strconv.Itoa(c.Domains), strconv.Itoa(c.Positive), num(c.MeanDelta), c.Magnitude.Short(),
				pval(c.SignP), pval(c.SignPTwoSided),
			}},
		})
	}

	fam := section{title: "Markdown vs pseudocode by family (two-tailed)", header: comparisonHeader("family")}
	for _, c := range an.Families {
		if c.Empty() {
			continue
		}
		fam.rows = append(fam.rows, comparisonRow(c))
	}
	if len(fam.rows) > 0 {
		out = append(out, fam)
	}

	front := section{
		title:  "Frontier models",
		header: []string{"model", "markdown", "pseudocode", "diff (pp)", "reduction", "delta", "magnitude"},
	}
	for _, f := range an.Frontier {
		front.rows = append(front.rows, []string{
			f.Model, num(f.Markdown), num(f.Pseudocode), num(100 * (f.Markdown - f.Pseudocode)),
			num(f.Reduction), num(f.Effect.Delta), f.Effect.Magnitude.Short(),
		})
	}
	if len(front.rows) > 0 {
		out = append(out, front)
	}

	out = append(out, section{
		title:  "Variance by format",
		header: []string{"markdown", "pseudocode", "levene W", "p"},
		rows:   [][]string{{num(an.VarMarkdown), num(an.VarPseudo), num(an.Levene.W), pval(an.Levene.P)}},
	})
	if s := varianceSection("Variance by model", "model", an.VarByModel); len(s.rows) > 0 {
		out = append(out, s)
	}
	if s := varianceSection("Variance by domain", "domain", an.VarByDomain); len(s.rows) > 0 {
		out = append(out, s)
	}

	cis := section{
		title:  "Bootstrap 95% interval of the mean by model",
		header: []string{"model", "markdown", "md lower", "md upper", "pseudocode", "pc lower", "pc upper", "narrowing"},
	}
	for _, m := range an.MeanCIs {
		cis.rows = append(cis.rows, []string{
			m.Model,
			num(m.Markdown.Mean), num(m.Markdown.Lower), num(m.Markdown.Upper),
			num(m.Pseudocode.Mean), num(m.Pseudocode.Lower), num(m.Pseudocode.Upper),
			num(m.Narrowing),
		})
	}
	if len(cis.rows) > 0 {
		out = append(out, cis)
	}

	rel := section{
		title:  "Reliability (failure rate < 10%)",
		header: []string{"model", "condition", "n", "p5", "p95", "observed", "beta lower", "beta upper", "P(FR<10%)"},
	}
	for _, r := range an.Reliability {
		rel.rows = append(rel.rows, []string{
			r.Model, r.Condition, strconv.Itoa(r.N),
			num(r.Spread.Lower), num(r.Spread.Upper),
			num(r.PBelow), num(r.Beta.Lower), num(r.Beta.Upper), num(r.Beta.PBelow),
		})
	}
	if len(rel.rows) > 0 {
		out = append(out, rel)
	}
	return out
}

func varianceSection(title, first string, groups []report.GroupVariance) section {
	s := section{title: title, header: []string{first, "var markdown", "var pseudocode", "ratio", "levene W", "p"}}
	for _, g := range groups {
		s.rows = append(s.rows, []string{
			g.Group, num(g.VarMarkdown), num(g.VarPseudo), num(g.Ratio), num(g.Levene.W), pval(g.Levene.P),
		})
	}
	return s
}

func comparisonHeader(first string) []string {
	return []string{first, "n_a", "n_b", "mean_a", "mean_b", "delta", "magnitude", "U", "p"}
}

func comparisonRow(c report.Comparison) []string {
	return []string{
		c.Label,
		strconv.Itoa(c.NA),
		strconv.Itoa(c.NB),
		num(c.MeanA),
		num(c.MeanB),
		num(c.Effect.Delta),
		c.Effect.Magnitude.Short(),
		num(c.Test.U),
		pval(c.Test.P),
	}
}

// num formats v to three places, "n/a" when undefined.
func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return rules.FormatFloat(rules.Round(v, 3))
}

func pval(p float64) string {
	if !math.IsNaN(p) && p < 0.001 {
		return "<0.001"
	}
	return num(p)
}

func printSections(a *app, an report.Analysis, sections []section) error {
	p := a.printer
	if err := p.Appf("Runs: %d across %d domains, %d models", an.Runs, len(an.Domains), len(an.Models)); err != nil {
		return err
	}
	for _, c := range an.Conditions {
		if err := p.Detailf("  %s: %d", c.Name, c.N); err != nil {
			return err
		}
	}
	for _, s := range sections {
		if err := p.App(s.title + ":"); err != nil {
			return err
		}
		if err := p.Table(s.header, s.rows); err != nil {
			return err
		}
		for _, n := range s.notes {
			if err := p.Detail(n); err != nil {
				return err
			}
		}
	}
	return nil
}
