package report

import (
	"math"
	"sort"
	"strings"

	"github.com/codalotl/skilleval/internal/stats"
)

// Conditions of the skill-file experiment.
const (
	CondNone       = "none"
	CondMarkdown   = "markdown"
	CondPseudocode = "pseudocode"
)

// Family groups models by name prefix for the per-family comparison.
type Family struct {
	Name     string
	Prefixes []string
}

// DefaultFamilies are the model families compared in the per-family table.
var DefaultFamilies = []Family{
	{Name: "Claude", Prefixes: []string{"haiku", "opus", "sonnet", "claude"}},
	{Name: "GLM", Prefixes: []string{"glm"}},
	{Name: "Gemini", Prefixes: []string{"gemini"}},
}

// Member reports whether model belongs to f.
func (f Family) Member(model string) bool {
	lower := strings.ToLower(model)
	for _, p := range f.Prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Comparison tests whether failure rates in group A exceed those in group B.
type Comparison struct {
	Label  string
	NA, NB int
	MeanA  float64
	MeanB  float64
	Effect stats.EffectSize
	Test   stats.RankTest
}

// Empty reports whether either side had no runs.
func (c Comparison) Empty() bool {
	return c.NA == 0 || c.NB == 0
}

func compare(label string, a, b []float64, alt stats.Alternative) Comparison {
	return Comparison{
		Label:  label,
		NA:     len(a),
		NB:     len(b),
		MeanA:  stats.Mean(a),
		MeanB:  stats.Mean(b),
		Effect: stats.CliffsDelta(a, b),
		Test:   stats.MannWhitneyU(a, b, alt),
	}
}

type Reliability struct {
	Model     string
	Condition string
	N         int
	Spread    stats.Spread
	// PBelow is the observed share of runs with failure rate under 10%.
	PBelow float64
	// Beta is the posterior interval for the failure rate, counting a run under 10% as a success.
	Beta stats.BetaInterval
}

// DomainRates is the mean failure rate of one domain under each condition.
type DomainRates struct {
	Domain     string
	N          int
	None       float64
	Markdown   float64
	Pseudocode float64
}

// Consistency summarizes whether the format effect points the same way in every domain.
type Consistency struct {
	Domains int
	// Positive counts domains whose markdown-vs-pseudocode delta is above zero.
	Positive  int
	MeanDelta float64
	Magnitude stats.Magnitude
	// SignP is the one-sided binomial p of Positive out of Domains; SignPTwoSided doubles the smaller tail.
	SignP         float64
	SignPTwoSided float64
}

// GroupVariance compares the spread of failure rates between formats within one model or domain.
type GroupVariance struct {
	Group       string
	VarMarkdown float64
	VarPseudo   float64
	// Ratio is VarMarkdown / VarPseudo, NaN when pseudocode has no variance.
	Ratio  float64
	Levene stats.LeveneResult
}

// MeanInterval holds a model's bootstrap intervals of the mean failure rate under each format.
type MeanInterval struct {
	Model      string
	Markdown   stats.CI
	Pseudocode stats.CI
	// Narrowing is how much narrower the pseudocode interval is than the markdown one.
	Narrowing float64
}

// Frontier is the format effect for one headline model.
type Frontier struct {
	Model      string
	Markdown   float64
	Pseudocode float64
	// Reduction is (Markdown - Pseudocode) / Markdown, 0 when markdown never failed.
	Reduction float64
	Effect    stats.EffectSize
}

type Count struct {
	Name string
	N    int
}

type Analysis struct {
	Runs         int
	Domains      []Count
	Conditions   []Count
	Models       []string
	ByDomain     []DomainRates
	Skill        Comparison
	Reduction    float64
	Format       Comparison
	FormatDomain []Comparison
	Consistency  Consistency
	Families     []Comparison
	Frontier     []Frontier
	VarMarkdown  float64
	VarPseudo    float64
	Levene       stats.LeveneResult
	VarByModel   []GroupVariance
	VarByDomain  []GroupVariance
	MeanCIs      []MeanInterval
	Reliability  []Reliability
}

type AnalysisOptions struct {
	Families []Family
	Beta     stats.BetaOptions
	// MinRuns is the smallest (model, condition) group given a reliability row.
	MinRuns int
	// Frontier names the models given a row in the frontier table.
	Frontier []string
	// Resamples and Seed drive the per-model bootstrap of the mean at 95%.
	Resamples int
	Seed      uint64
}

// DefaultFrontier are the strongest model of each family in the published experiment.
var DefaultFrontier = []string{"opus", "glm-5"}

const meanCILevel = 0.95

// reliableThreshold is the failure rate under which a run counts as reliable.
const reliableThreshold = 0.10

// Analyze computes the cross-domain comparisons over failure rates:
//   - skill presence: none vs markdown+pseudocode, one-tailed;
//   - skill format: markdown vs pseudocode, one-tailed, pooled and per domain;
//   - per family and domain, markdown vs pseudocode, two-tailed;
//   - cross-domain consistency of the format effect, with a sign test;
//   - frontier-model format effects;
//   - variance equality between formats, pooled, per model and per domain;
//   - per-model bootstrap intervals of the mean and reliability intervals.
func Analyze(records []Record, opts AnalysisOptions) Analysis {
	if opts.Families == nil {
		opts.Families = DefaultFamilies
	}
	if opts.MinRuns <= 0 {
		opts.MinRuns = 3
	}
	if opts.Frontier == nil {
		opts.Frontier = DefaultFrontier
	}
	if opts.Resamples <= 0 {
		opts.Resamples = 10_000
	}

	a := Analysis{Runs: len(records)}
	domains := distinct(records, func(r Record) string { return r.Domain })
	a.Models = distinct(records, func(r Record) string { return r.Model })
	for _, d := range domains {
		dr := filter(records, func(r Record) bool { return r.Domain == d })
		a.Domains = append(a.Domains, Count{Name: d, N: len(dr)})
		a.ByDomain = append(a.ByDomain, DomainRates{
			Domain:     d,
			N:          len(dr),
			None:       stats.Mean(rates(dr, CondNone)),
			Markdown:   stats.Mean(rates(dr, CondMarkdown)),
			Pseudocode: stats.Mean(rates(dr, CondPseudocode)),
		})
	}
	for _, c := range []string{CondNone, CondMarkdown, CondPseudocode} {
		a.Conditions = append(a.Conditions, Count{Name: c, N: len(rates(records, c))})
	}

	none := rates(records, CondNone)
	skill := rates(records, CondMarkdown, CondPseudocode)
	a.Skill = compare("none vs skill", none, skill, stats.Greater)
	a.Reduction = math.NaN()
	if m := stats.Mean(skill); m > 0 {
		a.Reduction = stats.Mean(none) / m
	}

	md := rates(records, CondMarkdown)
	pc := rates(records, CondPseudocode)
	a.Format = compare("pooled", md, pc, stats.Greater)
	for _, d := range domains {
		dr := filter(records, func(r Record) bool { return r.Domain == d })
		a.FormatDomain = append(a.FormatDomain, compare(d, rates(dr, CondMarkdown), rates(dr, CondPseudocode), stats.Greater))
	}
	a.Consistency = consistency(a.FormatDomain)

	for _, fam := range opts.Families {
		fr := filter(records, func(r Record) bool { return fam.Member(r.Model) })
		if len(fr) == 0 {
			continue
		}
		for _, d := range domains {
			dr := filter(fr, func(r Record) bool { return r.Domain == d })
			a.Families = append(a.Families, compare(fam.Name+" "+d, rates(dr, CondMarkdown), rates(dr, CondPseudocode), stats.TwoSided))
		}
	}

	for _, model := range opts.Frontier {
		mr := filter(records, func(r Record) bool { return r.Model == model })
		if len(mr) == 0 {
			continue
		}
		a.Frontier = append(a.Frontier, frontier(model, rates(mr, CondMarkdown), rates(mr, CondPseudocode)))
	}

	a.VarMarkdown = stats.Variance(md)
	a.VarPseudo = stats.Variance(pc)
	a.Levene = stats.Levene(md, pc)
	for _, model := range a.Models {
		mr := filter(records, func(r Record) bool { return r.Model == model })
		mdm, pcm := rates(mr, CondMarkdown), rates(mr, CondPseudocode)
		a.VarByModel = append(a.VarByModel, groupVariance(model, mdm, pcm))
		a.MeanCIs = append(a.MeanCIs, meanInterval(model, mdm, pcm, opts))
	}
	for _, d := range domains {
		dr := filter(records, func(r Record) bool { return r.Domain == d })
		a.VarByDomain = append(a.VarByDomain, groupVariance(d, rates(dr, CondMarkdown), rates(dr, CondPseudocode)))
	}

	for _, model := range a.Models {
		mr := filter(records, func(r Record) bool { return r.Model == model })
		for _, cond := range []string{CondMarkdown, CondPseudocode} {
			vals := rates(mr, cond)
			if len(vals) < opts.MinRuns {
				continue
			}
			passing := 0
			for _, v := range vals {
				if v < reliableThreshold {
					passing++
				}
			}
			a.Reliability = append(a.Reliability, Reliability{
				Model:     model,
				Condition: cond,
				N:         len(vals),
				Spread:    stats.PercentileHDI(vals, 5, 95),
				PBelow:    stats.ShareBelow(vals, reliableThreshold),
				Beta:      stats.BetaHDI(passing, len(vals), opts.Beta),
			})
		}
	}
	return a
}

// consistency counts the domains with both formats present.
func consistency(perDomain []Comparison) Consistency {
	var c Consistency
	var deltas []float64
	for _, d := range perDomain {
		if d.Empty() {
			continue
		}
		deltas = append(deltas, d.Effect.Delta)
		if d.Effect.Delta > 0 {
			c.Positive++
		}
	}
	c.Domains = len(deltas)
	c.MeanDelta = stats.Mean(deltas)
	c.Magnitude = stats.MagnitudeOf(c.MeanDelta)
	c.SignP = stats.SignTest(c.Positive, c.Domains, stats.Greater)
	c.SignPTwoSided = stats.SignTest(c.Positive, c.Domains, stats.TwoSided)
	return c
}

// groupVariance needs two runs of each format; smaller groups are all NaN.
func groupVariance(group string, md, pc []float64) GroupVariance {
	nan := math.NaN()
	g := GroupVariance{Group: group, VarMarkdown: nan, VarPseudo: nan, Ratio: nan, Levene: stats.LeveneResult{W: nan, P: nan}}
	if len(md) < 2 || len(pc) < 2 {
		return g
	}
	g.VarMarkdown = stats.Variance(md)
	g.VarPseudo = stats.Variance(pc)
	if g.VarPseudo > 0 {
		g.Ratio = g.VarMarkdown / g.VarPseudo
	}
	g.Levene = stats.Levene(md, pc)
	return g
}

func meanInterval(model string, md, pc []float64, opts AnalysisOptions) MeanInterval {
	m := MeanInterval{
		Model:      model,
		Markdown:   bootstrapMean(md, opts),
		Pseudocode: bootstrapMean(pc, opts),
	}
	m.Narrowing = (m.Markdown.Upper - m.Markdown.Lower) - (m.Pseudocode.Upper - m.Pseudocode.Lower)
	return m
}

// bootstrapMean is NaN for fewer than two runs, where resampling says nothing.
func bootstrapMean(values []float64, opts AnalysisOptions) stats.CI {
	if len(values) < 2 {
		nan := math.NaN()
		return stats.CI{Mean: stats.Mean(values), Lower: nan, Upper: nan}
	}
	return stats.BootstrapMeanCI(values, opts.Resamples, meanCILevel, opts.Seed)
}

func frontier(model string, md, pc []float64) Frontier {
	f := Frontier{
		Model:      model,
		Markdown:   stats.Mean(md),
		Pseudocode: stats.Mean(pc),
		Effect:     stats.CliffsDelta(md, pc),
	}
	if f.Markdown > 0 {
		f.Reduction = (f.Markdown - f.Pseudocode) / f.Markdown
	}
	return f
}

func rates(records []Record, conditions ...string) []float64 {
	want := sliceToSet(conditions)
	var out []float64
	for _, r := range records {
		if want[r.Condition] {
			out = append(out, r.FailureRate)
		}
	}
	return out
}

func filter(records []Record, keep func(Record) bool) []Record {
	var out []Record
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func distinct(records []Record, key func(Record) string) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range records {
		k := key(r)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
