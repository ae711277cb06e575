package dbt

import (
	"strings"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
	"github.com/codalotl/skilleval/internal/unwrap"
)

const failedDetail = "no models extracted"

// Evaluator scores dbt SQL responses.
type Evaluator struct{}

func (Evaluator) Name() string { return "sql-query" }

func (Evaluator) Marker(text string) bool { return Marker(text) }

// ScoredRules counts every per-model rule plus every cross-model rule.
func (Evaluator) ScoredRules() int {
	return ModelRules.ScoredCount() + CrossRules.ScoredCount()
}

func (Evaluator) Columns() []string {
	cols := []string{"extraction_ok", "extraction_error", "model_count", "model_names"}
	for _, name := range ModelRules.Names() {
		cols = append(cols, name+"_rate", name+"_detail")
	}
	cols = append(cols, CrossRules.Columns()...)
	return append(cols, "auto_score", "scored_rules")
}

func (e Evaluator) Evaluate(raw string, task types.Task) rules.Fields {
	fields := rules.Fields{}
	models, err := Extract(unwrap.Resolve(raw, Marker))
	fields.Bool("extraction_ok", err == nil)
	if err != nil {
		fields["extraction_error"] = err.Error()
		fields.Int("model_count", 0)
		fields["model_names"] = ""
		for _, name := range ModelRules.Names() {
			fields.Float(name+"_rate", 0)
			fields[name+"_detail"] = failedDetail
		}
		rules.Put(fields, CrossRules.Failed(failedDetail), false)
		fields.Float("auto_score", 0)
		fields.Int("scored_rules", e.ScoredRules())
		return fields
	}
	fields["extraction_error"] = ""
	fields.Int("model_count", len(models))
	fields["model_names"] = strings.Join(models.Names(), "; ")

	rates := ScoreModels(models, task)
	auto := 0.0
	for _, r := range rates {
		fields.Float(r.Rule+"_rate", r.Rate)
		fields[r.Rule+"_detail"] = r.Detail
		auto += r.exact
	}

	cross := CrossRules.Evaluate(models, task)
	rules.Put(fields, cross, false)
	passed, _ := rules.Tally(cross)
	auto += float64(passed)

	fields.Float("auto_score", rules.Round(auto, 2))
	fields.Int("scored_rules", e.ScoredRules())
	return fields
}

// RuleRate is a per-model rule aggregated over every applicable model.
type RuleRate struct {
	Rule       string
	Passes     int
	Applicable int
	Rate       float64
	Detail     string

	exact float64
}

// ScoreModels evaluates ModelRules against each model and aggregates a pass rate per rule. Models a rule does not apply to
// are left out of its denominator.
func ScoreModels(models Models, task types.Task) []RuleRate {
	perModel := make([][]rules.Result, len(models))
	for i, m := range models {
		perModel[i] = ModelRules.Evaluate(m, task)
	}

	out := make([]RuleRate, 0, len(ModelRules.Rules))
	for idx, name := range ModelRules.Names() {
		rr := RuleRate{Rule: name}
		var details []string
		for i, m := range models {
			res := perModel[i][idx]
			if res.Skipped {
				continue
			}
			rr.Applicable++
			if res.Passed() {
				rr.Passes++
			} else {
				details = append(details, modelDetail(m.Name, res.Detail))
			}
		}

		if rr.Applicable == 0 {
			var detail string
			rr.Rate, detail = zeroApplicable(name, task)
			if detail != "" {
				details = []string{detail}
			}
		} else {
			rr.Rate = float64(rr.Passes) / float64(rr.Applicable)
		}
		rr.exact = rr.Rate
		rr.Rate = rules.Round(rr.Rate, 4)

		rr.Detail = "ok"
		if len(details) > 0 {
			rr.Detail = strings.Join(rules.Head(details, 3), "; ")
		}
		out = append(out, rr)
	}
	return out
}
