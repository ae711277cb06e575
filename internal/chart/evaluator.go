package chart

import (
	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
)

const failedDetail = "no valid JSON"

// Evaluator scores chart responses with the three-valued rubric.
type Evaluator struct{}

func (Evaluator) Name() string { return "chart" }

func (Evaluator) Marker(text string) bool { return Marker(text) }

func (Evaluator) ScoredRules() int { return Rules.ScoredCount() }

// OutputName keeps the deep-rubric sheet apart from the legacy shallow scores.csv.
func (Evaluator) OutputName() string { return "scores_deep.csv" }

func (Evaluator) Columns() []string {
	cols := []string{"json_valid", "json_error"}
	cols = append(cols, Rules.Columns()...)
	return append(cols,
		"pass_count", "fail_count", "absent_count",
		"deep_score", "deep_score_pct", "coverage",
		"auto_score", "scored_rules",
	)
}

func (Evaluator) Evaluate(raw string, task types.Task) rules.Fields {
	fields := rules.Fields{}
	chart, err := Extract(raw)
	fields.Bool("json_valid", err == nil)
	fields["json_error"] = ""

	var results []rules.Result
	if err != nil {
		fields["json_error"] = err.Error()
		results = Rules.Failed(failedDetail)
	} else {
		results = Rules.Evaluate(chart, task)
	}
	rules.PutScored(fields, Rules, results)

	pass, fail, absent := rules.Counts(results)
	total := float64(len(Rules.Rules))
	fields.Int("pass_count", pass)
	fields.Int("fail_count", fail)
	fields.Int("absent_count", absent)
	fields.Int("deep_score", pass)
	fields.Float("deep_score_pct", rules.Round(float64(pass)/total, 3))
	fields.Float("coverage", rules.Round(float64(pass+fail)/total, 3))
	return fields
}
