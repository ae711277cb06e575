package terraform

import (
	"strings"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
	"github.com/codalotl/skilleval/internal/unwrap"
)

const failedDetail = "no Terraform HCL extracted"

// Evaluator scores Terraform responses.
type Evaluator struct{}

func (Evaluator) Name() string { return "terraform" }

func (Evaluator) Marker(text string) bool { return Marker(text) }

func (Evaluator) ScoredRules() int { return Rules.ScoredCount() }

func (Evaluator) Columns() []string {
	cols := []string{"extraction_ok", "extraction_error", "structure_valid", "structure_errors"}
	cols = append(cols, Rules.Columns()...)
	cols = append(cols, "auto_score", "scored_rules", "needs_manual_review")
	cols = append(cols, Outcomes.Columns()...)
	return append(cols, "outcome_score")
}

func (Evaluator) Evaluate(raw string, task types.Task) rules.Fields {
	fields := rules.Fields{}
	tf, err := Extract(unwrap.Resolve(raw, Marker))
	fields.Bool("extraction_ok", err == nil)
	if err != nil {
		fields["extraction_error"] = err.Error()
		fields.Bool("structure_valid", false)
		fields["structure_errors"] = err.Error()
		rules.PutScored(fields, Rules, Rules.Failed(failedDetail))
		fields.Bool("needs_manual_review", false)
		rules.PutOutcomes(fields, Outcomes, Outcomes.Failed(failedDetail))
		return fields
	}
	fields["extraction_error"] = ""

	structErrs := ValidateStructure(tf)
	fields.Bool("structure_valid", len(structErrs) == 0)
	fields["structure_errors"] = strings.Join(structErrs, "; ")

	results := Rules.Evaluate(tf, task)
	rules.PutScored(fields, Rules, results)
	fields.Bool("needs_manual_review", rules.NeedsReview(results))
	rules.PutOutcomes(fields, Outcomes, Outcomes.Evaluate(tf, task))
	return fields
}
