package commitmsg

import (
	"strings"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
)

const failedDetail = "no commit message extracted"

// Evaluator scores commit message responses. The domain has no outcome checks and nothing needs manual review.
type Evaluator struct{}

func (Evaluator) Name() string { return "commit-message" }

func (Evaluator) Marker(text string) bool { return Marker(text) }

func (Evaluator) ScoredRules() int { return Rules.ScoredCount() }

func (Evaluator) Columns() []string {
	cols := []string{"extraction_ok", "extraction_error", "structure_valid", "structure_errors"}
	cols = append(cols, Rules.Columns()...)
	return append(cols, "auto_score", "scored_rules")
}

func (Evaluator) Evaluate(raw string, task types.Task) rules.Fields {
	fields := rules.Fields{}
	msg, err := Extract(Resolve(raw))
	fields.Bool("extraction_ok", err == nil)
	if err != nil {
		fields["extraction_error"] = err.Error()
		fields.Bool("structure_valid", false)
		fields["structure_errors"] = err.Error()
		rules.PutScored(fields, Rules, Rules.Failed(failedDetail))
		return fields
	}
	fields["extraction_error"] = ""

	structErrs := ValidateStructure(msg)
	fields.Bool("structure_valid", len(structErrs) == 0)
	fields["structure_errors"] = strings.Join(structErrs, "; ")

	rules.PutScored(fields, Rules, Rules.Evaluate(Parse(msg), task))
	return fields
}
