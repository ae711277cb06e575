// Package rules defines the verdict and rule-set types shared by every domain evaluator.
package rules

import (
	"fmt"
	"strings"

	"github.com/codalotl/skilleval/internal/types"
)

// Outcome is a rule's result. Boolean domains only produce Pass and Fail; Absent means the artifact does not specify the
// aspect the rule inspects.
type Outcome string

const (
	Pass   Outcome = "pass"
	Fail   Outcome = "fail"
	Absent Outcome = "absent"
)

// NeedsReviewMarker in a detail means a human should look at the verdict.
const NeedsReviewMarker = "needs_review"

// Verdict is a rule outcome plus a non-empty explanation.
type Verdict struct {
	Outcome Outcome
	Detail  string
}

func Passf(format string, args ...any) Verdict {
	return Verdict{Outcome: Pass, Detail: fmt.Sprintf(format, args...)}
}

func Failf(format string, args ...any) Verdict {
	return Verdict{Outcome: Fail, Detail: fmt.Sprintf(format, args...)}
}

func Absentf(format string, args ...any) Verdict {
	return Verdict{Outcome: Absent, Detail: fmt.Sprintf(format, args...)}
}

// Passed reports whether v is a pass.
func (v Verdict) Passed() bool {
	return v.Outcome == Pass
}

// Rule is one named check over an artifact of type A.
type Rule[A any] struct {
	Name string

	// Excluded rules are reported but never count toward auto_score or scored_rules.
	Excluded bool

	// Applies, when set and false, removes the artifact from the rule's denominator. Nil means always applicable.
	Applies func(A, types.Task) bool

	Check func(A, types.Task) Verdict
}

// Result is the evaluated form of a Rule.
type Result struct {
	Name     string
	Excluded bool
	Skipped  bool
	Verdict
}

// RuleSet is an ordered list of rules. Ternary sets emit <rule>_verdict columns instead of <rule>_pass.
type RuleSet[A any] struct {
	Rules   []Rule[A]
	Ternary bool
}

// Names returns the rule names in order.
func (rs RuleSet[A]) Names() []string {
	names := make([]string, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		names = append(names, r.Name)
	}
	return names
}

// ScoredCount is the number of non-excluded rules.
func (rs RuleSet[A]) ScoredCount() int {
	n := 0
	for _, r := range rs.Rules {
		if !r.Excluded {
			n++
		}
	}
	return n
}

// Evaluate runs every rule against artifact. Rules are independent and see no state from one another.
func (rs RuleSet[A]) Evaluate(artifact A, task types.Task) []Result {
	if task == nil {
		task = types.Task{}
	}
	out := make([]Result, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		res := Result{Name: r.Name, Excluded: r.Excluded}
		if r.Applies != nil && !r.Applies(artifact, task) {
			res.Skipped = true
			out = append(out, res)
			continue
		}
		res.Verdict = r.Check(artifact, task)
		out = append(out, res)
	}
	return out
}

// Failed returns the sentinel results used when no artifact could be extracted: fail for boolean sets, absent for ternary ones.
func (rs RuleSet[A]) Failed(detail string) []Result {
	outcome := Fail
	if rs.Ternary {
		outcome = Absent
	}
	out := make([]Result, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		out = append(out, Result{Name: r.Name, Excluded: r.Excluded, Verdict: Verdict{Outcome: outcome, Detail: detail}})
	}
	return out
}

// Columns returns the CSV columns for the set: <rule>_pass (or _verdict) and <rule>_detail per rule.
func (rs RuleSet[A]) Columns() []string {
	return VerdictColumns(rs.Names(), rs.Ternary)
}

// VerdictColumns builds the verdict/detail column pair for each name.
func VerdictColumns(names []string, ternary bool) []string {
	suffix := "_pass"
	if ternary {
		suffix = "_verdict"
	}
	cols := make([]string, 0, 2*len(names))
	for _, name := range names {
		cols = append(cols, name+suffix, name+"_detail")
	}
	return cols
}

// Tally counts passes over non-excluded, non-skipped results, and the number of results that count toward the score.
func Tally(results []Result) (passed, scored int) {
	for _, r := range results {
		if r.Excluded || r.Skipped {
			continue
		}
		scored++
		if r.Passed() {
			passed++
		}
	}
	return passed, scored
}

// Counts returns the number of pass, fail, and absent outcomes.
func Counts(results []Result) (pass, fail, absent int) {
	for _, r := range results {
		switch r.Outcome {
		case Pass:
			pass++
		case Fail:
			fail++
		case Absent:
			absent++
		}
	}
	return pass, fail, absent
}

// NeedsReview reports whether any detail carries NeedsReviewMarker.
func NeedsReview(results []Result) bool {
	for _, r := range results {
		if strings.Contains(r.Detail, NeedsReviewMarker) {
			return true
		}
	}
	return false
}

// Put writes each result into fields using the column naming of VerdictColumns.
func Put(fields Fields, results []Result, ternary bool) {
	for _, r := range results {
		if ternary {
			fields[r.Name+"_verdict"] = string(r.Outcome)
		} else {
			fields.Bool(r.Name+"_pass", r.Passed())
		}
		fields[r.Name+"_detail"] = r.Detail
	}
}
