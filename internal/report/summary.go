package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/codalotl/skilleval/internal/rules"
)

type ConditionScore struct {
	Condition string
	Mean      float64
	N         int
}

type RuleRate struct {
	Rule string
	Rate float64
}

// Summary is the console digest of one evaluated batch. Counters whose column the domain does not emit are nil.
type Summary struct {
	Total          int
	ExtractionOK   int
	StructureValid *int
	NeedsReview    *int
	MaxScored      int
	ByCondition    []ConditionScore
	Rules          []RuleRate
}

// extractionColumns are the success flags written by the evaluators, in lookup order.
var extractionColumns = []string{"extraction_ok", "json_valid"}

// Summarize tallies rows written under header. maxScored is the domain's fixed rule count.
func Summarize(header []string, rows []rules.Fields, maxScored int) Summary {
	s := Summary{Total: len(rows), MaxScored: maxScored}
	has := sliceToSet(header)

	for _, col := range extractionColumns {
		if has[col] {
			s.ExtractionOK = countTrue(rows, col)
			break
		}
	}
	if has["structure_valid"] {
		n := countTrue(rows, "structure_valid")
		s.StructureValid = &n
	}
	if has["needs_manual_review"] {
		n := countTrue(rows, "needs_manual_review")
		s.NeedsReview = &n
	}

	byCond := map[string][]float64{}
	for _, row := range rows {
		v, _ := strconv.ParseFloat(row["auto_score"], 64)
		byCond[row["condition"]] = append(byCond[row["condition"]], v)
	}
	conds := make([]string, 0, len(byCond))
	for c := range byCond {
		conds = append(conds, c)
	}
	sort.Strings(conds)
	for _, c := range conds {
		s.ByCondition = append(s.ByCondition, ConditionScore{Condition: c, Mean: avgOrZero(byCond[c]), N: len(byCond[c])})
	}

	for _, col := range header {
		name, kind, ok := ruleColumn(col)
		if !ok {
			continue
		}
		vals := make([]float64, 0, len(rows))
		for _, row := range rows {
			vals = append(vals, ruleValue(kind, row[col]))
		}
		s.Rules = append(s.Rules, RuleRate{Rule: name, Rate: avgOrZero(vals)})
	}
	return s
}

// ruleColumn splits a per-rule score column into its rule name and kind.
func ruleColumn(col string) (name, kind string, ok bool) {
	if !strings.HasPrefix(col, "rule_") && !strings.HasPrefix(col, "outcome_") {
		return "", "", false
	}
	for _, suffix := range []string{"_pass", "_verdict", "_rate"} {
		if strings.HasSuffix(col, suffix) {
			return strings.TrimSuffix(col, suffix), suffix, true
		}
	}
	return "", "", false
}

func ruleValue(kind, cell string) float64 {
	switch kind {
	case "_pass":
		if rules.ParseBool(cell) {
			return 1
		}
	case "_verdict":
		if cell == string(rules.Pass) {
			return 1
		}
	case "_rate":
		v, _ := strconv.ParseFloat(cell, 64)
		return v
	}
	return 0
}

func countTrue(rows []rules.Fields, col string) int {
	n := 0
	for _, row := range rows {
		if rules.ParseBool(row[col]) {
			n++
		}
	}
	return n
}

func sliceToSet(items []string) map[string]bool {
	var out map[string]bool
	for _, s := range items {
		val := strings.TrimSpace(s)
		if val == "" {
			continue
		}
		if out == nil {
			out = map[string]bool{}
		}
		out[val] = true
	}
	return out
}

func avgOrZero(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
