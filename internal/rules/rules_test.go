package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codalotl/skilleval/internal/types"
)

func sampleSet() RuleSet[string] {
	return RuleSet[string]{Rules: []Rule[string]{
		{Name: "rule_1_nonempty", Check: func(s string, _ types.Task) Verdict {
			if s == "" {
				return Failf("empty")
			}
			return Passf("ok")
		}},
		{Name: "rule_2_review", Excluded: true, Check: func(string, types.Task) Verdict {
			return Passf("needs_review")
		}},
		{
			Name:    "rule_3_upper",
			Applies: func(s string, _ types.Task) bool { return strings.HasPrefix(s, "X") },
			Check: func(s string, _ types.Task) Verdict {
				if strings.ToUpper(s) == s {
					return Passf("ok")
				}
				return Failf("lowercase")
			},
		},
	}}
}

func TestEvaluateAndTally(t *testing.T) {
	t.Parallel()
	rs := sampleSet()

	results := rs.Evaluate("Xy", nil)
	require.Len(t, results, 3)
	require.Equal(t, Fail, results[2].Outcome)
	passed, scored := Tally(results)
	require.Equal(t, 1, passed)
	require.Equal(t, 2, scored)
	require.True(t, NeedsReview(results))

	results = rs.Evaluate("abc", types.Task{})
	require.True(t, results[2].Skipped)
	passed, scored = Tally(results)
	require.Equal(t, 1, passed)
	require.Equal(t, 1, scored)
}

func TestFailedSentinel(t *testing.T) {
	t.Parallel()
	rs := sampleSet()
	require.Equal(t, 2, rs.ScoredCount())

	for _, r := range rs.Failed("nothing extracted") {
		require.Equal(t, Fail, r.Outcome)
		require.Equal(t, "nothing extracted", r.Detail)
	}
	rs.Ternary = true
	for _, r := range rs.Failed("no valid JSON") {
		require.Equal(t, Absent, r.Outcome)
	}
}

func TestColumnsAndPut(t *testing.T) {
	t.Parallel()
	rs := sampleSet()
	require.Equal(t, []string{
		"rule_1_nonempty_pass", "rule_1_nonempty_detail",
		"rule_2_review_pass", "rule_2_review_detail",
		"rule_3_upper_pass", "rule_3_upper_detail",
	}, rs.Columns())

	fields := Fields{}
	Put(fields, rs.Evaluate("XY", nil), false)
	require.Equal(t, "True", fields["rule_1_nonempty_pass"])
	require.Equal(t, "ok", fields["rule_3_upper_detail"])

	ternary := Fields{}
	Put(ternary, []Result{{Name: "rule_01", Verdict: Absentf("no data colors found")}}, true)
	require.Equal(t, "absent", ternary["rule_01_verdict"])
}

func TestFormatting(t *testing.T) {
	t.Parallel()
	require.Equal(t, "1.0", FormatFloat(1))
	require.Equal(t, "0.6667", FormatFloat(Round(2.0/3.0, 4)))
	require.Equal(t, "11.5", FormatFloat(11.5))
	require.Equal(t, "0.13", FormatFloat(Round(0.125, 2)))
	require.Equal(t, "['a', 'b']", List([]string{"a", "b"}))
	require.Equal(t, `["it's"]`, List([]string{"it's"}))
	require.Equal(t, "[]", List(nil))
	require.Equal(t, []int{1, 2}, Head([]int{1, 2, 3}, 2))
	require.True(t, ParseBool("True"))
	require.False(t, ParseBool("False"))
}

func TestExtractionError(t *testing.T) {
	t.Parallel()
	err := Extractionf("could not extract %s", "x")
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "could not extract x", ee.Reason)
}
