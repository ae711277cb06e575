package commitmsg

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
)

const fullMessage = "feat(api): ✨ add widget support\n\n" +
	"Why: customers asked for widgets.\n" +
	"What: new endpoint and schema.\n\n" +
	"BREAKING CHANGE: widget ids are now strings\n" +
	"Ticket: OPS-7\n" +
	"Signed-off-by: Ann <ann@example.com>"

var fullTask = types.Task{
	"task_id":         "c1",
	"allowed_scopes":  []any{"api", "db"},
	"gitmoji_map":     map[string]any{"feat": "✨", "fix": "🐛"},
	"body_min_words":  json.Number("5"),
	"body_max_words":  json.Number("40"),
	"signed_off_by":   "Ann <ann@example.com>",
	"breaking_change": true,
	"jira_project":    "OPS",
	"jira_number":     json.Number("7"),
}

func verdict(t *testing.T, name, msg string, task types.Task) rules.Verdict {
	t.Helper()
	for _, r := range Rules.Evaluate(Parse(msg), task) {
		if r.Name == name {
			return r.Verdict
		}
	}
	t.Fatalf("unknown rule %s", name)
	return rules.Verdict{}
}

func TestWhyWhatScenario(t *testing.T) {
	t.Parallel()
	text := "feat(api): add widget support\n\nWhy: customers asked.\nWhat: new endpoint."

	msg, err := Extract(text)
	require.NoError(t, err)
	require.Equal(t, text, msg)

	c := Parse(msg)
	assert.Equal(t, "feat", c.Type)
	assert.True(t, c.HasScope)
	assert.Equal(t, "api", c.Scope)
	assert.Equal(t, "add widget support", c.Description)
	assert.Equal(t, "Why: customers asked.\nWhat: new endpoint.", c.Body)

	assert.Equal(t, rules.Passf("valid type: feat"), verdict(t, "rule_1_type", msg, nil))
	assert.Equal(t, rules.Passf("first word 'add' is ok"), verdict(t, "rule_3_imperative", msg, nil))
	assert.Equal(t, rules.Passf("both Why: and What: sections found"), verdict(t, "rule_8_body_why_what", msg, nil))
}

func TestExtractCascade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "fence",
			text: "Here is my suggestion:\n```\nfix: handle nil config\n```\nDone.",
			want: "fix: handle nil config",
		},
		{
			name: "tagged fence",
			text: "```git\nci: cache modules\n\nWhy: slow.\n```",
			want: "ci: cache modules\n\nWhy: slow.",
		},
		{
			name: "header drops explanation",
			text: "Commit message:\n\ndocs: update readme\n\nThis commit updates docs.",
			want: "docs: update readme",
		},
		{
			name: "fence without commit falls through",
			text: "```\nnot a commit\n```\nfeat: add x",
			want: "feat: add x",
		},
		{
			name: "direct line",
			text: "Sure! I think this works.\n  refactor(core)!: drop legacy api\nBREAKING CHANGE: the legacy api is gone\n\nI chose this because it is simpler.",
			want: "refactor(core)!: drop legacy api\nBREAKING CHANGE: the legacy api is gone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Extract(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractFailures(t *testing.T) {
	t.Parallel()

	_, err := Extract("  \n")
	require.EqualError(t, err, "empty output")

	_, err = Extract("I could not do it.\nwip: stuff")
	require.EqualError(t, err, "could not extract commit message from output")
}

func TestTrimExplanation(t *testing.T) {
	t.Parallel()

	in := "fix: x\n\nWhy: a.\n\nWhat: b.\n\nNote: I kept it short."
	assert.Equal(t, "fix: x\n\nWhy: a.\n\nWhat: b.", TrimExplanation(in))

	in = "fix: x\n\n---\nmore"
	assert.Equal(t, "fix: x", TrimExplanation(in))

	in = "fix: x\n\nSigned-off-by: Ann\n\n"
	assert.Equal(t, "fix: x\n\nSigned-off-by: Ann", TrimExplanation(in))
}

func TestParseFooters(t *testing.T) {
	t.Parallel()
	msg := "fix(db): close pool\n\nWhy: leak.\nWhat: close it.\n\nRefs #42\nSigned-off-by: Ann <a@x.io>\nTicket: OPS-7\n  continued"

	c := Parse(msg)
	assert.Equal(t, "db", c.Scope)
	assert.Equal(t, ": ", c.Separator)
	assert.Equal(t, "Why: leak.\nWhat: close it.", c.Body)

	want := []Footer{
		{Token: "Refs", Value: "#42"},
		{Token: "Signed-off-by", Value: "Ann <a@x.io>"},
		{Token: "Ticket", Value: "OPS-7 continued"},
	}
	if diff := cmp.Diff(want, c.Footers); diff != "" {
		t.Errorf("footers mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSubject(t *testing.T) {
	t.Parallel()

	c := Parse("feat(): x")
	assert.True(t, c.HasScope)
	assert.Equal(t, "", c.Scope)

	c = Parse("feat!: drop v1")
	assert.False(t, c.HasScope)
	assert.True(t, c.BreakingBang)
	assert.Equal(t, "drop v1", c.Description)

	c = Parse("Update things")
	assert.Equal(t, "", c.Type)
	assert.Equal(t, "", c.Separator)
	assert.Equal(t, "", c.Body)

	// A non-blank second line starts the body, so a trailer there is not a footer.
	c = Parse("fix: x\nSigned-off-by: Ann")
	assert.Equal(t, "Signed-off-by: Ann", c.Body)
	assert.Empty(t, c.Footers)
}

func TestValidateStructure(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"empty message"}, ValidateStructure(" "))
	assert.Equal(t, []string{"subject doesn't match conventional commit format: 'Update things'"}, ValidateStructure("Update things\n\nbody"))
	assert.Equal(t, []string{"invalid type: 'wip'"}, ValidateStructure("wip: stuff"))
	assert.Empty(t, ValidateStructure(fullMessage))
}

func TestFullMessage(t *testing.T) {
	t.Parallel()

	want := map[string]rules.Verdict{
		"rule_1_type":             rules.Passf("valid type: feat"),
		"rule_2_separator":        rules.Passf("ok"),
		"rule_3_imperative":       rules.Passf("first word '✨' is ok"),
		"rule_4_no_period":        rules.Passf("ok"),
		"rule_5_lowercase":        rules.Passf("ok"),
		"rule_6_scope_vocab":      rules.Passf("scope 'api' in allowed list"),
		"rule_7_gitmoji":          rules.Passf("description starts with ✨"),
		"rule_8_body_why_what":    rules.Passf("both Why: and What: sections found"),
		"rule_9_body_word_count":  rules.Passf("body has 10 words (range: 5-40)"),
		"rule_10_trailer_format":  rules.Passf("all 3 footer(s) in Key: value format"),
		"rule_11_signed_off_by":   rules.Passf("Signed-off-by matches: Ann <ann@example.com>"),
		"rule_12_breaking_footer": rules.Passf("BREAKING CHANGE footer present (26 chars)"),
		"rule_13_ticket_ref":      rules.Passf("Ticket footer contains OPS-7"),
		"rule_14_subject_length":  rules.Passf("length=31 <= 50"),
	}

	got := map[string]rules.Verdict{}
	for _, r := range Rules.Evaluate(Parse(fullMessage), fullTask) {
		got[r.Name] = r.Verdict
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("verdicts mismatch (-want +got):\n%s", diff)
	}
}

func TestRuleFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rule string
		msg  string
		task types.Task
		want string
	}{
		{"rule_1_type", "wip: stuff", nil, "invalid type: 'wip', must be one of ['build', 'chore', 'ci', 'docs', 'feat', 'fix', 'perf', 'refactor', 'revert', 'style', 'test']"},
		{"rule_1_type", "Update things", nil, "no type parsed"},
		{"rule_2_separator", "feat:add x", nil, "separator is ':', expected ': '"},
		{"rule_2_separator", "feat:\tadd x", nil, `separator has extra whitespace: ':\t', expected ': '`},
		{"rule_2_separator", "Update things", nil, "no separator found"},
		{"rule_3_imperative", "fix: added retries", nil, "'added' is not imperative mood"},
		{"rule_4_no_period", "fix: add retries.", nil, "description ends with period"},
		{"rule_5_lowercase", "fix: Add retries", nil, "starts with uppercase 'A'"},
		{"rule_5_lowercase", "feat: :sparkles: Add x", nil, "starts with uppercase 'A'"},
		{"rule_6_scope_vocab", "feat: x", fullTask, "no scope present, expected one of ['api', 'db']"},
		{"rule_6_scope_vocab", "feat(ui): x", fullTask, "scope 'ui' not in allowed_scopes: ['api', 'db']"},
		{"rule_7_gitmoji", "feat: add x", fullTask, "expected description to start with '✨ ', got 'add x'"},
		{"rule_8_body_why_what", "feat: x", nil, "no body present (Why: and What: sections required)"},
		{"rule_8_body_why_what", "feat: x\n\nWhy: because.", nil, "missing sections: What:"},
		{"rule_9_body_word_count", "feat: x\n\nWhy: a.\nWhat: b.", types.Task{"body_min_words": json.Number("10")}, "body has 4 words, minimum is 10"},
		{"rule_9_body_word_count", "feat: x\n\nWhy: a.\nWhat: b.", types.Task{"body_max_words": json.Number("2")}, "body has 4 words, maximum is 2"},
		{"rule_10_trailer_format", "feat: x\n\nWhy: a.\n\nTicket:", nil, "invalid trailer(s): empty value for token 'Ticket'"},
		{"rule_11_signed_off_by", "feat: x", fullTask, "missing Signed-off-by footer, expected 'Ann <ann@example.com>'"},
		{"rule_11_signed_off_by", "feat: x\n\nSigned-off-by: Bob", fullTask, "Signed-off-by value mismatch: got ['Bob'], expected 'Ann <ann@example.com>'"},
		{"rule_12_breaking_footer", "feat: x", fullTask, "missing BREAKING CHANGE footer"},
		{"rule_12_breaking_footer", "feat: x\n\nBREAKING CHANGE: gone", fullTask, "BREAKING CHANGE footer too short: 'gone'"},
		{"rule_13_ticket_ref", "feat: x", fullTask, "missing Ticket: OPS-7 footer"},
		{"rule_14_subject_length", "feat: add a very long description that keeps on going", nil, "length=53 > 50"},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, rules.Failf("%s", tt.want), verdict(t, tt.rule, tt.msg, tt.task))
		})
	}
}

func TestAutoPasses(t *testing.T) {
	t.Parallel()

	assert.Equal(t, rules.Passf("ok (only gitmoji)"), verdict(t, "rule_5_lowercase", "feat: :sparkles:", nil))
	assert.Equal(t, rules.Passf("no allowed_scopes defined (auto-pass)"), verdict(t, "rule_6_scope_vocab", "feat: x", nil))
	assert.Equal(t, rules.Passf("no gitmoji_map defined (auto-pass)"), verdict(t, "rule_7_gitmoji", "feat: x", nil))
	assert.Equal(t, rules.Passf("no gitmoji mapping for type 'docs' (auto-pass)"), verdict(t, "rule_7_gitmoji", "docs: x", fullTask))
	assert.Equal(t, rules.Passf("description is 🐛"), verdict(t, "rule_7_gitmoji", "fix: 🐛", fullTask))
	assert.Equal(t, rules.Passf("no word count constraints (auto-pass)"), verdict(t, "rule_9_body_word_count", "feat: x", nil))
	assert.Equal(t, rules.Passf("body has 4 words (range: 1-None)"),
		verdict(t, "rule_9_body_word_count", "feat: x\n\nWhy: a.\nWhat: b.", types.Task{"body_min_words": json.Number("1"), "body_max_words": nil}))
	assert.Equal(t, rules.Passf("no footers present"), verdict(t, "rule_10_trailer_format", "feat: x", nil))
	assert.Equal(t, rules.Passf("no signed_off_by required (auto-pass)"), verdict(t, "rule_11_signed_off_by", "feat: x", nil))
	assert.Equal(t, rules.Passf("n/a (not a breaking change)"), verdict(t, "rule_12_breaking_footer", "feat: x", nil))
	assert.Equal(t, rules.Passf("no jira_project/jira_number in task (auto-pass)"), verdict(t, "rule_13_ticket_ref", "feat: x", nil))
	assert.Equal(t, rules.Passf("Ticket ref OPS-7 found in raw message"), verdict(t, "rule_13_ticket_ref", "feat: x\nTicket: OPS-7", fullTask))
	assert.Equal(t, rules.Passf("Signed-off-by found in raw message"),
		verdict(t, "rule_11_signed_off_by", "feat: x\nSigned-off-by: Ann <ann@example.com>", fullTask))
}

func TestEvaluateFullMessage(t *testing.T) {
	t.Parallel()
	fields := Evaluator{}.Evaluate("```\n"+fullMessage+"\n```", fullTask)

	assert.Equal(t, "True", fields["extraction_ok"])
	assert.Equal(t, "", fields["extraction_error"])
	assert.Equal(t, "True", fields["structure_valid"])
	assert.Equal(t, "14", fields["auto_score"])
	assert.Equal(t, "14", fields["scored_rules"])
	assert.NotContains(t, fields, "needs_manual_review")
}

func TestEvaluateWrittenFile(t *testing.T) {
	t.Parallel()
	raw := `{"result":"I tried to commit but could not.","permission_denials":[{"tool_name":"Write","tool_input":{"file_path":".git/COMMIT_EDITMSG","content":"fix(db): close idle connections"}}]}`

	fields := Evaluator{}.Evaluate(raw, nil)
	require.Equal(t, "True", fields["extraction_ok"])
	require.Equal(t, "True", fields["rule_1_type_pass"])
	require.Equal(t, "fix", Parse(Resolve(raw)).Type)
}

func TestEvaluateExtractionFailure(t *testing.T) {
	t.Parallel()
	fields := Evaluator{}.Evaluate("", nil)

	require.Equal(t, "False", fields["extraction_ok"])
	require.Equal(t, "empty output", fields["extraction_error"])
	require.Equal(t, "empty output", fields["structure_errors"])
	require.Equal(t, "False", fields["rule_1_type_pass"])
	require.Equal(t, failedDetail, fields["rule_14_subject_length_detail"])
	require.Equal(t, "0", fields["auto_score"])
	require.Equal(t, "14", fields["scored_rules"])

	cols := Evaluator{}.Columns()
	require.Len(t, cols, 34)
	for _, col := range cols {
		require.Contains(t, fields, col)
	}
}
