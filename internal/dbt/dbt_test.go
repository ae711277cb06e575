package dbt

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
)

const stagingModel = "-- Staging orders from the raw source\nSELECT\n    order_id,\n    customer_id,\n    amount\nFROM raw_orders"

const factModel = `-- Orders enriched with customer attributes
SELECT
    o.order_id,
    COALESCE(c.region, '(unknown)') AS region,
    SUM(o.amount) AS total_amount
FROM {{ ref('stg_orders') }} AS o
LEFT JOIN {{ ref('dim_customers') }} AS c
    ON o.customer_id = c.customer_id
GROUP BY
    o.order_id,
    c.region`

func twoModelResponse() string {
	return "Here are the models.\n\n-- models/staging/stg_orders.sql\n```sql\n" + stagingModel + "\n```\n\n" +
		"-- models/marts/fct_orders.sql\n```sql\n" + factModel + "\n```\n"
}

func check(t *testing.T, rule string, sql string, task types.Task) rules.Verdict {
	t.Helper()
	for _, r := range ModelRules.Rules {
		if r.Name == rule {
			return r.Check(Model{Name: "int_x", SQL: sql}, task)
		}
	}
	t.Fatalf("unknown rule %s", rule)
	return rules.Verdict{}
}

func TestExtractLowercaseSelectStar(t *testing.T) {
	t.Parallel()
	models, err := Extract("-- models/staging/stg_x.sql\n```sql\nselect * from foo\n```")
	require.NoError(t, err)
	require.Equal(t, Models{{Name: "stg_x", SQL: "select * from foo"}}, models)

	v := check(t, "rule_1_keywords_upper", models[0].SQL, nil)
	require.Equal(t, rules.Fail, v.Outcome)
	require.Equal(t, "lowercase keywords: ['select', 'from']", v.Detail)

	v = check(t, "rule_5_no_select_star", models[0].SQL, nil)
	require.Equal(t, rules.Fail, v.Outcome)
	require.Equal(t, "SELECT * found", v.Detail)
}

func TestExtractNaming(t *testing.T) {
	t.Parallel()
	text := "```sql\n-- int_orders_deduped.sql\nSELECT 1\n```\n" +
		"\nSome prose.\nMore prose.\nEven more.\n\n" +
		"```SQL\nSELECT 2\n```\n" +
		"-- stg_a.sql\n```sql\nSELECT 3\n```\n" +
		"-- stg_a.sql\n```sql\nSELECT 4\n```\n"
	models, err := Extract(text)
	require.NoError(t, err)
	want := Models{
		{Name: "int_orders_deduped", SQL: "-- int_orders_deduped.sql\nSELECT 1"},
		{Name: "unnamed_2", SQL: "SELECT 2"},
		{Name: "stg_a", SQL: "SELECT 4"},
	}
	if diff := cmp.Diff(want, models); diff != "" {
		t.Fatalf("models mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractFailures(t *testing.T) {
	t.Parallel()
	_, err := Extract("   ")
	require.EqualError(t, err, "empty output")

	_, err = Extract("no code here, just SELECT prose")
	var ee *rules.ExtractionError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "could not extract any SQL model files from output", ee.Reason)
}

func TestModelRules(t *testing.T) {
	t.Parallel()
	tests := []struct {
		rule    string
		sql     string
		task    types.Task
		outcome rules.Outcome
		detail  string
	}{
		{"rule_1_keywords_upper", "SELECT\n    selectively_named\nFROM t", nil, rules.Pass, "ok"},
		{"rule_1_keywords_upper", "SELECT a FROM t -- select in a comment\nWHERE b = 'and'", nil, rules.Pass, "ok"},
		{"rule_2_clause_per_line", "SELECT id FROM t", nil, rules.Fail, "multiple clauses on one line: ['SELECT', 'FROM']"},
		{"rule_2_clause_per_line", "SELECT\n    id,\n    (SELECT MAX(x) FROM y) AS m\nFROM t", nil, rules.Pass, "ok"},
		{"rule_3_table_aliases", "SELECT\n    a.id\nFROM orders\nLEFT JOIN customers c\n    ON a.id = c.id", nil, rules.Fail, "tables without alias: ['orders']"},
		{"rule_3_table_aliases", "SELECT\n    id\nFROM orders", nil, rules.Pass, "ok (single table, alias not required)"},
		{"rule_4_column_aliases", "SELECT\n    SUM(amount),\n    id\nFROM t", nil, rules.Fail, "aggregations without AS alias: ['SUM((...)']"},
		{"rule_4_column_aliases", "SELECT\n    id\nFROM t\nWHERE COALESCE(x, 0) > 1", nil, rules.Pass, "ok"},
		{"rule_4_column_aliases", "SELECT\n    ROW_NUMBER() OVER (PARTITION BY id ORDER BY ts) AS rn\nFROM t", nil, rules.Pass, "ok"},
		{"rule_4_column_aliases", "SELECT\n    id\nFROM t", nil, rules.Pass, "n/a (no aggregations)"},
		{"rule_5_no_select_star", "SELECT o.*\nFROM orders o", nil, rules.Fail, "SELECT table.* found"},
		{"rule_6_comment_header", "--\nSELECT 1", nil, rules.Fail, "comment header is too short or empty"},
		{"rule_6_comment_header", "SELECT 1", nil, rules.Fail, "missing comment header"},
		{"rule_7_left_join_only", "SELECT\n    a.id\nFROM a\nINNER JOIN b ON a.id = b.id", nil, rules.Fail, "INNER JOIN found (use LEFT JOIN for analytics)"},
		{"rule_7_left_join_only", "SELECT\n    a.id\nFROM a\nJOIN b ON a.id = b.id", nil, rules.Fail, "plain JOIN found (use LEFT JOIN for analytics)"},
		{"rule_8_coalesce_unknown", "SELECT a", nil, rules.Pass, "n/a (no nullable dimensions in task)"},
		{"rule_8_coalesce_unknown", "SELECT a", types.Task{"nullable_dimension_columns": []any{"region"}}, rules.Fail, "no COALESCE found (expected for: ['region'])"},
		{"rule_8_coalesce_unknown", "SELECT COALESCE(a, 'unknown') AS a", types.Task{"nullable_dimension_columns": []any{"region"}}, rules.Fail, "COALESCE uses 'unknown' instead of '(unknown)'"},
		{"rule_9_row_number_dedup", "SELECT ROW_NUMBER() OVER (ORDER BY ts) AS rn", types.Task{"requires_deduplication": true}, rules.Fail, "ROW_NUMBER without PARTITION BY"},
		{"rule_10_one_cte_per_file", "WITH a AS (\n    SELECT 1\n), b AS (\n    SELECT 2\n)\nSELECT\n    x\nFROM b", nil, rules.Fail, "multiple CTEs in one file: ['a', 'b']"},
		{"rule_10_one_cte_per_file", "WITH a AS (SELECT 1)\nSELECT x FROM a\nUNION ALL\nWITH b AS (SELECT 2) SELECT y FROM b", nil, rules.Fail, "multiple WITH blocks found (2)"},
	}
	for _, tt := range tests {
		v := check(t, tt.rule, tt.sql, tt.task)
		require.Equal(t, tt.outcome, v.Outcome, "%s: %q", tt.rule, tt.sql)
		require.Equal(t, tt.detail, v.Detail, "%s: %q", tt.rule, tt.sql)
	}
}

func TestEvaluateFullTask(t *testing.T) {
	t.Parallel()
	task := types.Task{
		"task_id":                    "1",
		"nullable_dimension_columns": []any{"region"},
		"requires_deduplication":     true,
		"requires_left_join":         true,
	}
	raw, err := json.Marshal(map[string]any{"result": twoModelResponse()})
	require.NoError(t, err)

	fields := Evaluator{}.Evaluate(string(raw), task)
	require.Equal(t, "True", fields["extraction_ok"])
	require.Equal(t, "2", fields["model_count"])
	require.Equal(t, "stg_orders; fct_orders", fields["model_names"])
	require.Equal(t, "1.0", fields["rule_7_left_join_only_rate"])
	require.Equal(t, "0.0", fields["rule_9_row_number_dedup_rate"])
	require.Equal(t, "no int_ models found for dedup", fields["rule_9_row_number_dedup_detail"])
	require.Equal(t, "True", fields["rule_11_jinja_ref_pass"])
	require.Equal(t, "True", fields["rule_12_layer_naming_pass"])
	require.Equal(t, "11.0", fields["auto_score"])
	require.Equal(t, "12", fields["scored_rules"])

	for _, col := range (Evaluator{}).Columns() {
		_, ok := fields[col]
		require.True(t, ok, "missing column %s", col)
	}
}

func TestScoreModelsZeroApplicable(t *testing.T) {
	t.Parallel()
	models := Models{{Name: "stg_orders", SQL: stagingModel}}

	rates := ScoreModels(models, types.Task{"requires_left_join": true})
	require.Equal(t, "rule_7_left_join_only", rates[6].Rule)
	require.Equal(t, 0.0, rates[6].Rate)
	require.Equal(t, "no models with JOINs found", rates[6].Detail)
	require.Equal(t, 1.0, rates[7].Rate)
	require.Equal(t, "ok", rates[7].Detail)

	rates = ScoreModels(models, nil)
	require.Equal(t, 1.0, rates[6].Rate)
	require.Equal(t, 0, rates[6].Applicable)
}

func TestScoreModelsPartialRate(t *testing.T) {
	t.Parallel()
	models := Models{
		{Name: "stg_a", SQL: "-- staging a\nSELECT\n    id\nFROM a"},
		{Name: "stg_b", SQL: "select id from b"},
		{Name: "stg_c", SQL: "SELECT\n    id\nFROM c"},
	}
	rates := ScoreModels(models, nil)
	require.Equal(t, 0.6667, rates[0].Rate)
	require.Equal(t, "stg_b: lowercase keywords: ['select', 'from']", rates[0].Detail)
	require.Equal(t, 0.3333, rates[5].Rate)
	require.Equal(t, "stg_b: missing comment header; stg_c: missing comment header", rates[5].Detail)
}

func TestEvaluateExtractionFailure(t *testing.T) {
	t.Parallel()
	ev := Evaluator{}
	fields := ev.Evaluate(`{"result":"I cannot help with that."}`, nil)
	require.Equal(t, "False", fields["extraction_ok"])
	require.Equal(t, "0.0", fields["auto_score"])
	require.Equal(t, "12", fields["scored_rules"])
	require.Equal(t, "0.0", fields["rule_1_keywords_upper_rate"])
	require.Equal(t, "no models extracted", fields["rule_12_layer_naming_detail"])
	require.Equal(t, "False", fields["rule_11_jinja_ref_pass"])
}

func TestEvaluateIdempotent(t *testing.T) {
	t.Parallel()
	raw := twoModelResponse()
	first := Evaluator{}.Evaluate(raw, nil)
	second := Evaluator{}.Evaluate(raw, nil)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("evaluation not idempotent:\n%s", diff)
	}
}
