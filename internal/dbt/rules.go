package dbt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
)

// majorClauses must each start their own line.
var majorClauses = []string{
	"WITH", "SELECT", "FROM", "LEFT JOIN", "RIGHT JOIN",
	"CROSS JOIN", "INNER JOIN", "WHERE", "GROUP BY", "HAVING",
	"ORDER BY", "LIMIT",
}

// lowercaseKeywords are flagged when they appear in lowercase.
var lowercaseKeywords = []string{
	"select", "from", "where", "join", "inner join", "left join",
	"right join", "cross join", "group by", "order by", "having",
	"limit", "with", "as", "on", "and", "or", "in", "between",
	"case", "when", "then", "else", "end", "over", "partition by",
	"sum", "count", "avg", "min", "max", "dense_rank", "row_number",
	"rank", "date_trunc", "extract", "coalesce", "not", "exists",
	"is", "null", "asc", "desc", "preceding", "following",
	"unbounded", "rows", "range", "current row",
}

var layerPrefixes = []string{"stg_", "int_", "fct_", "dim_"}

var (
	keywordPatterns = compileKeywords(lowercaseKeywords)
	clausePatterns  = compileClauses(majorClauses)

	cteName          = regexp.MustCompile(`(?i)(?:\bWITH\s+|,\s*)(\w+)\s+AS\s*\(`)
	tableRef         = regexp.MustCompile(`(?i)(?:FROM|JOIN)\s+(\w+)(?:\s+(?:AS\s+)?(\w+))?`)
	aggregateCall    = regexp.MustCompile(`(?i)(SUM|COUNT|AVG|MIN|MAX|DENSE_RANK|ROW_NUMBER|RANK|DATE_TRUNC|EXTRACT|COALESCE)\s*\(`)
	asAlias          = regexp.MustCompile(`(?i)^\s*AS\s+\w+`)
	selectStar       = regexp.MustCompile(`(?i)\bSELECT\s+\*\s*(?:,|\bFROM\b|\n|$)`)
	selectTableStar  = regexp.MustCompile(`(?i)\bSELECT\s+\w+\.\*`)
	innerJoin        = regexp.MustCompile(`(?i)\bINNER\s+JOIN\b`)
	anyJoin          = regexp.MustCompile(`(?i)\bJOIN\b`)
	qualifiedJoinEnd = regexp.MustCompile(`(?i)\b(LEFT|RIGHT|CROSS|INNER)\s*$`)
	withKeyword      = regexp.MustCompile(`(?i)\bWITH\b`)
	refCall          = regexp.MustCompile(`\{\{\s*ref\(`)
)

func compileKeywords(keywords []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(keywords))
	for i, kw := range keywords {
		words := strings.Fields(kw)
		for j, w := range words {
			words[j] = regexp.QuoteMeta(w)
		}
		out[i] = regexp.MustCompile(strings.Join(words, `\s+`))
	}
	return out
}

func compileClauses(clauses []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(clauses))
	for i, c := range clauses {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(c) + `\b`)
	}
	return out
}

// aliasStopWords are tokens the table-reference regexp can capture as an alias that are really the next clause.
var aliasStopWords = func() map[string]bool {
	m := map[string]bool{}
	for _, c := range majorClauses {
		m[strings.ReplaceAll(c, " ", "")] = true
	}
	for _, w := range []string{"ON", "WHERE", "AND", "OR", "INNER", "LEFT", "RIGHT", "CROSS"} {
		m[w] = true
	}
	return m
}()

// ModelRules are checked once per model and aggregated into a pass rate.
var ModelRules = rules.RuleSet[Model]{Rules: []rules.Rule[Model]{
	{Name: "rule_1_keywords_upper", Check: checkKeywordsUpper},
	{Name: "rule_2_clause_per_line", Check: checkClausePerLine},
	{Name: "rule_3_table_aliases", Check: checkTableAliases},
	{Name: "rule_4_column_aliases", Check: checkColumnAliases},
	{Name: "rule_5_no_select_star", Check: checkNoSelectStar},
	{Name: "rule_6_comment_header", Check: checkCommentHeader},
	{Name: "rule_7_left_join_only", Applies: hasJoin, Check: checkLeftJoinOnly},
	{Name: "rule_8_coalesce_unknown", Applies: notStaging, Check: checkCoalesceUnknown},
	{Name: "rule_9_row_number_dedup", Applies: dedupLayer, Check: checkRowNumberDedup},
	{Name: "rule_10_one_cte_per_file", Check: checkOneCTE},
}}

func hasJoin(m Model, _ types.Task) bool {
	return anyJoin.MatchString(stripCommentsAndStrings(stripJinja(m.SQL)))
}

func notStaging(m Model, _ types.Task) bool {
	return !strings.HasPrefix(m.Name, "stg_")
}

// dedupLayer is true for int_ and unprefixed models, where deduplication belongs.
func dedupLayer(m Model, _ types.Task) bool {
	for _, p := range []string{"stg_", "fct_", "dim_"} {
		if strings.HasPrefix(m.Name, p) {
			return false
		}
	}
	return true
}

func checkKeywordsUpper(m Model, _ types.Task) rules.Verdict {
	cleaned := stripCommentsAndStrings(stripJinja(m.SQL))
	var violations []string
	for i, re := range keywordPatterns {
		if containsBounded(re, cleaned) {
			violations = append(violations, lowercaseKeywords[i])
		}
	}
	if len(violations) > 0 {
		return rules.Failf("lowercase keywords: %s", rules.List(rules.Head(violations, 5)))
	}
	return rules.Passf("ok")
}

func checkClausePerLine(m Model, _ types.Task) rules.Verdict {
	cleaned := stripComments(stripJinja(m.SQL))
	for _, line := range strings.Split(cleaned, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		upper := strings.ToUpper(removeParenContent(stripped))
		var found []string
		for i, re := range clausePatterns {
			if re.MatchString(upper) {
				found = append(found, majorClauses[i])
			}
		}
		if len(found) > 1 {
			return rules.Failf("multiple clauses on one line: %s", rules.List(found))
		}
	}
	return rules.Passf("ok")
}

func checkTableAliases(m Model, _ types.Task) rules.Verdict {
	cleaned := stripComments(stripJinja(m.SQL))

	ctes := map[string]bool{}
	for _, match := range cteName.FindAllStringSubmatch(cleaned, -1) {
		ctes[strings.ToUpper(match[1])] = true
	}

	type ref struct{ table, alias string }
	var real []ref
	for _, match := range tableRef.FindAllStringSubmatch(cleaned, -1) {
		table := strings.ToUpper(match[1])
		if ctes[table] || table == "SELECT" || table == "LATERAL" {
			continue
		}
		real = append(real, ref{table: match[1], alias: match[2]})
	}

	if len(real) <= 1 {
		return rules.Passf("ok (single table, alias not required)")
	}

	var unaliased []string
	for _, r := range real {
		if r.alias == "" || aliasStopWords[strings.ToUpper(r.alias)] {
			unaliased = append(unaliased, r.table)
		}
	}
	if len(unaliased) > 0 {
		return rules.Failf("tables without alias: %s", rules.List(unaliased))
	}
	return rules.Passf("ok")
}

func checkColumnAliases(m Model, _ types.Task) rules.Verdict {
	cleaned := stripComments(stripJinja(m.SQL))
	matches := aggregateCall.FindAllStringSubmatchIndex(cleaned, -1)
	if len(matches) == 0 {
		return rules.Passf("n/a (no aggregations)")
	}

	var missing []string
	for _, loc := range matches {
		start := loc[0]
		fn := cleaned[loc[2]:loc[3]]
		parenStart := start + strings.IndexByte(cleaned[start:], '(')
		end := matchParen(cleaned, parenStart)

		after := strings.TrimSpace(window(cleaned, end, 50))
		if strings.HasPrefix(strings.ToUpper(after), "OVER") {
			if idx := strings.IndexByte(cleaned[end:], '('); idx >= 0 {
				end = matchParen(cleaned, end+idx)
			}
			after = strings.TrimSpace(window(cleaned, end, 20))
		}

		if asAlias.MatchString(window(cleaned, end, 30)) {
			continue
		}
		// Calls inside a predicate or grouping clause need no alias.
		before := strings.ToUpper(cleaned[:start])
		if idx := strings.LastIndex(before, "SELECT"); idx >= 0 {
			before = before[idx+len("SELECT"):]
		}
		if strings.Contains(before, "WHERE") || strings.Contains(before, "HAVING") || strings.Contains(before, "ON") || strings.Contains(before, "GROUP BY") {
			continue
		}
		if strings.EqualFold(fn, "ROW_NUMBER") {
			continue
		}
		if after == "" || strings.HasPrefix(after, ",") {
			missing = append(missing, cleaned[loc[0]:loc[1]]+"(...)")
		}
	}
	if len(missing) > 0 {
		return rules.Failf("aggregations without AS alias: %s", rules.List(rules.Head(missing, 3)))
	}
	return rules.Passf("ok")
}

func window(text string, from, n int) string {
	if from >= len(text) {
		return ""
	}
	return text[from:min(from+n, len(text))]
}

func checkNoSelectStar(m Model, _ types.Task) rules.Verdict {
	cleaned := stripComments(stripJinja(m.SQL))
	if selectStar.MatchString(cleaned) {
		return rules.Failf("SELECT * found")
	}
	if selectTableStar.MatchString(cleaned) {
		return rules.Failf("SELECT table.* found")
	}
	return rules.Passf("ok")
}

func checkCommentHeader(m Model, _ types.Task) rules.Verdict {
	stripped := strings.TrimSpace(m.SQL)
	if !strings.HasPrefix(stripped, "--") {
		return rules.Failf("missing comment header")
	}
	first := strings.TrimSpace(strings.SplitN(stripped, "\n", 2)[0])
	if len(strings.TrimSpace(strings.TrimLeft(first, "-"))) > 3 {
		return rules.Passf("ok")
	}
	return rules.Failf("comment header is too short or empty")
}

func checkLeftJoinOnly(m Model, _ types.Task) rules.Verdict {
	cleaned := stripCommentsAndStrings(stripJinja(m.SQL))
	if innerJoin.MatchString(cleaned) {
		return rules.Failf("INNER JOIN found (use LEFT JOIN for analytics)")
	}
	for _, loc := range anyJoin.FindAllStringIndex(cleaned, -1) {
		before := strings.TrimRight(cleaned[:loc[0]], " \t\r\n")
		if !qualifiedJoinEnd.MatchString(before) {
			return rules.Failf("plain JOIN found (use LEFT JOIN for analytics)")
		}
	}
	return rules.Passf("ok")
}

func checkCoalesceUnknown(m Model, task types.Task) rules.Verdict {
	if !task.Bool("nullable_dimension_columns") {
		return rules.Passf("n/a (no nullable dimensions in task)")
	}
	cleaned := stripComments(stripJinja(m.SQL))
	if !strings.Contains(strings.ToUpper(cleaned), "COALESCE") {
		return rules.Failf("no COALESCE found (expected for: %s)", rules.List(task.Strings("nullable_dimension_columns")))
	}
	lower := strings.ToLower(cleaned)
	if !strings.Contains(strings.ReplaceAll(lower, " ", ""), "'(unknown)'") {
		if strings.Contains(lower, "'unknown'") {
			return rules.Failf("COALESCE uses 'unknown' instead of '(unknown)'")
		}
		return rules.Failf("COALESCE present but '(unknown)' string not found")
	}
	return rules.Passf("ok")
}

func checkRowNumberDedup(m Model, task types.Task) rules.Verdict {
	if !task.Bool("requires_deduplication") {
		return rules.Passf("n/a (dedup not required)")
	}
	upper := strings.ToUpper(stripComments(stripJinja(m.SQL)))
	if !strings.Contains(upper, "ROW_NUMBER") {
		return rules.Failf("ROW_NUMBER not found (dedup required)")
	}
	if !strings.Contains(upper, "PARTITION BY") {
		return rules.Failf("ROW_NUMBER without PARTITION BY")
	}
	return rules.Passf("ok")
}

func checkOneCTE(m Model, _ types.Task) rules.Verdict {
	cleaned := stripCommentsAndStrings(stripJinja(m.SQL))
	withCount := len(withKeyword.FindAllStringIndex(cleaned, -1))
	if withCount > 1 {
		return rules.Failf("multiple WITH blocks found (%d)", withCount)
	}
	if withCount == 1 {
		var names []string
		for _, match := range cteName.FindAllStringSubmatch(cleaned, -1) {
			names = append(names, match[1])
		}
		if len(names) > 1 {
			return rules.Failf("multiple CTEs in one file: %s", rules.List(names))
		}
	}
	return rules.Passf("ok")
}

// CrossRules look at the whole set of models at once.
var CrossRules = rules.RuleSet[Models]{Rules: []rules.Rule[Models]{
	{Name: "rule_11_jinja_ref", Check: checkJinjaRef},
	{Name: "rule_12_layer_naming", Check: checkLayerNaming},
}}

func checkJinjaRef(ms Models, _ types.Task) rules.Verdict {
	var nonStaging Models
	for _, m := range ms {
		if !strings.HasPrefix(m.Name, "stg_") && !strings.HasPrefix(m.Name, "unnamed") {
			nonStaging = append(nonStaging, m)
		}
	}
	if len(nonStaging) == 0 {
		return rules.Failf("no non-staging models found")
	}
	var missing []string
	for _, m := range nonStaging {
		if !refCall.MatchString(m.SQL) {
			missing = append(missing, m.Name)
		}
	}
	if len(missing) > 0 {
		return rules.Failf("models without ref(): %s", rules.List(missing))
	}
	return rules.Passf("ok")
}

func checkLayerNaming(ms Models, _ types.Task) rules.Verdict {
	var bad []string
	for _, m := range ms {
		if !hasLayerPrefix(m.Name) {
			bad = append(bad, m.Name)
		}
	}
	if len(bad) > 0 {
		return rules.Failf("invalid prefixes: %s", rules.List(bad))
	}
	return rules.Passf("ok")
}

func hasLayerPrefix(name string) bool {
	if strings.HasPrefix(name, "unnamed") {
		return false
	}
	for _, p := range layerPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// zeroApplicable is the rate used when no model qualified for a rule. A task that explicitly requires the capability scores 0.
func zeroApplicable(rule string, task types.Task) (float64, string) {
	switch {
	case rule == "rule_7_left_join_only" && task.Bool("requires_left_join"):
		return 0, "no models with JOINs found"
	case rule == "rule_8_coalesce_unknown" && task.Bool("nullable_dimension_columns"):
		return 0, "no non-staging models found"
	case rule == "rule_9_row_number_dedup" && task.Bool("requires_deduplication"):
		return 0, "no int_ models found for dedup"
	}
	return 1, ""
}

func modelDetail(name, detail string) string {
	return fmt.Sprintf("%s: %s", name, detail)
}
