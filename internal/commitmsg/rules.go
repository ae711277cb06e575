package commitmsg

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
)

// MaxSubjectLength is the longest subject rule_14 accepts.
const MaxSubjectLength = 50

var (
	extraWhitespace = regexp.MustCompile(`^:[ \t]+`)
	gitmojiPrefix   = regexp.MustCompile(`^:[a-z_]+:\s*`)
	trailerToken    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9 -]*$`)
)

// nonImperative are first words that mark past tense, gerund or third-person descriptions.
var nonImperative = wordSet(
	"added", "fixed", "removed", "updated", "changed", "refactored",
	"deleted", "moved", "renamed", "replaced", "converted", "migrated",
	"implemented", "created", "resolved", "introduced", "applied",
	"adding", "fixing", "removing", "updating", "changing", "refactoring",
	"deleting", "moving", "renaming", "replacing", "converting", "migrating",
	"implementing", "creating", "resolving", "introducing", "applying",
	"adds", "fixes", "removes", "updates", "changes", "refactors",
	"deletes", "moves", "renames", "replaces", "converts", "migrates",
	"implements", "creates", "resolves", "introduces", "applies",
	"was", "were", "been",
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Rules is the commit message rule battery. All fourteen are scored.
var Rules = rules.RuleSet[ParsedCommit]{Rules: []rules.Rule[ParsedCommit]{
	{Name: "rule_1_type", Check: checkType},
	{Name: "rule_2_separator", Check: checkSeparator},
	{Name: "rule_3_imperative", Check: checkImperative},
	{Name: "rule_4_no_period", Check: checkNoPeriod},
	{Name: "rule_5_lowercase", Check: checkLowercase},
	{Name: "rule_6_scope_vocab", Check: checkScope},
	{Name: "rule_7_gitmoji", Check: checkGitmoji},
	{Name: "rule_8_body_why_what", Check: checkBodySections},
	{Name: "rule_9_body_word_count", Check: checkBodyLength},
	{Name: "rule_10_trailer_format", Check: checkTrailers},
	{Name: "rule_11_signed_off_by", Check: checkSignedOff},
	{Name: "rule_12_breaking_footer", Check: checkBreakingChange},
	{Name: "rule_13_ticket_ref", Check: checkTicket},
	{Name: "rule_14_subject_length", Check: checkSubjectLength},
}}

func sortedTypes() []string {
	out := make([]string, 0, len(ValidTypes))
	for t := range ValidTypes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func checkType(c ParsedCommit, _ types.Task) rules.Verdict {
	switch {
	case c.Type == "":
		return rules.Failf("no type parsed")
	case ValidTypes[c.Type]:
		return rules.Passf("valid type: %s", c.Type)
	}
	return rules.Failf("invalid type: '%s', must be one of %s", c.Type, rules.List(sortedTypes()))
}

func checkSeparator(c ParsedCommit, _ types.Task) rules.Verdict {
	switch {
	case c.Separator == ": ":
		return rules.Passf("ok")
	case c.Separator == "":
		return rules.Failf("no separator found")
	case extraWhitespace.MatchString(c.Separator):
		return rules.Failf("separator has extra whitespace: %s, expected ': '", quote(c.Separator))
	}
	return rules.Failf("separator is %s, expected ': '", quote(c.Separator))
}

// quote renders s as a single-quoted literal with control characters escaped.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\x%02x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func checkImperative(c ParsedCommit, _ types.Task) rules.Verdict {
	words := strings.Fields(c.Description)
	if len(words) == 0 {
		return rules.Failf("empty description")
	}
	first := strings.ToLower(words[0])
	if nonImperative[first] {
		return rules.Failf("'%s' is not imperative mood", first)
	}
	return rules.Passf("first word '%s' is ok", first)
}

func checkNoPeriod(c ParsedCommit, _ types.Task) rules.Verdict {
	if strings.HasSuffix(c.Description, ".") {
		return rules.Failf("description ends with period")
	}
	return rules.Passf("ok")
}

func checkLowercase(c ParsedCommit, _ types.Task) rules.Verdict {
	if c.Description == "" {
		return rules.Failf("empty description")
	}
	rest := c.Description
	if loc := gitmojiPrefix.FindStringIndex(rest); loc != nil {
		rest = rest[loc[1]:]
		if rest == "" {
			return rules.Passf("ok (only gitmoji)")
		}
	}
	if r, _ := utf8.DecodeRuneInString(rest); unicode.IsUpper(r) {
		return rules.Failf("starts with uppercase '%c'", r)
	}
	return rules.Passf("ok")
}

func checkScope(c ParsedCommit, task types.Task) rules.Verdict {
	allowed := task.Strings("allowed_scopes")
	switch {
	case len(allowed) == 0:
		return rules.Passf("no allowed_scopes defined (auto-pass)")
	case !c.HasScope:
		return rules.Failf("no scope present, expected one of %s", rules.List(allowed))
	}
	for _, s := range allowed {
		if s == c.Scope {
			return rules.Passf("scope '%s' in allowed list", c.Scope)
		}
	}
	return rules.Failf("scope '%s' not in allowed_scopes: %s", c.Scope, rules.List(allowed))
}

func checkGitmoji(c ParsedCommit, task types.Task) rules.Verdict {
	gitmoji := task.Map("gitmoji_map")
	if len(gitmoji) == 0 {
		return rules.Passf("no gitmoji_map defined (auto-pass)")
	}
	expected, ok := gitmoji[c.Type]
	if !ok || !types.Truthy(expected) {
		return rules.Passf("no gitmoji mapping for type '%s' (auto-pass)", c.Type)
	}
	emoji := fmt.Sprint(expected)
	switch {
	case strings.HasPrefix(c.Description, emoji+" "):
		return rules.Passf("description starts with %s", emoji)
	case c.Description == emoji:
		return rules.Passf("description is %s", emoji)
	}
	return rules.Failf("expected description to start with '%s ', got '%s'", emoji, string(rules.Head([]rune(c.Description), 30)))
}

func checkBodySections(c ParsedCommit, _ types.Task) rules.Verdict {
	if c.Body == "" {
		return rules.Failf("no body present (Why: and What: sections required)")
	}
	var why, what bool
	for _, line := range strings.Split(c.Body, "\n") {
		lower := strings.ToLower(strings.TrimSpace(line))
		why = why || strings.HasPrefix(lower, "why:")
		what = what || strings.HasPrefix(lower, "what:")
	}
	if why && what {
		return rules.Passf("both Why: and What: sections found")
	}
	var missing []string
	if !why {
		missing = append(missing, "Why:")
	}
	if !what {
		missing = append(missing, "What:")
	}
	return rules.Failf("missing sections: %s", strings.Join(missing, ", "))
}

// bound reads an optional word-count limit. A present but null key counts as unset.
func bound(task types.Task, key string) (float64, string, bool) {
	v, ok := task[key]
	if !ok || v == nil {
		return 0, "None", false
	}
	f, ok := types.AsFloat(v)
	if !ok {
		return 0, "None", false
	}
	return f, task.String(key), true
}

func checkBodyLength(c ParsedCommit, task types.Task) rules.Verdict {
	minWords, minText, hasMin := bound(task, "body_min_words")
	maxWords, maxText, hasMax := bound(task, "body_max_words")
	if !hasMin && !hasMax {
		return rules.Passf("no word count constraints (auto-pass)")
	}
	n := len(strings.Fields(c.Body))
	if hasMin && float64(n) < minWords {
		return rules.Failf("body has %d words, minimum is %s", n, minText)
	}
	if hasMax && float64(n) > maxWords {
		return rules.Failf("body has %d words, maximum is %s", n, maxText)
	}
	return rules.Passf("body has %d words (range: %s-%s)", n, minText, maxText)
}

func checkTrailers(c ParsedCommit, _ types.Task) rules.Verdict {
	if len(c.Footers) == 0 {
		return rules.Passf("no footers present")
	}
	var issues []string
	for _, f := range c.Footers {
		token, value := strings.TrimSpace(f.Token), strings.TrimSpace(f.Value)
		switch {
		case token == "":
			issues = append(issues, "empty token")
		case !trailerToken.MatchString(token):
			issues = append(issues, fmt.Sprintf("invalid token: '%s'", token))
		case value == "":
			issues = append(issues, fmt.Sprintf("empty value for token '%s'", token))
		}
	}
	if len(issues) > 0 {
		return rules.Failf("invalid trailer(s): %s", strings.Join(issues, "; "))
	}
	return rules.Passf("all %d footer(s) in Key: value format", len(c.Footers))
}

func checkSignedOff(c ParsedCommit, task types.Task) rules.Verdict {
	expected := task.String("signed_off_by")
	if !task.Bool("signed_off_by") {
		return rules.Passf("no signed_off_by required (auto-pass)")
	}
	var values []string
	for _, f := range c.Footers {
		if f.Token == "Signed-off-by" {
			values = append(values, strings.TrimSpace(f.Value))
		}
	}
	if len(values) == 0 {
		if strings.Contains(c.Raw, "Signed-off-by: "+expected) {
			return rules.Passf("Signed-off-by found in raw message")
		}
		return rules.Failf("missing Signed-off-by footer, expected '%s'", expected)
	}
	for _, v := range values {
		if v == expected {
			return rules.Passf("Signed-off-by matches: %s", expected)
		}
	}
	return rules.Failf("Signed-off-by value mismatch: got %s, expected '%s'", rules.List(values), expected)
}

func checkBreakingChange(c ParsedCommit, task types.Task) rules.Verdict {
	if !task.Bool("breaking_change") {
		return rules.Passf("n/a (not a breaking change)")
	}
	var footer *Footer
	for i, f := range c.Footers {
		if strings.ReplaceAll(strings.ToUpper(f.Token), "-", " ") == "BREAKING CHANGE" {
			footer = &c.Footers[i]
			break
		}
	}
	if footer == nil {
		return rules.Failf("missing BREAKING CHANGE footer")
	}
	value := strings.TrimSpace(footer.Value)
	n := utf8.RuneCountInString(value)
	if n < 10 {
		return rules.Failf("BREAKING CHANGE footer too short: '%s'", value)
	}
	return rules.Passf("BREAKING CHANGE footer present (%d chars)", n)
}

func checkTicket(c ParsedCommit, task types.Task) rules.Verdict {
	if !task.Bool("jira_project") || !task.Bool("jira_number") {
		return rules.Passf("no jira_project/jira_number in task (auto-pass)")
	}
	ref := task.String("jira_project") + "-" + task.String("jira_number")
	for _, f := range c.Footers {
		if f.Token == "Ticket" && strings.Contains(f.Value, ref) {
			return rules.Passf("Ticket footer contains %s", ref)
		}
	}
	if regexp.MustCompile(`Ticket:\s*` + regexp.QuoteMeta(ref)).MatchString(c.Raw) {
		return rules.Passf("Ticket ref %s found in raw message", ref)
	}
	return rules.Failf("missing Ticket: %s footer", ref)
}

func checkSubjectLength(c ParsedCommit, _ types.Task) rules.Verdict {
	n := utf8.RuneCountInString(c.SubjectLine)
	if n <= MaxSubjectLength {
		return rules.Passf("length=%d <= %d", n, MaxSubjectLength)
	}
	return rules.Failf("length=%d > %d", n, MaxSubjectLength)
}
