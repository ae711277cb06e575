package dbt

import (
	"regexp"
	"strings"
)

var (
	jinjaRef      = regexp.MustCompile(`\{\{\s*ref\(\s*['"](\w+)['"]\s*\)\s*\}\}`)
	stringLiteral = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// stripJinja resolves {{ ref('x') }} to the bare table name x.
func stripJinja(sql string) string {
	return jinjaRef.ReplaceAllString(sql, "$1")
}

// stripComments removes "--" line comments that are not inside a string literal.
func stripComments(sql string) string {
	lines := strings.Split(sql, "\n")
	for i, line := range lines {
		if pos := commentStart(line); pos >= 0 {
			lines[i] = line[:pos]
		}
	}
	return strings.Join(lines, "\n")
}

// stripCommentsAndStrings also collapses string literals to '_STR_'.
func stripCommentsAndStrings(sql string) string {
	return stringLiteral.ReplaceAllString(stripComments(sql), "'_STR_'")
}

func commentStart(line string) int {
	inString := false
	for i := 0; i < len(line)-1; i++ {
		if line[i] == '\'' && (i == 0 || line[i-1] != '\\') {
			inString = !inString
		}
		if !inString && line[i] == '-' && line[i+1] == '-' {
			return i
		}
	}
	return -1
}

// removeParenContent keeps the parentheses but drops everything nested inside them.
func removeParenContent(text string) string {
	var b strings.Builder
	depth := 0
	for _, ch := range text {
		switch {
		case ch == '(':
			depth++
			b.WriteRune(ch)
		case ch == ')':
			depth--
			b.WriteRune(ch)
		case depth == 0:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// matchParen returns the index just past the parenthesis that closes the one at open, or open if it never closes.
func matchParen(text string, open int) int {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return open
}

func isIdentLetter(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// containsBounded reports whether re matches somewhere not directly preceded or followed by a letter or underscore.
func containsBounded(re *regexp.Regexp, text string) bool {
	for offset := 0; offset < len(text); {
		loc := re.FindStringIndex(text[offset:])
		if loc == nil {
			return false
		}
		start, end := offset+loc[0], offset+loc[1]
		before := start == 0 || !isIdentLetter(text[start-1])
		after := end == len(text) || !isIdentLetter(text[end])
		if before && after {
			return true
		}
		offset = start + 1
	}
	return false
}
