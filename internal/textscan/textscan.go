// Package textscan holds the small hand-rolled scanners shared by the extractors: fenced code blocks, brace matching, and
// block bodies. LLM output is not guaranteed to be syntactically valid, so none of these use a real grammar.
package textscan

import (
	"regexp"
	"strings"
	"sync"
)

var (
	untaggedFence = regexp.MustCompile("(?s)```\\s*\\n(.*?)\\n\\s*```")
	fenceCache    sync.Map
)

// FencePattern returns the regexp for a fenced block opened with one of tags. No tags means an untagged fence.
func FencePattern(tags ...string) *regexp.Regexp {
	if len(tags) == 0 {
		return untaggedFence
	}
	key := strings.Join(tags, "|")
	if re, ok := fenceCache.Load(key); ok {
		return re.(*regexp.Regexp)
	}
	quoted := make([]string, len(tags))
	for i, tag := range tags {
		quoted[i] = regexp.QuoteMeta(tag)
	}
	re := regexp.MustCompile("(?s)```(?:" + strings.Join(quoted, "|") + ")\\s*\\n(.*?)\\n\\s*```")
	fenceCache.Store(key, re)
	return re
}

// Fences returns the body of every fenced block matching tags, in order of appearance.
func Fences(text string, tags ...string) []string {
	var out []string
	for _, m := range FencePattern(tags...).FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// FirstFence returns the first fenced block matching tags.
func FirstFence(text string, tags ...string) (string, bool) {
	m := FencePattern(tags...).FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FirstBalanced returns the first balanced {...} span in text, starting at the first '{'. Braces inside strings are not
// special-cased.
func FirstBalanced(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// BlockBody returns text from the brace at open through its matching close brace, or the rest of text if unmatched.
func BlockBody(text string, open int) string {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[open : i+1]
			}
		}
	}
	return text[open:]
}

// Lines splits text on "\n".
func Lines(text string) []string {
	return strings.Split(text, "\n")
}

// TrimTrailingBlank drops trailing whitespace-only lines.
func TrimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// IsWordByte reports whether c is a letter, digit, or underscore.
func IsWordByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
