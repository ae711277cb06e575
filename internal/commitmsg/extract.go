// Package commitmsg extracts a Conventional Commits message from a response, parses it, and scores it against the commit
// message rules.
package commitmsg

import (
	"regexp"
	"strings"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/unwrap"
)

// ValidTypes are the Conventional Commits types.
var ValidTypes = map[string]bool{
	"feat": true, "fix": true, "docs": true, "style": true, "refactor": true, "perf": true,
	"test": true, "build": true, "ci": true, "chore": true, "revert": true,
}

var (
	subjectPattern = regexp.MustCompile(`^(?P<type>[a-z]+)(?:\((?P<scope>[^)]*)\))?(?P<breaking>!)?(?P<sep>:\s?)(?P<description>.+)$`)
	typePrefix     = regexp.MustCompile(`^[a-z]+[(!:]`)
	commitFence    = regexp.MustCompile("(?s)```(?:text|commit|git)?\\s*\\n(.*?)\\n\\s*```")
	footerRef      = regexp.MustCompile(`^(Refs|Fixes|Closes)\s+#\d+`)

	headerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)(?:commit\s+message|here(?:'s| is) the commit):?\s*\n+(.*)`),
		regexp.MustCompile(`(?is)(?:the commit message):?\s*\n+(.*)`),
	}
)

var footerTokens = []string{
	"BREAKING CHANGE:", "Refs:", "Fixes:", "Closes:", "Signed-off-by:",
	"Co-authored-by:", "Reviewed-by:", "Acked-by:", "Ticket:",
}

var (
	bodyExplanationStarters = []string{
		"this commit", "i chose", "i used", "here's", "here is",
		"the commit", "note:", "explanation:", "---",
	}
	explanationStarters = []string{
		"this commit", "i chose", "i used", "here's", "here is",
		"the commit", "note:", "explanation:", "let me explain",
		"the above", "this follows", "this message",
	}
)

// Marker reports whether text starts with something shaped like a commit type prefix.
func Marker(text string) bool {
	return typePrefix.MatchString(strings.TrimSpace(text))
}

// Extract returns the commit message in text. It tries the first fenced block, then a "commit message:" style header, then
// the first line that is a valid subject. Trailing model commentary is trimmed.
func Extract(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", rules.Extractionf("empty output")
	}

	if m := commitFence.FindStringSubmatch(text); m != nil {
		if c := strings.TrimSpace(m[1]); looksLikeCommit(c) {
			return c, nil
		}
	}

	for _, re := range headerPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if c := TrimExplanation(strings.TrimSpace(m[1])); looksLikeCommit(c) {
				return c, nil
			}
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !looksLikeCommit(line) {
			continue
		}
		start := strings.Index(text, line)
		return TrimExplanation(strings.TrimSpace(text[start:])), nil
	}
	return "", rules.Extractionf("could not extract commit message from output")
}

func looksLikeCommit(text string) bool {
	first, _, _ := strings.Cut(text, "\n")
	m := subjectPattern.FindStringSubmatch(strings.TrimSpace(first))
	return m != nil && ValidTypes[m[subjectPattern.SubexpIndex("type")]]
}

// TrimExplanation drops model commentary that follows the message. The first line is always the subject. After a blank
// line, the first non-blank line must look like body or footer text or the message ends there; once inside the body, a
// blank line followed by an explanation starter ends it.
func TrimExplanation(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blankSeen, inBody := false, false

	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if i == 0 {
			out = append(out, line)
			continue
		}
		if stripped == "" {
			blankSeen = true
			out = append(out, line)
			continue
		}

		switch {
		case blankSeen && !inBody:
			if !isFooterLine(stripped) && !isBodyLine(stripped) {
				return strings.Join(trimBlankTail(out), "\n")
			}
			inBody = true
			out = append(out, line)
		case inBody:
			if blankSeen && isExplanationStart(stripped) {
				return strings.Join(trimBlankTail(out), "\n")
			}
			out = append(out, line)
			blankSeen = false
		default:
			out = append(out, line)
			blankSeen = false
		}
	}
	return strings.Join(trimBlankTail(out), "\n")
}

func trimBlankTail(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func isFooterLine(line string) bool {
	for _, tok := range footerTokens {
		if strings.HasPrefix(line, tok) {
			return true
		}
	}
	return footerRef.MatchString(line)
}

func isBodyLine(line string) bool {
	return !hasLowerPrefix(line, bodyExplanationStarters)
}

func isExplanationStart(line string) bool {
	return hasLowerPrefix(line, explanationStarters)
}

func hasLowerPrefix(line string, prefixes []string) bool {
	lower := strings.ToLower(line)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Resolve returns the response text, or a written-file payload when the response does not start with a type prefix.
func Resolve(raw string) string {
	return unwrap.Resolve(raw, Marker)
}
