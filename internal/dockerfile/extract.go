// Package dockerfile extracts a Dockerfile from a response and scores it against the Dockerfile best-practice rules.
package dockerfile

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/textscan"
	"github.com/codalotl/skilleval/internal/unwrap"
)

var (
	headerLine = regexp.MustCompile(`(?:Dockerfile|dockerfile)\s*:\s*\n`)
	plainFrom  = regexp.MustCompile(`(?ms)^(FROM\s+\S+.*?)(?:\n\n[A-Z]|\z)`)
)

// Marker reports whether text contains a FROM instruction.
func Marker(text string) bool {
	return strings.Contains(text, "FROM ")
}

// Resolve returns the text to extract from. clean is true when the text is a written-file payload, which is already a bare
// Dockerfile and needs no extraction.
func Resolve(raw string) (text string, clean bool) {
	text = unwrap.Response(raw)
	if Marker(text) {
		return text, false
	}
	if denied := unwrap.PermissionDenialContent(raw, Marker); denied != "" {
		return strings.TrimSpace(denied), true
	}
	return text, false
}

// Extract returns the Dockerfile in text. It tries dockerfile-tagged and untagged fences, then a "Dockerfile:" header, then
// an unfenced run of lines starting at FROM.
func Extract(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", rules.Extractionf("empty output")
	}

	for _, tags := range [][]string{{"dockerfile", "Dockerfile"}, nil} {
		for _, body := range textscan.Fences(text, tags...) {
			if c := strings.TrimSpace(body); strings.Contains(c, "FROM") {
				return c, nil
			}
		}
	}

	if loc := headerLine.FindStringIndex(text); loc != nil {
		if c := afterHeader(text[loc[1]:]); strings.Contains(c, "FROM") {
			return c, nil
		}
	}

	if m := plainFrom.FindStringSubmatch(text); m != nil {
		if c := strings.TrimSpace(m[1]); utf8.RuneCountInString(c) > 20 {
			return c, nil
		}
	}
	return "", rules.Extractionf("could not extract Dockerfile from output")
}

// afterHeader collects lines until two consecutive blank lines.
func afterHeader(rest string) string {
	var lines []string
	for _, line := range strings.Split(rest, "\n") {
		if len(lines) > 0 && strings.TrimSpace(line) == "" && !strings.HasPrefix(line, " ") {
			if strings.TrimSpace(lines[len(lines)-1]) == "" {
				break
			}
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ValidateStructure reports missing FROM and CMD/ENTRYPOINT instructions.
func ValidateStructure(dockerfile string) []string {
	var hasFrom, hasCmd bool
	for _, line := range strings.Split(strings.TrimSpace(dockerfile), "\n") {
		l := strings.ToUpper(strings.TrimSpace(line))
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		if strings.HasPrefix(l, "FROM ") {
			hasFrom = true
		}
		if strings.HasPrefix(l, "CMD ") || strings.HasPrefix(l, "ENTRYPOINT ") {
			hasCmd = true
		}
	}
	var errs []string
	if !hasFrom {
		errs = append(errs, "missing FROM instruction")
	}
	if !hasCmd {
		errs = append(errs, "missing CMD or ENTRYPOINT instruction")
	}
	return errs
}
