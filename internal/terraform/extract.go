// Package terraform extracts Terraform HCL from a response and scores it against the Terraform style rules.
package terraform

import (
	"regexp"
	"strings"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/textscan"
)

var (
	hclKeyword   = regexp.MustCompile(`\b(?:resource|variable|provider|terraform|output|data|locals)\s`)
	hclLineStart = regexp.MustCompile(`(?m)^\s*(?:terraform|provider|resource|variable|data|locals|output)\s`)
)

var explanationStarters = []string{
	"this configuration", "this terraform", "the above",
	"note:", "explanation:", "let me explain", "here's",
	"this creates", "this sets up", "key features",
	"## ", "### ", "**note", "---",
}

// Marker reports whether text mentions a resource or variable block.
func Marker(text string) bool {
	return strings.Contains(text, "resource ") || strings.Contains(text, "variable ")
}

// LooksLikeTerraform reports whether text contains any top-level HCL keyword.
func LooksLikeTerraform(text string) bool {
	return hclKeyword.MatchString(text)
}

// Extract returns the HCL in text. Every qualifying fence is kept, since models often split main.tf, variables.tf and
// outputs.tf into separate blocks.
func Extract(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", rules.Extractionf("empty output")
	}

	var blocks []string
	for _, body := range textscan.Fences(text, "hcl", "terraform", "tf") {
		if c := strings.TrimSpace(body); LooksLikeTerraform(c) {
			blocks = append(blocks, c)
		}
	}
	for _, body := range textscan.Fences(text) {
		if c := strings.TrimSpace(body); LooksLikeTerraform(c) {
			blocks = append(blocks, c)
		}
	}
	if len(blocks) > 0 {
		return strings.Join(blocks, "\n\n"), nil
	}

	if loc := hclLineStart.FindStringIndex(text); loc != nil {
		candidate := TrimExplanation(strings.TrimSpace(text[loc[0]:]))
		if LooksLikeTerraform(candidate) {
			return candidate, nil
		}
	}
	return "", rules.Extractionf("could not extract Terraform HCL from output")
}

// TrimExplanation drops trailing prose that follows the last line where the brace depth returns to zero.
func TrimExplanation(text string) string {
	lines := textscan.Lines(text)
	depth := 0
	lastClose := -1
	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		depth += strings.Count(stripped, "{") - strings.Count(stripped, "}")
		if depth <= 0 && strings.Contains(stripped, "}") {
			lastClose = i
		}
	}

	if lastClose >= 0 && lastClose < len(lines)-1 {
		for i, line := range lines[lastClose+1:] {
			lower := strings.ToLower(strings.TrimSpace(line))
			if lower != "" && startsWithAny(lower, explanationStarters) {
				lines = lines[:lastClose+1+i]
				break
			}
		}
	}
	return strings.Join(textscan.TrimTrailingBlank(lines), "\n")
}

func startsWithAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
