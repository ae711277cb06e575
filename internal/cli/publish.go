package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codalotl/skilleval/internal/report"
)

const (
	beginResultsMarker = "<!-- BEGIN_RESULTS -->"
	endResultsMarker   = "<!-- END_RESULTS -->"
)

// publishStats writes result_summaries/stats_<stamp>/{stats.md,command} under rootDir and replaces the README results block
// with the per-domain failure-rate table. It returns the summary directory relative to rootDir.
func publishStats(rootDir string, an report.Analysis, sections []section, command string, at time.Time) (string, error) {
	if strings.TrimSpace(rootDir) == "" {
		return "", errors.New("rootDir is required")
	}

	stamp := at.In(time.Local).Format("2006-01-02_15-04-05")
	summaryRel := filepath.Join("result_summaries", "stats_"+stamp)
	summaryDir := filepath.Join(rootDir, summaryRel)
	if err := os.MkdirAll(summaryDir, 0o755); err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(summaryDir, "stats.md"), []byte(statsMarkdown(an, sections)), 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(summaryDir, "command"), []byte(strings.TrimSpace(command)+"\n"), 0o644); err != nil {
		return "", err
	}

	table := markdownTable(sections[0].header, sections[0].rows)
	summaryLink := filepath.ToSlash(summaryRel)
	dateOnly := at.In(time.Local).Format("2006-01-02")
	resultsLine := fmt.Sprintf("Results as of %s (%d runs). See [%s](%s).", dateOnly, an.Runs, summaryLink, summaryLink)
	replacement := strings.TrimRight(table, "\n") + "\n\n" + resultsLine + "\n"
	if err := updateReadmeResults(rootDir, replacement); err != nil {
		return "", err
	}

	return summaryRel, nil
}

func statsMarkdown(an report.Analysis, sections []section) string {
	var b strings.Builder
	b.WriteString("# Skill-file statistics\n\n")
	fmt.Fprintf(&b, "%d runs across %d domains and %d models.\n", an.Runs, len(an.Domains), len(an.Models))
	for _, s := range sections {
		fmt.Fprintf(&b, "\n## %s\n\n", s.title)
		b.WriteString(markdownTable(s.header, s.rows))
		for _, n := range s.notes {
			fmt.Fprintf(&b, "\n%s\n", n)
		}
	}
	return b.String()
}

func markdownTable(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")
	for _, row := range rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return b.String()
}

func updateReadmeResults(rootDir string, replacement string) error {
	readmePath := filepath.Join(rootDir, "README.md")
	data, err := os.ReadFile(readmePath)
	if err != nil {
		return err
	}
	updated, err := replaceBetweenMarkers(string(data), beginResultsMarker, endResultsMarker, replacement)
	if err != nil {
		return err
	}
	return os.WriteFile(readmePath, []byte(updated), 0o644)
}

func replaceBetweenMarkers(doc, beginMarker, endMarker, replacement string) (string, error) {
	beginIdx := strings.Index(doc, beginMarker)
	if beginIdx < 0 {
		return "", fmt.Errorf("missing marker %q", beginMarker)
	}
	beginLineEnd := strings.Index(doc[beginIdx:], "\n")
	if beginLineEnd < 0 {
		return "", errors.New("begin marker line missing newline")
	}
	insertStart := beginIdx + beginLineEnd + 1

	endIdx := strings.Index(doc, endMarker)
	if endIdx < 0 {
		return "", fmt.Errorf("missing marker %q", endMarker)
	}
	if endIdx < insertStart {
		return "", errors.New("end marker precedes begin marker")
	}

	return doc[:insertStart] + replacement + doc[endIdx:], nil
}

func formatCommandForPublish(args []string) string {
	parts := []string{"skilleval"}
	if len(args) > 1 {
		for _, arg := range args[1:] {
			parts = append(parts, shellQuote(arg))
		}
	}
	return strings.Join(parts, " ")
}

func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	for _, r := range arg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("_-./:,=", r):
		default:
			// POSIX single-quote escaping: close, escape, reopen.
			return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
		}
	}
	return arg
}
