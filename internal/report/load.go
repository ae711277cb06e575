package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/stats"
)

// Record is one scored run as the cross-domain statistics see it.
type Record struct {
	Domain      string
	Model       string
	Condition   string
	Task        string
	AutoScore   float64
	ScoredRules float64
	FailureRate float64
}

// ModelName drops a provider prefix such as "zai-coding-plan/".
func ModelName(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		return raw[i+1:]
	}
	return raw
}

// LoadRecords reads the scores CSV at path for domain. Sheets that carry pass_count and fail_count (the three-valued chart
// rubric) score as pass/(pass+fail) so absent verdicts do not count against a run; other sheets use auto_score/scored_rules.
// Rows for models in exclude, or with unparseable scores, are skipped.
func LoadRecords(path, domain string, exclude []string) ([]Record, error) {
	sheet, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	skip := sliceToSet(exclude)
	ternary := sheet.Has("pass_count") && sheet.Has("fail_count")

	out := make([]Record, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		model := ModelName(row["model"])
		if skip[model] {
			continue
		}
		numer, denom := "auto_score", "scored_rules"
		if ternary {
			numer, denom = "pass_count", "fail_count"
		}
		auto, ok1 := parseNumber(row[numer])
		scored, ok2 := parseNumber(row[denom])
		if !ok1 || !ok2 {
			continue
		}
		if ternary {
			scored += auto
		}
		out = append(out, Record{
			Domain:      domain,
			Model:       model,
			Condition:   strings.TrimSpace(row["condition"]),
			Task:        row["task"],
			AutoScore:   auto,
			ScoredRules: scored,
			FailureRate: stats.FailureRate(auto, scored),
		})
	}
	return out, nil
}

func parseNumber(cell string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	return v, err == nil
}

// ScoreColumns are tried in order when no score column is named.
var ScoreColumns = []string{"deep_score", "auto_score", "pass_count"}

// DetectScoreColumn picks the first of ScoreColumns present in the sheet.
func DetectScoreColumn(sheet *Sheet) (string, error) {
	for _, col := range ScoreColumns {
		if sheet.Has(col) {
			return col, nil
		}
	}
	cols := append([]string(nil), sheet.Header...)
	sort.Strings(cols)
	return "", fmt.Errorf("no score column found; expected one of %v, got columns: %v", ScoreColumns, cols)
}

// CIRow is the bootstrap interval of one (model, condition) group.
type CIRow struct {
	Model     string
	Condition string
	N         int
	stats.CI
}

type CIOptions struct {
	Column    string
	Resamples int
	Level     float64
	Seed      uint64
}

// ConfidenceIntervals groups the sheet by (model, condition) and bootstraps the mean of opts.Column in each group. Cells that
// do not parse as numbers are skipped. Rows come back sorted by model, then condition.
func ConfidenceIntervals(sheet *Sheet, opts CIOptions) []CIRow {
	type key struct{ model, condition string }
	groups := map[key][]float64{}
	for _, row := range sheet.Rows {
		v, ok := parseNumber(row[opts.Column])
		if !ok {
			continue
		}
		k := key{row["model"], row["condition"]}
		groups[k] = append(groups[k], v)
	}
	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].model != keys[j].model {
			return keys[i].model < keys[j].model
		}
		return keys[i].condition < keys[j].condition
	})

	out := make([]CIRow, 0, len(keys))
	for _, k := range keys {
		vals := groups[k]
		out = append(out, CIRow{
			Model:     k.model,
			Condition: k.condition,
			N:         len(vals),
			CI:        stats.BootstrapMeanCI(vals, opts.Resamples, opts.Level, opts.Seed),
		})
	}
	return out
}

// CIColumns is the header of a confidence-interval CSV.
var CIColumns = []string{"model", "condition", "n", "mean", "ci_lower", "ci_upper"}

// WriteCIs writes rows with values rounded to three places.
func WriteCIs(w io.Writer, rows []CIRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CIColumns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Model,
			r.Condition,
			strconv.Itoa(r.N),
			rules.FormatFloat(rules.Round(r.Mean, 3)),
			rules.FormatFloat(rules.Round(r.Lower, 3)),
			rules.FormatFloat(rules.Round(r.Upper, 3)),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCIFile writes the interval CSV to path.
func WriteCIFile(path string, rows []CIRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCIs(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
