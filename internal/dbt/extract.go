// Package dbt extracts dbt SQL models from a response and scores them against the SQL style rules.
package dbt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/textscan"
)

// Model is one extracted SQL file. Name is the file name without .sql.
type Model struct {
	Name string
	SQL  string
}

// Models is the set of extracted models in first-seen order. Names are unique.
type Models []Model

// Names returns the model names in order.
func (ms Models) Names() []string {
	names := make([]string, 0, len(ms))
	for _, m := range ms {
		names = append(names, m.Name)
	}
	return names
}

// set adds or replaces a model. A replaced model keeps its original position.
func (ms Models) set(name, sql string) Models {
	for i := range ms {
		if ms[i].Name == name {
			ms[i].SQL = sql
			return ms
		}
	}
	return append(ms, Model{Name: name, SQL: sql})
}

var (
	sqlFenceOpen = regexp.MustCompile(`(?i)^` + "```" + `sql\s*$`)
	modelName    = regexp.MustCompile(`--\s*(?:models/\S+/)?(\w+)\.sql`)
)

// Marker reports whether text looks like SQL.
func Marker(text string) bool {
	upper := strings.ToUpper(text)
	return strings.Contains(upper, "SELECT") || strings.Contains(upper, "WITH")
}

// Extract finds every ```sql fence in text and names it from a nearby "-- models/.../name.sql" comment.
func Extract(text string) (Models, error) {
	if strings.TrimSpace(text) == "" {
		return nil, rules.Extractionf("empty output")
	}

	var models Models
	lines := textscan.Lines(text)
	for i := 0; i < len(lines); i++ {
		if !sqlFenceOpen.MatchString(strings.TrimSpace(lines[i])) {
			continue
		}

		name := ""
		for j := i - 1; j >= 0 && j > i-5; j-- {
			if m := modelName.FindStringSubmatch(strings.TrimSpace(lines[j])); m != nil {
				name = m[1]
				break
			}
		}

		var body []string
		for i++; i < len(lines); i++ {
			if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
				break
			}
			body = append(body, lines[i])
		}
		sql := strings.TrimSpace(strings.Join(body, "\n"))
		if sql == "" {
			continue
		}

		if name == "" {
			first := strings.TrimSpace(strings.SplitN(sql, "\n", 2)[0])
			if m := modelName.FindStringSubmatch(first); m != nil {
				name = m[1]
			} else {
				name = fmt.Sprintf("unnamed_%d", len(models)+1)
			}
		}
		models = models.set(name, sql)
	}

	if len(models) == 0 {
		if body, ok := textscan.FirstFence(text, "sql"); ok {
			models = models.set("unnamed_1", strings.TrimSpace(body))
		}
	}
	if len(models) == 0 {
		return nil, rules.Extractionf("could not extract any SQL model files from output")
	}
	return models, nil
}
