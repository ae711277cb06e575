package rules

import (
	"math"
	"strconv"
	"strings"
)

// Fields is one output row keyed by column name. Values are rendered the way the published score sheets render them so
// downstream analysis reads old and new CSVs alike: booleans are True/False and floats always carry a decimal point.
type Fields map[string]string

func (f Fields) Bool(key string, v bool) {
	f[key] = FormatBool(v)
}

func (f Fields) Int(key string, v int) {
	f[key] = strconv.Itoa(v)
}

func (f Fields) Float(key string, v float64) {
	f[key] = FormatFloat(v)
}

// Merge copies every entry of other into f.
func (f Fields) Merge(other map[string]string) {
	for k, v := range other {
		f[k] = v
	}
}

func FormatBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

// ParseBool accepts the FormatBool spellings as well as Go's.
func ParseBool(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// FormatFloat renders v in the shortest form that round-trips, keeping a trailing ".0" on integral values.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	if math.IsInf(v, 0) {
		if v > 0 {
			return "inf"
		}
		return "-inf"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// Round rounds v half away from zero to places decimals.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p+math.Copysign(1e-9, v)) / p
}

// List renders items as a bracketed, quoted list, e.g. ['a', 'b'].
func List(items []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		quote := "'"
		if strings.Contains(item, "'") && !strings.Contains(item, `"`) {
			quote = `"`
		}
		b.WriteString(quote)
		if quote == "'" {
			item = strings.ReplaceAll(item, `\`, `\\`)
			item = strings.ReplaceAll(item, "'", `\'`)
		}
		b.WriteString(item)
		b.WriteString(quote)
	}
	b.WriteByte(']')
	return b.String()
}

// Head returns at most n leading items.
func Head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
