package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// RunResult is one experimental trial as written by the experiment runner.
type RunResult struct {
	RunID          Scalar `json:"run_id"`
	Model          string `json:"model"`
	Condition      string `json:"condition"`
	Task           Scalar `json:"task"`
	TaskComplexity Scalar `json:"task_complexity"`
	Rep            Scalar `json:"rep"`
	DurationMS     Scalar `json:"duration_ms"`
	RawOutput      string `json:"raw_output"`
}

// Scalar holds the textual form of a JSON string, number, or bool. Runners are inconsistent about whether task and rep are
// numbers or strings; both render the same way in a CSV cell.
type Scalar string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = Scalar(v)
		return nil
	}
	*s = Scalar(data)
	return nil
}

func (s Scalar) String() string {
	return string(s)
}

// TokenUsage is the per-run token accounting. Every field is optional; nil means the raw output did not report it.
type TokenUsage struct {
	InputTokens      *int     `json:"input_tokens,omitempty"`
	OutputTokens     *int     `json:"output_tokens,omitempty"`
	CacheReadTokens  *int     `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens *int     `json:"cache_write_tokens,omitempty"`
	TotalCostUSD     *float64 `json:"total_cost_usd,omitempty"`
}

// TokenColumns are the CSV columns for TokenUsage, in order.
var TokenColumns = []string{
	"input_tokens",
	"output_tokens",
	"cache_read_tokens",
	"cache_write_tokens",
	"total_cost_usd",
}

// Fields renders u keyed by TokenColumns. Missing values are empty strings.
func (u TokenUsage) Fields() map[string]string {
	return map[string]string{
		"input_tokens":       formatIntPtr(u.InputTokens),
		"output_tokens":      formatIntPtr(u.OutputTokens),
		"cache_read_tokens":  formatIntPtr(u.CacheReadTokens),
		"cache_write_tokens": formatIntPtr(u.CacheWriteTokens),
		"total_cost_usd":     formatFloatPtr(u.TotalCostUSD),
	}
}

// IsZero reports whether no token field was found.
func (u TokenUsage) IsZero() bool {
	return u.InputTokens == nil && u.OutputTokens == nil && u.CacheReadTokens == nil && u.CacheWriteTokens == nil && u.TotalCostUSD == nil
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Task is the task metadata for a run, loaded from a test-data JSON file. A missing task is an empty Task, and every accessor
// treats absent keys as their zero value.
type Task map[string]any

// ID returns the task_id field as text.
func (t Task) ID() string {
	return t.String("task_id")
}

// Has reports whether key is present.
func (t Task) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// String returns the value at key rendered as text.
func (t Task) String(key string) string {
	return stringify(t[key])
}

// Bool returns the truthiness of the value at key: false for absent, null, false, zero, and empty strings or collections.
func (t Task) Bool(key string) bool {
	return Truthy(t[key])
}

// Strings returns the value at key as a list of strings. A scalar string becomes a one-element list.
func (t Task) Strings(key string) []string {
	switch v := t[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringify(item))
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Int returns the value at key as an int.
func (t Task) Int(key string) (int, bool) {
	return AsInt(t[key])
}

// Sub returns the nested object at key, or an empty Task.
func (t Task) Sub(key string) Task {
	if m, ok := t[key].(map[string]any); ok {
		return Task(m)
	}
	return Task{}
}

// Map returns the nested object at key as a plain map.
func (t Task) Map(key string) map[string]any {
	if m, ok := t[key].(map[string]any); ok {
		return m
	}
	return nil
}

// Truthy mirrors how the task files are authored: flags are sometimes booleans and sometimes non-empty lists.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

// AsInt converts a decoded JSON value to an int.
func AsInt(val any) (int, bool) {
	switch v := val.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
		if f, err := v.Float64(); err == nil {
			return int(f), true
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i, true
		}
	}
	return 0, false
}

// AsFloat converts a decoded JSON value to a float64.
func AsFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
