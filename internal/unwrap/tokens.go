package unwrap

import (
	"github.com/codalotl/skilleval/internal/types"
)

// Tokens extracts token usage from raw. Fields the dialect does not report stay nil.
func Tokens(raw string) types.TokenUsage {
	var usage types.TokenUsage
	if raw == "" {
		return usage
	}

	if obj, ok := parseObject(raw); ok {
		if u, ok := obj["usage"]; ok {
			m := asMap(u)
			usage.InputTokens = intField(m, "input_tokens")
			usage.OutputTokens = intField(m, "output_tokens")
			usage.CacheReadTokens = intField(m, "cache_read_input_tokens")
			usage.CacheWriteTokens = intField(m, "cache_creation_input_tokens")
			usage.TotalCostUSD = floatField(obj, "total_cost_usd")
			return usage
		}
	}

	if looksLikeJSONL(raw) {
		for _, evt := range scanObjects(raw) {
			if evt["type"] != "step_finish" {
				continue
			}
			part := asMap(evt["part"])
			tokens := asMap(part["tokens"])
			cache := asMap(tokens["cache"])
			usage.InputTokens = intField(tokens, "input")
			usage.OutputTokens = intField(tokens, "output")
			usage.CacheReadTokens = intField(cache, "read")
			usage.CacheWriteTokens = intField(cache, "write")
			usage.TotalCostUSD = floatField(part, "cost")
			return usage
		}
	}

	if obj, ok := geminiObject(raw); ok {
		for _, modelStats := range asMap(asMap(obj["stats"])["models"]) {
			tokens := asMap(asMap(modelStats)["tokens"])
			usage.InputTokens = intField(tokens, "input")
			usage.OutputTokens = intField(tokens, "candidates")
			// Gemini reports one model per run.
			return usage
		}
	}
	return usage
}

func intField(m map[string]any, key string) *int {
	v, ok := types.AsInt(m[key])
	if !ok {
		return nil
	}
	return &v
}

func floatField(m map[string]any, key string) *float64 {
	v, ok := types.AsFloat(m[key])
	if !ok {
		return nil
	}
	return &v
}
