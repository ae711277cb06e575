// Package chart scores chart specifications against the data-visualization style rubric. Models emit charts in many JSON
// shapes (Vega-Lite, Plotly-like, ad hoc), so every extractor searches the whole tree by key name instead of assuming a
// schema, and each rule reports pass, fail, or absent when the chart does not say.
package chart

import (
	"strings"
	"unicode/utf8"

	"github.com/codalotl/skilleval/internal/ordered"
	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/textscan"
	"github.com/codalotl/skilleval/internal/unwrap"
)

// minDenialLen is the shortest written-file payload considered as a chart.
const minDenialLen = 50

// Marker reports whether text could hold a chart object.
func Marker(text string) bool {
	return strings.Contains(text, "{")
}

// Extract returns the chart object in raw. Written-file payloads that look like charts win over the response text; then the
// first json fence, the first untagged fence, the whole text, and the first balanced {...} span are tried in that order.
func Extract(raw string) (*ordered.Object, error) {
	if raw == "" {
		return nil, rules.Extractionf("empty output")
	}

	for _, content := range unwrap.Denials(raw) {
		if utf8.RuneCountInString(content) <= minDenialLen {
			continue
		}
		if obj, ok := parseObject(content); ok && (obj.Has("chart_type") || obj.Has("title")) {
			return obj, nil
		}
	}

	text := unwrap.Response(raw)
	for _, tags := range [][]string{{"json"}, nil} {
		if body, ok := textscan.FirstFence(text, tags...); ok {
			if obj, ok := parseObject(body); ok {
				return obj, nil
			}
		}
	}
	if obj, ok := parseObject(text); ok {
		return obj, nil
	}
	if span, ok := textscan.FirstBalanced(text); ok {
		if obj, ok := parseObject(span); ok {
			return obj, nil
		}
	}
	return nil, rules.Extractionf("could not extract valid JSON")
}

func parseObject(text string) (*ordered.Object, bool) {
	v, err := ordered.ParseJSON(text)
	if err != nil {
		return nil, false
	}
	obj, ok := v.(*ordered.Object)
	return obj, ok
}
