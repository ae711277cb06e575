package chart

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/codalotl/skilleval/internal/ordered"
)

// hit is one deepFind match. Path is dotted with [i] for list indexes, e.g. "layout.axes[0].title".
type hit struct {
	Path  string
	Value any
}

// deepFind walks node depth-first in document order and returns every value stored under one of keys, compared
// case-insensitively, at any depth. Matches nested inside a match are returned too.
func deepFind(node any, keys ...string) []hit {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[strings.ToLower(k)] = true
	}
	var out []hit
	var walk func(n any, path string, depth int)
	walk = func(n any, path string, depth int) {
		if depth > ordered.MaxDepth {
			return
		}
		switch x := n.(type) {
		case *ordered.Object:
			for _, k := range x.Keys() {
				p := k
				if path != "" {
					p = path + "." + k
				}
				v := x.Get(k)
				if want[strings.ToLower(k)] {
					out = append(out, hit{Path: p, Value: v})
				}
				walk(v, p, depth+1)
			}
		case []any:
			for i, item := range x {
				walk(item, fmt.Sprintf("%s[%d]", path, i), depth+1)
			}
		}
	}
	walk(node, "", 0)
	return out
}

func findStrings(node any, keys ...string) []hit {
	return filterHits(deepFind(node, keys...), func(v any) bool { _, ok := v.(string); return ok })
}

func findObjects(node any, keys ...string) []*ordered.Object {
	var out []*ordered.Object
	for _, h := range deepFind(node, keys...) {
		if obj, ok := h.Value.(*ordered.Object); ok {
			out = append(out, obj)
		}
	}
	return out
}

func findLists(node any, keys ...string) [][]any {
	var out [][]any
	for _, h := range deepFind(node, keys...) {
		if l, ok := h.Value.([]any); ok {
			out = append(out, l)
		}
	}
	return out
}

func findBools(node any, keys ...string) []bool {
	var out []bool
	for _, h := range deepFind(node, keys...) {
		if b, ok := h.Value.(bool); ok {
			out = append(out, b)
		}
	}
	return out
}

// findNumbers returns numeric values with their source text, so details echo what the chart wrote.
func findNumbers(node any, keys ...string) []number {
	var out []number
	for _, h := range deepFind(node, keys...) {
		if n, ok := asNumber(h.Value); ok {
			out = append(out, n)
		}
	}
	return out
}

func filterHits(hits []hit, keep func(any) bool) []hit {
	out := hits[:0:0]
	for _, h := range hits {
		if keep(h.Value) {
			out = append(out, h)
		}
	}
	return out
}

// number is a JSON number. Booleans are not numbers.
type number struct {
	Value float64
	Text  string
	Int   bool
}

func (n number) String() string { return n.Text }

func asNumber(v any) (number, bool) {
	jn, ok := v.(json.Number)
	if !ok {
		return number{}, false
	}
	f, err := jn.Float64()
	if err != nil {
		return number{}, false
	}
	s := jn.String()
	return number{Value: f, Text: s, Int: !strings.ContainsAny(s, ".eE")}, true
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func titleText(chart *ordered.Object) string {
	for _, obj := range findObjects(chart, "title") {
		if text, ok := obj.Get("text").(string); ok && runeLen(strings.TrimSpace(text)) > 5 {
			return strings.TrimSpace(text)
		}
	}
	for _, h := range findStrings(chart, "title") {
		p := strings.ToLower(h.Path)
		if strings.Contains(p, "axis") || strings.Contains(p, "encoding") {
			continue
		}
		if s := strings.TrimSpace(h.Value.(string)); runeLen(s) > 5 {
			return s
		}
	}
	for _, h := range findStrings(chart, "text") {
		if s := strings.TrimSpace(h.Value.(string)); runeLen(s) > 10 {
			return s
		}
	}
	return ""
}

var topLevelTypes = map[string]bool{"bar": true, "line": true, "scatter": true, "area": true, "pie": true}

func chartType(chart *ordered.Object) string {
	for _, key := range []string{"chart_type", "chartType"} {
		if hits := findStrings(chart, key); len(hits) > 0 {
			return strings.ToLower(hits[0].Value.(string))
		}
	}
	if t, ok := chart.Get("type").(string); ok && topLevelTypes[strings.ToLower(t)] {
		return strings.ToLower(t)
	}
	if inner, ok := chart.ObjOrEmpty("chart"); ok {
		if t, ok := inner.Get("type").(string); ok && t != "" {
			return strings.ToLower(t)
		}
	}
	switch mark := chart.Get("mark").(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(mark)
	case *ordered.Object:
		return strings.ToLower(mark.Str("type"))
	}
	return ""
}

func sourceText(chart *ordered.Object) string {
	for _, h := range findStrings(chart, "source") {
		s := strings.TrimSpace(h.Value.(string))
		if s != "" && !strings.HasPrefix(s, "http") && runeLen(s) > 3 {
			return s
		}
	}
	for _, obj := range findObjects(chart, "source") {
		for _, sub := range []string{"data", "text"} {
			if s, ok := obj.Get(sub).(string); ok && runeLen(strings.TrimSpace(s)) > 3 {
				return strings.TrimSpace(s)
			}
		}
	}
	if meta := chart.Obj("metadata"); meta != nil {
		if s, ok := meta.Get("source").(string); ok && runeLen(strings.TrimSpace(s)) > 3 {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// fontFamilies returns the distinct lowercased font strings, sorted.
func fontFamilies(chart *ordered.Object) []string {
	set := map[string]bool{}
	for _, h := range findStrings(chart, "family", "fontFamily", "font_family", "labelFont", "titleFont") {
		set[strings.ToLower(strings.TrimSpace(h.Value.(string)))] = true
	}
	return sortedKeys(set)
}

// aspectRatio is width/height from an explicit "w:h" ratio or the first width and height found anywhere.
func aspectRatio(chart *ordered.Object) (float64, bool) {
	for _, h := range findStrings(chart, "aspect_ratio", "aspectRatio") {
		parts := strings.Split(h.Value.(string), ":")
		if len(parts) != 2 {
			continue
		}
		w, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		ht, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 == nil && err2 == nil && ht != 0 {
			return w / ht, true
		}
	}
	widths := findNumbers(chart, "width")
	heights := findNumbers(chart, "height")
	if len(widths) > 0 && len(heights) > 0 && heights[0].Value > 0 {
		return widths[0].Value / heights[0].Value, true
	}
	return 0, false
}

// side is a tri-state spine setting.
type side int

const (
	sideUnset side = iota
	sideOn
	sideOff
)

func sideOf(b bool) side {
	if b {
		return sideOn
	}
	return sideOff
}

type spines struct {
	Top, Right, Bottom, Left side
}

func (s *spines) set(name string, v side) bool {
	switch name {
	case "top":
		s.Top = v
	case "right":
		s.Right = v
	case "bottom":
		s.Bottom = v
	case "left":
		s.Left = v
	default:
		return false
	}
	return true
}

var spineSides = []string{"top", "right", "bottom", "left"}

// spineConfig collects spine settings from the common chart dialects. ok is false when nothing about spines is set.
func spineConfig(chart *ordered.Object) (spines, bool) {
	var cfg spines
	found := false

	for _, obj := range findObjects(chart, "spines") {
		for _, name := range spineSides {
			if v, present := obj.Lookup(name); present {
				cfg.set(name, sideOf(ordered.Truthy(v)))
				found = true
			}
		}
	}
	for _, list := range findLists(chart, "removeSpines", "removedElements", "hideSpines") {
		for _, item := range list {
			if s, ok := item.(string); ok && cfg.set(strings.ToLower(s), sideOff) {
				found = true
			}
		}
	}
	for _, name := range spineSides {
		for _, b := range findBools(chart, "show_"+name+"_spine") {
			cfg.set(name, sideOf(b))
			found = true
		}
	}
	// A Vega-Lite view without a stroke has no border box.
	for _, view := range findObjects(chart, "view") {
		if stroke := view.Get("stroke"); stroke == nil || stroke == "transparent" {
			cfg.Top, cfg.Right = sideOff, sideOff
			found = true
		}
	}
	if len(findBools(chart, "spine")) > 0 {
		found = true
	}
	return cfg, found
}

var hexPrefix = regexp.MustCompile(`^#[0-9a-fA-F]{6}`)

func gridlineColors(chart *ordered.Object) []string {
	set := map[string]bool{}
	for _, h := range findStrings(chart, "gridColor", "gridline_color", "grid_color") {
		if s := h.Value.(string); hexPrefix.MatchString(s) {
			set[strings.ToLower(s)] = true
		}
	}
	for _, obj := range findObjects(chart, "gridlines") {
		if s, ok := obj.Get("color").(string); ok && hexPrefix.MatchString(s) {
			set[strings.ToLower(s)] = true
		}
	}
	return sortedKeys(set)
}

// annotations returns the chart's annotation list: an explicit list, or a single insight annotation string.
func annotations(chart *ordered.Object) []any {
	for _, list := range findLists(chart, "annotations") {
		if len(list) > 0 {
			return list
		}
	}
	for _, obj := range findObjects(chart, "annotations") {
		if s, ok := obj.Get("insight_annotation").(string); ok && runeLen(s) > 3 {
			return []any{s}
		}
	}
	for _, h := range findStrings(chart, "insight_annotation") {
		if s := h.Value.(string); runeLen(s) > 3 {
			return []any{s}
		}
	}
	return nil
}

// legendConfig reports whether a legend is shown. ok is false when the chart does not say.
func legendConfig(chart *ordered.Object) (shown, ok bool) {
	for _, h := range deepFind(chart, "legend") {
		if h.Value == nil || h.Value == false {
			return false, true
		}
	}
	if b := findBools(chart, "showLegend", "show_legend"); len(b) > 0 {
		return b[0], true
	}
	if objs := findObjects(chart, "legend"); len(objs) > 0 {
		if v, present := objs[0].Lookup("show"); present {
			return ordered.Truthy(v), true
		}
		if v, present := objs[0].Lookup("visible"); present {
			return ordered.Truthy(v), true
		}
		return true, true
	}
	return false, false
}

// dataPoints counts points in data[], data.values[], chart.data[], or series[0].data[], taking the first shape present.
func dataPoints(chart *ordered.Object) int {
	switch data := chart.Get("data").(type) {
	case []any:
		if len(data) > 0 {
			return len(data)
		}
	case *ordered.Object:
		if vals, ok := listOrEmpty(data, "values"); ok {
			return len(vals)
		}
	}
	if inner, ok := chart.ObjOrEmpty("chart"); ok {
		if d, ok := listOrEmpty(inner, "data"); ok {
			return len(d)
		}
	}
	if series, ok := chart.Get("series").([]any); ok && len(series) > 0 {
		if first, ok := series[0].(*ordered.Object); ok {
			if d, ok := listOrEmpty(first, "data"); ok {
				return len(d)
			}
		}
	}
	return 0
}

// listOrEmpty returns the list at key. An absent key is an empty list; ok is false only for a non-list value.
func listOrEmpty(obj *ordered.Object, key string) ([]any, bool) {
	v, present := obj.Lookup(key)
	if !present {
		return nil, true
	}
	l, ok := v.([]any)
	return l, ok
}

var nonSeriesFields = map[string]bool{"index": true, "id": true, "row": true, "highlight": true}

// seriesCount is len(series), or the number of numeric fields in the first data row.
func seriesCount(chart *ordered.Object) int {
	if series, ok := chart.Get("series").([]any); ok && len(series) > 0 {
		return len(series)
	}
	var rows []any
	switch data := chart.Get("data").(type) {
	case []any:
		rows = data
	case *ordered.Object:
		rows = data.List("values")
	}
	if len(rows) == 0 {
		return 0
	}
	first, ok := rows[0].(*ordered.Object)
	if !ok {
		return 0
	}
	n := 0
	for _, k := range first.Keys() {
		if _, num := asNumber(first.Get(k)); num && !nonSeriesFields[strings.ToLower(k)] {
			n++
		}
	}
	return n
}

// highlightInfo returns highlight markers and the distinct lowercased colors set on data items.
func highlightInfo(chart *ordered.Object) (highlights []string, dataColors []string) {
	for _, b := range findBools(chart, "highlight") {
		if b {
			highlights = append(highlights, "data_flag")
		}
	}
	for _, n := range findNumbers(chart, "highlight_count") {
		if n.Int && n.Value >= 1 {
			highlights = append(highlights, "typed_highlight_count")
		}
	}
	for _, h := range findStrings(chart, "highlight_color") {
		if runeLen(h.Value.(string)) > 3 {
			highlights = append(highlights, "typed_highlight_color")
		}
	}

	var items []any
	switch data := chart.Get("data").(type) {
	case []any:
		items = data
	case *ordered.Object:
		items = data.List("values")
	}
	set := map[string]bool{}
	for _, item := range items {
		if obj, ok := item.(*ordered.Object); ok {
			if c := obj.Str("color"); c != "" {
				set[strings.ToLower(c)] = true
			}
		}
	}
	return highlights, sortedKeys(set)
}

func hasDataLabels(chart *ordered.Object) bool {
	for _, h := range deepFind(chart, "labels", "dataLabels", "data_labels", "bar_values") {
		switch v := h.Value.(type) {
		case []any:
			if len(v) > 0 {
				return true
			}
		case bool, *ordered.Object:
			return true
		}
	}
	for _, layer := range findLists(chart, "layer") {
		for _, item := range layer {
			obj, ok := item.(*ordered.Object)
			if !ok {
				continue
			}
			switch mark := obj.Get("mark").(type) {
			case string:
				if mark == "text" {
					return true
				}
			case *ordered.Object:
				if mark.Get("type") == "text" {
					return true
				}
			}
		}
	}
	return false
}

var unitPattern = regexp.MustCompile(`(?i)\$|USD|billion|trillion|%|bn|B\b`)

// unitLocations returns where a unit appears, from title, subtitle, axis and labels, sorted.
func unitLocations(chart *ordered.Object) []string {
	set := map[string]bool{}
	if t := titleText(chart); t != "" && unitPattern.MatchString(t) {
		set["title"] = true
	}
	for _, h := range findStrings(chart, "subtitle") {
		if unitPattern.MatchString(h.Value.(string)) {
			set["subtitle"] = true
		}
	}
	for _, h := range findStrings(chart, "label", "tickFormat", "format") {
		if unitPattern.MatchString(h.Value.(string)) {
			set["axis"] = true
		}
	}
	for _, obj := range findObjects(chart, "labels", "dataLabels") {
		if f, ok := obj.Get("format").(string); ok && unitPattern.MatchString(f) {
			set["labels"] = true
		}
	}
	for _, h := range findStrings(chart, "title") {
		p := strings.ToLower(h.Path)
		if (strings.Contains(p, "axis") || strings.Contains(p, "y") || strings.Contains(p, "x")) && unitPattern.MatchString(h.Value.(string)) {
			set["axis"] = true
		}
	}
	return sortedKeys(set)
}

var hexColor = regexp.MustCompile(`#[0-9a-fA-F]{6}\b`)

// hexColors returns every distinct #rrggbb color in any string in the tree, lowercased and sorted.
func hexColors(chart *ordered.Object) []string {
	set := map[string]bool{}
	var walk func(n any, depth int)
	walk = func(n any, depth int) {
		if depth > ordered.MaxDepth {
			return
		}
		switch x := n.(type) {
		case string:
			for _, m := range hexColor.FindAllString(x, -1) {
				set[strings.ToLower(m)] = true
			}
		case *ordered.Object:
			for _, k := range x.Keys() {
				walk(x.Get(k), depth+1)
			}
		case []any:
			for _, item := range x {
				walk(item, depth+1)
			}
		}
	}
	walk(chart, 0)
	return sortedKeys(set)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
