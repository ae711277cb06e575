package chart

import (
	"regexp"
	"strings"

	"github.com/codalotl/skilleval/internal/ordered"
	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
)

// Rules is the fifteen-rule style rubric. Every rule is scored, and absent counts as zero.
var Rules = rules.RuleSet[*ordered.Object]{Ternary: true, Rules: []rules.Rule[*ordered.Object]{
	{Name: "rule_01", Check: checkMutedPalette},
	{Name: "rule_02", Check: checkOneHighlight},
	{Name: "rule_03", Check: checkNoRedGreen},
	{Name: "rule_04", Check: checkConsistentColors},
	{Name: "rule_05", Check: checkTitleSentence},
	{Name: "rule_06", Check: checkSource},
	{Name: "rule_07", Check: checkSansSerif},
	{Name: "rule_08", Check: checkDataLabels},
	{Name: "rule_09", Check: checkYZeroBars},
	{Name: "rule_10", Check: checkSpines},
	{Name: "rule_11", Check: checkGridlines},
	{Name: "rule_12", Check: checkRedundantUnits},
	{Name: "rule_13", Check: checkKeyInsight},
	{Name: "rule_14", Check: checkLegend},
	{Name: "rule_15", Check: checkAspectRatio},
}}

// Descriptions name each rule for summaries.
var Descriptions = map[string]string{
	"rule_01": "muted_palette",
	"rule_02": "one_highlight",
	"rule_03": "no_red_green",
	"rule_04": "consistent_colors",
	"rule_05": "title_sentence",
	"rule_06": "source_present",
	"rule_07": "sans_serif",
	"rule_08": "data_labels",
	"rule_09": "y_zero_bars",
	"rule_10": "no_top_right_spine",
	"rule_11": "subtle_gridlines",
	"rule_12": "no_redundant_labels",
	"rule_13": "key_insight",
	"rule_14": "legend_rule",
	"rule_15": "aspect_ratio",
}

func checkMutedPalette(c *ordered.Object, _ types.Task) rules.Verdict {
	colors := dataColors(hexColors(c))
	if len(colors) == 0 {
		return rules.Absentf("no data colors found")
	}
	if bad := filterStrings(colors, isNeonOrPrimary); len(bad) > 0 {
		return rules.Failf("neon/primary colors: %s", strings.Join(bad, ", "))
	}
	if loud := filterStrings(colors, func(s string) bool { return !isMuted(s) }); len(loud) > 0 {
		return rules.Failf("saturated colors: %s", strings.Join(loud, ", "))
	}
	return rules.Passf("%d muted colors", len(colors))
}

func checkOneHighlight(c *ordered.Object, _ types.Task) rules.Verdict {
	highlights, itemColors := highlightInfo(c)
	if len(itemColors) > 1 {
		accents := filterStrings(itemColors, func(s string) bool {
			return !strings.HasPrefix(s, "#5d") && !strings.HasPrefix(s, "#d0")
		})
		if len(accents) > 2 {
			return rules.Failf("%d distinct accent colors in data", len(accents))
		}
	}
	if len(highlights) > 2 {
		return rules.Failf("%d data points flagged as highlight", len(highlights))
	}
	if len(highlights) > 0 || len(annotations(c)) > 0 || len(itemColors) > 0 {
		return rules.Passf("highlight/accent present and <=2")
	}
	return rules.Absentf("no highlight data found")
}

func checkNoRedGreen(c *ordered.Object, _ types.Task) rules.Verdict {
	colors := dataColors(hexColors(c))
	if len(colors) == 0 {
		return rules.Absentf("no colors to evaluate")
	}
	reds := filterStrings(colors, isRedFamily)
	greens := filterStrings(colors, isGreenFamily)
	if len(reds) > 0 && len(greens) > 0 {
		return rules.Failf("red (%s) + green (%s) both present", strings.Join(reds, ", "), strings.Join(greens, ", "))
	}
	return rules.Passf("no red+green conflict")
}

// checkConsistentColors needs several charts to compare; a single chart always passes.
func checkConsistentColors(*ordered.Object, types.Task) rules.Verdict {
	return rules.Passf("single chart (auto-pass)")
}

var labelTitles = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z][A-Za-z\s]+ by [A-Z]`),
	regexp.MustCompile(`^[A-Z][A-Za-z\s]+ of [A-Z]`),
	regexp.MustCompile(`^[A-Z][A-Za-z\s]+ for [A-Z]`),
}

// insightStems mark a title that states a finding rather than naming the data.
var insightStems = []string{
	"remain", "overtook", "surpass", "grew", "decline", "lead",
	"gap", "largest", "smallest", "most", "dominat", "ahead",
	"behind", "slower", "faster", "exceed", "near", "close",
	"catching", "roughly", "approximately", "almost", "still",
	"despite", "while", "although", "but", "yet", "however",
	"significantly", "doubled", "tripled", "half", "twice",
	"why", "how", "matter", "impact", "shift", "chang",
	"continu", "emerg", "fall", "rise", "climb", "drop",
	"surge", "plummet", "stag",
}

func checkTitleSentence(c *ordered.Object, _ types.Task) rules.Verdict {
	text := titleText(c)
	if text == "" {
		return rules.Absentf("no title found")
	}
	n := runeLen(text)
	if n < 20 {
		return rules.Failf("title too short (%d chars): '%s'", n, text)
	}
	if strings.HasSuffix(strings.TrimRight(text, " \t\n\r\f\v"), ":") {
		return rules.Failf("title ends with colon (label style): '%s'", text)
	}

	lower := strings.ToLower(text)
	insight := false
	for _, stem := range insightStems {
		if strings.Contains(lower, stem) {
			insight = true
			break
		}
	}
	if n > 30 || insight {
		return rules.Passf("insight title (%d chars)", n)
	}
	for _, re := range labelTitles {
		if re.MatchString(text) {
			return rules.Failf("label-style title: '%s'", text)
		}
	}
	return rules.Passf("title present (%d chars)", n)
}

var vagueSources = map[string]bool{
	"various sources": true, "multiple sources": true, "see references": true, "internet": true, "online": true,
}

func checkSource(c *ordered.Object, _ types.Task) rules.Verdict {
	src := sourceText(c)
	if src == "" {
		return rules.Absentf("no source field found anywhere")
	}
	if vagueSources[strings.ToLower(strings.TrimSpace(src))] {
		return rules.Failf("vague source: '%s'", src)
	}
	return rules.Passf("source: '%s'", string(rules.Head([]rune(src), 60)))
}

func checkSansSerif(c *ordered.Object, _ types.Task) rules.Verdict {
	fonts := fontFamilies(c)
	if len(fonts) == 0 {
		return rules.Absentf("no font specified")
	}
	if bad := filterStrings(fonts, func(f string) bool { return !isSansSerif(f) }); len(bad) > 0 {
		return rules.Failf("serif fonts: %s", strings.Join(bad, ", "))
	}
	return rules.Passf("sans-serif: %s", strings.Join(rules.Head(fonts, 3), ", "))
}

func checkDataLabels(c *ordered.Object, _ types.Task) rules.Verdict {
	n := dataPoints(c)
	switch {
	case n == 0:
		return rules.Absentf("can't determine data count")
	case n > 8:
		return rules.Passf("%d points (>8, labels optional)", n)
	case hasDataLabels(c):
		return rules.Passf("%d points with labels configured", n)
	}
	return rules.Failf("%d points but no label config", n)
}

func checkYZeroBars(c *ordered.Object, _ types.Task) rules.Verdict {
	ct := chartType(c)
	if ct != "bar" {
		if ct == "" {
			ct = "unknown"
		}
		return rules.Passf("n/a (chart type: %s)", ct)
	}

	if mins := findNumbers(c, "min", "y_min"); len(mins) > 0 {
		if mins[0].Value == 0 {
			return rules.Passf("y min=0")
		}
		return rules.Failf("y min=%s, should be 0", mins[0])
	}
	for _, domain := range findLists(c, "domain") {
		if len(domain) == 0 {
			continue
		}
		if first, ok := asNumber(domain[0]); ok {
			if first.Value == 0 {
				return rules.Passf("y domain starts at 0")
			}
			return rules.Failf("y domain starts at %s", first)
		}
	}
	if zero := findBools(c, "zero"); len(zero) > 0 {
		if zero[0] {
			return rules.Passf("scale.zero=true")
		}
		return rules.Failf("scale.zero=false")
	}
	if begin := findBools(c, "beginAtZero"); len(begin) > 0 {
		if begin[0] {
			return rules.Passf("beginAtZero=true")
		}
		return rules.Failf("beginAtZero=false")
	}
	return rules.Absentf("bar chart with no explicit y-axis config")
}

func checkSpines(c *ordered.Object, _ types.Task) rules.Verdict {
	cfg, ok := spineConfig(c)
	if !ok {
		return rules.Absentf("no spine config found")
	}
	switch {
	case cfg.Top == sideOff && cfg.Right == sideOff:
		return rules.Passf("top+right spines removed")
	case cfg.Top == sideOn || cfg.Right == sideOn:
		var on []string
		if cfg.Top == sideOn {
			on = append(on, "top")
		}
		if cfg.Right == sideOn {
			on = append(on, "right")
		}
		return rules.Failf("spine enabled: %s", strings.Join(on, ", "))
	case cfg.Top == sideOff || cfg.Right == sideOff:
		return rules.Passf("spine removal partially specified")
	}
	return rules.Absentf("spine config exists but unclear")
}

func checkGridlines(c *ordered.Object, _ types.Task) rules.Verdict {
	colors := gridlineColors(c)
	if len(colors) == 0 {
		if op := findNumbers(c, "gridOpacity"); len(op) > 0 {
			if op[0].Value <= 0.5 {
				return rules.Passf("grid opacity=%s (subtle)", op[0])
			}
			return rules.Failf("grid opacity=%s (not subtle)", op[0])
		}
		for _, b := range findBools(c, "gridlines") {
			if !b {
				return rules.Passf("gridlines disabled")
			}
		}
		return rules.Absentf("no grid color specified")
	}
	if dark := filterStrings(colors, func(s string) bool { return !isLight(s) }); len(dark) > 0 {
		return rules.Failf("dark grid colors: %s", strings.Join(dark, ", "))
	}
	return rules.Passf("subtle grid colors: %s", strings.Join(colors, ", "))
}

func checkRedundantUnits(c *ordered.Object, _ types.Task) rules.Verdict {
	locs := unitLocations(c)
	switch {
	case len(locs) < 2:
		return rules.Absentf("unit in %d location(s) — insufficient data", len(locs))
	case len(locs) >= 3:
		return rules.Failf("unit appears in %d places: %s", len(locs), strings.Join(locs, ", "))
	}
	return rules.Passf("unit in %d locations: %s", len(locs), strings.Join(locs, ", "))
}

func checkKeyInsight(c *ordered.Object, _ types.Task) rules.Verdict {
	if notes := annotations(c); len(notes) > 0 {
		return rules.Passf("%d annotation(s)", len(notes))
	}
	highlights, itemColors := highlightInfo(c)
	if len(highlights) > 0 {
		return rules.Passf("%d highlight flag(s)", len(highlights))
	}
	if len(itemColors) > 1 {
		return rules.Passf("accent colors in data: %s", strings.Join(rules.Head(itemColors, 3), ", "))
	}
	if series, ok := c.Get("series").([]any); ok && len(series) > 0 {
		return rules.Passf("series with color differentiation")
	}
	return rules.Failf("no annotations, highlights, or emphasis found")
}

func checkLegend(c *ordered.Object, _ types.Task) rules.Verdict {
	n := seriesCount(c)
	if n == 0 {
		return rules.Absentf("can't determine series count")
	}
	shown, known := legendConfig(c)
	if n <= 3 {
		switch {
		case !shown:
			return rules.Passf("%d series, no legend (correct)", n)
		case n == 3:
			return rules.Passf("3 series with legend (acceptable)")
		}
		return rules.Failf("%d series with legend (should use direct labels)", n)
	}
	switch {
	case known && shown:
		return rules.Passf("%d series with legend (correct)", n)
	case known:
		return rules.Failf("%d series without legend", n)
	}
	return rules.Absentf("%d series, legend config unclear", n)
}

func checkAspectRatio(c *ordered.Object, _ types.Task) rules.Verdict {
	ratio, ok := aspectRatio(c)
	if !ok {
		return rules.Absentf("no dimensions found")
	}
	switch chartType(c) {
	case "line":
		if ratio >= 1.2 {
			return rules.Passf("line chart ratio %.2f >= 1.2", ratio)
		}
		return rules.Failf("line chart ratio %.2f < 1.2 (should be wider)", ratio)
	case "bar":
		if ratio >= 0.8 && ratio <= 2.5 {
			return rules.Passf("bar chart ratio %.2f in [0.8, 2.5]", ratio)
		}
		return rules.Failf("bar chart ratio %.2f outside [0.8, 2.5]", ratio)
	}
	if ratio >= 0.5 && ratio <= 3.0 {
		return rules.Passf("ratio %.2f (acceptable)", ratio)
	}
	return rules.Failf("ratio %.2f (extreme)", ratio)
}
