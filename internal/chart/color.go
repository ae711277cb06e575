package chart

import (
	"regexp"
	"strings"

	"github.com/codalotl/skilleval/internal/ansi"
)

// mutedPalette is the reference muted palette.
var mutedPalette = map[string]bool{
	"#1a476f": true, "#c74634": true, "#2d7282": true, "#e9c46a": true, "#5d666f": true, "#d0d0d0": true,
}

// neutralColors are grid, text and background colors that never count as data colors.
var neutralColors = map[string]bool{
	"#d0d0d0": true, "#e0e0e0": true, "#f5f5f5": true, "#f0f0f0": true,
	"#cccccc": true, "#999999": true, "#333333": true, "#1a1a1a": true,
}

var primaries = map[string]bool{
	"ff0000": true, "00ff00": true, "0000ff": true, "ffff00": true, "ff00ff": true, "00ffff": true,
}

var serifFonts = []string{
	"times", "times new roman", "georgia", "garamond", "palatino",
	"book antiqua", "baskerville", "cambria",
}

var serifWord = regexp.MustCompile(`\bserif\b`)

// hsl reads the leading #rrggbb of c.
func hsl(c string) (h, s, l float64) {
	if len(c) > 7 {
		c = c[:7]
	}
	rgb, ok := ansi.ParseRGB(c)
	if !ok {
		return 0, 0, 0
	}
	return rgb.HSL()
}

func isMuted(c string) bool {
	if mutedPalette[strings.ToLower(c)] {
		return true
	}
	_, s, l := hsl(c)
	return s < 0.7 || l < 0.45
}

func isNeonOrPrimary(c string) bool {
	if _, s, l := hsl(c); s > 0.85 && l > 0.4 {
		return true
	}
	return primaries[strings.TrimPrefix(strings.ToLower(c), "#")]
}

func isRedFamily(c string) bool {
	h, s, _ := hsl(c)
	return s > 0.3 && (h <= 30 || h >= 330)
}

func isGreenFamily(c string) bool {
	h, s, _ := hsl(c)
	return s > 0.3 && h >= 90 && h <= 150
}

func isLight(c string) bool {
	_, _, l := hsl(c)
	return l > 0.7
}

// isSansSerif is false when font names a serif family. A bare "serif" counts unless it is part of "sans-serif" or
// "sans serif".
func isSansSerif(font string) bool {
	lower := strings.ToLower(font)
	for _, loc := range serifWord.FindAllStringIndex(lower, -1) {
		before := lower[:loc[0]]
		if !strings.HasSuffix(before, "sans-") && !strings.HasSuffix(before, "sans ") {
			return false
		}
	}
	for _, serif := range serifFonts {
		if strings.Contains(lower, serif) {
			return false
		}
	}
	return true
}

// dataColors drops near-white, near-black and neutral colors from colors.
func dataColors(colors []string) []string {
	var out []string
	for _, c := range colors {
		if _, _, l := hsl(c); l > 0.9 || l < 0.05 {
			continue
		}
		if neutralColors[c] {
			continue
		}
		out = append(out, c)
	}
	return out
}

func filterStrings(colors []string, keep func(string) bool) []string {
	var out []string
	for _, c := range colors {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
