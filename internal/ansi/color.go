// Package ansi renders SGR escape sequences for console output: colors, the terminal's color profile, and styles that
// compose with sequences already embedded in text.
package ansi

import (
	"fmt"
	"strconv"
)

// Color is a terminal color that knows its approximate RGB value and its SGR sequence.
type Color interface {
	RGB8() (r, g, b uint8)
	// ANSISequence is the foreground (bg=false) or background (bg=true) sequence, e.g. "\x1b[31m".
	ANSISequence(bg bool) string
}

// NoColor removes color. Its sequence is empty.
type NoColor struct{}

func (NoColor) RGB8() (r, g, b uint8)    { return 0, 0, 0 }
func (NoColor) ANSISequence(bool) string { return "" }
func (NoColor) String() string           { return "none" }

// ANSIColor is one of the 16 base palette colors.
type ANSIColor int

func (c ANSIColor) Valid() bool { return c >= 0 && c < 16 }

func (c ANSIColor) RGB8() (r, g, b uint8) {
	if !c.Valid() {
		return 0, 0, 0
	}
	return ANSI256Color(c).RGB8()
}

func (c ANSIColor) ANSISequence(bg bool) string {
	if !c.Valid() {
		return ""
	}
	base := 30
	if bg {
		base = 40
	}
	if c >= 8 {
		base += 60
		c -= 8
	}
	return fmt.Sprintf("\x1b[%dm", base+int(c))
}

// ANSI256Color is an index into the xterm 256-color palette.
type ANSI256Color int

func (c ANSI256Color) Valid() bool { return c >= 0 && c < 256 }

// RGB8 follows the xterm palette: 16 base colors, a 6x6x6 cube, then 24 grays.
func (c ANSI256Color) RGB8() (r, g, b uint8) {
	switch {
	case !c.Valid():
		return 0, 0, 0
	case c < 16:
		p := basePalette[c]
		return p[0], p[1], p[2]
	case c < 232:
		i := int(c) - 16
		return cubeLevels[i/36], cubeLevels[(i/6)%6], cubeLevels[i%6]
	}
	v := uint8(8 + 10*(int(c)-232))
	return v, v, v
}

func (c ANSI256Color) ANSISequence(bg bool) string {
	if !c.Valid() {
		return ""
	}
	if bg {
		return fmt.Sprintf("\x1b[48;5;%dm", int(c))
	}
	return fmt.Sprintf("\x1b[38;5;%dm", int(c))
}

// RGBColor is a 24-bit color.
type RGBColor struct {
	R, G, B uint8
}

func NewRGBColor(r, g, b uint8) RGBColor {
	return RGBColor{R: r, G: g, B: b}
}

func (c RGBColor) RGB8() (r, g, b uint8) { return c.R, c.G, c.B }

func (c RGBColor) ANSISequence(bg bool) string {
	code := 38
	if bg {
		code = 48
	}
	return fmt.Sprintf("\x1b[%d;2;%d;%d;%dm", code, c.R, c.G, c.B)
}

func (c RGBColor) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ANSI256 is the nearest cube or gray entry of the 256-color palette.
func (c RGBColor) ANSI256() ANSI256Color {
	cube := ANSI256Color(16 + 36*cubeIndex(c.R) + 6*cubeIndex(c.G) + cubeIndex(c.B))
	avg := (int(c.R) + int(c.G) + int(c.B)) / 3
	gi := (avg - 3) / 10
	if gi < 0 {
		gi = 0
	} else if gi > 23 {
		gi = 23
	}
	gray := ANSI256Color(232 + gi)
	if distance(c, gray) < distance(c, cube) {
		return gray
	}
	return cube
}

// ANSI is the nearest of the 16 base colors.
func (c RGBColor) ANSI() ANSIColor {
	best, bestDist := ANSIColor(0), -1
	for i := range basePalette {
		if d := distance(c, ANSIColor(i)); bestDist < 0 || d < bestDist {
			best, bestDist = ANSIColor(i), d
		}
	}
	return best
}

func rgbOf(c Color) RGBColor {
	r, g, b := c.RGB8()
	return RGBColor{r, g, b}
}

func distance(a RGBColor, c Color) int {
	r, g, b := c.RGB8()
	dr, dg, db := int(a.R)-int(r), int(a.G)-int(g), int(a.B)-int(b)
	return dr*dr + dg*dg + db*db
}

func cubeIndex(v uint8) int {
	switch {
	case v < 48:
		return 0
	case v < 115:
		return 1
	}
	return (int(v) - 35) / 40
}

var cubeLevels = [6]uint8{0, 95, 135, 175, 215, 255}

var basePalette = [16][3]uint8{
	{0, 0, 0}, {128, 0, 0}, {0, 128, 0}, {128, 128, 0},
	{0, 0, 128}, {128, 0, 128}, {0, 128, 128}, {192, 192, 192},
	{128, 128, 128}, {255, 0, 0}, {0, 255, 0}, {255, 255, 0},
	{0, 0, 255}, {255, 0, 255}, {0, 255, 255}, {255, 255, 255},
}

// ParseRGB reads "#rrggbb", either case.
func ParseRGB(hex string) (RGBColor, bool) {
	if len(hex) != 7 || hex[0] != '#' {
		return RGBColor{}, false
	}
	var out [3]uint8
	for i := range out {
		v, err := strconv.ParseUint(hex[1+2*i:3+2*i], 16, 8)
		if err != nil {
			return RGBColor{}, false
		}
		out[i] = uint8(v)
	}
	return RGBColor{out[0], out[1], out[2]}, true
}

// HSL returns hue in degrees [0, 360) and saturation and lightness in [0, 1].
func (c RGBColor) HSL() (h, s, l float64) {
	r, g, b := float64(c.R)/255, float64(c.G)/255, float64(c.B)/255
	hi, lo := max(r, g, b), min(r, g, b)
	l = (hi + lo) / 2
	d := hi - lo
	if d == 0 {
		return 0, 0, l
	}
	if l > 0.5 {
		s = d / (2 - hi - lo)
	} else {
		s = d / (hi + lo)
	}
	switch hi {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	return h * 60, s, l
}
