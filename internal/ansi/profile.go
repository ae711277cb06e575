package ansi

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// ColorProfile is how many colors the terminal can show.
type ColorProfile string

const (
	ColorProfileTrueColor ColorProfile = "true_color"
	ColorProfileANSI256   ColorProfile = "ansi256"
	ColorProfileANSI      ColorProfile = "ansi16"
	ColorProfileUncolored ColorProfile = "uncolored"
)

// GetColorProfile inspects stdout and the environment.
func GetColorProfile() ColorProfile {
	return DetectProfile(os.Getenv, term.IsTerminal(int(os.Stdout.Fd())))
}

// DetectProfile honors NO_COLOR, CLICOLOR and CLICOLOR_FORCE, then reads COLORTERM and TERM. Output that is not a
// terminal, or runs under CI, is uncolored unless forced.
func DetectProfile(getenv func(string) string, tty bool) ColorProfile {
	if getenv("NO_COLOR") != "" {
		return ColorProfileUncolored
	}
	forced := getenv("CLICOLOR_FORCE")
	isForced := forced != "" && forced != "0"
	if getenv("CLICOLOR") == "0" && !isForced {
		return ColorProfileUncolored
	}
	fallback := ColorProfileUncolored
	if isForced {
		fallback = ColorProfileANSI
	}
	if !tty || getenv("CI") != "" {
		return fallback
	}

	switch strings.ToLower(getenv("COLORTERM")) {
	case "24bit", "truecolor":
		return ColorProfileTrueColor
	case "yes", "true":
		return ColorProfileANSI256
	}
	t := strings.ToLower(getenv("TERM"))
	switch {
	case t == "dumb":
		return fallback
	case t == "alacritty" || t == "wezterm" || t == "xterm-kitty" || t == "xterm-ghostty":
		return ColorProfileTrueColor
	case strings.Contains(t, "256color"):
		return ColorProfileANSI256
	case t == "xterm" || t == "linux" || strings.Contains(t, "color") || strings.Contains(t, "ansi"):
		return ColorProfileANSI
	}
	return fallback
}

// Convert maps c to the nearest color p can show. Uncolored yields NoColor; an unknown profile returns c unchanged.
func (p ColorProfile) Convert(c Color) Color {
	if c == nil {
		return nil
	}
	if _, ok := c.(NoColor); ok {
		return c
	}
	switch p {
	case ColorProfileUncolored:
		return NoColor{}
	case ColorProfileTrueColor:
		return rgbOf(c)
	case ColorProfileANSI256:
		switch v := c.(type) {
		case ANSIColor:
			return ANSI256Color(v)
		case ANSI256Color:
			return v
		}
		return rgbOf(c).ANSI256()
	case ColorProfileANSI:
		if v, ok := c.(ANSIColor); ok {
			return v
		}
		return rgbOf(c).ANSI()
	}
	return c
}

// ParseColorFGBG reads the "fg;bg" palette indexes some terminals export in COLORFGBG. Extra middle fields are ignored.
func ParseColorFGBG(value string) (fg, bg ANSIColor, ok bool) {
	parts := strings.Split(value, ";")
	if len(parts) < 2 {
		return 0, 0, false
	}
	f, err1 := strconv.Atoi(parts[0])
	b, err2 := strconv.Atoi(parts[len(parts)-1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	fg, bg = ANSIColor(f), ANSIColor(b)
	if !fg.Valid() || !bg.Valid() {
		return 0, 0, false
	}
	return fg, bg, true
}
