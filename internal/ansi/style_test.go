package ansi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpeningControlCodes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Style{}.OpeningControlCodes())
	assert.Equal(t, "\x1b[1m", Style{Bold: StyleSetOn, Foreground: NoColor{}, Background: NoColor{}}.OpeningControlCodes())
	assert.Equal(t, "\x1b[1;4m\x1b[38;5;110m", Style{Bold: StyleSetOn, Underline: StyleSetOn, Italic: StyleSetOff, Foreground: ANSI256Color(110)}.OpeningControlCodes())
	assert.Equal(t, "\x1b[7m\x1b[31m\x1b[48;2;1;2;3m", Style{Reverse: StyleSetOn, Foreground: ANSIRed, Background: NewRGBColor(1, 2, 3)}.OpeningControlCodes())
}

func TestWrap(t *testing.T) {
	t.Parallel()

	bold := Style{Bold: StyleSetOn}
	assert.Equal(t, "\x1b[1m\x1b[3mx\x1b[0m", bold.Wrap(Style{Italic: StyleSetOn}.Wrap("x")))
	assert.Equal(t, "\x1b[1mhi\x1b[0m", bold.Wrap("hi\x1b[0m"))
	assert.Equal(t, "plain", Style{Foreground: NoColor{}}.Wrap("plain"))
	assert.Equal(t, "", bold.Wrap(""))
}

func TestApply(t *testing.T) {
	t.Parallel()

	const (
		reset = "\x1b[0m"
		bold  = "\x1b[1m"
		red   = "\x1b[31m"
		blue  = "\x1b[34m"
	)
	tests := []struct {
		name  string
		style Style
		input string
		want  string
	}{
		{"empty", Style{Bold: StyleSetOn}, "", ""},
		{"plain text", Style{Bold: StyleSetOn}, "a", bold + "a" + reset},
		{"foreground overrides embedded", Style{Foreground: ANSIBlue}, red + "red" + reset + " text", blue + "red text" + reset},
		{"embedded survives unset style", Style{}, bold + "hi" + reset + " there", bold + "hi" + reset + " there"},
		{"turns embedded off", Style{Bold: StyleSetOff}, bold + "hi", "hi"},
		{"no color strips embedded color", Style{Foreground: NoColor{}}, red + "x" + reset, "x"},
		{"keeps 256 embedded", Style{Bold: StyleSetOn}, "\x1b[38;5;42mx", bold + "\x1b[38;5;42mx" + reset},
		{"keeps true color embedded", Style{}, "\x1b[48;2;1;2;3my", "\x1b[48;2;1;2;3my" + reset},
		{"drops trailing codes", Style{}, "done" + bold + reset, "done"},
		{"passes other escapes", Style{}, "\x1b[2Kz", "\x1b[2Kz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.style.Apply(tt.input))
		})
	}
}
