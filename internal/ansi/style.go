package ansi

import (
	"strconv"
	"strings"
)

// Named ANSI colors.
const (
	ANSIBlack ANSIColor = iota
	ANSIRed
	ANSIGreen
	ANSIYellow
	ANSIBlue
	ANSIMagenta
	ANSICyan
	ANSIWhite
	ANSIBrightBlack
	ANSIBrightRed
	ANSIBrightGreen
	ANSIBrightYellow
	ANSIBrightBlue
	ANSIBrightMagenta
	ANSIBrightCyan
	ANSIBrightWhite
)

const resetSequence = "\x1b[0m"

// StyleSet is a tri-state attribute: unset attributes inherit whatever the text already carries.
type StyleSet int

const (
	StyleSetUnset StyleSet = iota
	StyleSetOn
	StyleSetOff
)

// Style describes attributes applied to text. A nil color is unset; NoColor{} removes any color.
type Style struct {
	Foreground    Color
	Background    Color
	Bold          StyleSet
	Italic        StyleSet
	Underline     StyleSet
	Overline      StyleSet
	StrikeThrough StyleSet
	Reverse       StyleSet
}

// attribute indexes into sgrState.flags, in SGR code order.
const (
	attrBold = iota
	attrItalic
	attrUnderline
	attrReverse
	attrStrike
	attrOverline
	attrCount
)

var attrOnCodes = [attrCount]int{1, 3, 4, 7, 9, 53}

// sgrState is the rendition in effect at a point in text.
type sgrState struct {
	flags  [attrCount]bool
	fg, bg Color
}

func (s sgrState) empty() bool {
	return s == sgrState{}
}

func (s sgrState) opening() string {
	var b strings.Builder
	var codes []string
	for i, on := range s.flags {
		if on {
			codes = append(codes, strconv.Itoa(attrOnCodes[i]))
		}
	}
	if len(codes) > 0 {
		b.WriteString("\x1b[" + strings.Join(codes, ";") + "m")
	}
	if s.fg != nil {
		b.WriteString(s.fg.ANSISequence(false))
	}
	if s.bg != nil {
		b.WriteString(s.bg.ANSISequence(true))
	}
	return b.String()
}

func (st Style) sets() [attrCount]StyleSet {
	return [attrCount]StyleSet{st.Bold, st.Italic, st.Underline, st.Reverse, st.StrikeThrough, st.Overline}
}

// over returns embedded with st's set attributes layered on top.
func (st Style) over(embedded sgrState) sgrState {
	out := embedded
	for i, set := range st.sets() {
		switch set {
		case StyleSetOn:
			out.flags[i] = true
		case StyleSetOff:
			out.flags[i] = false
		}
	}
	out.fg = overColor(st.Foreground, embedded.fg)
	out.bg = overColor(st.Background, embedded.bg)
	return out
}

func overColor(style, embedded Color) Color {
	switch style.(type) {
	case nil:
		return embedded
	case NoColor:
		return nil
	default:
		return style
	}
}

// OpeningControlCodes returns the escape sequences that turn st on: one combined attribute sequence, then foreground,
// then background.
func (st Style) OpeningControlCodes() string {
	return st.over(sgrState{}).opening()
}

// Wrap prefixes text with st's opening codes and appends a reset unless text already ends with one.
func (st Style) Wrap(text string) string {
	codes := st.OpeningControlCodes()
	if text == "" || codes == "" {
		return text
	}
	if strings.HasSuffix(text, resetSequence) {
		return codes + text
	}
	return codes + text + resetSequence
}

// Apply renders text with st taking precedence over any SGR sequences already inside it. Embedded attributes st leaves
// unset survive; sequences that change nothing visible are dropped.
func (st Style) Apply(text string) string {
	if text == "" {
		return ""
	}
	var out strings.Builder
	var embedded, cur sgrState
	for len(text) > 0 {
		if seq, params, ok := nextSGR(text); ok {
			embedded = embedded.update(params)
			text = text[len(seq):]
			continue
		}
		end := strings.Index(text, "\x1b[")
		if end <= 0 {
			end = len(text)
			if i := strings.Index(text[1:], "\x1b["); i >= 0 {
				end = i + 1
			}
		}
		want := st.over(embedded)
		if want != cur {
			if !cur.empty() {
				out.WriteString(resetSequence)
			}
			out.WriteString(want.opening())
			cur = want
		}
		out.WriteString(text[:end])
		text = text[end:]
	}
	if !cur.empty() {
		out.WriteString(resetSequence)
	}
	return out.String()
}

// nextSGR matches an SGR sequence ("\x1b[...m") at the start of s.
func nextSGR(s string) (seq string, params []int, ok bool) {
	if !strings.HasPrefix(s, "\x1b[") {
		return "", nil, false
	}
	i := 2
	for i < len(s) && (s[i] == ';' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	if i >= len(s) || s[i] != 'm' {
		return "", nil, false
	}
	body := s[2:i]
	if body == "" {
		return s[:i+1], []int{0}, true
	}
	for _, part := range strings.Split(body, ";") {
		n, _ := strconv.Atoi(part)
		params = append(params, n)
	}
	return s[:i+1], params, true
}

func (s sgrState) update(params []int) sgrState {
	for i := 0; i < len(params); i++ {
		p := params[i]
		switch {
		case p == 0:
			s = sgrState{}
		case p == 1:
			s.flags[attrBold] = true
		case p == 22:
			s.flags[attrBold] = false
		case p == 3:
			s.flags[attrItalic] = true
		case p == 23:
			s.flags[attrItalic] = false
		case p == 4:
			s.flags[attrUnderline] = true
		case p == 24:
			s.flags[attrUnderline] = false
		case p == 7:
			s.flags[attrReverse] = true
		case p == 27:
			s.flags[attrReverse] = false
		case p == 9:
			s.flags[attrStrike] = true
		case p == 29:
			s.flags[attrStrike] = false
		case p == 53:
			s.flags[attrOverline] = true
		case p == 55:
			s.flags[attrOverline] = false
		case p >= 30 && p <= 37:
			s.fg = ANSIColor(p - 30)
		case p >= 90 && p <= 97:
			s.fg = ANSIColor(p - 90 + 8)
		case p == 39:
			s.fg = nil
		case p >= 40 && p <= 47:
			s.bg = ANSIColor(p - 40)
		case p >= 100 && p <= 107:
			s.bg = ANSIColor(p - 100 + 8)
		case p == 49:
			s.bg = nil
		case p == 38 || p == 48:
			c, used := extendedColor(params[i+1:])
			i += used
			if p == 38 {
				s.fg = c
			} else {
				s.bg = c
			}
		}
	}
	return s
}

// extendedColor parses the arguments after 38 or 48: "5;n" or "2;r;g;b".
func extendedColor(args []int) (Color, int) {
	if len(args) >= 2 && args[0] == 5 {
		return ANSI256Color(args[1]), 2
	}
	if len(args) >= 4 && args[0] == 2 {
		return NewRGBColor(uint8(args[1]), uint8(args[2]), uint8(args[3])), 4
	}
	return nil, len(args)
}
