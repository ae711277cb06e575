package output

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/codalotl/skilleval/internal/ansi"
)

// Printer writes user-facing console output: bold headings, muted detail lines and aligned tables. A blank line separates
// a heading from a preceding block of details or a table.
type Printer struct {
	out         io.Writer
	appStyle    ansi.Style
	detailStyle ansi.Style
	tableStyle  ansi.Style
	last        outputKind
}

type outputKind int

const (
	outputNone outputKind = iota
	outputApp
	outputDetail
	outputTable
)

func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = io.Discard
	}
	return newPrinter(out, ansi.GetColorProfile(), isDarkBackground(os.Getenv("COLORFGBG")))
}

// NewPlainPrinter writes without any escape sequences.
func NewPlainPrinter(out io.Writer) *Printer {
	if out == nil {
		out = io.Discard
	}
	return newPrinter(out, ansi.ColorProfileUncolored, true)
}

func newPrinter(out io.Writer, profile ansi.ColorProfile, darkBackground bool) *Printer {
	headerColor, detailColor := selectColors(profile, darkBackground)
	bold := ansi.StyleSetOn
	if profile == ansi.ColorProfileUncolored {
		bold = ansi.StyleSetUnset
	}
	return &Printer{
		out: out,
		appStyle: ansi.Style{
			Bold:       bold,
			Background: ansi.NoColor{},
		},
		detailStyle: ansi.Style{
			Foreground: detailColor,
			Background: ansi.NoColor{},
			Bold:       ansi.StyleSetOff,
		},
		tableStyle: ansi.Style{
			Foreground: headerColor,
			Background: ansi.NoColor{},
			Bold:       bold,
		},
		last: outputNone,
	}
}

// App writes bold application output.
func (p *Printer) App(text string) error {
	if text == "" {
		return nil
	}
	if err := p.ensureGapBeforeApp(); err != nil {
		return err
	}
	if err := p.writeStyled(p.appStyle, ensureTrailingNewline(text)); err != nil {
		return err
	}
	p.last = outputApp
	return nil
}

func (p *Printer) Appf(format string, args ...any) error {
	return p.App(fmt.Sprintf(format, args...))
}

// Detail writes a muted line, typically under a heading.
func (p *Printer) Detail(text string) error {
	if err := p.writeStyled(p.detailStyle, ensureTrailingNewline(text)); err != nil {
		return err
	}
	p.last = outputDetail
	return nil
}

func (p *Printer) Detailf(format string, args ...any) error {
	return p.Detail(fmt.Sprintf(format, args...))
}

// Table writes header and rows as tab-aligned columns. The header is styled; cells are plain.
func (p *Printer) Table(header []string, rows [][]string) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	first, rest, _ := strings.Cut(buf.String(), "\n")
	if err := p.writeStyled(p.tableStyle, first+"\n"); err != nil {
		return err
	}
	if _, err := io.WriteString(p.out, rest); err != nil {
		return err
	}
	p.last = outputTable
	return nil
}

func (p *Printer) ensureGapBeforeApp() error {
	if p.last != outputDetail && p.last != outputTable {
		return nil
	}
	_, err := io.WriteString(p.out, "\n")
	return err
}

// writeStyled styles each line separately so a reset never spans a newline.
func (p *Printer) writeStyled(style ansi.Style, text string) error {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	var b strings.Builder
	for _, line := range lines {
		body := strings.TrimSuffix(line, "\n")
		b.WriteString(style.Apply(body))
		if len(body) < len(line) {
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(p.out, b.String())
	return err
}

func ensureTrailingNewline(text string) string {
	if strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}

func selectColors(profile ansi.ColorProfile, darkBackground bool) (ansi.Color, ansi.Color) {
	var headerColor ansi.Color
	var detailColor ansi.Color
	if darkBackground {
		headerColor = ansi.ANSI256Color(110)
		detailColor = ansi.ANSI256Color(250)
	} else {
		headerColor = ansi.ANSI256Color(25)
		detailColor = ansi.ANSI256Color(240)
	}
	return profile.Convert(headerColor), profile.Convert(detailColor)
}

// isDarkBackground reads COLORFGBG and assumes a dark terminal when it is absent.
func isDarkBackground(colorfgbg string) bool {
	_, bg, ok := ansi.ParseColorFGBG(colorfgbg)
	if !ok {
		return true
	}
	return luminance(bg) < 0.5
}

func luminance(c ansi.Color) float64 {
	if c == nil {
		return 0
	}
	r, g, b := c.RGB8()
	return channelLuma(r)*0.2126 + channelLuma(g)*0.7152 + channelLuma(b)*0.0722
}

func channelLuma(v uint8) float64 {
	normalized := float64(v) / 255.0
	if normalized <= 0.03928 {
		return normalized / 12.92
	}
	return math.Pow((normalized+0.055)/1.055, 2.4)
}
