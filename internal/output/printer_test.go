package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codalotl/skilleval/internal/ansi"
)

func TestPlainPrinterLayout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)
	require.NoError(t, p.App("Evaluating 3 result files..."))
	require.NoError(t, p.Detailf("none: mean=%.1f, n=%d", 4.0, 2))
	require.NoError(t, p.App("Results written to scores.csv"))
	require.NoError(t, p.Table([]string{"model", "n"}, [][]string{{"opus", "12"}, {"glm-5", "3"}}))
	require.NoError(t, p.App(""))

	want := strings.Join([]string{
		"Evaluating 3 result files...",
		"none: mean=4.0, n=2",
		"",
		"Results written to scores.csv",
		"model  n",
		"opus   12",
		"glm-5  3",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestPlainPrinterStripsEmbeddedCodes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)
	require.NoError(t, p.Detail("\x1b[31mred\x1b[0m text"))
	assert.Equal(t, "red text\n", buf.String())
}

func TestColoredPrinterStylesEachLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := newPrinter(&buf, ansi.ColorProfileANSI256, true)
	require.NoError(t, p.App("a\nb"))
	assert.Equal(t, "\x1b[1ma\x1b[0m\n\x1b[1mb\x1b[0m\n", buf.String())

	buf.Reset()
	require.NoError(t, p.Table([]string{"h"}, [][]string{{"v"}}))
	assert.Equal(t, "\x1b[1m\x1b[38;5;110mh\x1b[0m\nv\n", buf.String())
}

func TestNilWriterDiscards(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewPlainPrinter(nil).App("x"))
	require.NoError(t, NewPlainPrinter(nil).Detail("x"))
}

func TestIsDarkBackground(t *testing.T) {
	t.Parallel()

	assert.True(t, isDarkBackground(""))
	assert.True(t, isDarkBackground("15;0"))
	assert.False(t, isDarkBackground("0;15"))
	assert.False(t, isDarkBackground("0;7"))
}
