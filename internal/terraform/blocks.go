package terraform

import (
	"regexp"

	"github.com/codalotl/skilleval/internal/textscan"
)

// Block is one labeled HCL block. Label2 is empty for single-label blocks such as variable and output.
type Block struct {
	Label1 string
	Label2 string
	Body   string
}

var (
	resourceHeader = regexp.MustCompile(`resource\s+"([^"]+)"\s+"([^"]+)"\s*\{`)
	variableHeader = regexp.MustCompile(`variable\s+"([^"]+)"\s*\{`)
	outputHeader   = regexp.MustCompile(`output\s+"([^"]+)"\s*\{`)
	dataHeader     = regexp.MustCompile(`data\s+"([^"]+)"\s+"([^"]+)"\s*\{`)
	resourceType   = regexp.MustCompile(`resource\s+"([^"]+)"`)
)

func findBlocks(re *regexp.Regexp, text string) []Block {
	var out []Block
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		b := Block{Label1: text[m[2]:m[3]], Body: textscan.BlockBody(text, m[1]-1)}
		if len(m) > 4 && m[4] >= 0 {
			b.Label2 = text[m[4]:m[5]]
		}
		out = append(out, b)
	}
	return out
}

// Resources returns resource blocks; Label1 is the type and Label2 the name.
func Resources(text string) []Block { return findBlocks(resourceHeader, text) }

// Variables returns variable blocks keyed by Label1.
func Variables(text string) []Block { return findBlocks(variableHeader, text) }

// Outputs returns output blocks keyed by Label1.
func Outputs(text string) []Block { return findBlocks(outputHeader, text) }

// DataSources returns data blocks; Label1 is the type and Label2 the name.
func DataSources(text string) []Block { return findBlocks(dataHeader, text) }

// ResourceTypes returns the set of declared resource types.
func ResourceTypes(text string) map[string]bool {
	out := map[string]bool{}
	for _, m := range resourceType.FindAllStringSubmatch(text, -1) {
		out[m[1]] = true
	}
	return out
}
