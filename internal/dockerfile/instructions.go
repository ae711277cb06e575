package dockerfile

import (
	"regexp"
	"strings"

	"github.com/mattn/go-shellwords"
)

var continuation = regexp.MustCompile(`\\\s*\n`)

// Instruction is one Dockerfile instruction with continuation lines joined.
type Instruction struct {
	Op   string // upper-cased
	Args string
}

// Parse splits a Dockerfile into instructions, skipping blank and comment lines.
func Parse(dockerfile string) []Instruction {
	joined := continuation.ReplaceAllString(dockerfile, " ")
	var out []Instruction
	for _, line := range strings.Split(joined, "\n") {
		l := strings.TrimSpace(line)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		op, args := l, ""
		if i := strings.IndexAny(l, " \t"); i >= 0 {
			op, args = l[:i], strings.TrimSpace(l[i:])
		}
		out = append(out, Instruction{Op: strings.ToUpper(op), Args: args})
	}
	return out
}

func filter(instrs []Instruction, ops ...string) []Instruction {
	var out []Instruction
	for _, in := range instrs {
		for _, op := range ops {
			if in.Op == op {
				out = append(out, in)
				break
			}
		}
	}
	return out
}

// fromImage returns the image reference of a FROM instruction, skipping flags such as --platform.
func fromImage(args string) string {
	for _, f := range strings.Fields(args) {
		if !strings.HasPrefix(f, "--") {
			return f
		}
	}
	return ""
}

// stageAlias returns the lower-cased name after AS, or "".
func stageAlias(args string) string {
	fields := strings.Fields(args)
	alias := ""
	for i, f := range fields {
		if strings.EqualFold(f, "AS") && i+1 < len(fields) {
			alias = strings.ToLower(fields[i+1])
		}
	}
	return alias
}

// shellCommands splits a RUN script into simple commands at unquoted ;, &, | and redirections. Text that does not tokenize
// (an unterminated quote, say) falls back to one whitespace-split command.
func shellCommands(script string) [][]string {
	var out [][]string
	rest := []rune(script)
	for len(rest) > 0 {
		p := shellwords.NewParser()
		words, err := p.Parse(string(rest))
		if err != nil {
			if f := strings.Fields(string(rest)); len(f) > 0 {
				out = append(out, f)
			}
			break
		}
		if len(words) > 0 {
			out = append(out, words)
		}
		if p.Position < 0 || p.Position >= len(rest) {
			break
		}
		rest = rest[p.Position+1:]
	}
	return out
}

func hasWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
