package commitmsg

import (
	"fmt"
	"strings"
)

// Footer is one git trailer.
type Footer struct {
	Token string
	Value string
}

// ParsedCommit is a commit message split into its Conventional Commits parts. Type is empty when the subject does not
// match the subject grammar.
type ParsedCommit struct {
	SubjectLine  string
	Type         string
	Scope        string
	HasScope     bool
	BreakingBang bool
	Separator    string
	Description  string
	Body         string
	Footers      []Footer
	Raw          string
}

// Parse splits msg into subject, body and footers. Footers start at the first recognized footer line; later lines without a
// token continue the previous footer's value.
func Parse(msg string) ParsedCommit {
	raw := strings.TrimSpace(msg)
	lines := strings.Split(raw, "\n")
	p := ParsedCommit{SubjectLine: strings.TrimSpace(lines[0]), Raw: raw}

	if loc := subjectPattern.FindStringSubmatchIndex(p.SubjectLine); loc != nil {
		group := func(name string) (string, bool) {
			i := 2 * subjectPattern.SubexpIndex(name)
			if loc[i] < 0 {
				return "", false
			}
			return p.SubjectLine[loc[i]:loc[i+1]], true
		}
		p.Type, _ = group("type")
		p.Scope, p.HasScope = group("scope")
		_, p.BreakingBang = group("breaking")
		p.Separator, _ = group("sep")
		desc, _ := group("description")
		p.Description = strings.TrimSpace(desc)
	}

	if len(lines) == 1 {
		return p
	}

	var body, footerLines []string
	inFooter, bodyStarted := false, false
	for i, line := range lines[1:] {
		stripped := strings.TrimSpace(line)
		if i == 0 {
			// Line two should be blank. If it is not, the rest is still body.
			if stripped != "" {
				bodyStarted = true
				body = append(body, line)
			}
			continue
		}
		if !bodyStarted && stripped == "" {
			continue
		}
		bodyStarted = true
		if isFooterLine(stripped) {
			inFooter = true
		}
		if inFooter {
			footerLines = append(footerLines, stripped)
		} else {
			body = append(body, line)
		}
	}
	p.Body = strings.Join(trimBlankTail(body), "\n")

	for _, line := range footerLines {
		if line == "" {
			continue
		}
		if f, ok := parseFooter(line); ok {
			p.Footers = append(p.Footers, f)
		} else if n := len(p.Footers); n > 0 {
			p.Footers[n-1].Value += " " + line
		}
	}
	return p
}

// parseFooter splits "Token: value" and "Refs #123" trailers.
func parseFooter(line string) (Footer, bool) {
	if !isFooterLine(line) {
		return Footer{}, false
	}
	if colon := strings.IndexByte(line, ':'); colon > 0 {
		return Footer{Token: strings.TrimSpace(line[:colon]), Value: strings.TrimSpace(line[colon+1:])}, true
	}
	if m := footerRef.FindStringSubmatch(line); m != nil {
		return Footer{Token: m[1], Value: strings.TrimSpace(line[len(m[1]):])}, true
	}
	return Footer{}, false
}

// ValidateStructure reports an empty message, a subject outside the Conventional Commits grammar, or an unknown type.
func ValidateStructure(msg string) []string {
	raw := strings.TrimSpace(msg)
	if raw == "" {
		return []string{"empty message"}
	}
	subject, _, _ := strings.Cut(raw, "\n")
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return []string{"empty subject line"}
	}
	m := subjectPattern.FindStringSubmatch(subject)
	if m == nil {
		return []string{fmt.Sprintf("subject doesn't match conventional commit format: '%s'", subject)}
	}
	if typ := m[subjectPattern.SubexpIndex("type")]; !ValidTypes[typ] {
		return []string{fmt.Sprintf("invalid type: '%s'", typ)}
	}
	return nil
}
