// Package selector compiles the branch-name selection grammar (§4.1) into a
// predicate over leaf names, and applies it to an ordered leaf list.
package selector

import (
	"regexp"
	"strings"
)

// Selector is a compiled selection predicate. The zero value matches
// nothing, mirroring the empty-selection rule.
type Selector struct {
	re *regexp.Regexp
}

// Compile turns a selection string into a Selector per the rules in §4.1:
//
//  1. empty -> match nothing
//  2. "(...)" -> the enclosed text is a regular expression matched against
//     the full leaf name
//  3. contains "*" -> wildcard, each "*" expands to [\w\d_]+, anchored
//  4. otherwise -> literal, exact-match
//
// All whitespace is stripped before the rules are applied. Per §9's open
// question, a literal name that happens to look like "(...)" is treated as
// regex (rule 2 is checked before rule 4) — this is intentional, not a bug,
// and callers relying on literal names starting with "(" must escape or
// avoid that shape.
func Compile(s string) (*Selector, error) {
	s = stripWhitespace(s)

	if s == "" {
		return &Selector{}, nil
	}

	var pattern string
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		pattern = "^(?:" + s + ")$"
	case strings.Contains(s, "*"):
		pattern = wildcardToRegex(s)
	default:
		pattern = "^" + regexp.QuoteMeta(s) + "$"
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Selector{re: re}, nil
}

// Match reports whether name matches the compiled selection.
func (s *Selector) Match(name string) bool {
	if s == nil || s.re == nil {
		return false
	}
	return s.re.MatchString(name)
}

// ListMatching applies the selector to an ordered sequence of leaf names,
// returning the matching subset in the same order (§4.1, §8 property 1:
// Selector closure — the result is always a subsequence, never reordered).
func ListMatching(leafNames []string, s *Selector) []string {
	if s == nil || s.re == nil {
		return nil
	}
	var out []string
	for _, name := range leafNames {
		if s.re.MatchString(name) {
			out = append(out, name)
		}
	}
	return out
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func wildcardToRegex(s string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range s {
		if r == '*' {
			b.WriteString(`[\w\d_]+`)
		} else {
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return b.String()
}
